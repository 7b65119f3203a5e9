package callback

import "encoding/xml"

type cdata struct {
	Value string `xml:",cdata"`
}

// inbound is the outer POST body.
type inbound struct {
	XMLName    xml.Name `xml:"xml"`
	ToUserName string   `xml:"ToUserName"`
	AgentID    string   `xml:"AgentID"`
	Encrypt    string   `xml:"Encrypt"`
}

// Message is a decrypted delivery. Contact change events fill Event,
// ChangeType and UserID instead of Content.
type Message struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   string   `xml:"ToUserName"`
	FromUserName string   `xml:"FromUserName"`
	CreateTime   int64    `xml:"CreateTime"`
	MsgType      string   `xml:"MsgType"`
	Content      string   `xml:"Content"`
	MsgID        string   `xml:"MsgId"`
	AgentID      int64    `xml:"AgentID"`
	Event        string   `xml:"Event"`
	ChangeType   string   `xml:"ChangeType"`
	UserID       string   `xml:"UserID"`
}

const (
	MsgTypeText  = "text"
	MsgTypeEvent = "event"

	eventChangeContact = "change_contact"
	changeCreateUser   = "create_user"
)

func (m *Message) IsText() bool {
	return m.MsgType == MsgTypeText
}

// IsUserCreated reports a contact event announcing a new member.
func (m *Message) IsUserCreated() bool {
	return m.MsgType == MsgTypeEvent && m.Event == eventChangeContact && m.ChangeType == changeCreateUser
}

type textReply struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   cdata    `xml:"ToUserName"`
	FromUserName cdata    `xml:"FromUserName"`
	CreateTime   int64    `xml:"CreateTime"`
	MsgType      cdata    `xml:"MsgType"`
	Content      cdata    `xml:"Content"`
}

type encryptedReply struct {
	XMLName      xml.Name `xml:"xml"`
	Encrypt      cdata    `xml:"Encrypt"`
	MsgSignature cdata    `xml:"MsgSignature"`
	TimeStamp    string   `xml:"TimeStamp"`
	Nonce        cdata    `xml:"Nonce"`
}
