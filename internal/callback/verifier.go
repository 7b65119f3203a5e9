// Package callback authenticates and opens WeCom webhook requests and seals replies.
package callback

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/llmgate/internal/domain"
	"github.com/set-night/llmgate/internal/envelope"
)

// Query carries the signed URL parameters of a callback.
type Query struct {
	Signature string
	Timestamp string
	Nonce     string
}

type Verifier struct {
	token  string
	cipher *envelope.Cipher
	skew   time.Duration
	now    func() time.Time
}

// NewVerifier builds a verifier. A zero skew disables the timestamp window.
func NewVerifier(token string, cipher *envelope.Cipher, skew time.Duration) *Verifier {
	return &Verifier{
		token:  token,
		cipher: cipher,
		skew:   skew,
		now:    time.Now,
	}
}

// Verify checks the timestamp window and the signature over payload, then
// decrypts it. Nothing is decrypted unless the signature matches.
func (v *Verifier) Verify(signature, timestamp, nonce, payload string) (string, error) {
	if err := v.checkTimestamp(timestamp); err != nil {
		return "", err
	}
	if signature == "" || !envelope.Verify(signature, v.token, timestamp, nonce, payload) {
		return "", fmt.Errorf("%w: signature mismatch", domain.ErrAuth)
	}
	return v.cipher.Decrypt(payload)
}

func (v *Verifier) checkTimestamp(timestamp string) error {
	sec, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", domain.ErrAuth, timestamp)
	}
	if v.skew <= 0 {
		return nil
	}
	d := v.now().Sub(time.Unix(sec, 0))
	if d < 0 {
		d = -d
	}
	if d > v.skew {
		return fmt.Errorf("%w: timestamp outside window", domain.ErrAuth)
	}
	return nil
}

// Handshake answers the URL verification request with the decrypted echo string.
func (v *Verifier) Handshake(q Query, echo string) (string, error) {
	return v.Verify(q.Signature, q.Timestamp, q.Nonce, echo)
}

// Open authenticates a delivery body and returns the decrypted message. Only a
// body that passed the signature check can fail with domain.ErrIntegrity.
func (v *Verifier) Open(q Query, body []byte) (*Message, error) {
	// Without a payload there is nothing the signature could cover.
	var in inbound
	if err := xml.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("%w: request body: %v", domain.ErrAuth, err)
	}
	if in.Encrypt == "" {
		return nil, fmt.Errorf("%w: missing Encrypt", domain.ErrAuth)
	}

	plain, err := v.Verify(q.Signature, q.Timestamp, q.Nonce, in.Encrypt)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := xml.Unmarshal([]byte(plain), &msg); err != nil {
		return nil, fmt.Errorf("%w: message: %v", domain.ErrIntegrity, err)
	}
	if msg.AgentID == 0 && in.AgentID != "" {
		if id, err := strconv.ParseInt(strings.TrimSpace(in.AgentID), 10, 64); err == nil {
			msg.AgentID = id
		}
	}
	return &msg, nil
}

// Reply seals a passive text reply to user.
func (v *Verifier) Reply(user, content string) ([]byte, error) {
	now := v.now()
	doc, err := xml.Marshal(textReply{
		ToUserName:   cdata{user},
		FromUserName: cdata{v.cipher.ReceiverID()},
		CreateTime:   now.Unix(),
		MsgType:      cdata{MsgTypeText},
		Content:      cdata{content},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal reply: %w", err)
	}

	encrypted, err := v.cipher.Encrypt(string(doc))
	if err != nil {
		return nil, fmt.Errorf("encrypt reply: %w", err)
	}

	timestamp := strconv.FormatInt(now.Unix(), 10)
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]

	out, err := xml.Marshal(encryptedReply{
		Encrypt:      cdata{encrypted},
		MsgSignature: cdata{envelope.Sign(v.token, timestamp, nonce, encrypted)},
		TimeStamp:    timestamp,
		Nonce:        cdata{nonce},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal encrypted reply: %w", err)
	}
	return out, nil
}
