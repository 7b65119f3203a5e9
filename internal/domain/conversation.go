package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Conversation struct {
	ID          ConversationID
	GuestID     GuestID
	AssistantID AssistantID
	Active      bool
	Pricing     Pricing
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// MessageType is the role of a transcript entry.
type MessageType int

const (
	MessageSystem    MessageType = 1
	MessageUser      MessageType = 2
	MessageAssistant MessageType = 3
)

func (t MessageType) Role() string {
	switch t {
	case MessageSystem:
		return "system"
	case MessageUser:
		return "user"
	case MessageAssistant:
		return "assistant"
	default:
		return "user"
	}
}

type ContentType int

const (
	ContentText ContentType = 1
)

type Message struct {
	ID               MessageID
	ConversationID   ConversationID
	CreatedAt        time.Time
	Content          string
	Cost             decimal.Decimal
	Type             MessageType
	ContentType      ContentType
	PromptTokens     int
	CompletionTokens int
}

// NewMessage is the insert form of Message.
type NewMessage struct {
	ConversationID   ConversationID
	Content          string
	Cost             decimal.Decimal
	Type             MessageType
	ContentType      ContentType
	PromptTokens     int
	CompletionTokens int
}

// Usage aggregates a conversation's transcript.
type Usage struct {
	Messages         int
	PromptTokens     int
	CompletionTokens int
	Cost             decimal.Decimal
}
