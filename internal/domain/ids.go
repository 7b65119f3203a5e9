package domain

type (
	GuestID        int64
	ProviderID     int64
	AssistantID    int64
	ConversationID int64
	MessageID      int64
)
