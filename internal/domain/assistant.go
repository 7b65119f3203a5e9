package domain

// Assistant is a bot persona bound to one provider and one platform agent id.
type Assistant struct {
	ID                 AssistantID
	Name               string
	AgentID            int64
	ProviderID         ProviderID
	SystemPrompt       string
	ContextReservation int // tokens kept free for the completion when trimming context
}
