package service

import (
	"github.com/set-night/llmgate/internal/domain"
	"github.com/set-night/llmgate/internal/provider"
)

const (
	// perMessageTokens approximates the role and framing overhead of one chat message.
	perMessageTokens = 4
	// minCompletionTokens is the least completion room kept out of the context.
	minCompletionTokens = 16
)

// EstimateTokens is a rough upper-leaning estimate of ~3 bytes per token.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s)+2)/3 + perMessageTokens
}

// buildContext assembles system prompt, history and the new user text, dropping
// the oldest history first until the estimate fits the provider's context length
// minus the completion reservation. It returns the messages and the estimated
// prompt tokens.
func buildContext(a domain.Assistant, p domain.Provider, history []domain.Message, text string) ([]provider.Message, int) {
	kept := make([]domain.Message, 0, len(history))
	for _, m := range history {
		if m.Type != domain.MessageSystem {
			kept = append(kept, m)
		}
	}

	budget := p.MaxTokens - max(a.ContextReservation, minCompletionTokens)
	total := EstimateTokens(a.SystemPrompt) + EstimateTokens(text)
	for _, m := range kept {
		total += EstimateTokens(m.Content)
	}

	start := 0
	for start < len(kept) && total > budget {
		total -= EstimateTokens(kept[start].Content)
		start++
	}

	msgs := make([]provider.Message, 0, len(kept)-start+2)
	if a.SystemPrompt != "" {
		msgs = append(msgs, provider.Message{Role: domain.MessageSystem.Role(), Content: a.SystemPrompt})
	}
	for _, m := range kept[start:] {
		msgs = append(msgs, provider.Message{Role: m.Type.Role(), Content: m.Content})
	}
	msgs = append(msgs, provider.Message{Role: domain.MessageUser.Role(), Content: text})

	return msgs, total
}

// completionBudget caps the reply so that prompt and completion together stay
// within the provider's context length.
func completionBudget(p domain.Provider, promptEstimate int) int {
	return min(max(p.MaxTokens-promptEstimate, minCompletionTokens), p.MaxTokens)
}
