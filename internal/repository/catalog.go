package repository

import (
	"context"

	"github.com/set-night/llmgate/internal/domain"
)

func (q *Queries) GetAssistantByAgentID(ctx context.Context, agentID int64) (domain.Assistant, error) {
	var a domain.Assistant
	err := q.db.QueryRow(ctx,
		`SELECT id, name, agent_id, provider_id, system_prompt, context_reservation
		 FROM assistants WHERE agent_id = $1`, agentID).
		Scan(&a.ID, &a.Name, &a.AgentID, &a.ProviderID, &a.SystemPrompt, &a.ContextReservation)
	if err != nil {
		return domain.Assistant{}, notFound("get assistant", err, domain.ErrUnknownAssistant)
	}
	return a, nil
}

func (q *Queries) GetProvider(ctx context.Context, id domain.ProviderID) (domain.Provider, error) {
	var p domain.Provider
	err := q.db.QueryRow(ctx,
		`SELECT id, name, endpoint, max_tokens, prompt_token_price, completion_token_price
		 FROM providers WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Endpoint, &p.MaxTokens, &p.PromptTokenPrice, &p.CompletionTokenPrice)
	if err != nil {
		return domain.Provider{}, notFound("get provider", err, domain.ErrProviderNotFound)
	}
	return p, nil
}
