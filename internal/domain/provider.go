package domain

import "github.com/shopspring/decimal"

// Provider is an LLM backend. Name doubles as the upstream model identifier.
type Provider struct {
	ID                   ProviderID
	Name                 string
	Endpoint             string
	MaxTokens            int
	PromptTokenPrice     decimal.Decimal // per token
	CompletionTokenPrice decimal.Decimal // per token
}

// Pricing is the price pair a conversation is billed at.
type Pricing struct {
	PromptTokenPrice     decimal.Decimal
	CompletionTokenPrice decimal.Decimal
}

func (p *Provider) Pricing() Pricing {
	return Pricing{
		PromptTokenPrice:     p.PromptTokenPrice,
		CompletionTokenPrice: p.CompletionTokenPrice,
	}
}

func (p Pricing) IsFree() bool {
	return p.PromptTokenPrice.IsZero() && p.CompletionTokenPrice.IsZero()
}
