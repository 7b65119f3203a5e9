package service

import (
	"context"
	"fmt"

	"github.com/set-night/llmgate/internal/domain"
	"github.com/set-night/llmgate/internal/repository"
	"github.com/shopspring/decimal"
)

// Settlement is the outcome of charging one turn.
type Settlement struct {
	Charged    decimal.Decimal
	NewBalance decimal.Decimal
	// Delta is balance minus cost before flooring; negative only on overdraft.
	Delta decimal.Decimal
}

func (s Settlement) Overdraft() bool {
	return s.Delta.IsNegative()
}

type BillingLedger struct {
	store Store
}

func NewBillingLedger(store Store) *BillingLedger {
	return &BillingLedger{store: store}
}

// Cost prices a turn at the given per-token rates, rounded to the stored money scale.
func Cost(p domain.Pricing, promptTokens, completionTokens int) decimal.Decimal {
	prompt := p.PromptTokenPrice.Mul(decimal.NewFromInt(int64(promptTokens)))
	completion := p.CompletionTokenPrice.Mul(decimal.NewFromInt(int64(completionTokens)))
	return prompt.Add(completion).Round(domain.MoneyScale)
}

// WorstCase bounds a turn's cost assuming the provider spends all of maxTokens.
func WorstCase(p domain.Pricing, estimatedPromptTokens, maxTokens int) decimal.Decimal {
	return Cost(p, estimatedPromptTokens, maxTokens)
}

// Precheck rejects a turn the guest cannot afford in the worst case.
func (b *BillingLedger) Precheck(guest domain.Guest, worstCase decimal.Decimal) error {
	if worstCase.IsPositive() && guest.Credit.LessThan(worstCase) {
		return domain.ErrInsufficientCredit
	}
	return nil
}

// Commit charges cost against the guest inside q's transaction. The guest row is
// locked first; credit floors at zero and the shortfall is reported in Delta.
func (b *BillingLedger) Commit(ctx context.Context, q repository.Querier, guestID domain.GuestID, cost decimal.Decimal) (Settlement, error) {
	guest, err := q.GetGuestForUpdate(ctx, guestID)
	if err != nil {
		return Settlement{}, fmt.Errorf("lock guest: %w", err)
	}

	delta := guest.Credit.Sub(cost)
	newBalance := delta
	if newBalance.IsNegative() {
		newBalance = decimal.Zero
	}

	if !cost.IsZero() {
		if err := q.SetGuestCredit(ctx, guestID, newBalance); err != nil {
			return Settlement{}, fmt.Errorf("update credit: %w", err)
		}
	}

	return Settlement{
		Charged:    guest.Credit.Sub(newBalance),
		NewBalance: newBalance,
		Delta:      delta,
	}, nil
}

// TopUp adds amount to a guest's credit and returns the new balance. The amount
// must pass domain.ValidTopUp.
func (b *BillingLedger) TopUp(ctx context.Context, guestName string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !domain.ValidTopUp(amount) {
		return decimal.Zero, domain.ErrInvalidAmount
	}

	var balance decimal.Decimal
	err := b.store.InTx(ctx, func(q repository.Querier) error {
		guest, err := q.GetGuestByName(ctx, guestName)
		if err != nil {
			return err
		}
		balance, err = q.AddGuestCredit(ctx, guest.ID, amount)
		return err
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("top up %s: %w", guestName, err)
	}
	return balance, nil
}
