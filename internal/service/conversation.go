package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/set-night/llmgate/internal/domain"
)

// resolveAttempts bounds the select/insert race loop. Losing an insert race means
// another request committed a row that the next select will see.
const resolveAttempts = 3

type ConversationManager struct {
	store       Store
	idleTimeout time.Duration
	now         func() time.Time
}

func NewConversationManager(store Store, idleTimeout time.Duration) *ConversationManager {
	return &ConversationManager{store: store, idleTimeout: idleTimeout, now: time.Now}
}

// ResolveOrCreate returns the single active conversation for the pair, creating it
// with the given price snapshot when none exists.
func (m *ConversationManager) ResolveOrCreate(ctx context.Context, guestID domain.GuestID, assistantID domain.AssistantID, pricing domain.Pricing) (domain.Conversation, error) {
	for range resolveAttempts {
		conv, err := m.store.GetActiveConversation(ctx, guestID, assistantID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, domain.ErrConversationNotFound) {
			return domain.Conversation{}, fmt.Errorf("get active conversation: %w", err)
		}

		conv, created, err := m.store.InsertActiveConversation(ctx, guestID, assistantID, pricing)
		if err != nil {
			return domain.Conversation{}, fmt.Errorf("create conversation: %w", err)
		}
		if created {
			slog.Debug("conversation created", "conversation_id", conv.ID, "guest_id", guestID, "assistant_id", assistantID)
			return conv, nil
		}
	}
	return domain.Conversation{}, fmt.Errorf("resolve conversation: %w", domain.ErrStore)
}

// Close deactivates a conversation. Closing an inactive one is a no-op.
func (m *ConversationManager) Close(ctx context.Context, id domain.ConversationID) error {
	if err := m.store.CloseConversation(ctx, id); err != nil {
		return fmt.Errorf("close conversation %d: %w", id, err)
	}
	return nil
}

// StartNew closes the pair's active conversation, if any, and opens a fresh one.
func (m *ConversationManager) StartNew(ctx context.Context, guestID domain.GuestID, assistantID domain.AssistantID, pricing domain.Pricing) (domain.Conversation, error) {
	if _, err := m.store.CloseActiveConversation(ctx, guestID, assistantID); err != nil {
		return domain.Conversation{}, fmt.Errorf("close active conversation: %w", err)
	}
	return m.ResolveOrCreate(ctx, guestID, assistantID, pricing)
}

// CloseIdle closes active conversations untouched for longer than the idle timeout.
func (m *ConversationManager) CloseIdle(ctx context.Context) (int64, error) {
	if m.idleTimeout <= 0 {
		return 0, nil
	}
	n, err := m.store.CloseIdleConversations(ctx, m.now().Add(-m.idleTimeout))
	if err != nil {
		return 0, fmt.Errorf("close idle conversations: %w", err)
	}
	if n > 0 {
		slog.Info("idle conversations closed", "count", n)
	}
	return n, nil
}
