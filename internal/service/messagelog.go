package service

import (
	"context"
	"fmt"

	"github.com/set-night/llmgate/internal/domain"
	"github.com/set-night/llmgate/internal/repository"
)

// MessageLog is the append-only conversation transcript.
type MessageLog struct {
	store Store
}

func NewMessageLog(store Store) *MessageLog {
	return &MessageLog{store: store}
}

func (l *MessageLog) Append(ctx context.Context, q repository.Querier, msg domain.NewMessage) (domain.MessageID, error) {
	id, err := q.InsertMessage(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("append message: %w", err)
	}
	return id, nil
}

// LatestN returns up to n of the newest messages, newest last.
func (l *MessageLog) LatestN(ctx context.Context, conversationID domain.ConversationID, n int) ([]domain.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	msgs, err := l.store.LatestMessages(ctx, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("latest messages: %w", err)
	}
	return msgs, nil
}

func (l *MessageLog) Usage(ctx context.Context, conversationID domain.ConversationID) (domain.Usage, error) {
	u, err := l.store.ConversationUsage(ctx, conversationID)
	if err != nil {
		return domain.Usage{}, fmt.Errorf("conversation usage: %w", err)
	}
	return u, nil
}
