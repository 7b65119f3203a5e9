package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/llmgate/internal/domain"
)

const conversationColumns = `id, guest_id, assistant_id, active, prompt_token_price, completion_token_price, created_at, updated_at`

func scanConversation(row pgx.Row) (domain.Conversation, error) {
	var c domain.Conversation
	err := row.Scan(&c.ID, &c.GuestID, &c.AssistantID, &c.Active,
		&c.Pricing.PromptTokenPrice, &c.Pricing.CompletionTokenPrice, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (q *Queries) GetActiveConversation(ctx context.Context, guestID domain.GuestID, assistantID domain.AssistantID) (domain.Conversation, error) {
	c, err := scanConversation(q.db.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE guest_id = $1 AND assistant_id = $2 AND active`, guestID, assistantID))
	if err != nil {
		return domain.Conversation{}, notFound("get active conversation", err, domain.ErrConversationNotFound)
	}
	return c, nil
}

// InsertActiveConversation inserts an active conversation unless the pair already
// has one; inserted is false when the partial unique index rejected the row.
func (q *Queries) InsertActiveConversation(ctx context.Context, guestID domain.GuestID, assistantID domain.AssistantID, pricing domain.Pricing) (domain.Conversation, bool, error) {
	c, err := scanConversation(q.db.QueryRow(ctx,
		`INSERT INTO conversations (guest_id, assistant_id, active, prompt_token_price, completion_token_price)
		 VALUES ($1, $2, TRUE, $3, $4)
		 ON CONFLICT (guest_id, assistant_id) WHERE active DO NOTHING
		 RETURNING `+conversationColumns,
		guestID, assistantID, pricing.PromptTokenPrice, pricing.CompletionTokenPrice))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Conversation{}, false, nil
	}
	if err != nil {
		return domain.Conversation{}, false, storeErr("insert conversation", err)
	}
	return c, true, nil
}

func (q *Queries) CloseConversation(ctx context.Context, id domain.ConversationID) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE conversations SET active = FALSE, updated_at = now() WHERE id = $1 AND active`, id)
	if err != nil {
		return storeErr("close conversation", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := q.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return storeErr("check conversation", err)
	}
	if !exists {
		return domain.ErrConversationNotFound
	}
	return nil
}

func (q *Queries) CloseActiveConversation(ctx context.Context, guestID domain.GuestID, assistantID domain.AssistantID) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE conversations SET active = FALSE, updated_at = now()
		 WHERE guest_id = $1 AND assistant_id = $2 AND active`, guestID, assistantID)
	if err != nil {
		return false, storeErr("close active conversation", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (q *Queries) CloseIdleConversations(ctx context.Context, before time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE conversations SET active = FALSE, updated_at = now()
		 WHERE active AND updated_at < $1`, before)
	if err != nil {
		return 0, storeErr("close idle conversations", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) TouchConversation(ctx context.Context, id domain.ConversationID) error {
	if _, err := q.db.Exec(ctx, `UPDATE conversations SET updated_at = now() WHERE id = $1`, id); err != nil {
		return storeErr("touch conversation", err)
	}
	return nil
}
