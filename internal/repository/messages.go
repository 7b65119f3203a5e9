package repository

import (
	"context"

	"github.com/set-night/llmgate/internal/domain"
)

func (q *Queries) InsertMessage(ctx context.Context, msg domain.NewMessage) (domain.MessageID, error) {
	contentType := msg.ContentType
	if contentType == 0 {
		contentType = domain.ContentText
	}

	var id domain.MessageID
	err := q.db.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, content, cost, message_type, content_type, prompt_tokens, completion_tokens)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		msg.ConversationID, msg.Content, msg.Cost, msg.Type, contentType,
		msg.PromptTokens, msg.CompletionTokens).Scan(&id)
	if err != nil {
		return 0, storeErr("insert message", err)
	}
	return id, nil
}

// LatestMessages returns up to n most recent messages, oldest first.
func (q *Queries) LatestMessages(ctx context.Context, conversationID domain.ConversationID, n int) ([]domain.Message, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, conversation_id, created_at, content, cost, message_type, content_type, prompt_tokens, completion_tokens
		 FROM (
		     SELECT * FROM messages WHERE conversation_id = $1 ORDER BY id DESC LIMIT $2
		 ) latest
		 ORDER BY id ASC`, conversationID, n)
	if err != nil {
		return nil, storeErr("latest messages", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.CreatedAt, &m.Content, &m.Cost,
			&m.Type, &m.ContentType, &m.PromptTokens, &m.CompletionTokens); err != nil {
			return nil, storeErr("scan message", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("latest messages", err)
	}
	return msgs, nil
}

func (q *Queries) ConversationUsage(ctx context.Context, conversationID domain.ConversationID) (domain.Usage, error) {
	var u domain.Usage
	err := q.db.QueryRow(ctx,
		`SELECT count(*), COALESCE(sum(prompt_tokens), 0), COALESCE(sum(completion_tokens), 0), COALESCE(sum(cost), 0)
		 FROM messages WHERE conversation_id = $1`, conversationID).
		Scan(&u.Messages, &u.PromptTokens, &u.CompletionTokens, &u.Cost)
	if err != nil {
		return domain.Usage{}, storeErr("conversation usage", err)
	}
	return u, nil
}
