package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/set-night/llmgate/internal/domain"
	"github.com/shopspring/decimal"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Querier is the full query surface. Lookups that miss return the matching
// domain not-found error; every other failure matches domain.ErrStore.
type Querier interface {
	GetGuestByName(ctx context.Context, name string) (domain.Guest, error)
	UpsertGuest(ctx context.Context, name string) (domain.Guest, bool, error)
	GetGuestForUpdate(ctx context.Context, id domain.GuestID) (domain.Guest, error)
	SetGuestCredit(ctx context.Context, id domain.GuestID, credit decimal.Decimal) error
	AddGuestCredit(ctx context.Context, id domain.GuestID, delta decimal.Decimal) (decimal.Decimal, error)
	SetGuestAdmin(ctx context.Context, name string, admin bool) (domain.Guest, error)
	ListGuests(ctx context.Context) ([]domain.Guest, error)

	GetAssistantByAgentID(ctx context.Context, agentID int64) (domain.Assistant, error)
	GetProvider(ctx context.Context, id domain.ProviderID) (domain.Provider, error)

	GetActiveConversation(ctx context.Context, guestID domain.GuestID, assistantID domain.AssistantID) (domain.Conversation, error)
	InsertActiveConversation(ctx context.Context, guestID domain.GuestID, assistantID domain.AssistantID, pricing domain.Pricing) (domain.Conversation, bool, error)
	CloseConversation(ctx context.Context, id domain.ConversationID) error
	CloseActiveConversation(ctx context.Context, guestID domain.GuestID, assistantID domain.AssistantID) (bool, error)
	CloseIdleConversations(ctx context.Context, before time.Time) (int64, error)
	TouchConversation(ctx context.Context, id domain.ConversationID) error

	InsertMessage(ctx context.Context, msg domain.NewMessage) (domain.MessageID, error)
	LatestMessages(ctx context.Context, conversationID domain.ConversationID, n int) ([]domain.Message, error)
	ConversationUsage(ctx context.Context, conversationID domain.ConversationID) (domain.Usage, error)

	ClaimNonce(ctx context.Context, nonce, timestamp string) (bool, error)
	ReleaseNonce(ctx context.Context, nonce, timestamp string) error
	PurgeNonces(ctx context.Context, before time.Time) (int64, error)
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

var _ Querier = (*Queries)(nil)

// MarkInitialized writes the first-run marker. created is false when it already existed.
func (q *Queries) MarkInitialized(ctx context.Context) (time.Time, bool, error) {
	var at time.Time
	err := q.db.QueryRow(ctx,
		`INSERT INTO db_init_status (id) VALUES (1)
		 ON CONFLICT (id) DO NOTHING
		 RETURNING initialized_at`).Scan(&at)
	if err == nil {
		return at, true, nil
	}
	if err != pgx.ErrNoRows {
		return time.Time{}, false, storeErr("write init marker", err)
	}

	if err := q.db.QueryRow(ctx, `SELECT initialized_at FROM db_init_status WHERE id = 1`).Scan(&at); err != nil {
		return time.Time{}, false, storeErr("read init marker", err)
	}
	return at, false, nil
}
