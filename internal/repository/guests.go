package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/llmgate/internal/domain"
	"github.com/shopspring/decimal"
)

const guestColumns = `id, name, credit, admin, created_at, updated_at`

func scanGuest(row pgx.Row) (domain.Guest, error) {
	var g domain.Guest
	err := row.Scan(&g.ID, &g.Name, &g.Credit, &g.IsAdmin, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

func (q *Queries) GetGuestByName(ctx context.Context, name string) (domain.Guest, error) {
	g, err := scanGuest(q.db.QueryRow(ctx,
		`SELECT `+guestColumns+` FROM guests WHERE name = $1`, name))
	if err != nil {
		return domain.Guest{}, notFound("get guest", err, domain.ErrGuestNotFound)
	}
	return g, nil
}

// UpsertGuest returns the guest named name, creating it with zero credit if needed.
func (q *Queries) UpsertGuest(ctx context.Context, name string) (domain.Guest, bool, error) {
	var (
		g       domain.Guest
		created bool
	)
	err := q.db.QueryRow(ctx,
		`INSERT INTO guests (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING `+guestColumns+`, (xmax = 0) AS created`, name).
		Scan(&g.ID, &g.Name, &g.Credit, &g.IsAdmin, &g.CreatedAt, &g.UpdatedAt, &created)
	if err != nil {
		return domain.Guest{}, false, storeErr("upsert guest", err)
	}
	return g, created, nil
}

func (q *Queries) GetGuestForUpdate(ctx context.Context, id domain.GuestID) (domain.Guest, error) {
	g, err := scanGuest(q.db.QueryRow(ctx,
		`SELECT `+guestColumns+` FROM guests WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return domain.Guest{}, notFound("lock guest", err, domain.ErrGuestNotFound)
	}
	return g, nil
}

func (q *Queries) SetGuestCredit(ctx context.Context, id domain.GuestID, credit decimal.Decimal) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE guests SET credit = $2, updated_at = now() WHERE id = $1`, id, credit)
	if err != nil {
		return storeErr("set guest credit", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGuestNotFound
	}
	return nil
}

func (q *Queries) AddGuestCredit(ctx context.Context, id domain.GuestID, delta decimal.Decimal) (decimal.Decimal, error) {
	var credit decimal.Decimal
	err := q.db.QueryRow(ctx,
		`UPDATE guests SET credit = credit + $2, updated_at = now() WHERE id = $1 RETURNING credit`,
		id, delta).Scan(&credit)
	if err != nil {
		return decimal.Zero, notFound("add guest credit", err, domain.ErrGuestNotFound)
	}
	return credit, nil
}

func (q *Queries) SetGuestAdmin(ctx context.Context, name string, admin bool) (domain.Guest, error) {
	g, err := scanGuest(q.db.QueryRow(ctx,
		`UPDATE guests SET admin = $2, updated_at = now() WHERE name = $1 RETURNING `+guestColumns,
		name, admin))
	if err != nil {
		return domain.Guest{}, notFound("set guest admin", err, domain.ErrGuestNotFound)
	}
	return g, nil
}

func (q *Queries) ListGuests(ctx context.Context) ([]domain.Guest, error) {
	rows, err := q.db.Query(ctx, `SELECT `+guestColumns+` FROM guests ORDER BY id`)
	if err != nil {
		return nil, storeErr("list guests", err)
	}
	defer rows.Close()

	var guests []domain.Guest
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, storeErr("scan guest", err)
		}
		guests = append(guests, g)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list guests", err)
	}
	return guests, nil
}
