package repository

import (
	"context"
	"time"
)

// ClaimNonce records a callback (nonce, timestamp) pair. It reports false when
// the pair was already claimed.
func (q *Queries) ClaimNonce(ctx context.Context, nonce, timestamp string) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`INSERT INTO callback_nonces (nonce, timestamp) VALUES ($1, $2)
		 ON CONFLICT (nonce, timestamp) DO NOTHING`, nonce, timestamp)
	if err != nil {
		return false, storeErr("claim nonce", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (q *Queries) ReleaseNonce(ctx context.Context, nonce, timestamp string) error {
	if _, err := q.db.Exec(ctx,
		`DELETE FROM callback_nonces WHERE nonce = $1 AND timestamp = $2`, nonce, timestamp); err != nil {
		return storeErr("release nonce", err)
	}
	return nil
}

func (q *Queries) PurgeNonces(ctx context.Context, before time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM callback_nonces WHERE received_at < $1`, before)
	if err != nil {
		return 0, storeErr("purge nonces", err)
	}
	return tag.RowsAffected(), nil
}
