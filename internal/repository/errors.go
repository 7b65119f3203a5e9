package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/set-night/llmgate/internal/domain"
)

// storeErr tags err with domain.ErrStore while keeping the driver error reachable.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(domain.ErrStore, err))
}

// notFound maps pgx.ErrNoRows to the given domain error.
func notFound(op string, err error, missing error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return missing
	}
	return storeErr(op, err)
}
