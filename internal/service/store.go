package service

import (
	"context"

	"github.com/set-night/llmgate/internal/repository"
)

// Store is the persistence surface services depend on. *repository.Store satisfies it.
type Store interface {
	repository.Querier
	InTx(ctx context.Context, fn func(q repository.Querier) error) error
}

var _ Store = (*repository.Store)(nil)
