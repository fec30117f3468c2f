package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TxRunner wraps a unit of work in one atomic transaction. Services depend on
// this interface so tests can substitute a passthrough runner.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PoolRunner runs units of work against a pgx pool.
type PoolRunner struct {
	Pool *pgxpool.Pool
}

func (r PoolRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return WithTx(ctx, r.Pool, fn)
}
