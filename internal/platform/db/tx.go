package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

// DBTxKey is the context key under which an open transaction travels.
const DBTxKey contextKey = "db_tx"

// TxFromContext retrieves the transaction from context, if one is open.
// Repositories check this before falling back to the pool so that a service
// operation wrapped in WithTx has all of its reads and writes share one
// atomic boundary.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx runs fn inside a single transaction. The transaction is placed in
// the context handed to fn; it commits when fn returns nil and rolls back
// otherwise. Nested calls reuse the already-open transaction.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if tx := TxFromContext(ctx); tx != nil {
		return fn(ctx)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, DBTxKey, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
