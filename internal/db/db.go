package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmirchev92/stp/internal/config"
	"github.com/dmirchev92/stp/internal/db/sqlc"
)

// Store is the query surface shared by the Postgres and in-memory backends.
// InTx runs fn against a transaction-bound Querier; fn's error rolls everything back.
type Store interface {
	sqlc.Querier
	InTx(ctx context.Context, fn func(q sqlc.Querier) error) error
}

func Open(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	return pgxpool.New(ctx, DSN(cfg))
}

// PgStore is a Store backed by a pgx pool.
type PgStore struct {
	*sqlc.Queries
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{Queries: sqlc.New(pool), pool: pool}
}

func (s *PgStore) InTx(ctx context.Context, fn func(q sqlc.Querier) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(s.Queries.WithTx(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Ping checks that the pool can reach the server.
func (s *PgStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool exposes the underlying pool for callers that need raw statements (migrations, tests).
func (s *PgStore) Pool() *pgxpool.Pool {
	return s.pool
}
