// Package postgres implements the credential store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"identity-service/internal/config"
	"identity-service/internal/util"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when a lookup by natural key matches nothing
	// that is still live (unexpired, unused).
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateEmail is returned on an insert for an email that already
	// belongs to a user. Checked explicitly before the insert.
	ErrDuplicateEmail = errors.New("email already registered")
)

// DB is the subset of pgxpool.Pool the repositories need. pgxmock's pool
// satisfies it, which is what the repository tests run against.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Connect opens a connection pool and verifies connectivity.
func Connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	util.Info("Postgres pool initialized",
		util.Int("max_conns", cfg.Database.MaxConns))

	return pool, nil
}
