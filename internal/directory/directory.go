// internal/directory/directory.go

// Package directory is the thin query/RPC client for the shared lobby
// directory, a hosted Postgres reached through pgx. Server-side functions
// (parlor_create_lobby, parlor_claim_public_seat, parlor_claim_code_seat)
// provide the atomic paths; plain statements back the degraded fallbacks
// used when the functions are missing from the schema.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no lobby row matches the query.
var ErrNotFound = errors.New("lobby not found")

// Store wraps a pgx connection pool with the lobby directory operations.
type Store struct {
	pool *pgxpool.Pool
}

// Connect builds a pooled connection to the directory and verifies it with a ping.
func Connect(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("directory ping failed: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStore wraps an existing pool, mainly for tests.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}
