// Package store persists insights in SQLite behind a bounded connection
// pool.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/lazypower/recall/internal/errs"
)

// Store is the insight database.
type Store struct {
	pool *Pool
	Path string
	log  *slog.Logger
}

// DefaultDBPath returns the default database path: ~/.recall/recall.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".recall", "recall.db"), nil
}

// Open opens (or creates) the database at path, fills the connection pool
// and brings the schema up to date. Opening an existing database again is
// safe.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errs.Storage("open", fmt.Errorf("create db dir: %w", err))
	}

	opts.withDefaults()
	pool, err := NewPool(path, opts)
	if err != nil {
		return nil, err
	}

	s := &Store{pool: pool, Path: path, log: opts.Logger}
	if err := pool.WithConn(ctx, func(c *Conn) error { return migrate(ctx, c) }); err != nil {
		pool.Close()
		return nil, errs.Storage("migrate", err)
	}
	s.log.Debug("store: opened", "path", path, "pool_size", opts.Size)
	return s, nil
}

// Close closes every connection.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Pool exposes the connection pool, for stats and metrics.
func (s *Store) Pool() *Pool {
	return s.pool
}

// Ping checks that a connection can be borrowed and used.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.WithConn(ctx, func(c *Conn) error {
		return errs.Storage("ping", c.PingContext(ctx))
	})
}
