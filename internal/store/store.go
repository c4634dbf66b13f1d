package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaDDL string

var (
	// ErrNotFound reports that no document exists under the given id.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyClaimed reports that another worker owns the document.
	ErrAlreadyClaimed = errors.New("document already claimed")
)

// Store persists documents and their detected field regions in Postgres.
type Store struct {
	db *sqlx.DB
}

// Open connects to the database at dsn and verifies the connection.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connecting: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an existing connection pool.
func New(db *sqlx.DB) *Store { return &Store{db: db} }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// EnsureSchema creates missing tables and indexes. Intended for dev and
// test databases; production schemas are managed externally.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("store: ensuring schema: %w", err)
	}
	return nil
}
