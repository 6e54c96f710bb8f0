// Package sqlite contains a checkpoint.Store implementation backed by
// an embedded SQLite database, for single-process deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/get-eventually/go-projections/checkpoint"
)

const schema = `CREATE TABLE IF NOT EXISTS projection_checkpoints (
	name       TEXT    PRIMARY KEY,
	checkpoint TEXT    NOT NULL,
	updated_at INTEGER NOT NULL
)`

var _ checkpoint.Store = new(CheckpointStore)

// CheckpointStore persists checkpoints in a SQLite database file.
type CheckpointStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens, or creates, the SQLite database at the specified path
// and creates the checkpoints table if necessary.
func Open(ctx context.Context, path string) (*CheckpointStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite.Open: storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: failed to open database, %w", err)
	}

	// SQLite allows a single writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.Open: failed to create checkpoints table, %w", err)
	}

	return &CheckpointStore{db: db, now: time.Now}, nil
}

// Close closes the underlying database handle.
func (s *CheckpointStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// Get implements the checkpoint.Store interface.
func (s *CheckpointStore) Get(ctx context.Context, name string) (checkpoint.Token, error) {
	name, err := checkpoint.ValidateName(name)
	if err != nil {
		return checkpoint.Beginning, fmt.Errorf("sqlite.CheckpointStore: %w", err)
	}

	var token string

	err = s.db.QueryRowContext(ctx, `SELECT checkpoint FROM projection_checkpoints WHERE name = ?`, name).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return checkpoint.Beginning, nil
	}

	if err != nil {
		return checkpoint.Beginning, fmt.Errorf("sqlite.CheckpointStore: failed to get checkpoint of '%s', %w", name, err)
	}

	return checkpoint.Token(token), nil
}

// Put implements the checkpoint.Store interface.
func (s *CheckpointStore) Put(ctx context.Context, name string, token checkpoint.Token) error {
	name, err := checkpoint.ValidateName(name)
	if err != nil {
		return fmt.Errorf("sqlite.CheckpointStore: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO projection_checkpoints (name, checkpoint, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET checkpoint = excluded.checkpoint, updated_at = excluded.updated_at`,
		name, token.String(), s.now().UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("sqlite.CheckpointStore: failed to put checkpoint of '%s', %w", name, err)
	}

	return nil
}
