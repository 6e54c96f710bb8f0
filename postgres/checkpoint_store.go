package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/get-eventually/go-projections/checkpoint"
)

var _ checkpoint.Store = new(CheckpointStore)

// CheckpointStore is a checkpoint.Store implementation
// persisting checkpoints in a PostgreSQL table.
type CheckpointStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewCheckpointStore returns a new CheckpointStore using the specified connection pool.
func NewCheckpointStore(pool *pgxpool.Pool, options ...Option[*CheckpointStore]) *CheckpointStore {
	store := &CheckpointStore{
		pool:  pool,
		table: pgx.Identifier{DefaultCheckpointsTableName}.Sanitize(),
	}

	for _, opt := range options {
		opt.apply(store)
	}

	return store
}

// Get implements the checkpoint.Store interface.
func (s *CheckpointStore) Get(ctx context.Context, name string) (checkpoint.Token, error) {
	name, err := checkpoint.ValidateName(name)
	if err != nil {
		return checkpoint.Beginning, fmt.Errorf("postgres.CheckpointStore: %w", err)
	}

	var token string

	row := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT checkpoint FROM %s WHERE name = $1", s.table), name)

	if err := row.Scan(&token); errors.Is(err, pgx.ErrNoRows) {
		return checkpoint.Beginning, nil
	} else if err != nil {
		return checkpoint.Beginning, fmt.Errorf("postgres.CheckpointStore: failed to get checkpoint of '%s', %w", name, err)
	}

	return checkpoint.Token(token), nil
}

// Put implements the checkpoint.Store interface.
func (s *CheckpointStore) Put(ctx context.Context, name string, token checkpoint.Token) error {
	name, err := checkpoint.ValidateName(name)
	if err != nil {
		return fmt.Errorf("postgres.CheckpointStore: %w", err)
	}

	if _, err := s.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (name, checkpoint, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO
		UPDATE SET checkpoint = $2, updated_at = NOW()`, s.table),
		name, token.String(),
	); err != nil {
		return fmt.Errorf("postgres.CheckpointStore: failed to put checkpoint of '%s', %w", name, err)
	}

	return nil
}
