package postgres

import "github.com/jackc/pgx/v5"

// Option can be used to change the configuration of an object.
type Option[T any] interface {
	apply(T)
}

type option[T any] func(T)

func newOption[T any](f func(T)) option[T] { return option[T](f) }

func (apply option[T]) apply(val T) { apply(val) }

const (
	// DefaultCommitsTableName is the default table a CommitSource reads Commits from.
	DefaultCommitsTableName = "commits"
	// DefaultEventsTableName is the default table a CommitSource reads the events of each Commit from.
	DefaultEventsTableName = "commit_events"
	// DefaultCheckpointsTableName is the default table a CheckpointStore points to.
	DefaultCheckpointsTableName = "projection_checkpoints"
)

// WithCommitsTableName allows you to specify a different Commits table name
// that a CommitSource should use.
func WithCommitsTableName(tableName string) Option[*CommitSource] {
	return newOption(func(source *CommitSource) {
		source.commitsTable = pgx.Identifier{tableName}.Sanitize()
	})
}

// WithEventsTableName allows you to specify a different events table name
// that a CommitSource should use.
func WithEventsTableName(tableName string) Option[*CommitSource] {
	return newOption(func(source *CommitSource) {
		source.eventsTable = pgx.Identifier{tableName}.Sanitize()
	})
}

// WithCheckpointsTableName allows you to specify a different checkpoints table name
// that a CheckpointStore should use.
func WithCheckpointsTableName(tableName string) Option[*CheckpointStore] {
	return newOption(func(store *CheckpointStore) {
		store.table = pgx.Identifier{tableName}.Sanitize()
	})
}
