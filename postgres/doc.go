// Package postgres contains the PostgreSQL-backed components of the
// projection pipeline: a CommitSource reading Commits from the "commits"
// and "commit_events" tables, a CheckpointStore persisting the checkpoints
// of durable dispatchers, and a UnitOfWork scoping the effects of the
// projectors of a single Transaction in a database transaction.
//
// Use RunMigrations to create the necessary tables.
package postgres
