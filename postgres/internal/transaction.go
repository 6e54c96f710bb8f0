package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// TxBeginner represents a pgx-related component that can initiate transactions.
type TxBeginner interface {
	BeginTx(ctx context.Context, options pgx.TxOptions) (pgx.Tx, error)
}

// ReadWrite are the transaction options used by the write paths of this package.
var ReadWrite = pgx.TxOptions{
	IsoLevel:   pgx.ReadCommitted,
	AccessMode: pgx.ReadWrite,
}

// Rollback rolls back the transaction, even if ctx has been canceled already.
// Rolling back a transaction that has been closed already is not an error.
func Rollback(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction, %w", err)
	}

	return nil
}

// RunTransaction runs a critical data change path in a transaction,
// seamlessly handling the transaction lifecycle (begin, commit, rollback).
func RunTransaction(
	ctx context.Context,
	db TxBeginner,
	options pgx.TxOptions, //nolint:gocritic // The pgx API uses value semantics, will do the same here.
	do func(ctx context.Context, tx pgx.Tx) error,
) (err error) {
	withContext := func(msg string, err error) error {
		return fmt.Errorf("%s, %w", msg, err)
	}

	tx, err := db.BeginTx(ctx, options)
	if err != nil {
		return withContext("failed to begin transaction", err)
	}

	defer func() {
		if err == nil {
			return
		}

		if rollbackErr := Rollback(ctx, tx); rollbackErr != nil {
			err = fmt.Errorf("%w (caused by: %w)", rollbackErr, err)
		}
	}()

	if err := do(ctx, tx); err != nil {
		return withContext("failed to perform transaction", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return withContext("failed to commit transaction", err)
	}

	return nil
}
