package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/get-eventually/go-projections/postgres/internal"
	"github.com/get-eventually/go-projections/projection"
)

var _ projection.UnitOfWork = new(UnitOfWork)

// UnitOfWork is a projection.UnitOfWork backed by a database transaction.
//
// Projectors should use Tx to apply their changes, which are committed
// only if all the events of the Transaction have been projected.
type UnitOfWork struct {
	tx pgx.Tx
}

// Tx returns the database transaction of the UnitOfWork.
func (u *UnitOfWork) Tx() pgx.Tx { return u.tx }

// Commit implements the projection.UnitOfWork interface.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	if err := u.tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres.UnitOfWork: failed to commit transaction, %w", err)
	}

	return nil
}

// Close implements the projection.UnitOfWork interface.
// Uncommitted changes are rolled back.
func (u *UnitOfWork) Close(ctx context.Context) error {
	if err := internal.Rollback(ctx, u.tx); err != nil {
		return fmt.Errorf("postgres.UnitOfWork: %w", err)
	}

	return nil
}

// NewUnitOfWorkFactory returns a projection.UnitOfWorkFactory opening
// a new database transaction for each UnitOfWork.
func NewUnitOfWorkFactory(pool *pgxpool.Pool) projection.UnitOfWorkFactory {
	return func(ctx context.Context) (projection.UnitOfWork, error) {
		tx, err := pool.BeginTx(ctx, internal.ReadWrite)
		if err != nil {
			return nil, fmt.Errorf("postgres.NewUnitOfWorkFactory: failed to begin transaction, %w", err)
		}

		return &UnitOfWork{tx: tx}, nil
	}
}

// TxFrom returns the database transaction of the projection.UnitOfWork,
// if it is a postgres.UnitOfWork.
func TxFrom(uow projection.UnitOfWork) (pgx.Tx, bool) {
	u, ok := uow.(*UnitOfWork)
	if !ok {
		return nil, false
	}

	return u.tx, true
}
