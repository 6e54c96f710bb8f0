package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/get-eventually/go-projections/correlation"
	"github.com/get-eventually/go-projections/postgres"
	"github.com/get-eventually/go-projections/projection"
	"github.com/get-eventually/go-projections/serde"
)

const streamActivityProjector = "stream-activity"

const createStreamActivityTable = `
CREATE TABLE IF NOT EXISTS stream_activity (
    stream_id       TEXT        PRIMARY KEY,
    events          BIGINT      NOT NULL DEFAULT 0,
    last_checkpoint BIGINT      NOT NULL,
    last_event_type TEXT        NOT NULL,
    correlation_id  TEXT,
    updated_at      TIMESTAMPTZ NOT NULL
)`

const upsertStreamActivity = `
INSERT INTO stream_activity (stream_id, events, last_checkpoint, last_event_type, correlation_id, updated_at)
VALUES ($1, 1, $2, $3, $4, $5)
ON CONFLICT (stream_id) DO UPDATE SET
    events          = stream_activity.events + 1,
    last_checkpoint = EXCLUDED.last_checkpoint,
    last_event_type = EXCLUDED.last_event_type,
    correlation_id  = EXCLUDED.correlation_id,
    updated_at      = EXCLUDED.updated_at`

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

var _ execer = pgx.Tx(nil)

// streamActivity keeps, for every Event Stream, the number of events
// committed and the last one seen, together with its Correlation id.
type streamActivity struct {
	db execer
}

func newStreamActivity(uow projection.UnitOfWork) (projection.Projector, error) {
	tx, ok := postgres.TxFrom(uow)
	if !ok {
		return nil, fmt.Errorf("streamActivity: unsupported unit of work, %T", uow)
	}

	return streamActivity{db: tx}, nil
}

func eventType(event any) string {
	if payload, ok := event.(serde.Payload); ok {
		return payload.Type
	}

	return fmt.Sprintf("%T", event)
}

// Handle implements the projection.Projector interface.
func (p streamActivity) Handle(ctx context.Context, event any, pctx projection.Context) error {
	sequence, err := strconv.ParseInt(pctx.Checkpoint.String(), 10, 64)
	if err != nil {
		return fmt.Errorf("streamActivity: invalid checkpoint '%s', %w", pctx.Checkpoint, err)
	}

	var correlationID *string
	if id, ok := correlation.IDContext(ctx); ok {
		correlationID = &id
	}

	if _, err := p.db.Exec(ctx, upsertStreamActivity,
		pctx.StreamID,
		sequence,
		eventType(event),
		correlationID,
		pctx.TimeStamp,
	); err != nil {
		return fmt.Errorf("streamActivity: failed to update stream '%s', %w", pctx.StreamID, err)
	}

	return nil
}
