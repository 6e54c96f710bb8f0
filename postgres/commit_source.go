package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/get-eventually/go-projections/checkpoint"
	"github.com/get-eventually/go-projections/eventsource"
	"github.com/get-eventually/go-projections/postgres/internal"
	"github.com/get-eventually/go-projections/serde"
)

var (
	_ eventsource.Source                 = new(CommitSource)
	_ eventsource.LatestCheckpointGetter = new(CommitSource)
)

// CommitSource is an eventsource.Source implementation reading Commits
// from PostgreSQL, using the commit sequence number as checkpoint.
//
// Event bodies are decoded through a serde.Registry. Bodies of types
// unknown to the Registry are passed through as serde.Payload values.
type CommitSource struct {
	pool         *pgxpool.Pool
	registry     *serde.Registry
	commitsTable string
	eventsTable  string
}

// NewCommitSource returns a new CommitSource using the specified connection pool.
func NewCommitSource(pool *pgxpool.Pool, registry *serde.Registry, options ...Option[*CommitSource]) *CommitSource {
	if registry == nil {
		registry = serde.NewRegistry()
	}

	source := &CommitSource{
		pool:         pool,
		registry:     registry,
		commitsTable: pgx.Identifier{DefaultCommitsTableName}.Sanitize(),
		eventsTable:  pgx.Identifier{DefaultEventsTableName}.Sanitize(),
	}

	for _, opt := range options {
		opt.apply(source)
	}

	return source
}

// Append commits the events to the specified stream, in a single transaction.
//
// Appends are serialized through a table lock, so that checkpoints become
// visible to readers in order.
func (s *CommitSource) Append(
	ctx context.Context,
	streamID string,
	headers map[string]any,
	events ...eventsource.Event,
) (eventsource.Commit, error) {
	commit := eventsource.Commit{
		ID:       uuid.NewString(),
		StreamID: streamID,
		Headers:  headers,
		Events:   events,
	}

	rawHeaders, err := marshalHeaders(headers)
	if err != nil {
		return eventsource.Commit{}, fmt.Errorf("postgres.CommitSource: failed to serialize commit headers, %w", err)
	}

	err = internal.RunTransaction(ctx, s.pool, internal.ReadWrite, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf("LOCK TABLE %s IN EXCLUSIVE MODE", s.commitsTable)); err != nil {
			return fmt.Errorf("failed to lock commits table, %w", err)
		}

		var sequence int64

		row := tx.QueryRow(ctx,
			fmt.Sprintf(`INSERT INTO %s (commit_id, stream_id, headers)
			VALUES ($1::UUID, $2, $3)
			RETURNING checkpoint, committed_at`, s.commitsTable),
			commit.ID, streamID, rawHeaders,
		)

		if err := row.Scan(&sequence, &commit.Timestamp); err != nil {
			return fmt.Errorf("failed to insert commit, %w", err)
		}

		commit.Checkpoint = checkpoint.FromInt64(sequence)

		for i, evt := range events {
			if err := s.appendEvent(ctx, tx, sequence, i, evt); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return eventsource.Commit{}, fmt.Errorf("postgres.CommitSource: failed to append commit, %w", err)
	}

	commit.Timestamp = commit.Timestamp.UTC()

	return commit, nil
}

func (s *CommitSource) appendEvent(ctx context.Context, tx pgx.Tx, sequence int64, position int, evt eventsource.Event) error {
	payload, err := s.registry.Serialize(evt.Body)
	if err != nil {
		return fmt.Errorf("failed to serialize event %d, %w", position, err)
	}

	rawHeaders, err := marshalHeaders(evt.Headers)
	if err != nil {
		return fmt.Errorf("failed to serialize headers of event %d, %w", position, err)
	}

	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (checkpoint, position, event_type, payload, headers)
		VALUES ($1, $2, $3, $4, $5)`, s.eventsTable),
		sequence, position, payload.Type, payload.Data, rawHeaders,
	); err != nil {
		return fmt.Errorf("failed to insert event %d, %w", position, err)
	}

	return nil
}

// GetFrom implements the eventsource.Source interface.
func (s *CommitSource) GetFrom(ctx context.Context, from checkpoint.Token, limit int) ([]eventsource.Commit, error) {
	after, ok := from.Int64()
	if !ok {
		return nil, fmt.Errorf("postgres.CommitSource: invalid checkpoint '%s'", from)
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT c.checkpoint, c.commit_id::TEXT, c.stream_id, c.committed_at, c.headers,
			e.event_type, e.payload, e.headers
		FROM (
			SELECT * FROM %s WHERE checkpoint > $1 ORDER BY checkpoint LIMIT $2
		) c
		LEFT JOIN %s e ON e.checkpoint = c.checkpoint
		ORDER BY c.checkpoint, e.position`, s.commitsTable, s.eventsTable),
		after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres.CommitSource: failed to query commits, %w", err)
	}

	defer rows.Close()

	var commits []eventsource.Commit

	for rows.Next() {
		var (
			sequence      int64
			commit        eventsource.Commit
			commitHeaders []byte
			eventType     *string
			payload       []byte
			eventHeaders  []byte
		)

		if err := rows.Scan(
			&sequence, &commit.ID, &commit.StreamID, &commit.Timestamp, &commitHeaders,
			&eventType, &payload, &eventHeaders,
		); err != nil {
			return nil, fmt.Errorf("postgres.CommitSource: failed to scan next row, %w", err)
		}

		commit.Checkpoint = checkpoint.FromInt64(sequence)

		if n := len(commits); n == 0 || commits[n-1].Checkpoint != commit.Checkpoint {
			if commit.Headers, err = unmarshalHeaders(commitHeaders); err != nil {
				return nil, fmt.Errorf("postgres.CommitSource: failed to deserialize commit headers, %w", err)
			}

			commit.Timestamp = commit.Timestamp.UTC()
			commits = append(commits, commit)
		}

		if eventType == nil {
			continue // Commit with no events.
		}

		evt, err := s.decodeEvent(*eventType, payload, eventHeaders)
		if err != nil {
			return nil, fmt.Errorf("postgres.CommitSource: failed to decode event of commit '%s', %w", commit.ID, err)
		}

		last := &commits[len(commits)-1]
		last.Events = append(last.Events, evt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres.CommitSource: failed to read commits, %w", err)
	}

	return commits, nil
}

func (s *CommitSource) decodeEvent(eventType string, data, rawHeaders []byte) (eventsource.Event, error) {
	payload := serde.Payload{Type: eventType, Data: data}

	body, err := s.registry.Deserialize(payload)
	if errors.Is(err, serde.ErrUnknownType) {
		body, err = payload, nil
	}

	if err != nil {
		return eventsource.Event{}, err
	}

	headers, err := unmarshalHeaders(rawHeaders)
	if err != nil {
		return eventsource.Event{}, fmt.Errorf("failed to deserialize event headers, %w", err)
	}

	return eventsource.Event{Body: body, Headers: headers}, nil
}

// CompareCheckpoints implements the eventsource.Source interface.
func (*CommitSource) CompareCheckpoints(x, y checkpoint.Token) int {
	return checkpoint.CompareInt64(x, y)
}

// LatestCheckpoint implements the eventsource.LatestCheckpointGetter interface.
func (s *CommitSource) LatestCheckpoint(ctx context.Context) (checkpoint.Token, error) {
	var sequence *int64

	row := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT MAX(checkpoint) FROM %s", s.commitsTable))
	if err := row.Scan(&sequence); err != nil {
		return checkpoint.Beginning, fmt.Errorf("postgres.CommitSource: failed to query latest checkpoint, %w", err)
	}

	if sequence == nil {
		return checkpoint.Beginning, nil
	}

	return checkpoint.FromInt64(*sequence), nil
}

func marshalHeaders(headers map[string]any) ([]byte, error) {
	if headers == nil {
		headers = map[string]any{}
	}

	return json.Marshal(headers)
}

func unmarshalHeaders(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var headers map[string]any
	if err := json.Unmarshal(data, &headers); err != nil {
		return nil, err
	}

	if len(headers) == 0 {
		return nil, nil
	}

	return headers, nil
}
