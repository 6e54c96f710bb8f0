package main

import (
	"context"
	"fmt"

	gcpfirestore "cloud.google.com/go/firestore"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/get-eventually/go-projections/checkpoint"
	"github.com/get-eventually/go-projections/firestore"
	"github.com/get-eventually/go-projections/postgres"
	"github.com/get-eventually/go-projections/sqlite"
)

// Supported values of CHECKPOINT_STORE.
const (
	postgresCheckpoints  = "postgres"
	sqliteCheckpoints    = "sqlite"
	firestoreCheckpoints = "firestore"
)

func nopClose() error { return nil }

// newCheckpointStore returns the checkpoint.Store selected in the config,
// together with the function releasing its resources.
func newCheckpointStore(ctx context.Context, config *config, pool *pgxpool.Pool) (checkpoint.Store, func() error, error) {
	switch config.Checkpoints.Store {
	case postgresCheckpoints:
		return postgres.NewCheckpointStore(pool), nopClose, nil

	case sqliteCheckpoints:
		store, err := sqlite.Open(ctx, config.Checkpoints.SQLitePath)
		if err != nil {
			return nil, nil, err
		}

		return store, store.Close, nil

	case firestoreCheckpoints:
		if config.Checkpoints.FirestoreProject == "" {
			return nil, nil, fmt.Errorf("FIRESTORE_PROJECT is required with the firestore checkpoint store")
		}

		client, err := gcpfirestore.NewClient(ctx, config.Checkpoints.FirestoreProject)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create firestore client, %w", err)
		}

		return firestore.CheckpointStore{
			Client:     client,
			Collection: config.Checkpoints.FirestoreCollection,
		}, client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported checkpoint store '%s'", config.Checkpoints.Store)
	}
}
