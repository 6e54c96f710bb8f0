package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-eventually/go-projections/checkpoint"
	"github.com/get-eventually/go-projections/sqlite"
)

func TestNewCheckpointStore(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite", func(t *testing.T) {
		var cfg config
		cfg.Checkpoints.Store = sqliteCheckpoints
		cfg.Checkpoints.SQLitePath = filepath.Join(t.TempDir(), "checkpoints.db")

		store, closeStore, err := newCheckpointStore(ctx, &cfg, nil)
		require.NoError(t, err)

		defer func() { assert.NoError(t, closeStore()) }()

		assert.IsType(t, new(sqlite.CheckpointStore), store)

		require.NoError(t, store.Put(ctx, "projections", checkpoint.Token("12")))

		token, err := store.Get(ctx, "projections")
		require.NoError(t, err)
		assert.Equal(t, checkpoint.Token("12"), token)
	})

	t.Run("firestore requires a project", func(t *testing.T) {
		var cfg config
		cfg.Checkpoints.Store = firestoreCheckpoints

		_, _, err := newCheckpointStore(ctx, &cfg, nil)
		assert.Error(t, err)
	})

	t.Run("unknown store", func(t *testing.T) {
		var cfg config
		cfg.Checkpoints.Store = "redis"

		_, _, err := newCheckpointStore(ctx, &cfg, nil)
		assert.Error(t, err)
	})
}
