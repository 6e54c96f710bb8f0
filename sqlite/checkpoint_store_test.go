package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-eventually/go-projections/checkpoint"
	"github.com/get-eventually/go-projections/sqlite"
)

func TestCheckpointStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoints.db")

	store, err := sqlite.Open(ctx, path)
	require.NoError(t, err)

	token, err := store.Get(ctx, "projector")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.Beginning, token)

	require.NoError(t, store.Put(ctx, "projector", "1"))
	require.NoError(t, store.Put(ctx, "projector", "2"))
	require.NoError(t, store.Put(ctx, "other", "10"))

	token, err = store.Get(ctx, "projector")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.Token("2"), token)

	_, err = store.Get(ctx, "")
	assert.ErrorIs(t, err, checkpoint.ErrInvalidName)

	require.NoError(t, store.Close())

	t.Run("checkpoints survive reopening the database", func(t *testing.T) {
		reopened, err := sqlite.Open(ctx, path)
		require.NoError(t, err)

		defer reopened.Close()

		token, err := reopened.Get(ctx, "other")
		require.NoError(t, err)
		assert.Equal(t, checkpoint.Token("10"), token)
	})

	t.Run("empty paths are rejected", func(t *testing.T) {
		_, err := sqlite.Open(ctx, " ")
		assert.Error(t, err)
	})
}
