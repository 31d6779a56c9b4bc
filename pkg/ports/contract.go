package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStorageContract runs a suite of tests to verify that a Storage
// implementation adheres to the interface contract.
func RunStorageContract(t *testing.T, storage Storage) {
	ctx := context.Background()
	key := "contract-" + time.Now().Format("20060102150405.000000000")

	t.Run("Save and Load", func(t *testing.T) {
		snap := domain.NewSnapshot(3)
		snap.Slices["app"] = map[string]any{"isDarkMode": true, "token": "abc", "count": 2}

		require.NoError(t, storage.Save(ctx, key, snap), "Save should not return error")

		loaded, err := storage.Load(ctx, key)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, 3, loaded.Version)

		app, ok := loaded.Slices["app"].(map[string]any)
		require.True(t, ok, "slices come back as generic maps")
		assert.Equal(t, true, app["isDarkMode"])
		assert.Equal(t, "abc", app["token"])
		// JSON backends turn numbers into float64
		assert.EqualValues(t, 2, app["count"])
	})

	t.Run("Saved snapshot is isolated", func(t *testing.T) {
		slice := map[string]any{"token": "before"}
		snap := domain.NewSnapshot(1)
		snap.Slices["app"] = slice
		require.NoError(t, storage.Save(ctx, key, snap))

		slice["token"] = "after"
		snap.Version = 99

		loaded, err := storage.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, 1, loaded.Version)
		assert.Equal(t, "before", loaded.Slices["app"].(map[string]any)["token"])
	})

	t.Run("Save overwrites", func(t *testing.T) {
		first := domain.NewSnapshot(1)
		first.Slices["app"] = map[string]any{"token": "one"}
		second := domain.NewSnapshot(1)
		second.Slices["products"] = []any{"a"}

		require.NoError(t, storage.Save(ctx, key, first))
		require.NoError(t, storage.Save(ctx, key, second))

		loaded, err := storage.Load(ctx, key)
		require.NoError(t, err)
		assert.NotContains(t, loaded.Slices, "app")
		assert.Contains(t, loaded.Slices, "products")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := storage.Load(ctx, "missing-"+key)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, storage.Save(ctx, key, domain.NewSnapshot(-1)))
		require.NoError(t, storage.Delete(ctx, key), "Delete should not return error")

		_, err := storage.Load(ctx, key)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound, "Load after Delete should return ErrSnapshotNotFound")

		assert.NoError(t, storage.Delete(ctx, key), "deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		k1, k2 := key+"-1", key+"-2"
		require.NoError(t, storage.Save(ctx, k1, domain.NewSnapshot(-1)))
		require.NoError(t, storage.Save(ctx, k2, domain.NewSnapshot(-1)))
		defer func() {
			_ = storage.Delete(ctx, k1)
			_ = storage.Delete(ctx, k2)
		}()

		keys, err := storage.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, keys, k1)
		assert.Contains(t, keys, k2)
	})
}
