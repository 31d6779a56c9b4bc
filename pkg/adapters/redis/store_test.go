package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunStorageContract(t, redis.NewFromClient(client))
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithTTL(time.Second))
	ctx := context.Background()

	snap := domain.NewSnapshot(-1)
	snap.Slices["app"] = map[string]any{"isDarkMode": true}
	require.NoError(t, store.Save(ctx, "root", snap))

	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, "root")

	mr.FastForward(2 * time.Second)

	_, err = store.Load(ctx, "root")
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
}

func TestRedisStore_Prefix(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "root", domain.NewSnapshot(-1)))
	assert.True(t, mr.Exists("custom:app:snapshot:root"))
	assert.True(t, mr.Exists("custom:app:index"))

	// "index" as a snapshot key must not clash with the index itself
	require.NoError(t, store.Save(ctx, "index", domain.NewSnapshot(-1)))
	keys, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"root", "index"}, keys)
	require.NoError(t, store.Ping(ctx))
}
