package storage

import (
	"context"
	"testing"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// initTestRedis spins up a throwaway redis container. Tests are skipped when
// docker is not available on the machine.
func initTestRedis(t *testing.T) *goredis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Skipf("docker not available, skipping redis storage test: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := goredis.NewClient(&goredis.Options{Addr: endpoint})
	require.NoError(t, client.Ping(ctx).Err())
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisSplitStorage(t *testing.T) {
	ctx := context.Background()
	store := NewRedisSplitStorage(initTestRedis(t))

	t.Run("ChangeNumber", func(t *testing.T) {
		cn, err := store.ChangeNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(-1), cn)

		require.NoError(t, store.SetChangeNumber(ctx, 42))
		cn, err = store.ChangeNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(42), cn)
	})

	t.Run("PutGetRemove", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, testSplit("redis_a")))

		split, err := store.Get(ctx, "redis_a")
		require.NoError(t, err)
		require.NotNil(t, split)
		assert.Equal(t, "redis_a", split.Name)
		assert.Equal(t, "off", split.DefaultTreatment)

		missing, err := store.Get(ctx, "redis_missing")
		require.NoError(t, err)
		assert.Nil(t, missing)

		require.NoError(t, store.Remove(ctx, "redis_a"))
		split, err = store.Get(ctx, "redis_a")
		require.NoError(t, err)
		assert.Nil(t, split)
	})

	t.Run("SplitNamesAndAll", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, testSplit("redis_b")))
		require.NoError(t, store.Put(ctx, testSplit("redis_c")))

		names, err := store.SplitNames(ctx)
		require.NoError(t, err)
		assert.Subset(t, names, []string{"redis_b", "redis_c"})

		all, err := store.All(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(all), 2)
	})

	t.Run("KillLocally", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, testSplit("redis_kill")))
		require.NoError(t, store.SetChangeNumber(ctx, 100))

		require.NoError(t, store.KillLocally(ctx, "redis_kill", "off", 200))
		split, err := store.Get(ctx, "redis_kill")
		require.NoError(t, err)
		require.NotNil(t, split)
		assert.True(t, split.Killed)

		cn, err := store.ChangeNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(200), cn)

		require.NoError(t, store.KillLocally(ctx, "redis_kill", "on", 150))
		cn, err = store.ChangeNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(200), cn, "older kills must not rewind the change number")
	})
}
