package presence

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registries(t *testing.T) map[string]Registry {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return map[string]Registry{
		"memory": NewMemoryRegistry(),
		"redis":  NewRedisRegistry(rdb, "presence-test"),
	}
}

func TestRegistry(t *testing.T) {
	for name, r := range registries(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("lookup of unknown user is absent", func(t *testing.T) {
				_, ok, err := r.Lookup(ctx, "ghost")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("register is last writer wins", func(t *testing.T) {
				require.NoError(t, r.Register(ctx, "alice", "h1"))
				require.NoError(t, r.Register(ctx, "alice", "h2"))
				h, ok, err := r.Lookup(ctx, "alice")
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, "h2", h)
			})

			t.Run("unregister is idempotent", func(t *testing.T) {
				require.NoError(t, r.Unregister(ctx, "alice"))
				require.NoError(t, r.Unregister(ctx, "alice"))
				require.NoError(t, r.Unregister(ctx, "never-registered"))
				_, ok, err := r.Lookup(ctx, "alice")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("release only removes the matching handle", func(t *testing.T) {
				require.NoError(t, r.Register(ctx, "bob", "new"))
				require.NoError(t, r.Release(ctx, "bob", "old"))
				h, ok, err := r.Lookup(ctx, "bob")
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, "new", h)

				require.NoError(t, r.Release(ctx, "bob", "new"))
				_, ok, err = r.Lookup(ctx, "bob")
				require.NoError(t, err)
				assert.False(t, ok)

				require.NoError(t, r.Release(ctx, "bob", "new"))
			})
		})
	}
}

func TestRedisRegistryUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	r := NewRedisRegistry(rdb, "")

	mr.Close()
	_, _, err := r.Lookup(context.Background(), "alice")
	assert.Error(t, err)
}
