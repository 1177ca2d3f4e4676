package presence

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the field only if it still holds the given handle.
var releaseScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
	return redis.call("HDEL", KEYS[1], ARGV[1])
end
return 0
`)

// RedisRegistry shares presence across server processes through one hash:
// field = user id, value = connection handle.
type RedisRegistry struct {
	rdb *redis.Client
	key string
}

func NewRedisRegistry(rdb *redis.Client, key string) *RedisRegistry {
	if key == "" {
		key = "presence"
	}
	return &RedisRegistry{rdb: rdb, key: key}
}

func (r *RedisRegistry) Register(ctx context.Context, userID, handle string) error {
	if err := r.rdb.HSet(ctx, r.key, userID, handle).Err(); err != nil {
		return errors.Wrap(err, "redisRegistry.Register")
	}
	return nil
}

func (r *RedisRegistry) Lookup(ctx context.Context, userID string) (string, bool, error) {
	h, err := r.rdb.HGet(ctx, r.key, userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "redisRegistry.Lookup")
	}
	return h, true, nil
}

func (r *RedisRegistry) Unregister(ctx context.Context, userID string) error {
	if err := r.rdb.HDel(ctx, r.key, userID).Err(); err != nil {
		return errors.Wrap(err, "redisRegistry.Unregister")
	}
	return nil
}

func (r *RedisRegistry) Release(ctx context.Context, userID, handle string) error {
	if err := releaseScript.Run(ctx, r.rdb, []string{r.key}, userID, handle).Err(); err != nil {
		return errors.Wrap(err, "redisRegistry.Release")
	}
	return nil
}
