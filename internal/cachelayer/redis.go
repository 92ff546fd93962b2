package cachelayer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Cache backed by go-redis/v9.
type Redis struct {
	client *redis.Client
}

var _ Cache = (*Redis)(nil)

// NewRedis wraps an already-configured client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Get implements Cache.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return v, true, nil
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Purge implements Cache. go-redis has no prefix-delete primitive, so this
// scans with a cursor and deletes matches in batches; Redis SCAN is
// safe to run against a live keyspace (unlike KEYS).
func (r *Redis) Purge(ctx context.Context, prefix string) error {
	var cursor uint64
	pattern := prefix + "*"
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

// sanitizeAddr trims a redis://host:port-style address down to the
// host:port go-redis's Options.Addr expects.
func sanitizeAddr(addr string) string {
	return strings.TrimPrefix(strings.TrimPrefix(addr, "redis://"), "rediss://")
}

// Dial builds a *redis.Client from a configured address. Returns nil if
// addr is empty, signaling the caller should fall back to Local.
func Dial(addr string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: sanitizeAddr(addr)})
}
