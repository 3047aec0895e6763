package rolecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures of the Redis-backed cache.
var ErrRedisUnavailable = errors.New("rolecache redis unavailable")

// Redis caches snapshots as JSON under <prefix>:<roleID>, shared across
// processes. TTL is enforced by Redis key expiry.
type Redis struct {
	redis  *redis.Client
	loader Loader
	ttl    time.Duration
	prefix string
}

// NewRedis returns a Redis-backed cache. An empty prefix defaults to "role".
func NewRedis(client *redis.Client, ttl time.Duration, prefix string, loader Loader) (*Redis, error) {
	if loader == nil {
		return nil, ErrNilLoader
	}
	if prefix == "" {
		prefix = "role"
	}

	return &Redis{
		redis:  client,
		loader: loader,
		ttl:    ttl,
		prefix: prefix,
	}, nil
}

func (r *Redis) key(roleID int64) string {
	return r.prefix + ":" + strconv.FormatInt(roleID, 10)
}

// Get returns the cached snapshot for roleID, loading and storing it on
// miss. A corrupt cached value is treated as a miss and reloaded.
func (r *Redis) Get(ctx context.Context, roleID int64) (*Snapshot, error) {
	data, err := r.redis.Get(ctx, r.key(roleID)).Bytes()
	if err == nil {
		snapshot := &Snapshot{}
		if jsonErr := json.Unmarshal(data, snapshot); jsonErr == nil {
			return snapshot, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	snapshot, err := r.loader(ctx, roleID)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	if err := r.redis.Set(ctx, r.key(roleID), encoded, r.ttl).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return snapshot, nil
}
