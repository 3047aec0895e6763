package authcore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const deviceKeyPrefix = "acd"

// redisDeviceRegistry stores one hash per device plus a sequence counter for
// id assignment. Devices carry no TTL: deactivation flips a flag so the
// session audit trail survives logout.
type redisDeviceRegistry struct {
	redis  *redis.Client
	prefix string
}

func newRedisDeviceRegistry(client *redis.Client) *redisDeviceRegistry {
	return &redisDeviceRegistry{
		redis:  client,
		prefix: deviceKeyPrefix,
	}
}

func (r *redisDeviceRegistry) key(id int64) string {
	return r.prefix + ":" + strconv.FormatInt(id, 10)
}

func (r *redisDeviceRegistry) seqKey() string {
	return r.prefix + ":seq"
}

func (r *redisDeviceRegistry) Register(ctx context.Context, userID int64, userAgent, ip string) (*Device, error) {
	id, err := r.redis.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := time.Now()
	fields := map[string]interface{}{
		"user_id":     userID,
		"ua":          userAgent,
		"ip":          ip,
		"active":      1,
		"created_at":  now.Unix(),
		"last_active": now.Unix(),
	}
	if err := r.redis.HSet(ctx, r.key(id), fields).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return &Device{
		ID:         id,
		UserID:     userID,
		UserAgent:  userAgent,
		IP:         ip,
		Active:     true,
		CreatedAt:  now,
		LastActive: now,
	}, nil
}

func (r *redisDeviceRegistry) Touch(ctx context.Context, deviceID int64, userAgent, ip string) error {
	exists, err := r.redis.Exists(ctx, r.key(deviceID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if exists == 0 {
		return ErrDeviceNotFound
	}

	fields := map[string]interface{}{
		"last_active": time.Now().Unix(),
	}
	if userAgent != "" {
		fields["ua"] = userAgent
	}
	if ip != "" {
		fields["ip"] = ip
	}

	if err := r.redis.HSet(ctx, r.key(deviceID), fields).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (r *redisDeviceRegistry) Deactivate(ctx context.Context, deviceID int64) error {
	exists, err := r.redis.Exists(ctx, r.key(deviceID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if exists == 0 {
		return ErrDeviceNotFound
	}

	if err := r.redis.HSet(ctx, r.key(deviceID), "active", 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (r *redisDeviceRegistry) Find(ctx context.Context, deviceID int64) (*Device, error) {
	fields, err := r.redis.HGetAll(ctx, r.key(deviceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrDeviceNotFound
	}

	userID, _ := strconv.ParseInt(fields["user_id"], 10, 64)
	createdAt, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	lastActive, _ := strconv.ParseInt(fields["last_active"], 10, 64)

	return &Device{
		ID:         deviceID,
		UserID:     userID,
		UserAgent:  fields["ua"],
		IP:         fields["ip"],
		Active:     fields["active"] == "1",
		CreatedAt:  time.Unix(createdAt, 0),
		LastActive: time.Unix(lastActive, 0),
	}, nil
}
