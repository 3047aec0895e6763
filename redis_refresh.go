package authcore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	refreshKeyPrefix       = "acr"
	refreshRecordVersionV1 = 1
)

// redisRefreshStore keeps one row per outstanding refresh token, keyed by
// the SHA-256 of the token string. Consume uses GETDEL: exactly one caller
// ever receives the row, which makes it the replay arbiter for concurrent
// rotation of the same token.
type redisRefreshStore struct {
	redis  *redis.Client
	prefix string
}

func newRedisRefreshStore(client *redis.Client) *redisRefreshStore {
	return &redisRefreshStore{
		redis:  client,
		prefix: refreshKeyPrefix,
	}
}

func (s *redisRefreshStore) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return s.prefix + ":" + hex.EncodeToString(sum[:])
}

func (s *redisRefreshStore) Save(ctx context.Context, token string, rec RefreshRecord, ttl time.Duration) error {
	encoded, err := encodeRefreshRecord(&rec)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(token), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *redisRefreshStore) Find(ctx context.Context, token string) (*RefreshRecord, error) {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRefreshTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return decodeRefreshRecord(data)
}

func (s *redisRefreshStore) Consume(ctx context.Context, token string) (*RefreshRecord, error) {
	data, err := s.redis.GetDel(ctx, s.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRefreshTokenAlreadyUsed
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return decodeRefreshRecord(data)
}

func encodeRefreshRecord(rec *RefreshRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(refreshRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, rec.UserID); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, rec.DeviceID); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, rec.ExpiresAt.Unix()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeRefreshRecord(data []byte) (*RefreshRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != refreshRecordVersionV1 {
		return nil, errors.New("invalid refresh record version")
	}

	rec := &RefreshRecord{}
	if err := binary.Read(reader, binary.BigEndian, &rec.UserID); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &rec.DeviceID); err != nil {
		return nil, err
	}

	var expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}
	rec.ExpiresAt = time.Unix(expiresAt, 0)

	return rec, nil
}
