package authcore

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	verificationKeyPrefix       = "acv"
	verificationRecordVersionV1 = 1
)

// redisVerificationStore keeps at most one live code per (email, type).
// Upsert overwrites the previous code under the same key, so requesting a
// new code immediately invalidates the old one.
type redisVerificationStore struct {
	redis  *redis.Client
	prefix string
}

func newRedisVerificationStore(client *redis.Client) *redisVerificationStore {
	return &redisVerificationStore{
		redis:  client,
		prefix: verificationKeyPrefix,
	}
}

func (s *redisVerificationStore) key(email string, typ VerificationType) string {
	return s.prefix + ":" + string(typ) + ":" + email
}

func (s *redisVerificationStore) Upsert(ctx context.Context, code VerificationCode, ttl time.Duration) error {
	encoded, err := encodeVerificationRecord(&code)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(code.Email, code.Type), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *redisVerificationStore) Validate(ctx context.Context, email string, typ VerificationType, code string) error {
	data, err := s.redis.Get(ctx, s.key(email, typ)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrInvalidOTP
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	stored, err := decodeVerificationRecord(data)
	if err != nil {
		return ErrInvalidOTP
	}

	if time.Now().After(stored.ExpiresAt) {
		return ErrOTPExpired
	}
	if subtle.ConstantTimeCompare([]byte(stored.Code), []byte(code)) != 1 {
		return ErrInvalidOTP
	}

	return nil
}

func (s *redisVerificationStore) Consume(ctx context.Context, email string, typ VerificationType) error {
	if err := s.redis.Del(ctx, s.key(email, typ)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func encodeVerificationRecord(code *VerificationCode) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(verificationRecordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, code.ExpiresAt.Unix()); err != nil {
		return nil, err
	}

	if len(code.Code) > 255 {
		return nil, errors.New("verification code too long")
	}
	buf.WriteByte(byte(len(code.Code)))
	buf.WriteString(code.Code)

	return buf.Bytes(), nil
}

func decodeVerificationRecord(data []byte) (*VerificationCode, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != verificationRecordVersionV1 {
		return nil, errors.New("invalid verification record version")
	}

	var expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}

	codeLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	raw := make([]byte, codeLen)
	if _, err := io.ReadFull(reader, raw); err != nil {
		return nil, err
	}

	return &VerificationCode{
		Code:      string(raw),
		ExpiresAt: time.Unix(expiresAt, 0),
	}, nil
}
