// Package token implements the dual HS256 JWT codec: independently keyed
// access and refresh signing contexts with per-token jti claims.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is the single error surfaced for any verification failure:
// bad signature, wrong class secret, expiry, malformed claims. Callers never
// learn which check failed.
var ErrInvalidToken = errors.New("invalid token")

// Config is one signing context. Access and refresh each get their own.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// AccessPayload is the identity carried by an access token.
type AccessPayload struct {
	UserID   int64
	DeviceID int64
	RoleID   int64
	RoleName string
}

// AccessClaims is the wire form of an access token's claims.
type AccessClaims struct {
	UserID   int64  `json:"uid"`
	DeviceID int64  `json:"did"`
	RoleID   int64  `json:"rid"`
	RoleName string `json:"rol"`
	jwt.RegisteredClaims
}

// RefreshClaims is the wire form of a refresh token's claims. Refresh tokens
// carry only the user identity; device and role are re-resolved at rotation.
type RefreshClaims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// Codec signs and verifies both token classes. A token signed with one
// context never verifies under the other.
type Codec struct {
	access  Config
	refresh Config
}

// NewCodec validates both contexts and returns an immutable codec.
func NewCodec(access, refresh Config) (*Codec, error) {
	if len(access.Secret) == 0 || len(refresh.Secret) == 0 {
		return nil, errors.New("token secrets required")
	}
	if access.TTL <= 0 || refresh.TTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}

	return &Codec{access: access, refresh: refresh}, nil
}

// SignAccess issues an access token. Every call injects a fresh uuid jti, so
// two tokens for the same identity are never byte-identical.
func (c *Codec) SignAccess(p AccessPayload) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID:   p.UserID,
		DeviceID: p.DeviceID,
		RoleID:   p.RoleID,
		RoleName: p.RoleName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.access.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.access.TTL)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.access.Secret)
}

// SignRefresh issues a refresh token for userID with a fresh uuid jti.
func (c *Codec) SignRefresh(userID int64) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.refresh.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.refresh.TTL)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.refresh.Secret)
}

// VerifyAccess parses and validates an access token.
func (c *Codec) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.verify(tokenStr, c.access, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefresh parses and validates a refresh token.
func (c *Codec) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.verify(tokenStr, c.refresh, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (c *Codec) verify(tokenStr string, cfg Config, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return cfg.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}

	return nil
}
