// Package password wraps bcrypt credential hashing behind a small,
// config-driven hasher.
package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Config tunes the hasher. Cost 0 selects bcrypt.DefaultCost.
type Config struct {
	Cost int
}

// Hasher hashes and verifies passwords. Safe for concurrent use.
type Hasher struct {
	cost int
}

// New validates the cost factor and returns a hasher.
func New(cfg Config) (*Hasher, error) {
	cost := cfg.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.New("invalid bcrypt cost")
	}

	return &Hasher{cost: cost}, nil
}

// Hash returns the salted bcrypt encoding of plain. The salt lives inside
// the encoded string; no separate storage is needed.
func (h *Hasher) Hash(plain string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether plain matches encoded. Malformed or truncated
// hashes report false, never an error.
func (h *Hasher) Verify(plain, encoded string) bool {
	return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(plain)) == nil
}
