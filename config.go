package authcore

import (
	"bytes"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

// Config carries every tunable of the engine, grouped per concern. Zero
// values are filled from defaultConfig by the Builder; secrets and Google
// credentials have no defaults and must be supplied.
type Config struct {
	Token    TokenConfig
	Password PasswordConfig
	OTP      OTPConfig
	TOTP     TOTPConfig
	Cache    CacheConfig
	Google   GoogleConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures the dual HS256 signing contexts. Access and refresh
// secrets must differ so one leaked key never validates the other class.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig configures bcrypt hashing.
type PasswordConfig struct {
	Cost int
}

/*
====================================
OTP / TOTP CONFIG
====================================
*/

// OTPConfig configures emailed numeric verification codes.
type OTPConfig struct {
	Digits int
	TTL    time.Duration
}

// SkewNone disables the TOTP drift window: only the current time step is
// accepted. The zero Skew value selects the default window instead.
const SkewNone = -1

// TOTPConfig configures authenticator-app codes (RFC 6238).
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int // seconds per step
	Skew      int // accepted steps either side of now; 0 means default, SkewNone means none
	Algorithm string
}

/*
====================================
CACHE CONFIG
====================================
*/

// CacheBackend selects where role-permission snapshots are cached.
type CacheBackend string

const (
	CacheMemory CacheBackend = "memory"
	CacheRedis  CacheBackend = "redis"
)

// CacheConfig configures the role-permission cache. Entries are only ever
// invalidated by TTL; role edits become visible within one TTL at most.
type CacheConfig struct {
	Backend CacheBackend
	TTL     time.Duration
	Prefix  string
}

/*
====================================
GOOGLE CONFIG
====================================
*/

// GoogleConfig configures the federated login bridge. Endpoint and
// UserInfoURL default to Google's production endpoints; tests point them at
// local servers.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	Endpoint     oauth2.Endpoint
	UserInfoURL  string
}

// Enabled reports whether federated login is configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics registry.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Issuer:     "authcore",
		},
		Password: PasswordConfig{
			Cost: bcrypt.DefaultCost,
		},
		OTP: OTPConfig{
			Digits: 6,
			TTL:    5 * time.Minute,
		},
		TOTP: TOTPConfig{
			Issuer:    "authcore",
			Digits:    6,
			Period:    30,
			Skew:      1,
			Algorithm: "SHA1",
		},
		Cache: CacheConfig{
			Backend: CacheMemory,
			TTL:     time.Hour,
			Prefix:  "role",
		},
		Google: GoogleConfig{
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for internally inconsistent or unsafe
// values. Builder.Build calls it after defaults are applied.
func (c Config) Validate() error {
	if len(c.Token.AccessSecret) == 0 || len(c.Token.RefreshSecret) == 0 {
		return errors.New("token secrets required")
	}
	if bytes.Equal(c.Token.AccessSecret, c.Token.RefreshSecret) {
		return errors.New("access and refresh secrets must differ")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}

	if c.Password.Cost < bcrypt.MinCost || c.Password.Cost > bcrypt.MaxCost {
		return errors.New("invalid bcrypt cost")
	}

	if c.OTP.Digits < 6 || c.OTP.Digits > 10 {
		return errors.New("otp digits must be 6..10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("otp TTL must be positive")
	}

	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("totp digits must be 6..8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("totp period must be positive")
	}
	if c.TOTP.Skew < SkewNone || c.TOTP.Skew > 2 {
		return errors.New("totp skew must be SkewNone..2")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("unsupported totp algorithm")
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheRedis:
	default:
		return errors.New("invalid cache backend")
	}
	if c.Cache.TTL <= 0 {
		return errors.New("cache TTL must be positive")
	}

	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("audit buffer size must be >= 0")
	}

	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.AccessSecret = cloneBytes(cfg.Token.AccessSecret)
	out.Token.RefreshSecret = cloneBytes(cfg.Token.RefreshSecret)
	out.Google.Scopes = append([]string(nil), cfg.Google.Scopes...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func mergeDefaults(cfg Config) Config {
	def := defaultConfig()

	if cfg.Token.AccessTTL == 0 {
		cfg.Token.AccessTTL = def.Token.AccessTTL
	}
	if cfg.Token.RefreshTTL == 0 {
		cfg.Token.RefreshTTL = def.Token.RefreshTTL
	}
	if cfg.Token.Issuer == "" {
		cfg.Token.Issuer = def.Token.Issuer
	}
	if cfg.Password.Cost == 0 {
		cfg.Password.Cost = def.Password.Cost
	}
	if cfg.OTP.Digits == 0 {
		cfg.OTP.Digits = def.OTP.Digits
	}
	if cfg.OTP.TTL == 0 {
		cfg.OTP.TTL = def.OTP.TTL
	}
	if cfg.TOTP.Issuer == "" {
		cfg.TOTP.Issuer = def.TOTP.Issuer
	}
	if cfg.TOTP.Digits == 0 {
		cfg.TOTP.Digits = def.TOTP.Digits
	}
	if cfg.TOTP.Period == 0 {
		cfg.TOTP.Period = def.TOTP.Period
	}
	if cfg.TOTP.Skew == 0 {
		cfg.TOTP.Skew = def.TOTP.Skew
	}
	if cfg.TOTP.Algorithm == "" {
		cfg.TOTP.Algorithm = def.TOTP.Algorithm
	}
	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = def.Cache.Backend
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = def.Cache.TTL
	}
	if cfg.Cache.Prefix == "" {
		cfg.Cache.Prefix = def.Cache.Prefix
	}
	if cfg.Google.Scopes == nil {
		cfg.Google.Scopes = def.Google.Scopes
	}
	if cfg.Google.UserInfoURL == "" {
		cfg.Google.UserInfoURL = def.Google.UserInfoURL
	}
	if cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = def.Audit.BufferSize
	}

	return cfg
}
