package authcore

import (
	"errors"

	"github.com/ecomshop/authcore/password"
	"github.com/ecomshop/authcore/rolecache"
	"github.com/ecomshop/authcore/token"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Builder wires an Engine. Construction is allocation-only; no I/O happens
// until the first Engine call.
type Builder struct {
	config Config
	redis  *redis.Client

	users  UserRepository
	roles  RoleRepository
	mailer EmailSender

	auditSink AuditSink

	built bool
}

// New starts a builder with default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. Zero-valued fields are filled from
// defaults at Build; secrets have no defaults.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing the engine's operational stores:
// devices, refresh rows, verification codes, and the Redis role cache.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithUserRepository sets the relational user store.
func (b *Builder) WithUserRepository(users UserRepository) *Builder {
	b.users = users
	return b
}

// WithRoleRepository sets the relational role store.
func (b *Builder) WithRoleRepository(roles RoleRepository) *Builder {
	b.roles = roles
	return b
}

// WithEmailSender sets the verification-code mailer.
func (b *Builder) WithEmailSender(mailer EmailSender) *Builder {
	b.mailer = mailer
	return b
}

// WithAuditSink sets the destination for audit events. Without one, enabled
// auditing falls back to NoOpSink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the in-process metrics registry.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the wiring and returns an immutable Engine. A builder can
// build at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := mergeDefaults(cloneConfig(b.config))

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user repository required")
	}
	if b.roles == nil {
		return nil, errors.New("role repository required")
	}
	if b.mailer == nil {
		return nil, errors.New("email sender required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	engine := &Engine{
		config: cfg,
	}

	engine.users = b.users
	engine.roles = b.roles
	engine.mailer = b.mailer

	engine.devices = newRedisDeviceRegistry(b.redis)
	engine.refreshStore = newRedisRefreshStore(b.redis)
	engine.codes = newRedisVerificationStore(b.redis)

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.totp = newTOTPManager(cfg.TOTP)

	hasher, err := password.New(password.Config{
		Cost: cfg.Password.Cost,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	codec, err := token.NewCodec(
		token.Config{
			Secret: cfg.Token.AccessSecret,
			TTL:    cfg.Token.AccessTTL,
			Issuer: cfg.Token.Issuer,
		},
		token.Config{
			Secret: cfg.Token.RefreshSecret,
			TTL:    cfg.Token.RefreshTTL,
			Issuer: cfg.Token.Issuer,
		},
	)
	if err != nil {
		return nil, err
	}
	engine.codec = codec

	switch cfg.Cache.Backend {
	case CacheRedis:
		cache, err := rolecache.NewRedis(b.redis, cfg.Cache.TTL, cfg.Cache.Prefix, engine.roleLoader())
		if err != nil {
			return nil, err
		}
		engine.roleCache = cache
	default:
		cache, err := rolecache.NewMemory(cfg.Cache.TTL, engine.roleLoader())
		if err != nil {
			return nil, err
		}
		engine.roleCache = cache
	}

	if cfg.Google.Enabled() {
		endpoint := cfg.Google.Endpoint
		if endpoint.AuthURL == "" && endpoint.TokenURL == "" {
			endpoint = google.Endpoint
		}
		engine.google = &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURI,
			Scopes:       cfg.Google.Scopes,
			Endpoint:     endpoint,
		}
		engine.userinfoURL = cfg.Google.UserInfoURL
	}

	b.built = true

	return engine, nil
}
