package zerofriction

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/justwpthings/zerofriction/jwt"
)

const minSecretLength = 32

// Builder assembles an [Engine]. A Builder is single-use: Build wires the
// stores and dispatcher once and refuses to run twice.
type Builder struct {
	config Config
	redis  *redis.Client
	secret []byte

	userProvider UserProvider
	auditSink    AuditSink

	allowTestBypass bool
	built           bool
}

// New returns a Builder preloaded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithSecret sets the server-side key for credential hashing. Rotating it
// invalidates every outstanding credential, which is the intended effect.
func (b *Builder) WithSecret(secret []byte) *Builder {
	b.secret = cloneBytes(secret)
	return b
}

// WithUserProvider wires the caller's user database. Required for
// VerifyAndLogin and CreateAccountFromGuest; issuance and verification work
// without it.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithAuditSink overrides the default Redis-backed audit sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// AllowTestBypass arms RateLimit.TestBypass. Without this call Build
// rejects a bypassing config, so a test knob cannot leak into production
// through configuration alone.
func (b *Builder) AllowTestBypass() *Builder {
	b.allowTestBypass = true
	return b
}

// Build validates the configuration and assembles the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.RateLimit.TestBypass && !b.allowTestBypass {
		return nil, errors.New("RateLimit.TestBypass requires AllowTestBypass")
	}

	if len(b.secret) < minSecretLength {
		return nil, errors.New("secret of at least 32 bytes required")
	}

	engine := &Engine{
		config: cfg,
		secret: cloneBytes(b.secret),
	}

	engine.userProvider = b.userProvider
	engine.rateLimiter = newRateLimiter(b.redis, cfg.RateLimit)
	engine.credentials = newCredentialStore(b.redis)
	engine.attempts = newAttemptLimiter(b.redis, cfg.Verify)
	engine.guests = newGuestStore(b.redis)
	engine.metrics = NewMetrics(cfg.Metrics)

	sink := b.auditSink
	if sink == nil && cfg.Audit.Enabled {
		store := NewRedisAuditSink(b.redis)
		engine.auditStore = store
		sink = store
	}
	engine.audit = newAuditDispatcher(cfg.Audit, sink)

	if cfg.Session.Enabled {
		jm, err := jwt.NewManager(jwt.Config{
			AccessTTL:     cfg.Session.AccessTTL,
			SigningMethod: jwt.SigningMethod(cfg.Session.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Session.PrivateKey),
			PublicKey:     cloneBytes(cfg.Session.PublicKey),
			Issuer:        cfg.Session.Issuer,
		})
		if err != nil {
			return nil, err
		}
		engine.jwtManager = jm
	}

	b.built = true

	return engine, nil
}
