package zerofriction

import (
	"errors"
	"time"
)

// Config carries every tunable the engine honors. Behavior is a pure
// function of inputs plus this struct — there is no ambient global state.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	Credential CredentialConfig
	RateLimit  RateLimitConfig
	Verify     VerifyConfig
	Guest      GuestConfig
	Session    SessionConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

/*
====================================
CREDENTIAL CONFIG
====================================
*/

// CredentialConfig controls credential shape and lifetime.
type CredentialConfig struct {
	// OTPDigits is the length of numeric one-time codes. 6 or 8.
	OTPDigits int
	// AlphanumericLength is the length of alphanumeric one-time codes.
	// 6 or 8.
	AlphanumericLength int
	// TTL is how long an issued credential stays redeemable.
	TTL time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig holds the admission thresholds enforced before issuance.
//
// The window scheme is a deliberate approximation of a sliding window: one
// counter plus a window anchor per identifier, reset wholesale when the
// anchor ages past Window. Attempts clustered at a window boundary can reach
// up to twice the nominal threshold. Callers depend on these exact
// semantics; do not replace with a log-based sliding window.
type RateLimitConfig struct {
	// IdentityHourlyLimit is the issuance budget per identity per Window.
	// Exceeding it applies a lockout.
	IdentityHourlyLimit int
	// IdentityBurstLimit is the issuance budget per identity per
	// BurstWindow. Exceeding it denies without lockout.
	IdentityBurstLimit int
	// SourceHourlyLimit is the issuance budget per source (caller IP) per
	// Window. Exceeding it applies a lockout.
	SourceHourlyLimit int
	// Window anchors the hourly counters.
	Window time.Duration
	// BurstWindow anchors the burst guard.
	BurstWindow time.Duration
	// LockoutDuration is how long an identifier stays denied after its
	// hourly threshold is exceeded.
	LockoutDuration time.Duration
	// TestBypass makes Check always allow and Record/Lock no-ops. For
	// automated testing only; Builder refuses it unless explicitly armed
	// with AllowTestBypass.
	TestBypass bool
}

/*
====================================
VERIFY CONFIG
====================================
*/

// VerifyConfig controls the failed-attempt backoff applied during
// credential verification.
type VerifyConfig struct {
	// BackoffThreshold is the failed-attempt count at which verification
	// starts delaying before touching the store.
	BackoffThreshold int
	// BackoffCap bounds the delay. The delay is
	// min(BackoffCap, 2^(failures-2) seconds).
	BackoffCap time.Duration
	// AttemptTTL scopes the failed-attempt counter. It is auxiliary state,
	// not a source of truth; losing it only loses backoff pressure.
	AttemptTTL time.Duration
}

/*
====================================
GUEST / SESSION CONFIG
====================================
*/

// GuestConfig controls identity-to-account bridging for verified
// identities without an account.
type GuestConfig struct {
	// SessionTTL is the guest session lifetime.
	SessionTTL time.Duration
	// AllowRegistration permits account creation for verified identities
	// with no account. When false, VerifyAndLogin fails such identities
	// with ErrRegistrationDisabled.
	AllowRegistration bool
}

// SessionConfig controls the signed access token minted when a verified
// identity resolves to a known account.
type SessionConfig struct {
	// Enabled turns login orchestration token issuance on. When false,
	// VerifyAndLogin still resolves accounts but returns no AccessToken.
	Enabled bool
	// AccessTTL is the access token lifetime.
	AccessTTL time.Duration
	// SigningMethod is "hs256" (default) or "ed25519".
	SigningMethod string
	// PrivateKey is the HMAC secret for hs256 or the Ed25519 seed/private
	// key for ed25519.
	PrivateKey []byte
	// PublicKey is the Ed25519 public key; unused for hs256.
	PublicKey []byte
	// Issuer is stamped into the iss claim when non-empty.
	Issuer string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher and retention sweep.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// Retention bounds how far back Sweep keeps audit events in the
	// Redis-backed sink.
	Retention time.Duration
}

// MetricsConfig controls the in-process metrics counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration the Builder starts from. Callers
// adjust fields and pass the result to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Credential: CredentialConfig{
			OTPDigits:          6,
			AlphanumericLength: 8,
			TTL:                15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			IdentityHourlyLimit: 3,
			IdentityBurstLimit:  5,
			SourceHourlyLimit:   20,
			Window:              time.Hour,
			BurstWindow:         30 * time.Second,
			LockoutDuration:     30 * time.Minute,
		},
		Verify: VerifyConfig{
			BackoffThreshold: 3,
			BackoffCap:       8 * time.Second,
			AttemptTTL:       15 * time.Minute,
		},
		Guest: GuestConfig{
			SessionTTL:        24 * time.Hour,
			AllowRegistration: true,
		},
		Session: SessionConfig{
			Enabled:       false,
			AccessTTL:     time.Hour,
			SigningMethod: "hs256",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
			Retention:  30 * 24 * time.Hour,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Session.PrivateKey = cloneBytes(cfg.Session.PrivateKey)
	out.Session.PublicKey = cloneBytes(cfg.Session.PublicKey)
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

// Validate checks the configuration for values the engine cannot operate
// with. It is called by [Builder.Build].
func (c *Config) Validate() error {
	if c.Credential.OTPDigits != 6 && c.Credential.OTPDigits != 8 {
		return errors.New("Credential.OTPDigits must be 6 or 8")
	}
	if c.Credential.AlphanumericLength != 6 && c.Credential.AlphanumericLength != 8 {
		return errors.New("Credential.AlphanumericLength must be 6 or 8")
	}
	if c.Credential.TTL <= 0 {
		return errors.New("Credential.TTL must be positive")
	}
	if c.RateLimit.IdentityHourlyLimit <= 0 ||
		c.RateLimit.IdentityBurstLimit <= 0 ||
		c.RateLimit.SourceHourlyLimit <= 0 {
		return errors.New("RateLimit thresholds must be positive")
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.BurstWindow <= 0 {
		return errors.New("RateLimit windows must be positive")
	}
	if c.RateLimit.BurstWindow >= c.RateLimit.Window {
		return errors.New("RateLimit.BurstWindow must be shorter than RateLimit.Window")
	}
	if c.RateLimit.LockoutDuration <= 0 {
		return errors.New("RateLimit.LockoutDuration must be positive")
	}
	if c.Verify.BackoffThreshold <= 0 {
		return errors.New("Verify.BackoffThreshold must be positive")
	}
	if c.Verify.BackoffCap <= 0 || c.Verify.BackoffCap > time.Minute {
		return errors.New("Verify.BackoffCap must be in (0, 1m]")
	}
	if c.Verify.AttemptTTL <= 0 {
		return errors.New("Verify.AttemptTTL must be positive")
	}
	if c.Guest.SessionTTL <= 0 {
		return errors.New("Guest.SessionTTL must be positive")
	}
	if c.Session.Enabled {
		if c.Session.AccessTTL <= 0 {
			return errors.New("Session.AccessTTL must be positive")
		}
		if len(c.Session.PrivateKey) == 0 {
			return errors.New("Session requires a private key")
		}
	}
	if c.Audit.Enabled && c.Audit.Retention <= 0 {
		return errors.New("Audit.Retention must be positive")
	}
	return nil
}
