package zerofriction

import (
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	if cfg.RateLimit.IdentityHourlyLimit != 3 || cfg.RateLimit.SourceHourlyLimit != 20 {
		t.Fatalf("unexpected default thresholds: %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.LockoutDuration != 30*time.Minute {
		t.Fatalf("unexpected default lockout: %v", cfg.RateLimit.LockoutDuration)
	}
	if cfg.Audit.Retention != 30*24*time.Hour {
		t.Fatalf("unexpected default retention: %v", cfg.Audit.Retention)
	}
	if cfg.RateLimit.TestBypass {
		t.Fatal("bypass must be off by default")
	}
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"otp digits", func(c *Config) { c.Credential.OTPDigits = 4 }},
		{"alphanumeric length", func(c *Config) { c.Credential.AlphanumericLength = 12 }},
		{"credential ttl", func(c *Config) { c.Credential.TTL = 0 }},
		{"hourly limit", func(c *Config) { c.RateLimit.IdentityHourlyLimit = 0 }},
		{"burst limit", func(c *Config) { c.RateLimit.IdentityBurstLimit = -1 }},
		{"window", func(c *Config) { c.RateLimit.Window = 0 }},
		{"burst window order", func(c *Config) { c.RateLimit.BurstWindow = 2 * c.RateLimit.Window }},
		{"lockout", func(c *Config) { c.RateLimit.LockoutDuration = 0 }},
		{"backoff threshold", func(c *Config) { c.Verify.BackoffThreshold = 0 }},
		{"backoff cap", func(c *Config) { c.Verify.BackoffCap = 2 * time.Minute }},
		{"attempt ttl", func(c *Config) { c.Verify.AttemptTTL = 0 }},
		{"guest ttl", func(c *Config) { c.Guest.SessionTTL = 0 }},
		{"session key", func(c *Config) { c.Session.Enabled = true; c.Session.PrivateKey = nil }},
		{"audit retention", func(c *Config) { c.Audit.Retention = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCloneConfigIsolatesKeys(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Session.PrivateKey = []byte("original-key-material")

	clone := cloneConfig(cfg)
	clone.Session.PrivateKey[0] = 'X'

	if cfg.Session.PrivateKey[0] == 'X' {
		t.Fatal("clone must not share key backing arrays")
	}
}
