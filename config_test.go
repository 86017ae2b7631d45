package cmsauth

import (
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with salt",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name:      "missing salt",
			mutate:    func(c *Config) { c.Session.Salt = "" },
			wantValid: false,
		},
		{
			name:      "blank session cookie",
			mutate:    func(c *Config) { c.Session.CookieName = "  " },
			wantValid: false,
		},
		{
			name:      "sub-second timeout",
			mutate:    func(c *Config) { c.Session.Timeout = 500 * time.Millisecond },
			wantValid: false,
		},
		{
			name:      "remember timeout unset",
			mutate:    func(c *Config) { c.Session.RememberTimeout = 0 },
			wantValid: false,
		},
		{
			name:      "table prefix with underscore",
			mutate:    func(c *Config) { c.Session.TablePrefix = "cms_" },
			wantValid: true,
		},
		{
			name:      "table prefix injection",
			mutate:    func(c *Config) { c.Session.TablePrefix = "x; DROP TABLE users;--" },
			wantValid: false,
		},
		{
			name: "csrf cookie equals session cookie",
			mutate: func(c *Config) {
				c.CSRF.CookieName = c.Session.CookieName
			},
			wantValid: false,
		},
		{
			name:      "lockout disabled",
			mutate:    func(c *Config) { c.Lockout = LockoutConfig{} },
			wantValid: true,
		},
		{
			name:      "negative lockout",
			mutate:    func(c *Config) { c.Lockout.MaxAttempts = -1 },
			wantValid: false,
		},
		{
			name:      "postgres alias",
			mutate:    func(c *Config) { c.Database.Dialect = "pgx" },
			wantValid: true,
		},
		{
			name:      "unknown dialect",
			mutate:    func(c *Config) { c.Database.Dialect = "oracle" },
			wantValid: false,
		},
		{
			name: "audit without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name:      "weak argon2 memory",
			mutate:    func(c *Config) { c.Password.Memory = 1024 },
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Session.Salt = "pepper"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestConfigMissingSaltSentinel(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrMissingSalt) {
		t.Fatalf("expected ErrMissingSalt, got %v", err)
	}
}

func TestLockoutEnabled(t *testing.T) {
	if (LockoutConfig{MaxAttempts: 3}).Enabled() {
		t.Fatal("lockout without duration reported enabled")
	}
	if (LockoutConfig{Duration: time.Minute}).Enabled() {
		t.Fatal("lockout without attempts reported enabled")
	}
	if !(LockoutConfig{MaxAttempts: 3, Duration: time.Minute}).Enabled() {
		t.Fatal("complete lockout reported disabled")
	}
}
