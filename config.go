package cmsauth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/cmsauth/cookie"
	"github.com/MrEthical07/cmsauth/db"
)

// Config holds every tunable of an [Engine].
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Session  SessionConfig
	Cookie   CookieConfig
	CSRF     CSRFConfig
	Lockout  LockoutConfig
	Database DatabaseConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Password PasswordConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session cookies and lifetimes.
type SessionConfig struct {
	// CookieName names the session cookie.
	CookieName string
	// Salt keys the cookie hash and the payload cipher. Required.
	Salt string
	// Timeout is the rolling inactivity timeout.
	Timeout time.Duration
	// RememberTimeout is the fixed lifetime of a "remember me" login.
	RememberTimeout time.Duration
	// TablePrefix is prepended to every cmsauth table name.
	TablePrefix string
}

// CookieConfig holds the attributes applied to session and CSRF cookies.
type CookieConfig struct {
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
}

func (c CookieConfig) options() cookie.Options {
	return cookie.Options{
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
		SameSite: c.SameSite,
	}
}

// CSRFConfig names the anti-forgery cookie.
type CSRFConfig struct {
	CookieName string
	// FormField is the form field or header carrying the echoed token.
	FormField string
}

// LockoutConfig throttles repeated failed logins per IP. Lockout is disabled
// when either field is zero.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
}

// Enabled reports whether both limits are set.
func (c LockoutConfig) Enabled() bool {
	return c.MaxAttempts > 0 && c.Duration > 0
}

// DatabaseConfig selects the backing store.
type DatabaseConfig struct {
	Dialect         string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DB converts the configuration for [db.Open].
func (c DatabaseConfig) DB() (db.Config, error) {
	d, err := db.ParseDialect(c.Dialect)
	if err != nil {
		return db.Config{}, err
	}
	return db.Config{
		Dialect:         d,
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}, nil
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// PasswordConfig holds the Argon2id parameters used by the bundled user store.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a configuration with every field but the session salt
// and the database DSN filled in.
func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			CookieName:      "abs_session",
			Timeout:         30 * time.Minute,
			RememberTimeout: 14 * 24 * time.Hour,
		},
		Cookie: CookieConfig{
			Path:     "/",
			HTTPOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
		CSRF: CSRFConfig{
			CookieName: "abs_csrf",
			FormField:  "csrf_token",
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    15 * time.Minute,
		},
		Database: DatabaseConfig{
			Dialect:         "mysql",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting. A configuration that fails
// validation must not serve requests.
func (c *Config) Validate() error {
	// Session
	if c.Session.Salt == "" {
		return ErrMissingSalt
	}
	if strings.TrimSpace(c.Session.CookieName) == "" {
		return errors.New("Session CookieName is required")
	}
	if c.Session.Timeout < time.Second {
		return errors.New("Session Timeout must be >= 1s")
	}
	if c.Session.RememberTimeout < time.Second {
		return errors.New("Session RememberTimeout must be >= 1s")
	}
	if !validIdentifier(c.Session.TablePrefix) {
		return errors.New("Session TablePrefix may only contain letters, digits and underscores")
	}

	// CSRF
	if strings.TrimSpace(c.CSRF.CookieName) == "" {
		return errors.New("CSRF CookieName is required")
	}
	if c.CSRF.CookieName == c.Session.CookieName {
		return errors.New("CSRF CookieName must differ from Session CookieName")
	}

	// Lockout
	if c.Lockout.MaxAttempts < 0 {
		return errors.New("Lockout MaxAttempts must be >= 0")
	}
	if c.Lockout.Duration < 0 {
		return errors.New("Lockout Duration must be >= 0")
	}

	// Database
	if _, err := c.Database.DB(); err != nil {
		return errors.New("Database Dialect must be mysql, postgres or sqlite")
	}
	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 {
		return errors.New("Database pool sizes must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	return nil
}

func validIdentifier(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}
