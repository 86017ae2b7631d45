package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/cmsauth"
)

// fileConfig is the YAML layout read by every command.
type fileConfig struct {
	Server    serverConfig   `yaml:"server"`
	Session   sessionConfig  `yaml:"session"`
	Cookie    cookieConfig   `yaml:"cookie"`
	CSRF      csrfConfig     `yaml:"csrf"`
	Lockout   lockoutConfig  `yaml:"lockout"`
	Database  databaseConfig `yaml:"database"`
	Audit     auditConfig    `yaml:"audit"`
	Metrics   metricsConfig  `yaml:"metrics"`
	Password  passwordConfig `yaml:"password"`
	Resources []string       `yaml:"resources"`
}

type serverConfig struct {
	Listen string `yaml:"listen"`
	// Redis is an address, "memory" for an embedded server, or empty for none.
	Redis         string        `yaml:"redis"`
	SweepSchedule string        `yaml:"sweep_schedule"` // cron spec
	RateLimit     int           `yaml:"rate_limit"`     // requests per window per IP, 0 disables
	RateWindow    time.Duration `yaml:"rate_window"`
	TrustProxy    bool          `yaml:"trust_proxy"`
}

type sessionConfig struct {
	CookieName      string        `yaml:"cookie_name"`
	Salt            string        `yaml:"salt"`
	Timeout         time.Duration `yaml:"timeout"`
	RememberTimeout time.Duration `yaml:"remember_timeout"`
	TablePrefix     string        `yaml:"table_prefix"`
}

type cookieConfig struct {
	Path     string `yaml:"path"`
	Domain   string `yaml:"domain"`
	Secure   bool   `yaml:"secure"`
	HTTPOnly bool   `yaml:"http_only"`
	SameSite string `yaml:"same_site"` // lax, strict, none
}

type csrfConfig struct {
	CookieName string `yaml:"cookie_name"`
	FormField  string `yaml:"form_field"`
}

type lockoutConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Duration    time.Duration `yaml:"duration"`
}

type databaseConfig struct {
	Dialect         string        `yaml:"dialect"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type auditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

type metricsConfig struct {
	Enabled           bool `yaml:"enabled"`
	LatencyHistograms bool `yaml:"latency_histograms"`
	// OTel logs the OpenTelemetry view of the counters every OTelInterval.
	OTel         bool          `yaml:"otel"`
	OTelInterval time.Duration `yaml:"otel_interval"`
}

type passwordConfig struct {
	Memory      uint32 `yaml:"memory"`
	Time        uint32 `yaml:"time"`
	Parallelism uint8  `yaml:"parallelism"`
	SaltLength  uint32 `yaml:"salt_length"`
	KeyLength   uint32 `yaml:"key_length"`
}

// defaultFileConfig mirrors cmsauth.DefaultConfig.
func defaultFileConfig() *fileConfig {
	d := cmsauth.DefaultConfig()
	return &fileConfig{
		Server: serverConfig{
			Listen:        ":8080",
			SweepSchedule: "*/5 * * * *",
			RateWindow:    time.Minute,
		},
		Session: sessionConfig{
			CookieName:      d.Session.CookieName,
			Timeout:         d.Session.Timeout,
			RememberTimeout: d.Session.RememberTimeout,
		},
		Cookie: cookieConfig{
			Path:     d.Cookie.Path,
			HTTPOnly: d.Cookie.HTTPOnly,
			SameSite: "lax",
		},
		CSRF: csrfConfig{
			CookieName: d.CSRF.CookieName,
			FormField:  d.CSRF.FormField,
		},
		Lockout: lockoutConfig{
			MaxAttempts: d.Lockout.MaxAttempts,
			Duration:    d.Lockout.Duration,
		},
		Database: databaseConfig{
			Dialect:         d.Database.Dialect,
			MaxOpenConns:    d.Database.MaxOpenConns,
			MaxIdleConns:    d.Database.MaxIdleConns,
			ConnMaxLifetime: d.Database.ConnMaxLifetime,
		},
		Audit: auditConfig{
			BufferSize: d.Audit.BufferSize,
			DropIfFull: d.Audit.DropIfFull,
		},
		Metrics: metricsConfig{
			OTelInterval: time.Minute,
		},
		Password: passwordConfig{
			Memory:      d.Password.Memory,
			Time:        d.Password.Time,
			Parallelism: d.Password.Parallelism,
			SaltLength:  d.Password.SaltLength,
			KeyLength:   d.Password.KeyLength,
		},
	}
}

// loadConfig reads path, applies CMSAUTH_* overrides and validates the
// result. A missing file is allowed when the environment supplies the rest.
func loadConfig(path string) (*fileConfig, error) {
	cfg := defaultFileConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	engineCfg, err := cfg.engineConfig()
	if err != nil {
		return nil, err
	}
	if err := engineCfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *fileConfig) applyEnvOverrides() error {
	if v := os.Getenv("CMSAUTH_SESSION_SALT"); v != "" {
		c.Session.Salt = v
	}
	if v := os.Getenv("CMSAUTH_TABLE_PREFIX"); v != "" {
		c.Session.TablePrefix = v
	}
	if v := os.Getenv("CMSAUTH_DATABASE_DIALECT"); v != "" {
		c.Database.Dialect = v
	}
	if v := os.Getenv("CMSAUTH_DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("CMSAUTH_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := os.Getenv("CMSAUTH_REDIS"); v != "" {
		c.Server.Redis = v
	}
	if v := os.Getenv("CMSAUTH_COOKIE_SECURE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CMSAUTH_COOKIE_SECURE: %w", err)
		}
		c.Cookie.Secure = b
	}
	return nil
}

// engineConfig converts the file layout into a cmsauth.Config.
func (c *fileConfig) engineConfig() (cmsauth.Config, error) {
	sameSite, err := parseSameSite(c.Cookie.SameSite)
	if err != nil {
		return cmsauth.Config{}, err
	}
	return cmsauth.Config{
		Session: cmsauth.SessionConfig{
			CookieName:      c.Session.CookieName,
			Salt:            c.Session.Salt,
			Timeout:         c.Session.Timeout,
			RememberTimeout: c.Session.RememberTimeout,
			TablePrefix:     c.Session.TablePrefix,
		},
		Cookie: cmsauth.CookieConfig{
			Path:     c.Cookie.Path,
			Domain:   c.Cookie.Domain,
			Secure:   c.Cookie.Secure,
			HTTPOnly: c.Cookie.HTTPOnly,
			SameSite: sameSite,
		},
		CSRF: cmsauth.CSRFConfig{
			CookieName: c.CSRF.CookieName,
			FormField:  c.CSRF.FormField,
		},
		Lockout: cmsauth.LockoutConfig{
			MaxAttempts: c.Lockout.MaxAttempts,
			Duration:    c.Lockout.Duration,
		},
		Database: cmsauth.DatabaseConfig{
			Dialect:         c.Database.Dialect,
			DSN:             c.Database.DSN,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Audit: cmsauth.AuditConfig{
			Enabled:    c.Audit.Enabled,
			BufferSize: c.Audit.BufferSize,
			DropIfFull: c.Audit.DropIfFull,
		},
		Metrics: cmsauth.MetricsConfig{
			Enabled:                 c.Metrics.Enabled,
			EnableLatencyHistograms: c.Metrics.LatencyHistograms,
		},
		Password: cmsauth.PasswordConfig{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
	}, nil
}

func parseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return http.SameSiteDefaultMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("cookie.same_site must be lax, strict or none, got %q", s)
	}
}
