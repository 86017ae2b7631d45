package security

import (
	"net/http"
	"time"
)

// Weak-setting thresholds.
const (
	MinSaltBytes     = 16
	MinArgon2Memory  = 64 * 1024
	MaxRollingWindow = 24 * time.Hour
)

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Report struct {
	CookieSecure    bool
	CookieHTTPOnly  bool
	CookieSameSite  http.SameSite
	SessionTimeout  time.Duration
	RememberTimeout time.Duration
	LockoutActive   bool
	AuditActive     bool
	MetricsActive   bool
	Argon2          PasswordReport
	Warnings        []string
}

type ReportInput struct {
	SaltLength         int
	CookieSecure       bool
	CookieHTTPOnly     bool
	CookieSameSite     http.SameSite
	SessionTimeout     time.Duration
	RememberTimeout    time.Duration
	LockoutMaxAttempts int
	LockoutDuration    time.Duration
	AuditEnabled       bool
	MetricsEnabled     bool
	Password           PasswordReport
}

func BuildReport(input ReportInput) Report {
	r := Report{
		CookieSecure:    input.CookieSecure,
		CookieHTTPOnly:  input.CookieHTTPOnly,
		CookieSameSite:  input.CookieSameSite,
		SessionTimeout:  input.SessionTimeout,
		RememberTimeout: input.RememberTimeout,
		LockoutActive:   input.LockoutMaxAttempts > 0 && input.LockoutDuration > 0,
		AuditActive:     input.AuditEnabled,
		MetricsActive:   input.MetricsEnabled,
		Argon2:          input.Password,
	}

	warn := func(msg string) { r.Warnings = append(r.Warnings, msg) }
	if input.SaltLength < MinSaltBytes {
		warn("session salt is shorter than 16 bytes")
	}
	if !input.CookieSecure {
		warn("cookies are sent over plain HTTP")
	}
	if !input.CookieHTTPOnly {
		warn("session cookie is readable from scripts")
	}
	if input.CookieSameSite == http.SameSiteNoneMode && !input.CookieSecure {
		warn("SameSite=None requires Secure cookies")
	}
	if input.SessionTimeout > MaxRollingWindow {
		warn("rolling session timeout exceeds 24h")
	}
	if !r.LockoutActive {
		warn("login lockout is disabled")
	}
	if input.Password.Memory < MinArgon2Memory {
		warn("argon2 memory is below 64 MiB")
	}
	return r
}
