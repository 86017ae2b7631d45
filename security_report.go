package cmsauth

import "github.com/MrEthical07/cmsauth/internal/security"

// SecurityReport summarises the protections a configuration enables and
// lists the settings that weaken it. Warnings do not fail validation.
type SecurityReport = security.Report

// PasswordConfigReport echoes the Argon2id parameters.
type PasswordConfigReport = security.PasswordReport

// SecurityReport reports on c.
func (c Config) SecurityReport() SecurityReport {
	return security.BuildReport(security.ReportInput{
		SaltLength:         len(c.Session.Salt),
		CookieSecure:       c.Cookie.Secure,
		CookieHTTPOnly:     c.Cookie.HTTPOnly,
		CookieSameSite:     c.Cookie.SameSite,
		SessionTimeout:     c.Session.Timeout,
		RememberTimeout:    c.Session.RememberTimeout,
		LockoutMaxAttempts: c.Lockout.MaxAttempts,
		LockoutDuration:    c.Lockout.Duration,
		AuditEnabled:       c.Audit.Enabled,
		MetricsEnabled:     c.Metrics.Enabled,
		Password: PasswordConfigReport{
			Memory:      c.Password.Memory,
			Time:        c.Password.Time,
			Parallelism: c.Password.Parallelism,
			SaltLength:  c.Password.SaltLength,
			KeyLength:   c.Password.KeyLength,
		},
	})
}

// SecurityReport reports on the engine's configuration.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	return e.config.SecurityReport()
}
