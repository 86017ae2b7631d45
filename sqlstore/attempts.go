package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/cmsauth"
	"github.com/MrEthical07/cmsauth/db"
)

// GetLoginAttempt returns the failure counter of ip.
func (s *Store) GetLoginAttempt(ctx context.Context, ip string) (cmsauth.LoginAttempt, bool, error) {
	var (
		la   cmsauth.LoginAttempt
		last int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT attempts, last_attempt FROM "+s.table(s.tables.LoginAttempts)+" WHERE ip_address = ?",
		ip,
	).Scan(&la.Attempts, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return cmsauth.LoginAttempt{}, false, nil
	}
	if err != nil {
		return cmsauth.LoginAttempt{}, false, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	la.LastAttempt = time.Unix(last, 0)
	return la, true, nil
}

// SetLoginAttempt counts one more failure for ip at time at and returns the
// new counter. The increment happens in a single statement.
func (s *Store) SetLoginAttempt(ctx context.Context, ip string, at time.Time) (cmsauth.LoginAttempt, error) {
	t := s.table(s.tables.LoginAttempts)
	q := "INSERT INTO " + t + " (ip_address, attempts, last_attempt) VALUES (?, 1, ?)"
	if s.db.Dialect() == db.MySQL {
		q += " ON DUPLICATE KEY UPDATE attempts = attempts + 1, last_attempt = VALUES(last_attempt)"
	} else {
		q += " ON CONFLICT (ip_address) DO UPDATE SET attempts = " + t + ".attempts + 1, last_attempt = excluded.last_attempt"
	}
	if _, err := s.db.ExecContext(ctx, q, ip, at.Unix()); err != nil {
		return cmsauth.LoginAttempt{}, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}

	la, _, err := s.GetLoginAttempt(ctx, ip)
	return la, err
}

// ClearLoginAttempt removes the counter of ip.
func (s *Store) ClearLoginAttempt(ctx context.Context, ip string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM "+s.table(s.tables.LoginAttempts)+" WHERE ip_address = ?", ip)
	if err != nil {
		return fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	return nil
}
