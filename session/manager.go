package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/MrEthical07/cmsauth/cookie"
	"github.com/MrEthical07/cmsauth/db"
)

var (
	// ErrNotActive is returned by data operations on a session that has not been
	// started or has been destroyed.
	ErrNotActive = errors.New("session not active")

	// ErrMissingSalt is returned when no secret salt is configured.
	ErrMissingSalt = errors.New("session salt is required")
)

// Config configures a [Manager].
type Config struct {
	// Table is the sessions table name, prefix included.
	Table string
	// Salt keys both the cookie hash and the payload cipher.
	Salt string
	// Timeout is the rolling timeout used when Open is given no explicit one.
	Timeout time.Duration
	Cookie  cookie.Options

	Logger logr.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
	// OnSweep observes the number of rows removed by each garbage collection.
	OnSweep func(n int64)
}

// Manager owns the sessions table. It is safe for concurrent use; per-request
// state lives in [Session].
type Manager struct {
	db      *db.DB
	table   string
	salt    string
	codec   *Codec
	timeout int64
	cookie  cookie.Options
	log     logr.Logger
	now     func() time.Time
	onSweep func(int64)

	selectSQL string
	insertSQL string
	deleteSQL string
}

// NewManager validates cfg and prepares the statements for the store's dialect.
func NewManager(store *db.DB, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store database is nil")
	}
	if cfg.Table == "" {
		cfg.Table = "sessions"
	}
	if cfg.Timeout < time.Second {
		return nil, errors.New("session timeout must be >= 1s")
	}
	codec, err := NewCodec(cfg.Salt)
	if err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger.GetSink() == nil {
		cfg.Logger = logr.Discard()
	}

	d := store.Dialect()
	t := d.QuoteIdentifier(cfg.Table)
	hash := d.CookieHash("session_id")

	return &Manager{
		db:      store,
		table:   cfg.Table,
		salt:    cfg.Salt,
		codec:   codec,
		timeout: int64(cfg.Timeout / time.Second),
		cookie:  cfg.Cookie,
		log:     cfg.Logger,
		now:     cfg.Now,
		onSweep: cfg.OnSweep,

		selectSQL: "SELECT session_id, ip_address, user_agent, last_activity, timeout, fixed, data FROM " + t + " WHERE " + hash + " = ?",
		insertSQL: "INSERT INTO " + t + " (session_id, ip_address, user_agent, last_activity, timeout, fixed, data) VALUES (?, ?, ?, ?, ?, ?, ?)",
		deleteSQL: "DELETE FROM " + t + " WHERE " + hash + " = ?",
	}, nil
}

// Codec returns the payload codec, for tools that inspect stored rows.
func (m *Manager) Codec() *Codec {
	return m.codec
}

// Resume looks up the row addressed by a session cookie value. It returns nil
// when no row matches. Validity against the client is not checked here; see
// [Record.Valid].
func (m *Manager) Resume(ctx context.Context, cookieValue string) (*Record, error) {
	if !wellFormed(cookieValue) {
		return nil, nil
	}

	var (
		rec   Record
		fixed int
	)
	err := m.db.QueryRowContext(ctx, m.selectSQL, m.salt, cookieValue).Scan(
		&rec.SessionID, &rec.IPAddress, &rec.UserAgent, &rec.LastActivity, &rec.Timeout, &fixed, &rec.Data,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	rec.Fixed = fixed != 0
	return &rec, nil
}

// Open resolves the session for one request and cookie name.
//
// A valid cookie yields a FOUND_VALID session. Anything else yields a PENDING
// session with a new id that is not persisted until [Session.Start]. A cookie
// that points at an expired or mismatched row deletes that row. Expired rows
// are then swept; sweep failures are logged and do not fail Open.
//
// timeout <= 0 selects the rolling default. A positive timeout is a fixed
// lifetime that activity never extends.
func (m *Manager) Open(ctx context.Context, jar cookie.Jar, client Client, cookieName string, timeout time.Duration) (*Session, error) {
	now := m.now().Unix()
	s := &Session{
		m:          m,
		jar:        jar,
		cookieName: cookieName,
		state:      StateUninitialized,
	}

	if value, ok := jar.Get(cookieName); ok && value != "" {
		rec, err := m.Resume(ctx, value)
		if err != nil {
			return nil, err
		}
		switch {
		case rec != nil && rec.Valid(now, client):
			s.load(*rec)
			s.cookieValue = value
			s.state = StateFoundValid
		case rec != nil:
			m.log.V(1).Info("discarding invalid session", "expired", rec.Remaining(now) == 0)
			if err := m.deleteByCookie(ctx, value); err != nil {
				return nil, err
			}
		}
	}

	if _, err := m.Sweep(ctx); err != nil {
		m.log.Error(err, "session garbage collection failed")
	}

	if s.state == StateFoundValid {
		return s, nil
	}

	id, err := NewID(client.IP)
	if err != nil {
		return nil, err
	}
	rec := Record{
		SessionID:    id,
		IPAddress:    client.IP,
		UserAgent:    client.UserAgent,
		LastActivity: now,
		Timeout:      m.timeout,
	}
	if timeout > 0 {
		rec.Timeout = int64(timeout / time.Second)
		if rec.Timeout < 1 {
			rec.Timeout = 1
		}
		rec.Fixed = true
	}
	s.rec = rec
	s.data = map[string]any{}
	s.cookieValue = CookieValue(id, m.salt)
	s.state = StatePending
	return s, nil
}

// Sweep deletes every row whose last activity plus timeout lies in the past.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	q := "DELETE FROM " + m.db.Dialect().QuoteIdentifier(m.table) + " WHERE last_activity + timeout < ?"
	res, err := m.db.ExecContext(ctx, q, m.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	if n > 0 {
		m.log.V(1).Info("swept expired sessions", "count", n)
	}
	if m.onSweep != nil {
		m.onSweep(n)
	}
	return n, nil
}

func (m *Manager) deleteByCookie(ctx context.Context, value string) error {
	if _, err := m.db.ExecContext(ctx, m.deleteSQL, m.salt, value); err != nil {
		return fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	return nil
}

func (m *Manager) insert(ctx context.Context, rec Record) error {
	fixed := 0
	if rec.Fixed {
		fixed = 1
	}
	_, err := m.db.ExecContext(ctx, m.insertSQL,
		rec.SessionID, rec.IPAddress, rec.UserAgent, rec.LastActivity, rec.Timeout, fixed, rec.Data,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", db.ErrUnavailable, err)
	}
	return nil
}

// errGone signals that the row disappeared under a locked update.
var errGone = errors.New("session row gone")

// update writes data and, for rolling sessions, a last-activity value that
// never moves backwards. Rolling updates run under the table lock.
func (m *Manager) update(ctx context.Context, rec Record, data *string, now int64) (int64, error) {
	t := m.db.Dialect().QuoteIdentifier(m.table)

	if rec.Fixed {
		if data == nil {
			return rec.LastActivity, nil
		}
		res, err := m.db.ExecContext(ctx, "UPDATE "+t+" SET data = ? WHERE session_id = ?", *data, rec.SessionID)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
		}
		// MySQL counts changed rows, not matched ones.
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			var one int
			err := m.db.QueryRowContext(ctx, "SELECT 1 FROM "+t+" WHERE session_id = ?", rec.SessionID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return 0, errGone
			}
			if err != nil {
				return 0, fmt.Errorf("%w: %v", db.ErrUnavailable, err)
			}
		}
		return rec.LastActivity, nil
	}

	last := now
	err := m.db.WithTableLock(ctx, m.table, func(q db.Querier) error {
		var stored int64
		err := q.QueryRowContext(ctx, "SELECT last_activity FROM "+t+" WHERE session_id = ?", rec.SessionID).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			return errGone
		}
		if err != nil {
			return fmt.Errorf("%w: %v", db.ErrUnavailable, err)
		}
		if stored > last {
			last = stored
		}

		if data == nil {
			_, err = q.ExecContext(ctx, "UPDATE "+t+" SET last_activity = ? WHERE session_id = ?", last, rec.SessionID)
		} else {
			_, err = q.ExecContext(ctx, "UPDATE "+t+" SET last_activity = ?, data = ? WHERE session_id = ?", last, *data, rec.SessionID)
		}
		if err != nil {
			return fmt.Errorf("%w: %v", db.ErrUnavailable, err)
		}
		return nil
	})
	return last, err
}
