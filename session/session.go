package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrEthical07/cmsauth/cookie"
)

// State is the lifecycle position of a [Session].
type State uint8

const (
	StateUninitialized State = iota
	StateFoundValid
	StatePending
	StateActive
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateFoundValid:
		return "found_valid"
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateDestroyed:
		return "destroyed"
	}
	return "uninitialized"
}

// Session is the request-scoped view of one session row.
type Session struct {
	m          *Manager
	jar        cookie.Jar
	cookieName string

	mu          sync.Mutex
	rec         Record
	cookieValue string
	data        map[string]any
	state       State
}

func (s *Session) load(rec Record) {
	s.rec = rec
	data, err := s.m.codec.Decrypt(rec.Data)
	if err != nil {
		s.m.log.Info("session payload unreadable, starting empty", "reason", err.Error())
		data = map[string]any{}
	}
	s.data = data
}

// ID returns the raw session id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.SessionID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Fixed reports whether the session has an absolute lifetime.
func (s *Session) Fixed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec.Fixed
}

// Record returns a copy of the row as last read or written.
func (s *Session) Record() Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec
}

// Start activates the session. A pending session inserts its row and then sets
// its cookie; a failed insert leaves it pending with no cookie. A found session
// is only marked active. Starting an active session
// is a no-op.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateActive:
		return nil
	case StateFoundValid:
		s.state = StateActive
		return nil
	case StatePending:
	default:
		return ErrNotActive
	}

	enc, err := s.m.codec.Encrypt(s.data)
	if err != nil {
		return err
	}
	rec := s.rec
	rec.Data = enc
	if err := s.m.insert(ctx, rec); err != nil {
		return err
	}
	s.rec = rec

	var expires time.Time
	if s.rec.Fixed {
		expires = time.Unix(s.rec.LastActivity+s.rec.Timeout, 0)
	}
	s.jar.Set(s.m.cookie.New(s.cookieName, s.cookieValue, expires))
	s.state = StateActive
	return nil
}

// Get returns a stored value. Reads refresh a rolling session's activity.
func (s *Session) Get(ctx context.Context, name string) (any, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil, false, ErrNotActive
	}
	if err := s.persist(ctx, false); err != nil {
		return nil, false, err
	}
	v, ok := s.data[name]
	return v, ok, nil
}

// Scan decodes a stored value into out, which must be a pointer. It reports
// false when name is not set.
func (s *Session) Scan(ctx context.Context, name string, out any) (bool, error) {
	v, ok, err := s.Get(ctx, name)
	if err != nil || !ok {
		return false, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("scan session value %q: %w", name, err)
	}
	return true, nil
}

// Set stores a value and persists the payload. Values are normalized through
// JSON so that reads before and after a reload agree.
func (s *Session) Set(ctx context.Context, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode session value %q: %w", name, err)
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return ErrNotActive
	}
	s.data[name] = normalized
	return s.persist(ctx, true)
}

// Unset removes a value and persists the payload.
func (s *Session) Unset(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return ErrNotActive
	}
	delete(s.data, name)
	return s.persist(ctx, true)
}

// Data returns a shallow copy of the whole payload.
func (s *Session) Data(ctx context.Context) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil, ErrNotActive
	}
	if err := s.persist(ctx, false); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}

// Touch refreshes last activity of a rolling session. Fixed sessions are not
// extended.
func (s *Session) Touch(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return ErrNotActive
	}
	return s.persist(ctx, false)
}

// Destroy deletes the row, expires the cookie and makes the session unusable.
// Destroying twice is a no-op.
func (s *Session) Destroy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDestroyed {
		return nil
	}

	persisted := s.state == StateActive || s.state == StateFoundValid
	s.state = StateDestroyed
	s.data = map[string]any{}
	s.jar.Set(s.m.cookie.Expired(s.cookieName))

	if !persisted {
		return nil
	}
	return s.m.deleteByCookie(ctx, s.cookieValue)
}

// Poll returns the seconds left before the session expires, 0 if it is
// expired, destroyed or was never started.
func (s *Session) Poll(now time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateActive, StateFoundValid:
		return s.rec.Remaining(now.Unix())
	}
	return 0
}

// persist must be called with s.mu held.
func (s *Session) persist(ctx context.Context, withData bool) error {
	if s.rec.Fixed && !withData {
		return nil
	}

	var data *string
	if withData {
		enc, err := s.m.codec.Encrypt(s.data)
		if err != nil {
			return err
		}
		data = &enc
	}

	last, err := s.m.update(ctx, s.rec, data, s.m.now().Unix())
	if errors.Is(err, errGone) {
		s.state = StateDestroyed
		s.data = map[string]any{}
		return ErrNotActive
	}
	if err != nil {
		return err
	}
	s.rec.LastActivity = last
	if data != nil {
		s.rec.Data = *data
	}
	return nil
}
