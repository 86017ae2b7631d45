package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/cmsauth/cookie"
	"github.com/MrEthical07/cmsauth/db"
)

const cookieName = "abs_session"

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(t *testing.T) (*Manager, *db.DB, *clock) {
	t.Helper()
	ctx := context.Background()
	store, err := db.Open(ctx, db.Config{Dialect: db.SQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Install(ctx, ""); err != nil {
		t.Fatalf("install: %v", err)
	}

	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	m, err := NewManager(store, Config{
		Table:   "sessions",
		Salt:    "s3cret",
		Timeout: 30 * time.Minute,
		Now:     clk.now,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, store, clk
}

func countRows(t *testing.T, store *db.DB) int {
	t.Helper()
	var n int
	if err := store.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

var browser = Client{IP: "10.0.0.1", UserAgent: "Mozilla/5.0"}

func TestPendingSessionIsNotPersisted(t *testing.T) {
	m, store, _ := newTestManager(t)
	jar := cookie.NewMemory()

	s, err := m.Open(context.Background(), jar, browser, cookieName, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if s.State() != StatePending {
		t.Fatalf("expected pending, got %s", s.State())
	}
	if !wellFormed(s.ID()) {
		t.Fatalf("session id %q is not 32 hex characters", s.ID())
	}
	if countRows(t, store) != 0 {
		t.Fatal("pending session was written")
	}
	if _, ok := jar.Get(cookieName); ok {
		t.Fatal("pending session set a cookie")
	}
	if _, _, err := s.Get(context.Background(), "x"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
	if err := s.Set(context.Background(), "x", 1); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
}

func TestFailedInsertLeavesSessionPending(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()
	jar := cookie.NewMemory()

	s, err := m.Open(ctx, jar, browser, cookieName, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.ExecContext(ctx, "DROP TABLE sessions"); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	if err := s.Start(ctx); !errors.Is(err, db.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if s.State() != StatePending {
		t.Fatalf("expected pending after failed insert, got %s", s.State())
	}
	if _, ok := jar.Get(cookieName); ok {
		t.Fatal("cookie set for a session with no row")
	}
}

func TestStartedSessionResumesWithData(t *testing.T) {
	m, store, clk := newTestManager(t)
	ctx := context.Background()
	jar := cookie.NewMemory()

	s, err := m.Open(ctx, jar, browser, cookieName, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Set(ctx, "greeting", "hello"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "nested", map[string]any{"n": 3, "ok": true}); err != nil {
		t.Fatalf("Set nested: %v", err)
	}

	value, _ := jar.Get(cookieName)
	if value == s.ID() {
		t.Fatal("cookie carries the raw session id")
	}
	if value != CookieValue(s.ID(), "s3cret") {
		t.Fatal("cookie value is not the salted hash of the id")
	}
	c, _ := jar.Cookie(cookieName)
	if !c.Expires.IsZero() {
		t.Fatal("rolling session cookie must not carry an expiry")
	}
	if countRows(t, store) != 1 {
		t.Fatal("expected one row after start")
	}

	var stored Record
	_ = store.QueryRowContext(ctx, "SELECT data FROM sessions").Scan(&stored.Data)
	if stored.Data == "" || stored.Data == `{"greeting":"hello"}` {
		t.Fatal("payload not encrypted at rest")
	}

	clk.advance(time.Minute)
	again, err := m.Open(ctx, jar, browser, cookieName, 0)
	if err != nil {
		t.Fatalf("re-open: %v", err)
	}
	if again.State() != StateFoundValid {
		t.Fatalf("expected found_valid, got %s", again.State())
	}
	if again.ID() != s.ID() {
		t.Fatal("resumed session has a different id")
	}
	if err := again.Start(ctx); err != nil {
		t.Fatalf("Start resumed: %v", err)
	}
	v, ok, err := again.Get(ctx, "greeting")
	if err != nil || !ok || v != "hello" {
		t.Fatalf("expected hello, got %v,%v,%v", v, ok, err)
	}
	var nested struct {
		N  int  `json:"n"`
		OK bool `json:"ok"`
	}
	if ok, err := again.Scan(ctx, "nested", &nested); err != nil || !ok || nested.N != 3 || !nested.OK {
		t.Fatalf("Scan nested = %+v,%v,%v", nested, ok, err)
	}
	if countRows(t, store) != 1 {
		t.Fatal("resuming created another row")
	}
}

func TestMismatchedClientDiscardsRow(t *testing.T) {
	cases := []Client{
		{IP: "10.0.0.2", UserAgent: browser.UserAgent},
		{IP: browser.IP, UserAgent: "curl/8.0"},
	}
	for _, other := range cases {
		m, store, _ := newTestManager(t)
		ctx := context.Background()
		jar := cookie.NewMemory()

		s, _ := m.Open(ctx, jar, browser, cookieName, 0)
		if err := s.Start(ctx); err != nil {
			t.Fatalf("Start: %v", err)
		}

		stolen, err := m.Open(ctx, jar, other, cookieName, 0)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if stolen.State() != StatePending || stolen.ID() == s.ID() {
			t.Fatalf("mismatched client resumed the session (%+v)", other)
		}
		if countRows(t, store) != 0 {
			t.Fatal("mismatched lookup did not delete the row")
		}
	}
}

func TestExpiredRowIsDiscarded(t *testing.T) {
	m, store, clk := newTestManager(t)
	ctx := context.Background()
	jar := cookie.NewMemory()

	s, _ := m.Open(ctx, jar, browser, cookieName, 0)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	clk.advance(30 * time.Minute)
	again, err := m.Open(ctx, jar, browser, cookieName, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if again.State() != StatePending {
		t.Fatalf("expected expired session to be treated as absent, got %s", again.State())
	}
	if countRows(t, store) != 0 {
		t.Fatal("expired row not removed")
	}
}

func TestOpenSweepsExpiredRows(t *testing.T) {
	m, store, clk := newTestManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s, _ := m.Open(ctx, cookie.NewMemory(), browser, cookieName, 0)
		if err := s.Start(ctx); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}
	if countRows(t, store) != 3 {
		t.Fatal("expected three rows")
	}

	clk.advance(31 * time.Minute)
	if _, err := m.Open(ctx, cookie.NewMemory(), browser, cookieName, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if countRows(t, store) != 0 {
		t.Fatal("garbage collection left expired rows")
	}
}

func TestRollingActivityExtendsLifetime(t *testing.T) {
	m, _, clk := newTestManager(t)
	ctx := context.Background()
	jar := cookie.NewMemory()

	s, _ := m.Open(ctx, jar, browser, cookieName, 0)
	_ = s.Start(ctx)

	clk.advance(20 * time.Minute)
	if _, _, err := s.Get(ctx, "anything"); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := s.Poll(clk.now()); got != 30*60 {
		t.Fatalf("expected read to reset the rolling window, poll=%d", got)
	}

	clk.advance(20 * time.Minute)
	again, _ := m.Open(ctx, jar, browser, cookieName, 0)
	if again.State() != StateFoundValid {
		t.Fatal("rolling session expired despite activity")
	}
}

func TestFixedSessionIsNotExtended(t *testing.T) {
	m, _, clk := newTestManager(t)
	ctx := context.Background()
	jar := cookie.NewMemory()

	s, _ := m.Open(ctx, jar, browser, cookieName, time.Hour)
	if !s.Fixed() {
		t.Fatal("explicit timeout must create a fixed session")
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c, _ := jar.Cookie(cookieName)
	if !c.Expires.Equal(clk.now().Add(time.Hour)) {
		t.Fatalf("fixed cookie expiry = %v", c.Expires)
	}

	clk.advance(50 * time.Minute)
	if err := s.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Touch(ctx); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if got := s.Poll(clk.now()); got != 10*60 {
		t.Fatalf("fixed session was extended, poll=%d", got)
	}

	clk.advance(11 * time.Minute)
	again, _ := m.Open(ctx, jar, browser, cookieName, 0)
	if again.State() != StatePending {
		t.Fatal("fixed session outlived its lifetime")
	}
}

func TestTouchNeverMovesBackwards(t *testing.T) {
	m, store, clk := newTestManager(t)
	ctx := context.Background()
	jar := cookie.NewMemory()

	s, _ := m.Open(ctx, jar, browser, cookieName, 0)
	_ = s.Start(ctx)

	future := clk.now().Unix() + 120
	if _, err := store.ExecContext(ctx, "UPDATE sessions SET last_activity = ?", future); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Touch(ctx); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if got := s.Record().LastActivity; got != future {
		t.Fatalf("last activity moved backwards: %d < %d", got, future)
	}
}

func TestDestroy(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()
	jar := cookie.NewMemory()

	s, _ := m.Open(ctx, jar, browser, cookieName, 0)
	_ = s.Start(ctx)
	_ = s.Set(ctx, "k", "v")

	if err := s.Destroy(ctx); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := s.Destroy(ctx); err != nil {
		t.Fatalf("second Destroy: %v", err)
	}
	if s.State() != StateDestroyed {
		t.Fatal("expected destroyed")
	}
	if countRows(t, store) != 0 {
		t.Fatal("row survived destroy")
	}
	if _, ok := jar.Get(cookieName); ok {
		t.Fatal("cookie survived destroy")
	}
	if err := s.Set(ctx, "k", "v2"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("write after destroy: %v", err)
	}
	if err := s.Start(ctx); !errors.Is(err, ErrNotActive) {
		t.Fatalf("restart after destroy: %v", err)
	}
	if s.Poll(time.Now()) != 0 {
		t.Fatal("destroyed session reports remaining time")
	}
}

func TestRowDeletedElsewhereDeactivatesSession(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()

	s, _ := m.Open(ctx, cookie.NewMemory(), browser, cookieName, 0)
	_ = s.Start(ctx)
	if _, err := store.ExecContext(ctx, "DELETE FROM sessions"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Set(ctx, "k", "v"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
	if s.State() != StateDestroyed {
		t.Fatalf("expected destroyed, got %s", s.State())
	}
}

func TestCorruptPayloadReadsEmpty(t *testing.T) {
	m, store, _ := newTestManager(t)
	ctx := context.Background()
	jar := cookie.NewMemory()

	s, _ := m.Open(ctx, jar, browser, cookieName, 0)
	_ = s.Start(ctx)
	_ = s.Set(ctx, "k", "v")
	if _, err := store.ExecContext(ctx, "UPDATE sessions SET data = 'garbage'"); err != nil {
		t.Fatalf("update: %v", err)
	}

	again, err := m.Open(ctx, jar, browser, cookieName, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = again.Start(ctx)
	data, err := again.Data(ctx)
	if err != nil {
		t.Fatalf("Data: %v", err)
	}
	if len(data) != 0 {
		t.Fatalf("expected empty payload, got %v", data)
	}
}

func TestMalformedCookieSkipsLookup(t *testing.T) {
	m, _, _ := newTestManager(t)
	jar := cookie.NewMemory()
	jar.Put(cookieName, "' OR 1=1 --")

	rec, err := m.Resume(context.Background(), "' OR 1=1 --")
	if err != nil || rec != nil {
		t.Fatalf("expected no record, got %v,%v", rec, err)
	}
	s, err := m.Open(context.Background(), jar, browser, cookieName, 0)
	if err != nil || s.State() != StatePending {
		t.Fatalf("Open = %v,%v", s, err)
	}
}

func TestSweepReportsCount(t *testing.T) {
	m, _, clk := newTestManager(t)
	ctx := context.Background()
	var observed int64
	m.onSweep = func(n int64) { observed += n }

	s, _ := m.Open(ctx, cookie.NewMemory(), browser, cookieName, 0)
	_ = s.Start(ctx)
	clk.advance(time.Hour)

	n, err := m.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d,%v", n, err)
	}
	if observed != 1 {
		t.Fatalf("observer saw %d", observed)
	}
}

func TestRecordValid(t *testing.T) {
	r := &Record{IPAddress: "a", UserAgent: "b", LastActivity: 100, Timeout: 10}
	if !r.Valid(109, Client{IP: "a", UserAgent: "b"}) {
		t.Fatal("expected valid before expiry")
	}
	if r.Valid(110, Client{IP: "a", UserAgent: "b"}) {
		t.Fatal("expected invalid at expiry")
	}
	if r.Remaining(200) != 0 {
		t.Fatal("remaining must clamp at zero")
	}
	var nilRec *Record
	if nilRec.Valid(0, Client{}) {
		t.Fatal("nil record must be invalid")
	}
}
