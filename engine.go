package cmsauth

import (
	"context"
	"errors"
	"time"

	"github.com/go-logr/logr"

	"github.com/MrEthical07/cmsauth/cookie"
	"github.com/MrEthical07/cmsauth/csrf"
	"github.com/MrEthical07/cmsauth/db"
	"github.com/MrEthical07/cmsauth/internal/audit"
	"github.com/MrEthical07/cmsauth/permission"
	"github.com/MrEthical07/cmsauth/session"
)

// Engine is the long-lived authentication core. It is safe for concurrent
// use; per-request state lives in [Auth].
type Engine struct {
	config       Config
	db           *db.DB
	ownsDB       bool
	sessions     *session.Manager
	registry     *permission.Registry
	userProvider UserProvider
	permissions  PermissionSource
	attempts     AttemptStore
	audit        *audit.Dispatcher
	metrics      *Metrics
	log          logr.Logger
	now          func() time.Time
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config {
	return e.config
}

// Registry returns the frozen resource registry.
func (e *Engine) Registry() *permission.Registry {
	return e.registry
}

// Sessions returns the session manager.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// Install creates the cmsauth tables if they do not exist.
func (e *Engine) Install(ctx context.Context) error {
	if e == nil || e.db == nil {
		return ErrEngineNotReady
	}
	return e.db.Install(ctx, e.config.Session.TablePrefix)
}

// Sweep removes expired sessions outside of request handling.
func (e *Engine) Sweep(ctx context.Context) (int64, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}
	return e.sessions.Sweep(ctx)
}

// Close drains the audit dispatcher and closes a database the engine opened
// itself.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.ownsDB && e.db != nil {
		return e.db.Close()
	}
	return nil
}

// AuditDropped returns the number of audit events lost to backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the current counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Request returns the handle for one request. The client IP and user agent
// are taken from ctx (see [WithClientIP] and [WithUserAgent]).
func (e *Engine) Request(ctx context.Context, jar cookie.Jar) *Auth {
	return &Auth{
		e:        e,
		jar:      jar,
		client:   clientFromContext(ctx),
		sessions: make(map[string]*session.Session),
		guards:   make(map[string]*csrf.Guard),
	}
}

// Auth is the request-scoped authentication state. It holds at most one
// session and one CSRF guard per cookie name. An Auth must not outlive its
// request.
type Auth struct {
	e      *Engine
	jar    cookie.Jar
	client session.Client

	sessions map[string]*session.Session
	guards   map[string]*csrf.Guard
}

// Client returns the IP and user agent the request is bound to.
func (a *Auth) Client() session.Client {
	return a.client
}

// Session returns the session stored under cookie name, resolving it on first
// use.
func (a *Auth) Session(ctx context.Context, name string) (*session.Session, error) {
	if s, ok := a.sessions[name]; ok && s.State() != session.StateDestroyed {
		return s, nil
	}
	s, err := a.e.sessions.Open(ctx, a.jar, a.client, name, 0)
	if err != nil {
		return nil, err
	}
	a.sessions[name] = s
	return s, nil
}

// Guard returns the CSRF guard for cookie name.
func (a *Auth) Guard(name string) *csrf.Guard {
	if g, ok := a.guards[name]; ok {
		return g
	}
	g := csrf.New(a.jar, name,
		csrf.WithCookieOptions(a.e.config.Cookie.options()),
		csrf.WithLogger(a.e.log.WithName("csrf")),
	)
	a.guards[name] = g
	return g
}

func (a *Auth) session(ctx context.Context) (*session.Session, error) {
	return a.Session(ctx, a.e.config.Session.CookieName)
}

func (a *Auth) guard() *csrf.Guard {
	return a.Guard(a.e.config.CSRF.CookieName)
}

// CSRFToken returns the current anti-forgery token for embedding in forms.
func (a *Auth) CSRFToken() string {
	return a.guard().Token()
}

// CheckCSRF reports whether a token echoed by the client matches the CSRF
// cookie.
func (a *Auth) CheckCSRF(token string) bool {
	if a.guard().IsValid(token) {
		return true
	}
	a.e.metricInc(MetricCSRFMismatch)
	return false
}

// identity loads the stored identity of an existing session. It reports false
// for anonymous requests.
func (a *Auth) identity(ctx context.Context) (*session.Session, Identity, bool, error) {
	s, err := a.session(ctx)
	if err != nil {
		return nil, Identity{}, false, err
	}
	switch s.State() {
	case session.StateFoundValid:
		if err := s.Start(ctx); err != nil {
			return s, Identity{}, false, err
		}
	case session.StateActive:
	default:
		return s, Identity{}, false, nil
	}

	var id Identity
	ok, err := s.Scan(ctx, IdentityKey, &id)
	switch {
	case errors.Is(err, ErrSessionNotActive):
		return s, Identity{}, false, nil
	case errors.Is(err, ErrUnavailable):
		return s, Identity{}, false, err
	case err != nil:
		a.e.log.Info("stored identity unreadable", "reason", err.Error())
		return s, Identity{}, false, nil
	}
	return s, id, ok, nil
}

// Authenticate verifies credentials and, on success, starts a new session
// holding the caller's [Identity]. remember selects the fixed
// RememberTimeout lifetime instead of the rolling timeout.
//
// Errors are returned only for store failures; wrong credentials and lockout
// are reported through [LoginResult].
func (a *Auth) Authenticate(ctx context.Context, identifier, secret string, remember bool) (LoginResult, error) {
	if a == nil || a.e == nil {
		return LoginResult{}, ErrEngineNotReady
	}
	if identifier == "" || secret == "" {
		return LoginResult{Status: LoginFailed}, nil
	}

	e := a.e
	ip := a.client.IP
	now := e.now()
	lockout := e.config.Lockout

	if lockout.Enabled() {
		la, found, err := e.attempts.GetLoginAttempt(ctx, ip)
		if err != nil {
			e.metricInc(MetricLockoutStoreError)
			e.log.Error(err, "reading login attempts failed", "ip", ip)
		} else if found && la.Attempts > lockout.MaxAttempts {
			if remaining := retryAfter(la.LastAttempt, lockout.Duration, now); remaining > 0 {
				e.metricInc(MetricLoginLockedOut)
				e.emitAudit(ctx, AuditLoginLockedOut, false, "", "", "", map[string]string{"identifier": identifier})
				return LoginResult{Status: LoginLockedOut, RetryAfter: remaining}, nil
			}
		}
	}

	principal, ok, err := e.userProvider.VerifyCredentials(ctx, identifier, secret)
	if err != nil {
		return LoginResult{}, err
	}
	if !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLoginFailure, false, "", "", "", map[string]string{"identifier": identifier})
		if !lockout.Enabled() {
			return LoginResult{Status: LoginFailed}, nil
		}
		la, err := e.attempts.SetLoginAttempt(ctx, ip, now)
		if err != nil {
			e.metricInc(MetricLockoutStoreError)
			e.log.Error(err, "recording login attempt failed", "ip", ip)
			return LoginResult{Status: LoginFailed}, nil
		}
		if la.Attempts > lockout.MaxAttempts {
			if remaining := retryAfter(la.LastAttempt, lockout.Duration, now); remaining > 0 {
				e.metricInc(MetricLoginLockedOut)
				return LoginResult{Status: LoginLockedOut, RetryAfter: remaining}, nil
			}
		}
		return LoginResult{Status: LoginFailed}, nil
	}

	if lockout.Enabled() {
		if err := e.attempts.ClearLoginAttempt(ctx, ip); err != nil {
			e.metricInc(MetricLockoutStoreError)
			e.log.Error(err, "clearing login attempts failed", "ip", ip)
		}
	}

	token, err := a.guard().SetToken(true)
	if err != nil {
		return LoginResult{}, errors.Join(ErrCSRFUnavailable, err)
	}

	// A login always gets a fresh session id.
	name := e.config.Session.CookieName
	if old, err := a.session(ctx); err != nil {
		return LoginResult{}, err
	} else if err := old.Destroy(ctx); err != nil {
		return LoginResult{}, err
	}
	delete(a.sessions, name)

	var timeout time.Duration
	if remember {
		timeout = e.config.Session.RememberTimeout
	}
	s, err := e.sessions.Open(ctx, a.jar, a.client, name, timeout)
	if err != nil {
		return LoginResult{}, err
	}
	a.sessions[name] = s
	if err := s.Start(ctx); err != nil {
		return LoginResult{}, err
	}

	perm := principal.Permission
	if principal.SuperUser {
		perm = permission.Super()
	}
	id := Identity{
		UserID:     principal.UserID,
		SuperUser:  principal.SuperUser,
		Permission: perm.Decimal(),
		CSRFToken:  token,
		IP:         ip,
	}
	if err := s.Set(ctx, IdentityKey, id); err != nil {
		return LoginResult{}, err
	}

	e.metricInc(MetricSessionCreated)
	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, AuditLoginSuccess, true, id.UserID, "", "", map[string]string{"remember": boolString(remember)})
	e.log.V(1).Info("login succeeded", "user", id.UserID, "ip", ip)

	return LoginResult{Status: LoginSucceeded}, nil
}

// Authorize reports whether the logged-in user may perform method on
// resource. A missing identity or a CSRF token that no longer matches the
// cookie destroys the session and the CSRF cookie before denying.
//
// Only store failures produce an error.
func (a *Auth) Authorize(ctx context.Context, resource, method string) (bool, error) {
	if a == nil || a.e == nil {
		return false, ErrEngineNotReady
	}
	e := a.e
	if e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricAuthorizeLatency, time.Since(start)) }()
	}
	if resource == "" || method == "" {
		e.metricInc(MetricAuthorizeDenied)
		return false, nil
	}

	_, id, ok, err := a.identity(ctx)
	if err != nil {
		return false, err
	}
	if !ok || id.CSRFToken == "" {
		return false, a.failClosed(ctx, id.UserID, resource, "no identity")
	}
	if !a.guard().IsValid(id.CSRFToken) {
		e.metricInc(MetricCSRFMismatch)
		e.emitAudit(ctx, AuditCSRFMismatch, false, id.UserID, resource, "", nil)
		return false, a.failClosed(ctx, id.UserID, resource, "csrf mismatch")
	}

	if id.SuperUser {
		e.metricInc(MetricAuthorizeAllowed)
		return true, nil
	}

	effective := id.PermissionValue()
	if e.permissions != nil && !effective.HasAll() {
		if rid, known := e.registry.ID(resource); known {
			grant, found, err := e.permissions.GetPermission(ctx, id.UserID, rid)
			if err != nil {
				return false, err
			}
			if found {
				effective.Merge(permission.New(grant))
			}
		}
	}

	allowed := effective.HasAll()
	if !allowed {
		if c, known := permission.CapabilityForMethod(method); known {
			allowed = effective.Has(c)
		}
	}

	if allowed {
		e.metricInc(MetricAuthorizeAllowed)
		return true, nil
	}
	e.metricInc(MetricAuthorizeDenied)
	e.emitAudit(ctx, AuditAuthorizeDenied, false, id.UserID, resource, "", map[string]string{"method": method})
	return false, nil
}

func (a *Auth) failClosed(ctx context.Context, userID, resource, reason string) error {
	a.e.metricInc(MetricAuthorizeDenied)
	a.e.emitAudit(ctx, AuditSessionInvalidated, false, userID, resource, reason, nil)
	return a.invalidate(ctx)
}

// UserData returns one field of the stored [Identity], or the whole identity
// as a map when field is empty. It reports false for anonymous requests and
// unknown fields.
func (a *Auth) UserData(ctx context.Context, field string) (any, bool, error) {
	_, id, ok, err := a.identity(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	m := id.toMap()
	if field == "" {
		return m, true, nil
	}
	v, ok := m[field]
	return v, ok, nil
}

// Invalidate logs the request out: the session is destroyed and the CSRF
// cookie expired. Calling it again is a no-op.
func (a *Auth) Invalidate(ctx context.Context) error {
	if a == nil || a.e == nil {
		return ErrEngineNotReady
	}
	s, ok := a.sessions[a.e.config.Session.CookieName]
	if ok && s.State() == session.StateDestroyed {
		a.guard().Invalidate()
		return nil
	}
	if err := a.invalidate(ctx); err != nil {
		return err
	}
	a.e.emitAudit(ctx, AuditLogout, true, "", "", "", nil)
	return nil
}

func (a *Auth) invalidate(ctx context.Context) error {
	a.guard().Invalidate()
	s, err := a.session(ctx)
	if err != nil {
		return err
	}
	persisted := s.State() == session.StateActive || s.State() == session.StateFoundValid
	if err := s.Destroy(ctx); err != nil {
		return err
	}
	if persisted {
		a.e.metricInc(MetricSessionDestroyed)
	}
	return nil
}

func retryAfter(last time.Time, lockout time.Duration, now time.Time) int64 {
	return last.Unix() + int64(lockout/time.Second) - now.Unix()
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
