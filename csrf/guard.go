// Package csrf binds one anti-forgery token to a browser cookie.
//
// A [Guard] is request scoped. Callers keep one guard per cookie name per
// request; the token value itself lives in the cookie so that it survives
// across requests in the same browser session.
package csrf

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-logr/logr"

	"github.com/MrEthical07/cmsauth/cookie"
	"github.com/MrEthical07/cmsauth/internal"
)

// TokenBytes is the amount of randomness in a token; the hex form is twice as long.
const TokenBytes = 16

var tokenShape = regexp.MustCompile(`^[0-9a-f]{32}$`)

// ErrTokenGeneration is returned when no random source could produce a token.
var ErrTokenGeneration = errors.New("csrf token generation failed")

// Guard manages the token stored in a single cookie.
type Guard struct {
	jar      cookie.Jar
	name     string
	opts     cookie.Options
	sources  []internal.RandomSource
	insecure internal.RandomSource
	log      logr.Logger

	token string
}

// Option configures a [Guard].
type Option func(*Guard)

// WithCookieOptions sets the attributes of the token cookie.
func WithCookieOptions(o cookie.Options) Option {
	return func(g *Guard) { g.opts = o }
}

// WithLogger sets the logger used to report a degraded random source.
func WithLogger(l logr.Logger) Option {
	return func(g *Guard) { g.log = l }
}

// WithRandomSources replaces the secure source chain and the last-resort
// insecure source. Passing a nil insecure source makes generation fail instead
// of degrading.
func WithRandomSources(secure []internal.RandomSource, insecure internal.RandomSource) Option {
	return func(g *Guard) {
		g.sources = secure
		g.insecure = insecure
	}
}

// New creates a guard for the named cookie.
func New(jar cookie.Jar, name string, opts ...Option) *Guard {
	g := &Guard{
		jar:      jar,
		name:     name,
		opts:     cookie.Options{Path: "/", HTTPOnly: true},
		sources:  internal.DefaultSources,
		insecure: internal.InsecureSource,
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the cookie name the guard is bound to.
func (g *Guard) Name() string {
	return g.name
}

// SetToken ensures a token cookie exists and returns its value. A well-formed
// existing cookie is reused unless replace is true.
func (g *Guard) SetToken(replace bool) (string, error) {
	if !replace {
		if v, ok := g.jar.Get(g.name); ok && tokenShape.MatchString(v) {
			g.token = v
			return v, nil
		}
	}

	var raw [TokenBytes]byte
	degraded, err := internal.ReadRandom(raw[:], g.sources, g.insecure)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	if degraded {
		g.log.Info("csrf token generated from insecure random source", "cookie", g.name)
	}

	token := hex.EncodeToString(raw[:])
	g.jar.Set(g.opts.New(g.name, token, time.Time{}))
	g.token = token
	return token, nil
}

// Token returns the current cookie token, or "" when none is set.
func (g *Guard) Token() string {
	if g.token != "" {
		return g.token
	}
	v, _ := g.jar.Get(g.name)
	return v
}

// IsValid reports whether token equals the cookie value. Missing cookies and
// empty tokens are invalid. The comparison runs in constant time.
func (g *Guard) IsValid(token string) bool {
	if token == "" {
		return false
	}
	current, ok := g.jar.Get(g.name)
	if !ok || current == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(current), []byte(token)) == 1
}

// Invalidate expires the cookie and forgets the cached token.
func (g *Guard) Invalidate() {
	g.jar.Set(g.opts.Expired(g.name))
	g.token = ""
}
