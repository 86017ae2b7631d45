package middleware

import (
	"context"
	"net/http"

	"github.com/go-logr/logr"

	"github.com/MrEthical07/cmsauth"
	"github.com/MrEthical07/cmsauth/cookie"
)

type authContextKey struct{}

// AuthFromContext returns the request-scoped Auth stored by [Authenticate].
func AuthFromContext(ctx context.Context) (*cmsauth.Auth, bool) {
	a, ok := ctx.Value(authContextKey{}).(*cmsauth.Auth)
	return a, ok && a != nil
}

type options struct {
	clientIP func(*http.Request) string
	log      logr.Logger
}

// Option configures the middleware constructors.
type Option func(*options)

// WithClientIPResolver replaces the default [RemoteIP] resolver.
func WithClientIPResolver(fn func(*http.Request) string) Option {
	return func(o *options) {
		if fn != nil {
			o.clientIP = fn
		}
	}
}

// WithTrustedProxyHeaders resolves the client through [ClientIP]. Only use it
// behind a proxy that overwrites X-Real-IP and X-Forwarded-For, since lockout
// and rate limits are keyed by the resolved address.
func WithTrustedProxyHeaders() Option {
	return WithClientIPResolver(ClientIP)
}

// WithLogger sets the logger for store failures.
func WithLogger(l logr.Logger) Option {
	return func(o *options) { o.log = l }
}

func buildOptions(opts []Option) options {
	o := options{clientIP: RemoteIP, log: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Authenticate binds a cmsauth.Auth for the request's cookies, client IP and
// user agent to the request context.
func Authenticate(engine *cmsauth.Engine, opts ...Option) func(http.Handler) http.Handler {
	o := buildOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := cmsauth.WithClientIP(r.Context(), o.clientIP(r))
			ctx = cmsauth.WithUserAgent(ctx, r.UserAgent())
			auth := engine.Request(ctx, cookie.HTTP(w, r))

			ctx = context.WithValue(ctx, authContextKey{}, auth)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
