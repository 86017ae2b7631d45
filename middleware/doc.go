// Package middleware adapts cmsauth to net/http.
//
// [Authenticate] resolves the client address, binds a request-scoped
// cmsauth.Auth to the request context and must run first. [Guard] maps the
// request method to a capability on one resource. [RequireCSRF] checks the
// echoed anti-forgery token on state-changing requests. [RateLimit] throttles
// by client IP through any [Limiter].
//
// This package translates HTTP semantics into Auth calls. Authentication and
// authorization decisions stay in the engine.
package middleware
