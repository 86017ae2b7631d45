// Package rate provides a Redis-backed fixed-window request limiter.
//
// # Window semantics
//
// INCR plus EXPIRE on the first hit of a window. Keys default to the
// cmsauth:rl: prefix followed by the caller's key, usually a client IP.
//
// # What this package must NOT do
//
//   - Decide what to do with a denied request. The HTTP middleware does.
package rate
