// Package internal contains helper utilities that are intentionally private to cmsauth,
// chiefly the secure-first random source chain used by csrf tokens and session ids.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - limiters: Redis-backed login attempt counters
//   - rate: Redis fixed-window request limiter
//   - security: configuration posture report
//
// # What this package must NOT do
//
//   - Export types that appear in the public cmsauth API.
//   - Be imported by any package outside the cmsauth module.
package internal
