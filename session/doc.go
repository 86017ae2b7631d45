// Package session provides database-backed sessions addressed by an opaque
// cookie, with the payload encrypted at rest.
//
// # Lifecycle
//
// [Manager.Open] resolves one session per request and cookie name:
//
//	UNINITIALIZED -> FOUND_VALID            valid cookie, same IP and user agent
//	UNINITIALIZED -> PENDING                anything else; nothing written yet
//	PENDING | FOUND_VALID -> ACTIVE         Session.Start
//	ACTIVE -> DESTROYED                     Session.Destroy
//
// Only ACTIVE sessions accept data operations. A rolling session refreshes its
// last activity on every read and write under a table lock; a fixed session
// expires at an absolute time regardless of activity.
//
// # Cookie value
//
// The browser only ever sees md5(session_id || salt). Lookups compute that
// expression inside the database, so the primary key cannot be derived from a
// stolen cookie.
//
// # Architecture boundaries
//
// This package owns the sessions table and the payload [Codec]. It does NOT
// know about users, permissions, or CSRF tokens; those live in the payload and
// belong to the caller.
//
// # What this package must NOT do
//
//   - Import cmsauth, csrf, or permission (no upward imports).
//   - Store payloads in cleartext.
//   - Return decryption failures to callers; corrupt payloads read as empty.
package session
