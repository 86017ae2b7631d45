// Package cmsauth is the session and authentication core of a content
// management back office.
//
// An [Engine] is built once through [Builder] and shared. Each HTTP request
// gets an [Auth] from [Engine.Request]. That handle logs users in
// ([Auth.Authenticate]), checks per-resource permissions for an HTTP method
// ([Auth.Authorize]), reads the stored [Identity] ([Auth.UserData]) and logs
// out ([Auth.Invalidate]).
//
// Sessions are rows in a relational table addressed by a salted cookie hash
// and bound to the client's IP address and user agent. Their payload is
// encrypted with a key derived from the same salt. Every login also mints an
// anti-forgery token; a later request whose CSRF cookie no longer matches the
// token stored at login loses its session.
//
// # What this package must NOT do
//
//   - Trust a session that fails any check. Security failures deny and destroy
//     state; they are never returned as errors.
//   - Retry store writes. Store failures surface as [ErrUnavailable].
//   - Keep request state in the Engine.
package cmsauth
