// Package limiters holds Redis-backed login throttling state.
//
// [LoginAttempts] implements cmsauth.AttemptStore for deployments that run
// several application servers in front of one session database and want the
// failure counters out of SQL.
//
// # What this package must NOT do
//
//   - Decide lockout. The engine compares counters against its configuration.
package limiters
