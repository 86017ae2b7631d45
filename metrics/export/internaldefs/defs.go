package internaldefs

import (
	"github.com/MrEthical07/cmsauth"
)

// CounterDef binds a counter id to its exported name.
type CounterDef struct {
	ID   cmsauth.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram id to its exported name.
type HistogramDef struct {
	ID   cmsauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: cmsauth.MetricLoginSuccess, Name: "cmsauth_login_success_total", Help: "Logins that opened a session."},
	{ID: cmsauth.MetricLoginFailure, Name: "cmsauth_login_failure_total", Help: "Rejected login attempts."},
	{ID: cmsauth.MetricLoginLockedOut, Name: "cmsauth_login_locked_out_total", Help: "Login attempts refused by the per-IP lockout."},
	{ID: cmsauth.MetricAuthorizeAllowed, Name: "cmsauth_authorize_allowed_total", Help: "Authorization checks that passed."},
	{ID: cmsauth.MetricAuthorizeDenied, Name: "cmsauth_authorize_denied_total", Help: "Authorization checks that failed."},
	{ID: cmsauth.MetricCSRFMismatch, Name: "cmsauth_csrf_mismatch_total", Help: "Requests rejected for a CSRF token mismatch."},
	{ID: cmsauth.MetricSessionCreated, Name: "cmsauth_session_created_total", Help: "Sessions written to the store."},
	{ID: cmsauth.MetricSessionDestroyed, Name: "cmsauth_session_destroyed_total", Help: "Sessions destroyed by logout or failed checks."},
	{ID: cmsauth.MetricSessionsSwept, Name: "cmsauth_sessions_swept_total", Help: "Expired session rows removed by garbage collection."},
	{ID: cmsauth.MetricLockoutStoreError, Name: "cmsauth_lockout_store_error_total", Help: "Failed login-attempt store operations."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: cmsauth.MetricAuthorizeLatency, Name: "cmsauth_authorize_latency_seconds", Help: "Authorization check latency."},
}

// HistogramUpperBounds holds the bucket upper bounds in seconds, excluding +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// AuditDroppedName names the counter of events lost to dispatcher backpressure.
const AuditDroppedName = "cmsauth_audit_dropped_total"

// NormalizeBuckets copies raw into a fixed eight-bucket array.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
