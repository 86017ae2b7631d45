package cmsauth

import (
	"context"
	"io"

	"github.com/MrEthical07/cmsauth/internal/audit"
)

// AuditEvent is one security-relevant occurrence recorded by the [Engine].
type AuditEvent = audit.Event

// AuditSink receives audit events from the dispatcher goroutine.
type AuditSink = audit.Sink

// NoOpSink discards events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers events in a channel, mostly for tests.
type ChannelSink = audit.ChannelSink

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink = audit.JSONWriterSink

// LogSink writes events through a logr.Logger.
type LogSink = audit.LogSink

// NewChannelSink returns a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink { return audit.NewChannelSink(buffer) }

// NewJSONWriterSink returns a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink { return audit.NewJSONWriterSink(w) }

const (
	AuditLoginSuccess       = "login_success"
	AuditLoginFailure       = "login_failure"
	AuditLoginLockedOut     = "login_locked_out"
	AuditAuthorizeDenied    = "authorize_denied"
	AuditCSRFMismatch       = "csrf_mismatch"
	AuditSessionInvalidated = "session_invalidated"
	AuditLogout             = "logout"
)

func (e *Engine) emitAudit(ctx context.Context, eventType string, success bool, userID, resource, errMsg string, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Emit(ctx, AuditEvent{
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Resource:  resource,
		Success:   success,
		Error:     errMsg,
		Metadata:  metadata,
	})
}
