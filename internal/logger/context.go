package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	Procedure string    // operation name (ClaimTask, StartUpload, etc.)
	TenantID  string    // tenant the operation is scoped to
	TaskID    string    // task id, when the context is task-scoped
	SessionID string    // upload session id, when the context is upload-scoped
	MediaID   string    // media id, when the context is media-scoped
	StartTime time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext scoped to a tenant.
func NewLogContext(tenantID string) *LogContext {
	return &LogContext{
		TenantID:  tenantID,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		Procedure: lc.Procedure,
		TenantID:  lc.TenantID,
		TaskID:    lc.TaskID,
		SessionID: lc.SessionID,
		MediaID:   lc.MediaID,
		StartTime: lc.StartTime,
	}
}

// WithProcedure returns a copy with the procedure set
func (lc *LogContext) WithProcedure(procedure string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Procedure = procedure
	}
	return clone
}

// WithTask returns a copy with the task id set
func (lc *LogContext) WithTask(taskID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TaskID = taskID
	}
	return clone
}

// WithSession returns a copy with the upload session id set
func (lc *LogContext) WithSession(sessionID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.SessionID = sessionID
	}
	return clone
}

// WithMedia returns a copy with the media id set
func (lc *LogContext) WithMedia(mediaID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.MediaID = mediaID
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
