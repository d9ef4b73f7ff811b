// Package audit records security-relevant events as structured log entries
// enriched with request and caller context.
package audit

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"gymgate.io/internal/auth"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// enrichment.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Logger writes audit events. It satisfies auth.AuditSink.
type Logger struct {
	lg *zap.SugaredLogger
}

func New(lg *zap.SugaredLogger) *Logger {
	return &Logger{lg: lg}
}

// Event emits one audit entry. The account performing the action is taken
// from the request context when present; events raised outside a request
// (reuse detection, cleanup) carry their subject in fields instead.
func (l *Logger) Event(ctx context.Context, event string, fields map[string]any) {
	kv := make([]any, 0, 2*(len(fields)+3))
	kv = append(kv, "audit", true, "event", event)
	if rid := requestIDFromContext(ctx); rid != "" {
		kv = append(kv, "request_id", rid)
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		kv = append(kv, "actor_id", id.AccountID)
	}
	for k, v := range fields {
		kv = append(kv, k, v)
	}
	l.lg.Infow("audit event", kv...)
}
