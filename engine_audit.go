package authguard

import (
	"context"
	"time"
)

func (e *Engine) emit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.audit.Emit(ctx, event)
}

// Audited wraps an operation so that its outcome is emitted as an
// audit event, success or failure, without the operation having to
// know about the sink. The wrapped error passes through unchanged.
func (e *Engine) Audited(eventType, userID string, op func(ctx context.Context) error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		err := op(ctx)
		event := AuditEvent{
			EventType: eventType,
			UserID:    userID,
			IP:        clientIPFromContext(ctx),
			DeviceID:  deviceIDFromContext(ctx),
			Success:   err == nil,
		}
		if err != nil {
			event.Error = err.Error()
		}
		e.emit(ctx, event)
		return err
	}
}
