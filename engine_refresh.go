package authguard

import (
	"context"
	"errors"
	"strconv"

	"github.com/coreledger/authguard/alert"
	"github.com/coreledger/authguard/internal/audit"
	"github.com/coreledger/authguard/refresh"
)

// IssueRefreshToken mints an opaque refresh token for userID, bound
// to the device id on the context when present. The plaintext token
// appears only in the return value; the store keeps its hash.
func (e *Engine) IssueRefreshToken(ctx context.Context, userID string) (string, *refresh.Record, error) {
	if e == nil || e.refresh == nil {
		return "", nil, ErrEngineNotReady
	}
	deviceID := deviceIDFromContext(ctx)

	tok, record, err := e.refresh.Issue(ctx, userID, deviceID)
	if err != nil {
		return "", nil, err
	}

	e.metricInc(MetricRefreshIssued)
	e.emit(ctx, AuditEvent{
		EventType: audit.EventTokenIssued,
		UserID:    userID,
		DeviceID:  deviceID,
		IP:        clientIPFromContext(ctx),
		Success:   true,
		Metadata:  map[string]string{"token_id": record.ID},
	})
	return tok, record, nil
}

// ValidateRefreshToken resolves a presented refresh token to its live
// record without consuming it.
func (e *Engine) ValidateRefreshToken(ctx context.Context, token string) (*refresh.Record, error) {
	if e == nil || e.refresh == nil {
		return nil, ErrEngineNotReady
	}
	return e.refresh.Validate(ctx, token)
}

// RotateRefreshToken exchanges a live refresh token for its
// successor, revoking the old one in the same step so concurrent
// exchanges produce exactly one winner. Presenting an
// already-revoked token is treated as theft evidence: the owner gets
// a critical alert and the attempt is logged, then the rotation
// fails with [ErrTokenRevoked].
func (e *Engine) RotateRefreshToken(ctx context.Context, token string) (string, *refresh.Record, error) {
	if e == nil || e.refresh == nil {
		return "", nil, ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)

	next, record, err := e.refresh.Rotate(ctx, token, ip)
	if err != nil {
		if errors.Is(err, refresh.ErrTokenRevoked) {
			e.onTokenReuse(ctx, token, ip)
		}
		return "", nil, err
	}

	e.metricInc(MetricRefreshRotated)
	e.emit(ctx, AuditEvent{
		EventType: audit.EventTokenRotated,
		UserID:    record.UserID,
		DeviceID:  record.DeviceID,
		IP:        ip,
		Success:   true,
		Metadata:  map[string]string{"token_id": record.ID},
	})
	return next, record, nil
}

// RevokeRefreshToken revokes a single token, typically on logout.
func (e *Engine) RevokeRefreshToken(ctx context.Context, token, reason string) error {
	if e == nil || e.refresh == nil {
		return ErrEngineNotReady
	}
	return e.refresh.Revoke(ctx, token, clientIPFromContext(ctx), reason)
}

// LogoutEverywhere revokes every live refresh token the user holds
// and tells them it happened. This is the kill switch for a
// compromised account.
func (e *Engine) LogoutEverywhere(ctx context.Context, userID, reason string) (int, error) {
	if e == nil || e.refresh == nil {
		return 0, ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)

	n, err := e.refresh.RevokeAllForUser(ctx, userID, ip, reason)
	if err != nil {
		return 0, err
	}

	e.metricInc(MetricSessionsRevoked)
	if e.alerts != nil {
		_, _ = e.alerts.Raise(ctx, userID, alert.TypeAllSessionsRevoked,
			"all sessions were signed out",
			alert.SeverityWarning, ip, deviceIDFromContext(ctx))
		e.metricInc(MetricAlertRaised)
	}
	e.emit(ctx, AuditEvent{
		EventType: audit.EventSessionsRevoked,
		UserID:    userID,
		IP:        ip,
		Success:   true,
		Metadata:  map[string]string{"revoked": strconv.Itoa(n), "reason": reason},
	})
	return n, nil
}

// LogoutOtherSessions revokes every live refresh token except the one
// presented, keeping the caller's own session alive.
func (e *Engine) LogoutOtherSessions(ctx context.Context, userID, currentToken string) (int, error) {
	if e == nil || e.refresh == nil {
		return 0, ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)

	n, err := e.refresh.RevokeAllExceptCurrent(ctx, userID, currentToken, ip, "other sessions signed out")
	if err != nil {
		return 0, err
	}

	e.metricInc(MetricSessionsRevoked)
	e.emit(ctx, AuditEvent{
		EventType: audit.EventSessionsRevoked,
		UserID:    userID,
		IP:        ip,
		Success:   true,
		Metadata:  map[string]string{"revoked": strconv.Itoa(n), "kept": "current"},
	})
	return n, nil
}

// onTokenReuse attributes a revoked-token presentation to its owner
// and raises the theft alert.
func (e *Engine) onTokenReuse(ctx context.Context, token, ip string) {
	e.metricInc(MetricRefreshReuseDetected)

	// Inspect classifies a dead token with an error but still hands
	// back the record; attribution only needs the record.
	record, _ := e.refresh.Inspect(ctx, token)
	if record == nil {
		return
	}
	if e.alerts != nil {
		_, _ = e.alerts.Raise(ctx, record.UserID, alert.TypeTokenReuse,
			"a revoked refresh token was presented; the session may be stolen",
			alert.SeverityCritical, ip, record.DeviceID)
		e.metricInc(MetricAlertRaised)
	}
	e.emit(ctx, AuditEvent{
		EventType: audit.EventTokenReuse,
		UserID:    record.UserID,
		DeviceID:  record.DeviceID,
		IP:        ip,
		Metadata:  map[string]string{"token_id": record.ID},
	})
}
