package authguard

import (
	"context"
	"time"

	"github.com/coreledger/authguard/alert"
	"github.com/coreledger/authguard/attempt"
)

// attemptHistoryWindow bounds how far back account activity pages
// reach into the login attempt log.
const attemptHistoryWindow = 30 * 24 * time.Hour

// RaiseAlert records a security notification for userID. Component
// flows raise their own alerts; this is for callers layering custom
// detections on top of the engine.
func (e *Engine) RaiseAlert(ctx context.Context, userID, alertType, message string, severity alert.Severity) (*alert.Alert, error) {
	if e == nil || e.alerts == nil {
		return nil, ErrEngineNotReady
	}
	a, err := e.alerts.Raise(ctx, userID, alertType, message, severity,
		clientIPFromContext(ctx), deviceIDFromContext(ctx))
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricAlertRaised)
	return a, nil
}

// UnreadAlerts lists the user's unread alerts, oldest first.
func (e *Engine) UnreadAlerts(ctx context.Context, userID string) ([]alert.Alert, error) {
	if e == nil || e.alerts == nil {
		return nil, ErrEngineNotReady
	}
	return e.alerts.ListUnread(ctx, userID)
}

// MarkAlertRead acknowledges one alert. A foreign or already-read
// alert answers [alert.ErrAlertNotFound]; ownership probes learn
// nothing.
func (e *Engine) MarkAlertRead(ctx context.Context, alertID, userID string) error {
	if e == nil || e.alerts == nil {
		return ErrEngineNotReady
	}
	return e.alerts.MarkRead(ctx, alertID, userID)
}

// MarkAllAlertsRead acknowledges every unread alert for the user and
// reports how many were affected.
func (e *Engine) MarkAllAlertsRead(ctx context.Context, userID string) (int, error) {
	if e == nil || e.alerts == nil {
		return 0, ErrEngineNotReady
	}
	return e.alerts.MarkAllRead(ctx, userID)
}

// RecentLoginAttempts lists the identifier's recent login attempts,
// newest first, for account activity pages.
func (e *Engine) RecentLoginAttempts(ctx context.Context, identifier string, limit int) ([]attempt.Attempt, error) {
	if e == nil || e.attempts == nil {
		return nil, ErrEngineNotReady
	}
	return e.attempts.RecentAttempts(ctx, identifier, attemptHistoryWindow, limit)
}
