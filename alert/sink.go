// Package alert records and exposes security-relevant events to the
// affected user. The store is append plus read-mutate only; "read" is
// the single mutation an alert ever sees.
package alert

import (
	"context"
	"errors"
	"time"

	"github.com/coreledger/authguard/internal/ids"
)

// Severity orders alerts for display and escalation.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert types raised by the engine. Callers may raise their own.
const (
	TypeAccountLocked       = "account_locked"
	TypeNewDeviceTrusted    = "new_device_trusted"
	TypeDeviceRevoked       = "device_revoked"
	TypeAllSessionsRevoked  = "all_sessions_revoked"
	TypeTokenReuse          = "refresh_token_reuse"
	TypeRepeatedMfaFailure  = "repeated_mfa_failure"
	TypeSuspiciousLogin     = "suspicious_login"
	TypeBackupCodesConsumed = "backup_codes_low"
)

var (
	// ErrAlertNotFound reports an alert id that does not exist for
	// the given user. A foreign user's alert id answers the same, so
	// ids leak no ownership information.
	ErrAlertNotFound = errors.New("security alert not found")

	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("security alert store unavailable")
)

// Alert is one recorded security event.
type Alert struct {
	ID        string
	UserID    string
	Type      string
	Severity  Severity
	Message   string
	IPAddress string
	DeviceID  string
	CreatedAt time.Time
	ReadAt    *time.Time
}

// Store persists alerts. MarkRead reports false when the (id, user)
// pair matches no unread alert.
type Store interface {
	Insert(ctx context.Context, a *Alert) error
	ListUnread(ctx context.Context, userID string) ([]Alert, error)
	MarkRead(ctx context.Context, alertID, userID string, at time.Time) (bool, error)
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error)
}

// Sink is the terminal destination for security events. Ownership is
// enforced on every read and mutation: a user only ever sees their
// own alerts.
type Sink struct {
	store Store
	now   func() time.Time
}

// NewSink creates a Sink over store.
func NewSink(store Store) (*Sink, error) {
	if store == nil {
		return nil, errors.New("alert store is required")
	}
	return &Sink{store: store, now: time.Now}, nil
}

// Raise appends one alert for userID and returns it.
func (s *Sink) Raise(ctx context.Context, userID, alertType, message string, severity Severity, ipAddress, deviceID string) (*Alert, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if severity == "" {
		severity = SeverityInfo
	}
	a := &Alert{
		ID:        ids.New(),
		UserID:    userID,
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		IPAddress: ipAddress,
		DeviceID:  deviceID,
		CreatedAt: s.now(),
	}
	if err := s.store.Insert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListUnread returns the user's unread alerts, oldest first.
func (s *Sink) ListUnread(ctx context.Context, userID string) ([]Alert, error) {
	return s.store.ListUnread(ctx, userID)
}

// MarkRead marks one alert read. The alert must belong to userID and
// still be unread; anything else answers [ErrAlertNotFound].
func (s *Sink) MarkRead(ctx context.Context, alertID, userID string) error {
	ok, err := s.store.MarkRead(ctx, alertID, userID, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrAlertNotFound
	}
	return nil
}

// MarkAllRead marks every unread alert of userID read and reports how
// many changed.
func (s *Sink) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.store.MarkAllRead(ctx, userID, s.now())
}
