package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/coreledger/authguard/alert"
)

// AlertStore implements alert.Store over the shared pool.
type AlertStore struct {
	db *sql.DB
}

// Insert appends one alert row.
func (s *AlertStore) Insert(ctx context.Context, a *alert.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		insert into security_alerts
			(id, user_id, type, severity, message, ip_address, device_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.UserID, a.Type, string(a.Severity), nullIfEmpty(a.Message),
		nullIfEmpty(a.IPAddress), nullIfEmpty(a.DeviceID), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", alert.ErrStoreUnavailable, err)
	}
	return nil
}

// ListUnread returns the user's unread alerts, oldest first.
func (s *AlertStore) ListUnread(ctx context.Context, userID string) ([]alert.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, type, severity, message, ip_address, device_id, created_at
		from security_alerts
		where user_id = $1 and read_at is null
		order by created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", alert.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []alert.Alert
	for rows.Next() {
		var (
			a         alert.Alert
			severity  string
			message   sql.NullString
			ipAddress sql.NullString
			deviceID  sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Type, &severity, &message,
			&ipAddress, &deviceID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", alert.ErrStoreUnavailable, err)
		}
		a.Severity = alert.Severity(severity)
		a.Message = message.String
		a.IPAddress = ipAddress.String
		a.DeviceID = deviceID.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", alert.ErrStoreUnavailable, err)
	}
	return out, nil
}

// MarkRead marks one unread alert read; the update is guarded on
// ownership, so a foreign user's id matches nothing.
func (s *AlertStore) MarkRead(ctx context.Context, alertID, userID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update security_alerts
		set read_at = $1
		where id = $2 and user_id = $3 and read_at is null
	`, at, alertID, userID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", alert.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", alert.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// MarkAllRead marks every unread alert of the user read.
func (s *AlertStore) MarkAllRead(ctx context.Context, userID string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		update security_alerts
		set read_at = $1
		where user_id = $2 and read_at is null
	`, at, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", alert.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", alert.ErrStoreUnavailable, err)
	}
	return int(n), nil
}
