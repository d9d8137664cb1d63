package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/coreledger/authguard/device"
)

// DeviceStore implements device.Store over the shared pool.
type DeviceStore struct {
	db *sql.DB
}

// Upsert inserts or replaces the grant for (userID, deviceID).
func (s *DeviceStore) Upsert(ctx context.Context, dev *device.Device) error {
	_, err := s.db.ExecContext(ctx, `
		insert into trusted_devices
			(user_id, device_id, device_name, fingerprint, user_agent,
			 ip_address, trusted_at, last_used_at, expires_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		on conflict (user_id, device_id) do update
		set device_name = excluded.device_name,
		    fingerprint = excluded.fingerprint,
		    user_agent = excluded.user_agent,
		    ip_address = excluded.ip_address,
		    trusted_at = excluded.trusted_at,
		    last_used_at = excluded.last_used_at,
		    expires_at = excluded.expires_at
	`, dev.UserID, dev.DeviceID, nullIfEmpty(dev.DeviceName), nullIfEmpty(dev.Fingerprint),
		nullIfEmpty(dev.UserAgent), nullIfEmpty(dev.IPAddress),
		dev.TrustedAt, dev.LastUsedAt, nullTime(dev.ExpiresAt))
	if err != nil {
		return fmt.Errorf("%w: %v", device.ErrStoreUnavailable, err)
	}
	return nil
}

// Find loads the grant for (userID, deviceID).
func (s *DeviceStore) Find(ctx context.Context, userID, deviceID string) (*device.Device, error) {
	var (
		dev         device.Device
		name        sql.NullString
		fingerprint sql.NullString
		userAgent   sql.NullString
		ipAddress   sql.NullString
		expires     sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select user_id, device_id, device_name, fingerprint, user_agent,
		       ip_address, trusted_at, last_used_at, expires_at
		from trusted_devices
		where user_id = $1 and device_id = $2
	`, userID, deviceID).Scan(&dev.UserID, &dev.DeviceID, &name, &fingerprint,
		&userAgent, &ipAddress, &dev.TrustedAt, &dev.LastUsedAt, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, device.ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", device.ErrStoreUnavailable, err)
	}
	dev.DeviceName = name.String
	dev.Fingerprint = fingerprint.String
	dev.UserAgent = userAgent.String
	dev.IPAddress = ipAddress.String
	if expires.Valid {
		t := expires.Time
		dev.ExpiresAt = &t
	}
	return &dev, nil
}

// Delete removes the grant, reporting whether a row existed.
func (s *DeviceStore) Delete(ctx context.Context, userID, deviceID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from trusted_devices where user_id = $1 and device_id = $2`,
		userID, deviceID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", device.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", device.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// DeleteAllForUserExcept removes every grant of the user but keepDeviceID.
func (s *DeviceStore) DeleteAllForUserExcept(ctx context.Context, userID, keepDeviceID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from trusted_devices where user_id = $1 and device_id <> $2`,
		userID, keepDeviceID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", device.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", device.ErrStoreUnavailable, err)
	}
	return int(n), nil
}

// Touch updates last_used_at, reporting whether the grant exists.
func (s *DeviceStore) Touch(ctx context.Context, userID, deviceID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update trusted_devices set last_used_at = $1 where user_id = $2 and device_id = $3`,
		at, userID, deviceID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", device.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", device.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// DeleteExpired removes grants past expiry.
func (s *DeviceStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from trusted_devices where expires_at is not null and expires_at <= $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", device.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", device.ErrStoreUnavailable, err)
	}
	return int(n), nil
}
