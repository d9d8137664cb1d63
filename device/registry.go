// Package device tracks devices whose users may skip MFA challenges.
// Trust is granted per (user, device) pair and never crosses users,
// even when fingerprints collide.
package device

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDeviceNotFound reports a (user, device) pair with no trust
	// record.
	ErrDeviceNotFound = errors.New("trusted device not found")

	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("trusted device store unavailable")
)

// Device is one trust grant.
type Device struct {
	UserID      string
	DeviceID    string
	DeviceName  string
	Fingerprint string
	UserAgent   string
	IPAddress   string
	TrustedAt   time.Time
	LastUsedAt  time.Time
	ExpiresAt   *time.Time // nil means trust does not lapse by time
}

// Metadata carries the caller-supplied fields of a new trust grant.
type Metadata struct {
	DeviceName  string
	Fingerprint string
	UserAgent   string
	IPAddress   string
}

// Store persists trust grants keyed by (userID, deviceID).
type Store interface {
	Upsert(ctx context.Context, dev *Device) error
	Find(ctx context.Context, userID, deviceID string) (*Device, error)
	Delete(ctx context.Context, userID, deviceID string) (bool, error)
	DeleteAllForUserExcept(ctx context.Context, userID, keepDeviceID string) (int, error)
	Touch(ctx context.Context, userID, deviceID string, at time.Time) (bool, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// Config holds registry parameters.
type Config struct {
	TrustTTL time.Duration // 0 means grants never expire by time
}

// Registry answers and mutates device trust. It is consulted before
// issuing an MFA challenge; a trusted, non-expired device bypasses the
// challenge entirely.
type Registry struct {
	store  Store
	config Config
	now    func() time.Time
}

// NewRegistry creates a Registry over store.
func NewRegistry(store Store, cfg Config) (*Registry, error) {
	if store == nil {
		return nil, errors.New("trusted device store is required")
	}
	return &Registry{store: store, config: cfg, now: time.Now}, nil
}

// IsTrusted reports whether deviceID is currently trusted for userID.
// Unknown and expired grants both answer false; expired rows are left
// for the purge loop.
func (r *Registry) IsTrusted(ctx context.Context, userID, deviceID string) (bool, error) {
	if userID == "" || deviceID == "" {
		return false, nil
	}
	dev, err := r.store.Find(ctx, userID, deviceID)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return false, nil
		}
		return false, err
	}
	if dev.ExpiresAt != nil && !r.now().Before(*dev.ExpiresAt) {
		return false, nil
	}
	return true, nil
}

// Trust registers (or refreshes) a grant for the pair. Re-trusting an
// already-trusted device replaces its metadata and restarts the TTL.
func (r *Registry) Trust(ctx context.Context, userID, deviceID string, meta Metadata) (*Device, error) {
	if userID == "" || deviceID == "" {
		return nil, errors.New("user id and device id are required")
	}
	now := r.now()
	dev := &Device{
		UserID:      userID,
		DeviceID:    deviceID,
		DeviceName:  meta.DeviceName,
		Fingerprint: meta.Fingerprint,
		UserAgent:   meta.UserAgent,
		IPAddress:   meta.IPAddress,
		TrustedAt:   now,
		LastUsedAt:  now,
	}
	if r.config.TrustTTL > 0 {
		exp := now.Add(r.config.TrustTTL)
		dev.ExpiresAt = &exp
	}
	if err := r.store.Upsert(ctx, dev); err != nil {
		return nil, err
	}
	return dev, nil
}

// Revoke removes a grant immediately. There is no undo.
func (r *Registry) Revoke(ctx context.Context, userID, deviceID string) error {
	deleted, err := r.store.Delete(ctx, userID, deviceID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrDeviceNotFound
	}
	return nil
}

// RevokeAllExceptCurrent removes every grant the user holds except
// currentDeviceID and reports how many were removed.
func (r *Registry) RevokeAllExceptCurrent(ctx context.Context, userID, currentDeviceID string) (int, error) {
	if userID == "" {
		return 0, errors.New("user id is required")
	}
	return r.store.DeleteAllForUserExcept(ctx, userID, currentDeviceID)
}

// Touch updates the grant's lastUsedAt. Touching an unknown pair is
// not an error; the device may have been revoked concurrently.
func (r *Registry) Touch(ctx context.Context, userID, deviceID string) error {
	_, err := r.store.Touch(ctx, userID, deviceID, r.now())
	return err
}

// PurgeExpired deletes lapsed grants and reports how many were
// removed.
func (r *Registry) PurgeExpired(ctx context.Context) (int, error) {
	return r.store.DeleteExpired(ctx, r.now())
}
