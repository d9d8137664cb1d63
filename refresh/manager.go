// Package refresh manages long-lived opaque session tokens: issuance,
// rotation, revocation and expiry purging. Access tokens stay
// stateless; every revocation-sensitive decision happens here.
package refresh

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const tokenSecretBytes = 32

// ReasonRotated is written on the old record by every rotation.
const ReasonRotated = "rotated"

// Config holds refresh token parameters.
type Config struct {
	TTL time.Duration // default 30 days
}

func (c *Config) applyDefaults() {
	if c.TTL <= 0 {
		c.TTL = 30 * 24 * time.Hour
	}
}

// Manager issues and rotates opaque refresh tokens over a [Store].
// Exactly one active token represents a continuing session: rotation
// revokes the presented token and mints its successor atomically.
type Manager struct {
	store  Store
	config Config
	now    func() time.Time
}

// NewManager creates a Manager over store.
func NewManager(store Store, cfg Config) (*Manager, error) {
	if store == nil {
		return nil, errors.New("refresh token store is required")
	}
	cfg.applyDefaults()
	return &Manager{store: store, config: cfg, now: time.Now}, nil
}

// Issue mints a new opaque token for userID and persists its hash.
// The raw token is returned once and cannot be recovered later.
func (m *Manager) Issue(ctx context.Context, userID, deviceID string) (string, *Record, error) {
	if userID == "" {
		return "", nil, errors.New("user id is required")
	}
	token, err := newTokenSecret()
	if err != nil {
		return "", nil, err
	}
	now := m.now()
	rec := &Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		DeviceID:  deviceID,
		TokenHash: HashToken(token),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.config.TTL),
	}
	if err := m.store.Insert(ctx, rec); err != nil {
		return "", nil, err
	}
	return token, rec, nil
}

// Validate resolves a raw token to its active record, classifying
// dead tokens as [ErrTokenNotFound], [ErrTokenRevoked] or
// [ErrTokenExpired].
func (m *Manager) Validate(ctx context.Context, token string) (*Record, error) {
	rec, err := m.Inspect(ctx, token)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Inspect resolves a raw token to its record regardless of state,
// alongside the classification Validate would give. Callers use it to
// attribute reuse of a dead token to its owner.
func (m *Manager) Inspect(ctx context.Context, token string) (*Record, error) {
	rec, err := m.store.FindByHash(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}
	if rec.RevokedAt != nil {
		return rec, ErrTokenRevoked
	}
	if !m.now().Before(rec.ExpiresAt) {
		return rec, ErrTokenExpired
	}
	return rec, nil
}

// Rotate revokes the presented token and issues its successor in one
// atomic operation. A second rotation of the same token fails with
// [ErrTokenRevoked]; a token past expiry fails with [ErrTokenExpired]
// and is never exchanged.
func (m *Manager) Rotate(ctx context.Context, token, clientIP string) (string, *Record, error) {
	old, err := m.Validate(ctx, token)
	if err != nil {
		return "", nil, err
	}

	next, err := newTokenSecret()
	if err != nil {
		return "", nil, err
	}
	now := m.now()
	rec := &Record{
		ID:        uuid.NewString(),
		UserID:    old.UserID,
		DeviceID:  old.DeviceID,
		TokenHash: HashToken(next),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.config.TTL),
	}
	rev := Revocation{At: now, ByIP: clientIP, Reason: ReasonRotated}
	if err := m.store.Rotate(ctx, old.ID, rev, rec); err != nil {
		// A concurrent rotation of the same token got there first.
		return "", nil, err
	}
	return next, rec, nil
}

// Revoke revokes a single token. Revoking an already-dead token
// reports the same classification Validate would.
func (m *Manager) Revoke(ctx context.Context, token, byIP, reason string) error {
	rec, err := m.Validate(ctx, token)
	if err != nil {
		return err
	}
	return m.store.Revoke(ctx, rec.ID, Revocation{At: m.now(), ByIP: byIP, Reason: reason})
}

// RevokeAllForUser revokes every active token the user holds in a
// single atomic batch. Invoked on password change, "log out
// everywhere", or a high-severity alert.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID, byIP, reason string) (int, error) {
	if userID == "" {
		return 0, errors.New("user id is required")
	}
	return m.store.RevokeAllForUser(ctx, userID, Revocation{At: m.now(), ByIP: byIP, Reason: reason})
}

// RevokeAllExceptCurrent revokes every active token the user holds
// except the one presented, which must itself still be active.
func (m *Manager) RevokeAllExceptCurrent(ctx context.Context, userID, currentToken, byIP, reason string) (int, error) {
	cur, err := m.Validate(ctx, currentToken)
	if err != nil {
		return 0, err
	}
	if cur.UserID != userID {
		return 0, ErrTokenNotFound
	}
	return m.store.RevokeAllForUserExcept(ctx, userID, cur.ID,
		Revocation{At: m.now(), ByIP: byIP, Reason: reason})
}

// PurgeExpired deletes every record past expiry and reports how many
// were removed. Safe to run concurrently with live traffic.
func (m *Manager) PurgeExpired(ctx context.Context) (int, error) {
	return m.store.DeleteExpired(ctx, m.now())
}

func newTokenSecret() (string, error) {
	buf := make([]byte, tokenSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
