package refresh

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"
)

var (
	// ErrTokenNotFound reports a token with no stored record. A
	// purged token is indistinguishable from one that never existed.
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrTokenRevoked reports a token that was explicitly revoked or
	// already rotated. Presenting one is a reuse signal.
	ErrTokenRevoked = errors.New("refresh token revoked")

	// ErrTokenExpired reports a token past its expiry.
	ErrTokenExpired = errors.New("refresh token expired")

	// ErrStoreUnavailable wraps backend failures.
	ErrStoreUnavailable = errors.New("refresh token store unavailable")
)

// Record is one persisted refresh token row. The token secret itself
// is never stored, only its SHA-256 hash.
type Record struct {
	ID           string
	UserID       string
	DeviceID     string
	TokenHash    [32]byte
	IssuedAt     time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	RevokedByIP  string
	RevokeReason string
	ReplacedBy   string // id of the successor minted by rotation
}

// Active reports whether the record represents a continuing session.
func (r *Record) Active(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// Revocation carries the audit fields written when a token is revoked.
type Revocation struct {
	At     time.Time
	ByIP   string
	Reason string
}

// Store persists refresh token records.
//
// Rotate revokes the old record and inserts its successor in one
// atomic operation; it must return [ErrTokenRevoked] when the old
// record was already revoked, so exactly one of two concurrent
// rotations of the same token wins. The RevokeAll* batches are
// all-or-nothing.
type Store interface {
	Insert(ctx context.Context, rec *Record) error
	FindByHash(ctx context.Context, hash [32]byte) (*Record, error)
	Rotate(ctx context.Context, oldID string, rev Revocation, next *Record) error
	Revoke(ctx context.Context, id string, rev Revocation) error
	RevokeAllForUser(ctx context.Context, userID string, rev Revocation) (int, error)
	RevokeAllForUserExcept(ctx context.Context, userID, keepID string, rev Revocation) (int, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// HashToken derives the stored lookup hash for a raw token string.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}
