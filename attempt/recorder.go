// Package attempt keeps the append-only login attempt log. Rows are
// never mutated; failure counts are read over sliding windows to feed
// anomaly detection alongside the lockout guard's live counters.
package attempt

import (
	"context"
	"errors"
	"time"

	"github.com/coreledger/authguard/internal/ids"
)

// ErrStoreUnavailable wraps backend failures.
var ErrStoreUnavailable = errors.New("login attempt store unavailable")

// Methods an attempt can arrive through.
const (
	MethodPassword   = "password"
	MethodMfaCode    = "mfa_code"
	MethodBackupCode = "backup_code"
	MethodRefresh    = "refresh_token"
)

// Attempt is one immutable login attempt row. Identifier is the
// username or user id the attempt targeted.
type Attempt struct {
	ID            string
	Identifier    string
	IPAddress     string
	Method        string
	Success       bool
	FailureReason string
	At            time.Time
}

// Store persists attempts. Insert only appends; nothing updates or
// deletes rows.
type Store interface {
	Insert(ctx context.Context, a *Attempt) error
	CountFailuresSince(ctx context.Context, identifier string, since time.Time) (int, error)
	ListRecent(ctx context.Context, identifier string, since time.Time, limit int) ([]Attempt, error)
}

// Recorder appends attempts and answers sliding-window reads.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder creates a Recorder over store.
func NewRecorder(store Store) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("login attempt store is required")
	}
	return &Recorder{store: store, now: time.Now}, nil
}

// RecordSuccess appends a successful attempt.
func (r *Recorder) RecordSuccess(ctx context.Context, identifier, ipAddress, method string) (*Attempt, error) {
	return r.record(ctx, identifier, ipAddress, method, true, "")
}

// RecordFailure appends a failed attempt with its reason.
func (r *Recorder) RecordFailure(ctx context.Context, identifier, ipAddress, method, reason string) (*Attempt, error) {
	return r.record(ctx, identifier, ipAddress, method, false, reason)
}

func (r *Recorder) record(ctx context.Context, identifier, ipAddress, method string, success bool, reason string) (*Attempt, error) {
	if identifier == "" {
		return nil, errors.New("identifier is required")
	}
	a := &Attempt{
		ID:            ids.New(),
		Identifier:    identifier,
		IPAddress:     ipAddress,
		Method:        method,
		Success:       success,
		FailureReason: reason,
		At:            r.now(),
	}
	if err := r.store.Insert(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// FailuresWithin counts the identifier's failed attempts inside the
// trailing window.
func (r *Recorder) FailuresWithin(ctx context.Context, identifier string, window time.Duration) (int, error) {
	return r.store.CountFailuresSince(ctx, identifier, r.now().Add(-window))
}

// defaultRecentLimit caps RecentAttempts when the caller passes no
// usable limit.
const defaultRecentLimit = 50

// RecentAttempts returns up to limit attempts for the identifier
// inside the trailing window, newest first. A non-positive limit
// falls back to a default page size instead of an empty read.
func (r *Recorder) RecentAttempts(ctx context.Context, identifier string, window time.Duration, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return r.store.ListRecent(ctx, identifier, r.now().Add(-window), limit)
}
