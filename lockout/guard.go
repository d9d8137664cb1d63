package lockout

import (
	"context"
	"errors"
	"time"
)

// Config holds the brute-force guard parameters.
type Config struct {
	Threshold int           // failures before lockout
	Duration  time.Duration // 0 = locked until RecordSuccess or manual Clear
}

// Guard tracks failed authentication attempts per identifier and
// enforces temporary lockout. The per-identifier state machine is
// Clear -> Warning -> Locked -> Clear: a successful attempt or an
// elapsed lock fully resets the counter, never decrements it.
type Guard struct {
	store  Store
	config Config
	now    func() time.Time
}

// NewGuard creates a guard over the given store.
func NewGuard(store Store, cfg Config) (*Guard, error) {
	if store == nil {
		return nil, errors.New("lockout store is required")
	}
	if cfg.Threshold <= 0 {
		return nil, errors.New("lockout threshold must be positive")
	}
	return &Guard{store: store, config: cfg, now: time.Now}, nil
}

func (g *Guard) locked(st State) bool {
	if st.Failures < g.config.Threshold {
		return false
	}
	if st.LockedUntil.IsZero() {
		// Manual-unlock mode: at threshold the identifier stays locked
		// until a successful authentication clears it.
		return true
	}
	return st.LockedUntil.After(g.now())
}

// AllowAttempt reports whether an authentication attempt for id may
// proceed. A lock whose expiry has elapsed is cleared on this check,
// restoring the full attempt budget.
func (g *Guard) AllowAttempt(ctx context.Context, id string) (bool, error) {
	st, err := g.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if g.locked(st) {
		return false, nil
	}
	if !st.LockedUntil.IsZero() && !st.LockedUntil.After(g.now()) {
		if err := g.store.Clear(ctx, id); err != nil {
			return false, err
		}
	}
	return true, nil
}

// RecordFailure counts one failed attempt for id. It returns true
// exactly once per lockout: on the attempt that crosses the threshold.
func (g *Guard) RecordFailure(ctx context.Context, id string) (bool, error) {
	st, err := g.store.RecordFailure(ctx, id, g.config.Threshold, g.config.Duration)
	if err != nil {
		return false, err
	}
	return st.Failures == g.config.Threshold, nil
}

// RecordSuccess clears all failure state for id regardless of phase.
func (g *Guard) RecordSuccess(ctx context.Context, id string) error {
	return g.store.Clear(ctx, id)
}

// RemainingAttempts reports how many failures id has left before
// lockout. A currently locked identifier has zero; an elapsed lock
// counts as a full reset even before the next AllowAttempt clears it.
func (g *Guard) RemainingAttempts(ctx context.Context, id string) (int, error) {
	st, err := g.store.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if g.locked(st) {
		return 0, nil
	}
	if !st.LockedUntil.IsZero() && !st.LockedUntil.After(g.now()) {
		return g.config.Threshold, nil
	}
	remaining := g.config.Threshold - st.Failures
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// LockoutExpiry returns the lock expiry for id, or nil when id is not
// under an active timed lock.
func (g *Guard) LockoutExpiry(ctx context.Context, id string) (*time.Time, error) {
	st, err := g.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !g.locked(st) || st.LockedUntil.IsZero() {
		return nil, nil
	}
	until := st.LockedUntil
	return &until, nil
}

// Threshold exposes the configured failure threshold.
func (g *Guard) Threshold() int {
	return g.config.Threshold
}
