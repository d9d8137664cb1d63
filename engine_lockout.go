package authguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreledger/authguard/alert"
	"github.com/coreledger/authguard/attempt"
	"github.com/coreledger/authguard/internal/audit"
)

// AllowLogin reports whether the identifier may attempt to
// authenticate. A locked identifier is denied even with a correct
// credential; an elapsed lock clears the counter entirely.
func (e *Engine) AllowLogin(ctx context.Context, identifier string) error {
	if e == nil || e.guard == nil {
		return ErrEngineNotReady
	}
	ok, err := e.guard.AllowAttempt(ctx, identifier)
	if err != nil {
		// Guard backend trouble fails closed.
		return fmt.Errorf("%w: %v", ErrAccountLocked, err)
	}
	if !ok {
		return ErrAccountLocked
	}
	return nil
}

// RecordLoginFailure feeds one failed credential check into the
// brute-force guard and the attempt log. When the failure crosses the
// lockout threshold it writes the lock to the credential store,
// raises a critical alert, and reports locked=true, once per
// lockout.
func (e *Engine) RecordLoginFailure(ctx context.Context, identifier, reason string) (locked bool, err error) {
	if e == nil || e.guard == nil {
		return false, ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)

	if _, aerr := e.attempts.RecordFailure(ctx, identifier, ip, attempt.MethodPassword, reason); aerr != nil {
		// The append-only log is best effort; the guard decides.
		e.emit(ctx, AuditEvent{
			EventType: audit.EventLoginFailure,
			Success:   false,
			IP:        ip,
			Error:     aerr.Error(),
		})
	}
	e.metricInc(MetricLoginFailure)

	locked, err = e.guard.RecordFailure(ctx, identifier)
	if err != nil {
		return false, err
	}

	e.emit(ctx, AuditEvent{
		EventType: audit.EventLoginFailure,
		IP:        ip,
		Metadata:  map[string]string{"reason": reason},
	})

	if locked {
		e.metricInc(MetricLockoutTriggered)
		e.onLockout(ctx, identifier, ip)
	}
	return locked, nil
}

// RecordLoginSuccess clears the identifier's guard state, appends a
// success row, and removes any persisted lock on the principal.
func (e *Engine) RecordLoginSuccess(ctx context.Context, identifier string) error {
	if e == nil || e.guard == nil {
		return ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)

	if err := e.guard.RecordSuccess(ctx, identifier); err != nil {
		return err
	}
	if _, err := e.attempts.RecordSuccess(ctx, identifier, ip, attempt.MethodPassword); err != nil {
		return err
	}
	if principal := e.lookupPrincipal(ctx, identifier); principal != nil && principal.LockedUntil != nil {
		if err := e.users.UpdateLockout(ctx, principal.ID, nil); err != nil {
			return err
		}
	}

	e.metricInc(MetricLoginSuccess)
	e.emit(ctx, AuditEvent{
		EventType: audit.EventLoginSuccess,
		IP:        ip,
		Success:   true,
	})
	return nil
}

// RemainingAttempts reports the identifier's failure budget: zero
// while locked, the full threshold once a lock elapses. Exposed for
// authenticated account pages, never for pre-auth responses.
func (e *Engine) RemainingAttempts(ctx context.Context, identifier string) (int, error) {
	if e == nil || e.guard == nil {
		return 0, ErrEngineNotReady
	}
	return e.guard.RemainingAttempts(ctx, identifier)
}

// LockoutExpiry reports when the identifier's lock lapses, nil when
// not locked.
func (e *Engine) LockoutExpiry(ctx context.Context, identifier string) (*time.Time, error) {
	if e == nil || e.guard == nil {
		return nil, ErrEngineNotReady
	}
	return e.guard.LockoutExpiry(ctx, identifier)
}

// onLockout runs the exactly-once lockout side effects.
func (e *Engine) onLockout(ctx context.Context, identifier, ip string) {
	until, err := e.guard.LockoutExpiry(ctx, identifier)
	if err != nil {
		until = nil
	}

	principal := e.lookupPrincipal(ctx, identifier)
	if principal != nil && e.users != nil {
		if err := e.users.UpdateLockout(ctx, principal.ID, until); err != nil {
			e.emit(ctx, AuditEvent{
				EventType: audit.EventLockout,
				UserID:    principal.ID,
				IP:        ip,
				Error:     err.Error(),
			})
		}
		if e.alerts != nil {
			_, _ = e.alerts.Raise(ctx, principal.ID, alert.TypeAccountLocked,
				"account locked after repeated failed login attempts",
				alert.SeverityCritical, ip, deviceIDFromContext(ctx))
			e.metricInc(MetricAlertRaised)
		}
	}

	e.emit(ctx, AuditEvent{
		EventType: audit.EventLockout,
		UserID:    principalID(principal),
		IP:        ip,
		Success:   true,
	})
}

// lookupPrincipal resolves an identifier that may be a user id or a
// username. Absence is not an error here; pre-account lockouts track
// identifiers that never resolve.
func (e *Engine) lookupPrincipal(ctx context.Context, identifier string) *Principal {
	if e.users == nil {
		return nil
	}
	if p, err := e.users.FindUserByUsername(ctx, identifier); err == nil && p != nil {
		return p
	} else if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil
	}
	if p, err := e.users.FindUserByID(ctx, identifier); err == nil && p != nil {
		return p
	}
	return nil
}

func principalID(p *Principal) string {
	if p == nil {
		return ""
	}
	return p.ID
}
