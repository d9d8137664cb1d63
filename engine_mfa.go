package authguard

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreledger/authguard/alert"
	"github.com/coreledger/authguard/attempt"
	"github.com/coreledger/authguard/internal/audit"
	"github.com/coreledger/authguard/mfa"
)

// repeatedMismatchAlertAt is the consecutive mismatch count on one
// challenge that raises a warning alert for the account owner.
const repeatedMismatchAlertAt = 3

// BeginChallenge issues a one-time code for userID over the given
// channel and supersedes any outstanding challenge of the same
// method. Issuance is throttled per user; exceeding the budget
// answers [ErrRateExceeded].
func (e *Engine) BeginChallenge(ctx context.Context, userID string, method mfa.Method, recipient string) (*mfa.Challenge, error) {
	if e == nil || e.machine == nil {
		return nil, ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)
	deviceID := deviceIDFromContext(ctx)

	challenge, err := e.machine.Create(ctx, userID, method, recipient, ip, deviceID)
	if err != nil {
		if errors.Is(err, mfa.ErrIssueThrottled) {
			return nil, fmt.Errorf("%w: %w", ErrRateExceeded, err)
		}
		return nil, err
	}

	e.metricInc(MetricChallengeIssued)
	e.emit(ctx, AuditEvent{
		EventType:   audit.EventChallengeIssued,
		UserID:      userID,
		ChallengeID: challenge.ID,
		DeviceID:    deviceID,
		IP:          ip,
		Success:     true,
		Metadata:    map[string]string{"method": string(method)},
	})
	return challenge, nil
}

// VerifyChallenge checks a submitted code against a pending
// challenge. Success consumes the challenge exactly once and opens
// the step-up window; a replayed challenge id and a cross-user probe
// both fail without revealing which.
func (e *Engine) VerifyChallenge(ctx context.Context, challengeID, code, userID string) error {
	if e == nil || e.machine == nil {
		return ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)

	attemptsMade, err := e.machine.Verify(ctx, challengeID, code, userID, ip)
	switch {
	case err == nil:
		e.metricInc(MetricChallengeVerified)
		_, _ = e.attempts.RecordSuccess(ctx, userID, ip, attempt.MethodMfaCode)
		e.emit(ctx, AuditEvent{
			EventType:   audit.EventChallengeVerified,
			UserID:      userID,
			ChallengeID: challengeID,
			IP:          ip,
			Success:     true,
		})
		return nil

	case errors.Is(err, mfa.ErrCodeMismatch):
		e.metricInc(MetricChallengeMismatch)
		_, _ = e.attempts.RecordFailure(ctx, userID, ip, attempt.MethodMfaCode, "code mismatch")
		if attemptsMade >= repeatedMismatchAlertAt && e.alerts != nil {
			_, _ = e.alerts.Raise(ctx, userID, alert.TypeRepeatedMfaFailure,
				"repeated incorrect verification codes on a pending challenge",
				alert.SeverityWarning, ip, deviceIDFromContext(ctx))
			e.metricInc(MetricAlertRaised)
		}

	case errors.Is(err, mfa.ErrChallengeUsed):
		// A consumed challenge resubmitted with a valid-looking code is
		// a replay signal, not a user typo.
		e.metricInc(MetricChallengeReplay)
		if e.alerts != nil {
			_, _ = e.alerts.Raise(ctx, userID, alert.TypeSuspiciousLogin,
				"verification code replayed after use",
				alert.SeverityWarning, ip, deviceIDFromContext(ctx))
			e.metricInc(MetricAlertRaised)
		}
	}

	e.emit(ctx, AuditEvent{
		EventType:   audit.EventChallengeFailed,
		UserID:      userID,
		ChallengeID: challengeID,
		IP:          ip,
		Error:       err.Error(),
	})
	return err
}

// RequiresStepUp reports whether userID must complete a fresh MFA
// verification before a sensitive operation. A trusted device on the
// request context bypasses the prompt while its grant is live.
func (e *Engine) RequiresStepUp(ctx context.Context, userID string) (bool, error) {
	if e == nil || e.machine == nil {
		return true, ErrEngineNotReady
	}
	if deviceID := deviceIDFromContext(ctx); deviceID != "" && e.devices != nil {
		trusted, err := e.devices.IsTrusted(ctx, userID, deviceID)
		if err != nil {
			return true, err
		}
		if trusted {
			_ = e.devices.Touch(ctx, userID, deviceID)
			e.metricInc(MetricStepUpBypassed)
			return false, nil
		}
	}
	return e.machine.RequiresStepUp(ctx, userID)
}

// GenerateBackupCodes mints a fresh backup code set for userID and
// invalidates every code from the previous set. The plaintext codes
// appear only in the return value.
func (e *Engine) GenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	if e == nil || e.backup == nil {
		return nil, ErrEngineNotReady
	}
	codes, err := e.backup.Generate(ctx, userID)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricBackupCodeRegenerated)
	e.emit(ctx, AuditEvent{
		EventType: audit.EventChallengeIssued,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   true,
		Metadata:  map[string]string{"method": "backup_codes", "count": fmt.Sprint(len(codes))},
	})
	return codes, nil
}

// VerifyBackupCode consumes one backup code as an MFA factor. A
// successful consumption opens the step-up window like a verified
// challenge, and raises an advisory alert once the set runs low.
func (e *Engine) VerifyBackupCode(ctx context.Context, userID, code string) error {
	if e == nil || e.backup == nil {
		return ErrEngineNotReady
	}
	ip := clientIPFromContext(ctx)

	if err := e.backup.Verify(ctx, userID, code); err != nil {
		e.metricInc(MetricBackupCodeFailed)
		_, _ = e.attempts.RecordFailure(ctx, userID, ip, attempt.MethodBackupCode, "backup code rejected")
		e.emit(ctx, AuditEvent{
			EventType: audit.EventChallengeFailed,
			UserID:    userID,
			IP:        ip,
			Error:     err.Error(),
			Metadata:  map[string]string{"method": "backup_code"},
		})
		return err
	}

	e.metricInc(MetricBackupCodeUsed)
	_, _ = e.attempts.RecordSuccess(ctx, userID, ip, attempt.MethodBackupCode)
	if e.stepup != nil {
		if err := e.stepup.MarkVerified(ctx, userID); err != nil {
			return err
		}
	}
	e.emit(ctx, AuditEvent{
		EventType: audit.EventChallengeVerified,
		UserID:    userID,
		IP:        ip,
		Success:   true,
		Metadata:  map[string]string{"method": "backup_code"},
	})

	remaining, err := e.backup.Remaining(ctx, userID)
	if err == nil && e.backup.RegenerationAdvised(remaining) && e.alerts != nil {
		_, _ = e.alerts.Raise(ctx, userID, alert.TypeBackupCodesConsumed,
			fmt.Sprintf("only %d backup codes remain; generate a new set", remaining),
			alert.SeverityInfo, ip, deviceIDFromContext(ctx))
		e.metricInc(MetricAlertRaised)
	}
	return nil
}

// RemainingBackupCodes reports the number of unused backup codes.
func (e *Engine) RemainingBackupCodes(ctx context.Context, userID string) (int, error) {
	if e == nil || e.backup == nil {
		return 0, ErrEngineNotReady
	}
	return e.backup.Remaining(ctx, userID)
}
