package authguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreledger/authguard/alert"
	"github.com/coreledger/authguard/attempt"
	"github.com/coreledger/authguard/device"
	"github.com/coreledger/authguard/internal/audit"
	"github.com/coreledger/authguard/lockout"
	"github.com/coreledger/authguard/mfa"
	"github.com/coreledger/authguard/rbac"
	"github.com/coreledger/authguard/refresh"
	"github.com/coreledger/authguard/token"
)

// Engine is the authentication and session security facade. It is
// immutable after [Builder.Build] and safe for concurrent use.
type Engine struct {
	config    Config
	codec     *token.Codec
	evaluator *rbac.Evaluator
	guard     *lockout.Guard
	machine   *mfa.Machine
	backup    *mfa.BackupCodes
	stepup    *mfa.StepUpTracker
	devices   *device.Registry
	refresh   *refresh.Manager
	alerts    *alert.Sink
	attempts  *attempt.Recorder
	users     CredentialStore
	audit     *audit.Dispatcher
	metrics   *Metrics

	purgeStop chan struct{}
	purgeWG   sync.WaitGroup
	purgeOnce sync.Once
}

// Close stops the purge worker and drains the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.stopPurge()
	e.audit.Close()
}

// AuditDropped reports audit events lost to dispatcher backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the engine's metric counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e != nil {
		e.metrics.Inc(id)
	}
}

// Authenticate resolves an Authorization header value to its
// principal. Every failure (missing header, malformed or expired
// token, bad signature, unknown or inactive user) answers
// [ErrUnauthorized]; the wrapped cause is for the caller's logs, not
// its responses.
func (e *Engine) Authenticate(ctx context.Context, rawHeader string) (*Principal, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricAuthenticateLatency, time.Since(start))
	}()

	bearer, ok := parseBearer(rawHeader)
	if !ok {
		e.metricInc(MetricAuthenticateFailure)
		return nil, fmt.Errorf("%w: missing bearer token", ErrUnauthorized)
	}

	claims, err := e.codec.Verify(bearer)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	principal, err := e.users.FindUserByID(ctx, claims.SubjectID)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if principal == nil || !principal.Active {
		e.metricInc(MetricAuthenticateFailure)
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, ErrAccountInactive)
	}
	if principal.LockedUntil != nil && time.Now().Before(*principal.LockedUntil) {
		e.metricInc(MetricAuthenticateFailure)
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, ErrAccountLocked)
	}

	e.metricInc(MetricAuthenticateSuccess)
	return principal, nil
}

// AuthorizeAction checks one (resource, action) permission for the
// principal. An unauthenticated caller fails fast with
// [ErrUnauthorized]; an authenticated caller with insufficient
// permission gets [ErrForbidden], never a generic failure. Ambiguity
// (an unresolvable role) denies.
func (e *Engine) AuthorizeAction(ctx context.Context, principal *Principal, resource rbac.Resource, action rbac.Action) error {
	if e == nil || e.evaluator == nil {
		return ErrEngineNotReady
	}
	if principal == nil || principal.ID == "" {
		return ErrUnauthorized
	}

	ok, err := e.evaluator.HasPermission(principal.RoleID, rbac.Permission{Resource: resource, Action: action})
	if err != nil {
		ok = false
		if !errors.Is(err, rbac.ErrRoleNotFound) {
			// Backend trouble still denies; report it alongside.
			e.metricInc(MetricAuthorizeDenied)
			return fmt.Errorf("%w: %w", ErrForbidden, err)
		}
	}
	if !ok {
		e.metricInc(MetricAuthorizeDenied)
		e.emit(ctx, AuditEvent{
			EventType: audit.EventAccessDenied,
			UserID:    principal.ID,
			IP:        clientIPFromContext(ctx),
			Metadata: map[string]string{
				"resource": string(resource),
				"action":   string(action),
			},
		})
		return ErrForbidden
	}
	e.metricInc(MetricAuthorizeAllowed)
	return nil
}

// IssueAccessToken mints a signed short-lived access token for the
// principal.
func (e *Engine) IssueAccessToken(principal *Principal) (string, error) {
	if e == nil || e.codec == nil {
		return "", ErrEngineNotReady
	}
	if principal == nil || principal.ID == "" {
		return "", ErrUnauthorized
	}
	return e.codec.Issue(principal.ID)
}

func parseBearer(rawHeader string) (string, bool) {
	rawHeader = strings.TrimSpace(rawHeader)
	if rawHeader == "" {
		return "", false
	}
	const prefix = "bearer "
	if len(rawHeader) <= len(prefix) || !strings.EqualFold(rawHeader[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(rawHeader[len(prefix):])
	return tok, tok != ""
}
