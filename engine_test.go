package authguard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coreledger/authguard/alert"
	"github.com/coreledger/authguard/device"
	"github.com/coreledger/authguard/internal/audit"
	"github.com/coreledger/authguard/refresh"
)

func TestAuthenticateRoundTrip(t *testing.T) {
	engine, f := newTestEngine(t, nil)
	ctx := context.Background()

	principal, err := f.users.FindUserByID(ctx, "u1")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	tok, err := engine.IssueAccessToken(principal)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	got, err := engine.Authenticate(ctx, "Bearer "+tok)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != "u1" || got.RoleID != "admin" {
		t.Fatalf("wrong principal: %+v", got)
	}
	if v := engine.MetricsSnapshot().Counters[MetricAuthenticateSuccess]; v != 1 {
		t.Fatalf("success counter = %d, want 1", v)
	}
}

func TestAuthenticateRejectsBadInput(t *testing.T) {
	engine, f := newTestEngine(t, nil)
	ctx := context.Background()

	inactive, _ := f.users.FindUserByID(ctx, "u3")
	inactiveTok, err := engine.IssueAccessToken(inactive)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	until := time.Now().Add(time.Hour)
	if err := f.users.UpdateLockout(ctx, "u2", &until); err != nil {
		t.Fatalf("UpdateLockout: %v", err)
	}
	locked, _ := f.users.FindUserByID(ctx, "u2")
	lockedTok, err := engine.IssueAccessToken(locked)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	cases := []struct {
		name   string
		header string
		wants  []error
	}{
		{"empty header", "", []error{ErrUnauthorized}},
		{"not bearer", "Basic dXNlcg==", []error{ErrUnauthorized}},
		{"garbage token", "Bearer not.a.token", []error{ErrUnauthorized, ErrAccessTokenMalformed}},
		{"inactive user", "Bearer " + inactiveTok, []error{ErrUnauthorized, ErrAccountInactive}},
		{"locked user", "Bearer " + lockedTok, []error{ErrUnauthorized, ErrAccountLocked}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.Authenticate(ctx, tc.header)
			for _, want := range tc.wants {
				if !errors.Is(err, want) {
					t.Fatalf("err = %v, want %v in chain", err, want)
				}
			}
		})
	}
}

func TestAuthorizeActionInheritsAndDenies(t *testing.T) {
	engine, f := newTestEngine(t, nil)
	ctx := context.Background()

	admin, _ := f.users.FindUserByID(ctx, "u1")
	viewer, _ := f.users.FindUserByID(ctx, "u2")

	// admin inherits report:read from viewer.
	if err := engine.AuthorizeAction(ctx, admin, "report", "read"); err != nil {
		t.Fatalf("admin read: %v", err)
	}
	if err := engine.AuthorizeAction(ctx, admin, "report", "approve"); err != nil {
		t.Fatalf("admin approve: %v", err)
	}
	if err := engine.AuthorizeAction(ctx, viewer, "report", "approve"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("viewer approve err = %v, want ErrForbidden", err)
	}
	if err := engine.AuthorizeAction(ctx, nil, "report", "read"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("nil principal err = %v, want ErrUnauthorized", err)
	}

	ghost := &Principal{ID: "u9", RoleID: "missing-role", Active: true}
	if err := engine.AuthorizeAction(ctx, ghost, "report", "read"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("unknown role err = %v, want ErrForbidden", err)
	}
}

func TestLockoutWritesBackAndAlerts(t *testing.T) {
	engine, f := newTestEngine(t, func(cfg *Config) {
		cfg.Lockout.Threshold = 3
		cfg.Lockout.Duration = 30 * time.Minute
	})
	ctx := WithClientIP(context.Background(), "203.0.113.9")

	for i := 0; i < 2; i++ {
		locked, err := engine.RecordLoginFailure(ctx, "ada@example.com", "bad password")
		if err != nil {
			t.Fatalf("RecordLoginFailure %d: %v", i, err)
		}
		if locked {
			t.Fatalf("locked after %d failures, threshold is 3", i+1)
		}
	}

	locked, err := engine.RecordLoginFailure(ctx, "ada@example.com", "bad password")
	if err != nil {
		t.Fatalf("RecordLoginFailure: %v", err)
	}
	if !locked {
		t.Fatal("third failure should lock")
	}

	if err := engine.AllowLogin(ctx, "ada@example.com"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("AllowLogin err = %v, want ErrAccountLocked", err)
	}
	if until := f.users.lockedUntil("u1"); until == nil || !until.After(time.Now()) {
		t.Fatalf("lockout not written to credential store: %v", until)
	}
	if got := f.alerts.ofType("u1", alert.TypeAccountLocked); len(got) != 1 {
		t.Fatalf("lockout alerts = %d, want 1", len(got))
	}

	// A successful login clears both the guard and the stored lock.
	if err := engine.RecordLoginSuccess(ctx, "ada@example.com"); err != nil {
		t.Fatalf("RecordLoginSuccess: %v", err)
	}
	if until := f.users.lockedUntil("u1"); until != nil {
		t.Fatalf("lockout not cleared: %v", until)
	}
	if err := engine.AllowLogin(ctx, "ada@example.com"); err != nil {
		t.Fatalf("AllowLogin after success: %v", err)
	}
}

func TestLockoutForUnknownIdentifier(t *testing.T) {
	engine, f := newTestEngine(t, func(cfg *Config) {
		cfg.Lockout.Threshold = 2
	})
	ctx := context.Background()

	// Identifiers that never resolve to an account still lock, and
	// raise no alert for anyone.
	if _, err := engine.RecordLoginFailure(ctx, "nobody@example.com", "bad password"); err != nil {
		t.Fatalf("RecordLoginFailure: %v", err)
	}
	locked, err := engine.RecordLoginFailure(ctx, "nobody@example.com", "bad password")
	if err != nil {
		t.Fatalf("RecordLoginFailure: %v", err)
	}
	if !locked {
		t.Fatal("unknown identifier should still lock")
	}
	if err := engine.AllowLogin(ctx, "nobody@example.com"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("AllowLogin err = %v, want ErrAccountLocked", err)
	}
	for _, id := range []string{"u1", "u2", "u3"} {
		if got := f.alerts.ofType(id, alert.TypeAccountLocked); len(got) != 0 {
			t.Fatalf("unexpected alert for %s", id)
		}
	}
}

func TestRefreshRotationAndReuseDetection(t *testing.T) {
	engine, f := newTestEngine(t, nil)
	ctx := WithClientIP(WithDeviceID(context.Background(), "laptop-1"), "198.51.100.4")

	tok, record, err := engine.IssueRefreshToken(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if record.DeviceID != "laptop-1" {
		t.Fatalf("device binding lost: %q", record.DeviceID)
	}

	next, rotated, err := engine.RotateRefreshToken(ctx, tok)
	if err != nil {
		t.Fatalf("RotateRefreshToken: %v", err)
	}
	if rotated.UserID != "u1" || next == tok {
		t.Fatalf("bad rotation: %+v", rotated)
	}

	// Replaying the revoked predecessor is theft evidence.
	_, _, err = engine.RotateRefreshToken(ctx, tok)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("replay err = %v, want ErrTokenRevoked", err)
	}
	reuse := f.alerts.ofType("u1", alert.TypeTokenReuse)
	if len(reuse) != 1 {
		t.Fatalf("reuse alerts = %d, want 1", len(reuse))
	}
	if reuse[0].Severity != alert.SeverityCritical {
		t.Fatalf("reuse severity = %q, want critical", reuse[0].Severity)
	}
	if v := engine.MetricsSnapshot().Counters[MetricRefreshReuseDetected]; v != 1 {
		t.Fatalf("reuse counter = %d, want 1", v)
	}

	// The successor still works.
	if _, err := engine.ValidateRefreshToken(ctx, next); err != nil {
		t.Fatalf("successor invalid: %v", err)
	}
}

func TestLogoutEverywhere(t *testing.T) {
	engine, f := newTestEngine(t, nil)
	ctx := context.Background()

	var tokens []string
	for i := 0; i < 3; i++ {
		tok, _, err := engine.IssueRefreshToken(ctx, "u1")
		if err != nil {
			t.Fatalf("IssueRefreshToken: %v", err)
		}
		tokens = append(tokens, tok)
	}
	otherTok, _, err := engine.IssueRefreshToken(ctx, "u2")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	n, err := engine.LogoutEverywhere(ctx, "u1", "password changed")
	if err != nil {
		t.Fatalf("LogoutEverywhere: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked %d, want 3", n)
	}
	for _, tok := range tokens {
		if _, err := engine.ValidateRefreshToken(ctx, tok); !errors.Is(err, refresh.ErrTokenRevoked) {
			t.Fatalf("token still valid after logout: %v", err)
		}
	}
	if _, err := engine.ValidateRefreshToken(ctx, otherTok); err != nil {
		t.Fatalf("other user's token affected: %v", err)
	}
	if got := f.alerts.ofType("u1", alert.TypeAllSessionsRevoked); len(got) != 1 {
		t.Fatalf("session alerts = %d, want 1", len(got))
	}
}

func TestLogoutOtherSessionsKeepsCurrent(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	current, _, err := engine.IssueRefreshToken(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	other, _, err := engine.IssueRefreshToken(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}

	n, err := engine.LogoutOtherSessions(ctx, "u1", current)
	if err != nil {
		t.Fatalf("LogoutOtherSessions: %v", err)
	}
	if n != 1 {
		t.Fatalf("revoked %d, want 1", n)
	}
	if _, err := engine.ValidateRefreshToken(ctx, current); err != nil {
		t.Fatalf("current session revoked: %v", err)
	}
	if _, err := engine.ValidateRefreshToken(ctx, other); !errors.Is(err, refresh.ErrTokenRevoked) {
		t.Fatalf("other session err = %v, want ErrTokenRevoked", err)
	}
}

func TestTrustedDeviceBypassesStepUp(t *testing.T) {
	engine, f := newTestEngine(t, nil)
	ctx := WithDeviceID(context.Background(), "laptop-1")

	need, err := engine.RequiresStepUp(ctx, "u1")
	if err != nil {
		t.Fatalf("RequiresStepUp: %v", err)
	}
	if !need {
		t.Fatal("unverified user should need step-up")
	}

	if _, err := engine.TrustDevice(ctx, "u1", "laptop-1", deviceMeta("Ada's laptop")); err != nil {
		t.Fatalf("TrustDevice: %v", err)
	}
	need, err = engine.RequiresStepUp(ctx, "u1")
	if err != nil {
		t.Fatalf("RequiresStepUp: %v", err)
	}
	if need {
		t.Fatal("trusted device should bypass step-up")
	}
	if v := engine.MetricsSnapshot().Counters[MetricStepUpBypassed]; v != 1 {
		t.Fatalf("bypass counter = %d, want 1", v)
	}
	if got := f.alerts.ofType("u1", alert.TypeNewDeviceTrusted); len(got) != 1 {
		t.Fatalf("trust alerts = %d, want 1", len(got))
	}

	// Another user's identical device id earns nothing.
	need, err = engine.RequiresStepUp(ctx, "u2")
	if err != nil {
		t.Fatalf("RequiresStepUp: %v", err)
	}
	if !need {
		t.Fatal("trust must not leak across users")
	}

	if err := engine.RevokeDevice(ctx, "u1", "laptop-1"); err != nil {
		t.Fatalf("RevokeDevice: %v", err)
	}
	need, err = engine.RequiresStepUp(ctx, "u1")
	if err != nil {
		t.Fatalf("RequiresStepUp: %v", err)
	}
	if !need {
		t.Fatal("revoked device should stop bypassing")
	}
}

func TestChallengeVerificationOpensStepUpWindow(t *testing.T) {
	engine, f := newTestEngine(t, nil)
	ctx := context.Background()

	challenge, err := engine.BeginChallenge(ctx, "u1", "email", "ada@example.com")
	if err != nil {
		t.Fatalf("BeginChallenge: %v", err)
	}
	if len(f.sender.sent) != 1 || f.sender.sent[0] != challenge.Code {
		t.Fatalf("code not delivered: %v", f.sender.sent)
	}

	if err := engine.VerifyChallenge(ctx, challenge.ID, challenge.Code, "u1"); err != nil {
		t.Fatalf("VerifyChallenge: %v", err)
	}
	need, err := engine.RequiresStepUp(ctx, "u1")
	if err != nil {
		t.Fatalf("RequiresStepUp: %v", err)
	}
	if need {
		t.Fatal("fresh verification should open the step-up window")
	}

	// The consumed challenge cannot be replayed, and the replay is
	// flagged.
	err = engine.VerifyChallenge(ctx, challenge.ID, challenge.Code, "u1")
	if !errors.Is(err, ErrChallengeAlreadyUsed) {
		t.Fatalf("replay err = %v, want ErrChallengeAlreadyUsed", err)
	}
	if got := f.alerts.ofType("u1", alert.TypeSuspiciousLogin); len(got) != 1 {
		t.Fatalf("replay alerts = %d, want 1", len(got))
	}
}

func TestRepeatedMismatchRaisesAlert(t *testing.T) {
	engine, f := newTestEngine(t, nil)
	ctx := context.Background()

	challenge, err := engine.BeginChallenge(ctx, "u1", "email", "ada@example.com")
	if err != nil {
		t.Fatalf("BeginChallenge: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := engine.VerifyChallenge(ctx, challenge.ID, "000000", "u1"); !errors.Is(err, ErrChallengeCodeMismatch) {
			t.Fatalf("mismatch %d err = %v", i, err)
		}
	}
	if got := f.alerts.ofType("u1", alert.TypeRepeatedMfaFailure); len(got) != 1 {
		t.Fatalf("mismatch alerts = %d, want 1", len(got))
	}

	// The right code still works; mismatches alone never consume.
	if err := engine.VerifyChallenge(ctx, challenge.ID, challenge.Code, "u1"); err != nil {
		t.Fatalf("VerifyChallenge after mismatches: %v", err)
	}
}

func TestChallengeIssueThrottled(t *testing.T) {
	engine, _ := newTestEngine(t, func(cfg *Config) {
		cfg.MFA.IssuePerMin = 0.001
		cfg.MFA.IssueBurst = 1
	})
	ctx := context.Background()

	if _, err := engine.BeginChallenge(ctx, "u1", "email", "ada@example.com"); err != nil {
		t.Fatalf("first BeginChallenge: %v", err)
	}
	_, err := engine.BeginChallenge(ctx, "u1", "email", "ada@example.com")
	if !errors.Is(err, ErrRateExceeded) {
		t.Fatalf("throttled err = %v, want ErrRateExceeded", err)
	}
	// Other users keep their own budget.
	if _, err := engine.BeginChallenge(ctx, "u2", "email", "brin@example.com"); err != nil {
		t.Fatalf("other user throttled: %v", err)
	}
}

func TestBackupCodeLifecycle(t *testing.T) {
	engine, f := newTestEngine(t, nil)
	ctx := context.Background()

	codes, err := engine.GenerateBackupCodes(ctx, "u1")
	if err != nil {
		t.Fatalf("GenerateBackupCodes: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("generated %d codes, want 10", len(codes))
	}

	if err := engine.VerifyBackupCode(ctx, "u1", codes[0]); err != nil {
		t.Fatalf("VerifyBackupCode: %v", err)
	}
	need, err := engine.RequiresStepUp(ctx, "u1")
	if err != nil {
		t.Fatalf("RequiresStepUp: %v", err)
	}
	if need {
		t.Fatal("backup code should satisfy step-up")
	}
	if err := engine.VerifyBackupCode(ctx, "u1", codes[0]); !errors.Is(err, ErrChallengeCodeMismatch) {
		t.Fatalf("reused code err = %v, want mismatch", err)
	}

	// Burn down to the watermark; the advisory fires.
	for _, code := range codes[1 : len(codes)-2] {
		if err := engine.VerifyBackupCode(ctx, "u1", code); err != nil {
			t.Fatalf("VerifyBackupCode: %v", err)
		}
	}
	remaining, err := engine.RemainingBackupCodes(ctx, "u1")
	if err != nil {
		t.Fatalf("RemainingBackupCodes: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("remaining = %d, want 2", remaining)
	}
	if got := f.alerts.ofType("u1", alert.TypeBackupCodesConsumed); len(got) == 0 {
		t.Fatal("low-watermark alert never raised")
	}
}

func TestAlertReadLifecycle(t *testing.T) {
	engine, _ := newTestEngine(t, nil)
	ctx := context.Background()

	raised, err := engine.RaiseAlert(ctx, "u1", alert.TypeSuspiciousLogin, "login from new country", alert.SeverityWarning)
	if err != nil {
		t.Fatalf("RaiseAlert: %v", err)
	}

	unread, err := engine.UnreadAlerts(ctx, "u1")
	if err != nil {
		t.Fatalf("UnreadAlerts: %v", err)
	}
	if len(unread) != 1 || unread[0].ID != raised.ID {
		t.Fatalf("unread = %+v", unread)
	}

	// Ownership is enforced without revealing existence.
	if err := engine.MarkAlertRead(ctx, raised.ID, "u2"); !errors.Is(err, alert.ErrAlertNotFound) {
		t.Fatalf("foreign mark err = %v, want ErrAlertNotFound", err)
	}
	if err := engine.MarkAlertRead(ctx, raised.ID, "u1"); err != nil {
		t.Fatalf("MarkAlertRead: %v", err)
	}
	unread, err = engine.UnreadAlerts(ctx, "u1")
	if err != nil {
		t.Fatalf("UnreadAlerts: %v", err)
	}
	if len(unread) != 0 {
		t.Fatalf("unread after mark = %d, want 0", len(unread))
	}
}

func TestPurgeNowSweepsDeadState(t *testing.T) {
	engine, f := newTestEngine(t, nil)
	ctx := context.Background()

	tok, _, err := engine.IssueRefreshToken(ctx, "u1")
	if err != nil {
		t.Fatalf("IssueRefreshToken: %v", err)
	}
	if err := engine.RevokeRefreshToken(ctx, tok, "logout"); err != nil {
		t.Fatalf("RevokeRefreshToken: %v", err)
	}

	n, err := engine.PurgeNow(ctx)
	if err != nil {
		t.Fatalf("PurgeNow: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	if len(f.refresh.rows) != 0 {
		t.Fatalf("revoked row survived purge: %d rows", len(f.refresh.rows))
	}
}

func TestAuditedDecorator(t *testing.T) {
	engine, _ := newTestEngine(t, nil)

	sink := NewChannelSink(8)
	engine.audit = audit.NewDispatcher(audit.Config{Enabled: true, BufferSize: 8}, sink)

	op := engine.Audited("password_change", "u1", func(ctx context.Context) error {
		return nil
	})
	ctx := WithClientIP(context.Background(), "203.0.113.9")
	if err := op(ctx); err != nil {
		t.Fatalf("audited op: %v", err)
	}

	select {
	case event := <-sink.Events():
		if event.EventType != "password_change" || !event.Success || event.IP != "203.0.113.9" {
			t.Fatalf("bad event: %+v", event)
		}
	case <-time.After(time.Second):
		t.Fatal("no audit event delivered")
	}
}

func deviceMeta(name string) device.Metadata {
	return device.Metadata{DeviceName: name}
}
