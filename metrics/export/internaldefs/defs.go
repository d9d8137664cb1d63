package internaldefs

import (
	authguard "github.com/coreledger/authguard"
)

// CounterDef binds an engine counter to its stable exported name.
type CounterDef struct {
	ID   authguard.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine latency histogram to its stable
// exported name.
type HistogramDef struct {
	ID   authguard.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter. Exporters iterate this
// slice so that Prometheus and OTel always agree on names.
var CounterDefs = []CounterDef{
	{ID: authguard.MetricAuthenticateSuccess, Name: "authguard_authenticate_success_total", Help: "Successful access token authentications."},
	{ID: authguard.MetricAuthenticateFailure, Name: "authguard_authenticate_failure_total", Help: "Failed access token authentications."},
	{ID: authguard.MetricAuthorizeAllowed, Name: "authguard_authorize_allowed_total", Help: "Permission checks that allowed."},
	{ID: authguard.MetricAuthorizeDenied, Name: "authguard_authorize_denied_total", Help: "Permission checks that denied."},
	{ID: authguard.MetricLoginSuccess, Name: "authguard_login_success_total", Help: "Successful login attempts."},
	{ID: authguard.MetricLoginFailure, Name: "authguard_login_failure_total", Help: "Failed login attempts."},
	{ID: authguard.MetricLockoutTriggered, Name: "authguard_lockout_triggered_total", Help: "Brute-force lockouts triggered."},
	{ID: authguard.MetricChallengeIssued, Name: "authguard_challenge_issued_total", Help: "MFA challenges issued."},
	{ID: authguard.MetricChallengeVerified, Name: "authguard_challenge_verified_total", Help: "MFA challenges verified."},
	{ID: authguard.MetricChallengeMismatch, Name: "authguard_challenge_mismatch_total", Help: "MFA code mismatches."},
	{ID: authguard.MetricChallengeReplay, Name: "authguard_challenge_replay_total", Help: "Replays of consumed MFA challenges."},
	{ID: authguard.MetricBackupCodeUsed, Name: "authguard_backup_code_used_total", Help: "Successful backup-code authentications."},
	{ID: authguard.MetricBackupCodeFailed, Name: "authguard_backup_code_failed_total", Help: "Failed backup-code authentications."},
	{ID: authguard.MetricBackupCodeRegenerated, Name: "authguard_backup_code_regenerated_total", Help: "Backup-code set regenerations."},
	{ID: authguard.MetricStepUpBypassed, Name: "authguard_stepup_bypassed_total", Help: "Step-up prompts bypassed by trusted devices."},
	{ID: authguard.MetricDeviceTrusted, Name: "authguard_device_trusted_total", Help: "Device trust grants."},
	{ID: authguard.MetricDeviceRevoked, Name: "authguard_device_revoked_total", Help: "Device trust revocations."},
	{ID: authguard.MetricRefreshIssued, Name: "authguard_refresh_issued_total", Help: "Refresh tokens issued."},
	{ID: authguard.MetricRefreshRotated, Name: "authguard_refresh_rotated_total", Help: "Refresh token rotations."},
	{ID: authguard.MetricRefreshReuseDetected, Name: "authguard_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: authguard.MetricSessionsRevoked, Name: "authguard_sessions_revoked_total", Help: "Bulk session revocation operations."},
	{ID: authguard.MetricAlertRaised, Name: "authguard_alert_raised_total", Help: "Security alerts raised."},
	{ID: authguard.MetricPurgeDeleted, Name: "authguard_purge_deleted_total", Help: "Expired rows removed by the purge worker."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: authguard.MetricAuthenticateLatency, Name: "authguard_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, matching
// the engine's fixed 8-bucket layout.
var HistogramBounds = []float64{
	0.005,
	0.01,
	0.025,
	0.05,
	0.1,
	0.25,
	0.5,
}

// HistogramBoundSuffix names each bucket for backends without native
// histogram support.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies a snapshot slice into the fixed bucket
// array, tolerating short or missing slices.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to the cumulative form
// both exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
