package authguard

import (
	"time"

	"github.com/coreledger/authguard/token"
)

// SecurityReport summarizes the protections an engine is running
// with, for startup logs and operational review. It never contains
// key material.
type SecurityReport struct {
	SigningAlgorithm        string
	AccessTTL               time.Duration
	RefreshTTL              time.Duration
	LockoutThreshold        int
	LockoutDuration         time.Duration
	LockoutManualUnlock     bool
	MFAEnabled              bool
	ChallengeTTL            time.Duration
	StepUpWindow            time.Duration
	BackupCodesEnabled      bool
	DeviceTrustEnabled      bool
	DeviceTrustTTL          time.Duration
	RefreshRotationEnabled  bool
	ReuseDetectionEnabled   bool
	PurgeWorkerActive       bool
	AuditDispatchActive     bool
	MetricsCollectionActive bool
}

// SecurityReport reports the engine's active protections.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	algorithm := "EdDSA"
	if e.config.Token.SigningMethod == token.MethodHS256 {
		algorithm = "HS256"
	}

	return SecurityReport{
		SigningAlgorithm:        algorithm,
		AccessTTL:               e.config.Token.AccessTTL,
		RefreshTTL:              e.config.Refresh.TTL,
		LockoutThreshold:        e.config.Lockout.Threshold,
		LockoutDuration:         e.config.Lockout.Duration,
		LockoutManualUnlock:     e.config.Lockout.Duration == 0,
		MFAEnabled:              e.machine != nil,
		ChallengeTTL:            e.config.MFA.ChallengeTTL,
		StepUpWindow:            e.config.MFA.StepUpWindow,
		BackupCodesEnabled:      e.backup != nil && e.config.MFA.BackupCodeCount > 0,
		DeviceTrustEnabled:      e.devices != nil,
		DeviceTrustTTL:          e.config.Device.TrustTTL,
		RefreshRotationEnabled:  e.refresh != nil,
		ReuseDetectionEnabled:   e.refresh != nil && e.alerts != nil,
		PurgeWorkerActive:       e.purgeStop != nil,
		AuditDispatchActive:     e.audit != nil,
		MetricsCollectionActive: e.metrics.Enabled(),
	}
}
