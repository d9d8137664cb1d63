package authguard

import (
	"errors"
	"time"

	"github.com/coreledger/authguard/mfa"
	"github.com/coreledger/authguard/token"
)

// Config groups the recognized engine options. Zero values fall back
// to the documented defaults in [DefaultConfig]; Validate rejects
// combinations the engine cannot run safely with.
type Config struct {
	Token   TokenConfig
	Refresh RefreshConfig
	Lockout LockoutConfig
	MFA     MFAConfig
	Device  DeviceConfig
	Purge   PurgeConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

// TokenConfig controls the access token codec.
type TokenConfig struct {
	AccessTTL     time.Duration
	SigningMethod token.SigningMethod // ed25519 (default) or hs256
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

// RefreshConfig controls refresh token issuance.
type RefreshConfig struct {
	TTL time.Duration
}

// LockoutConfig controls the brute-force guard.
type LockoutConfig struct {
	Threshold int           // failures before lockout, default 5
	Duration  time.Duration // default 30m; 0 requires manual unlock
}

// MFAConfig controls the challenge machine and backup codes.
type MFAConfig struct {
	ChallengeTTL     time.Duration // default 15m
	CodeDigits       int           // default 6
	StepUpWindow     time.Duration // default 15m
	BackupCodeCount  int           // default 10
	BackupCodeLength int           // default 8
	IssuePerMin      float64       // default 2
	IssueBurst       int           // default 3
}

// DeviceConfig controls the trusted device registry.
type DeviceConfig struct {
	TrustTTL time.Duration // 0 means grants never expire by time
}

// PurgeConfig controls the background expiry sweeper.
type PurgeConfig struct {
	Interval time.Duration // default 1h; 0 disables the worker
}

// AuditConfig controls asynchronous audit event dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process metric collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the recommended production preset.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: token.MethodEd25519,
			Leeway:        30 * time.Second,
		},
		Refresh: RefreshConfig{
			TTL: 30 * 24 * time.Hour,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  30 * time.Minute,
		},
		MFA: MFAConfig{
			ChallengeTTL:     15 * time.Minute,
			CodeDigits:       6,
			StepUpWindow:     15 * time.Minute,
			BackupCodeCount:  10,
			BackupCodeLength: 8,
			IssuePerMin:      2,
			IssueBurst:       3,
		},
		Purge: PurgeConfig{
			Interval: time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for combinations the engine must
// refuse to start with.
func (c *Config) Validate() error {
	if len(c.Token.PrivateKey) == 0 {
		return errors.New("config: token signing key is required")
	}
	if c.Token.AccessTTL <= 0 {
		return errors.New("config: access token TTL must be positive")
	}
	if c.Token.AccessTTL > 24*time.Hour {
		return errors.New("config: access token TTL must stay short-lived")
	}
	if c.Refresh.TTL <= 0 {
		return errors.New("config: refresh token TTL must be positive")
	}
	if c.Refresh.TTL <= c.Token.AccessTTL {
		return errors.New("config: refresh token TTL must exceed access token TTL")
	}
	if c.Lockout.Threshold <= 0 {
		return errors.New("config: lockout threshold must be positive")
	}
	if c.Lockout.Duration < 0 {
		return errors.New("config: lockout duration must not be negative")
	}
	if c.MFA.ChallengeTTL <= 0 {
		return errors.New("config: challenge TTL must be positive")
	}
	if c.MFA.CodeDigits < 4 {
		return errors.New("config: challenge codes need at least 4 digits")
	}
	if c.MFA.StepUpWindow <= 0 {
		return errors.New("config: step-up window must be positive")
	}
	if c.MFA.BackupCodeCount < mfa.LowCodeThreshold {
		return errors.New("config: backup code count below the regeneration watermark")
	}
	if c.Device.TrustTTL < 0 {
		return errors.New("config: device trust TTL must not be negative")
	}
	return nil
}

func (c *Config) tokenConfig() token.Config {
	return token.Config{
		TTL:           c.Token.AccessTTL,
		SigningMethod: c.Token.SigningMethod,
		PrivateKey:    c.Token.PrivateKey,
		PublicKey:     c.Token.PublicKey,
		Issuer:        c.Token.Issuer,
		Leeway:        c.Token.Leeway,
	}
}

func (c *Config) mfaConfig() mfa.Config {
	return mfa.Config{
		ChallengeTTL: c.MFA.ChallengeTTL,
		CodeDigits:   c.MFA.CodeDigits,
		StepUpWindow: c.MFA.StepUpWindow,
		IssuePerMin:  c.MFA.IssuePerMin,
		IssueBurst:   c.MFA.IssueBurst,
	}
}
