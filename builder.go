package authguard

import (
	"database/sql"
	"errors"

	"github.com/coreledger/authguard/alert"
	"github.com/coreledger/authguard/attempt"
	"github.com/coreledger/authguard/device"
	"github.com/coreledger/authguard/internal/audit"
	"github.com/coreledger/authguard/lockout"
	"github.com/coreledger/authguard/mfa"
	"github.com/coreledger/authguard/rbac"
	"github.com/coreledger/authguard/refresh"
	"github.com/coreledger/authguard/store/pg"
	"github.com/coreledger/authguard/token"
	"github.com/redis/go-redis/v9"
)

const (
	lockoutKeyPrefix   = "authguard:lockout"
	challengeKeyPrefix = "authguard:mfa"
	stepupKeyPrefix    = "authguard:stepup"
)

// Builder assembles an [Engine]. Configure it during initialization;
// a builder is single-use and Build refuses a second call.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	db     *sql.DB

	users      CredentialStore
	roleSource rbac.Source
	sender     mfa.Sender
	auditSink  audit.Sink

	lockoutStore lockout.Store
	refreshStore refresh.Store
	deviceStore  device.Store
	alertStore   alert.Store
	attemptStore attempt.Store
	backupStore  mfa.BackupCodeStore

	built bool
}

// New returns a builder preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis supplies the Redis client backing challenges, step-up
// windows, and the brute-force guard. Without one the guard falls
// back to process-local memory and MFA is unavailable.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithDB supplies the SQL pool backing refresh tokens, trusted
// devices, alerts, login attempts, and backup codes.
func (b *Builder) WithDB(db *sql.DB) *Builder {
	b.db = db
	return b
}

// WithCredentialStore supplies the application's user lookup.
func (b *Builder) WithCredentialStore(users CredentialStore) *Builder {
	b.users = users
	return b
}

// WithRoleSource supplies the role definitions consulted by
// authorization checks.
func (b *Builder) WithRoleSource(source rbac.Source) *Builder {
	b.roleSource = source
	return b
}

// WithSender supplies the out-of-band code delivery channel.
func (b *Builder) WithSender(sender mfa.Sender) *Builder {
	b.sender = sender
	return b
}

// WithAuditSink supplies the destination for audit events. Without
// one, audit dispatch is a no-op even when enabled.
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.auditSink = sink
	return b
}

// WithLockoutStore overrides the guard's counter store.
func (b *Builder) WithLockoutStore(store lockout.Store) *Builder {
	b.lockoutStore = store
	return b
}

// WithRefreshStore overrides the refresh token store.
func (b *Builder) WithRefreshStore(store refresh.Store) *Builder {
	b.refreshStore = store
	return b
}

// WithDeviceStore overrides the trusted device store.
func (b *Builder) WithDeviceStore(store device.Store) *Builder {
	b.deviceStore = store
	return b
}

// WithAlertStore overrides the security alert store.
func (b *Builder) WithAlertStore(store alert.Store) *Builder {
	b.alertStore = store
	return b
}

// WithAttemptStore overrides the login attempt store.
func (b *Builder) WithAttemptStore(store attempt.Store) *Builder {
	b.attemptStore = store
	return b
}

// WithBackupCodeStore overrides the backup code store.
func (b *Builder) WithBackupCodeStore(store mfa.BackupCodeStore) *Builder {
	b.backupStore = store
	return b
}

// Build validates the configuration, wires every component, and
// starts the purge worker. The builder cannot be reused.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.users == nil {
		return nil, errors.New("credential store required")
	}
	if b.roleSource == nil {
		return nil, errors.New("role source required")
	}
	if err := b.resolveStores(); err != nil {
		return nil, err
	}

	codec, err := token.NewCodec(b.config.tokenConfig())
	if err != nil {
		return nil, err
	}
	evaluator, err := rbac.NewEvaluator(b.roleSource)
	if err != nil {
		return nil, err
	}
	guard, err := lockout.NewGuard(b.lockoutStore, lockout.Config{
		Threshold: b.config.Lockout.Threshold,
		Duration:  b.config.Lockout.Duration,
	})
	if err != nil {
		return nil, err
	}

	var (
		machine *mfa.Machine
		stepup  *mfa.StepUpTracker
	)
	if b.redis != nil {
		stepup = mfa.NewStepUpTracker(b.redis, stepupKeyPrefix, b.config.MFA.StepUpWindow)
		machine, err = mfa.NewMachine(
			mfa.NewChallengeStore(b.redis, challengeKeyPrefix),
			stepup,
			b.sender,
			b.config.mfaConfig(),
		)
		if err != nil {
			return nil, err
		}
	}

	backup, err := mfa.NewBackupCodes(b.backupStore, b.config.MFA.BackupCodeCount, b.config.MFA.BackupCodeLength)
	if err != nil {
		return nil, err
	}
	devices, err := device.NewRegistry(b.deviceStore, device.Config{TrustTTL: b.config.Device.TrustTTL})
	if err != nil {
		return nil, err
	}
	refreshMgr, err := refresh.NewManager(b.refreshStore, refresh.Config{TTL: b.config.Refresh.TTL})
	if err != nil {
		return nil, err
	}
	alerts, err := alert.NewSink(b.alertStore)
	if err != nil {
		return nil, err
	}
	attempts, err := attempt.NewRecorder(b.attemptStore)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    b.config,
		codec:     codec,
		evaluator: evaluator,
		guard:     guard,
		machine:   machine,
		backup:    backup,
		stepup:    stepup,
		devices:   devices,
		refresh:   refreshMgr,
		alerts:    alerts,
		attempts:  attempts,
		users:     b.users,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    b.config.Audit.Enabled,
			BufferSize: b.config.Audit.BufferSize,
			DropIfFull: b.config.Audit.DropIfFull,
		}, b.auditSink),
		metrics: NewMetrics(b.config.Metrics),
	}
	engine.startPurge()

	b.built = true
	return engine, nil
}

// resolveStores fills in any store not explicitly overridden from the
// SQL pool and Redis client the caller supplied.
func (b *Builder) resolveStores() error {
	if b.db != nil {
		facets := pg.NewStore(b.db)
		if b.refreshStore == nil {
			b.refreshStore = facets.RefreshTokens()
		}
		if b.deviceStore == nil {
			b.deviceStore = facets.TrustedDevices()
		}
		if b.alertStore == nil {
			b.alertStore = facets.Alerts()
		}
		if b.attemptStore == nil {
			b.attemptStore = facets.LoginAttempts()
		}
		if b.backupStore == nil {
			b.backupStore = facets.BackupCodes()
		}
	}
	switch {
	case b.refreshStore == nil:
		return errors.New("refresh token store required: supply a database or an override")
	case b.deviceStore == nil:
		return errors.New("device store required: supply a database or an override")
	case b.alertStore == nil:
		return errors.New("alert store required: supply a database or an override")
	case b.attemptStore == nil:
		return errors.New("attempt store required: supply a database or an override")
	case b.backupStore == nil:
		return errors.New("backup code store required: supply a database or an override")
	}
	if b.lockoutStore == nil {
		if b.redis != nil {
			b.lockoutStore = lockout.NewRedisStore(b.redis, lockoutKeyPrefix)
		} else {
			b.lockoutStore = lockout.NewMemoryStore()
		}
	}
	return nil
}
