package mfa

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

// Method identifies the delivery channel of a challenge.
type Method string

const (
	// MethodEmail delivers challenge codes by email.
	MethodEmail Method = "email"
	// MethodSMS delivers challenge codes by SMS.
	MethodSMS Method = "sms"
)

// Sender delivers a challenge code out of band. Implementations are
// external collaborators (SMTP relays, SMS gateways).
type Sender interface {
	Send(ctx context.Context, channel, recipient, payload string) error
}

// Challenge is returned by [Machine.Create]. Code is the plaintext
// one-time code, present only on this response; the store keeps a hash.
type Challenge struct {
	ID        string
	UserID    string
	Method    Method
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
	IPAddress string
	DeviceID  string
}

// Config holds challenge machine parameters.
type Config struct {
	ChallengeTTL time.Duration // default 15m
	CodeDigits   int           // default 6
	StepUpWindow time.Duration // default 15m
	IssuePerMin  float64       // per-identifier issuance throttle, default 2
	IssueBurst   int           // default 3
}

func (c *Config) applyDefaults() {
	if c.ChallengeTTL <= 0 {
		c.ChallengeTTL = 15 * time.Minute
	}
	if c.CodeDigits <= 0 {
		c.CodeDigits = 6
	}
	if c.StepUpWindow <= 0 {
		c.StepUpWindow = 15 * time.Minute
	}
	if c.IssuePerMin <= 0 {
		c.IssuePerMin = 2
	}
	if c.IssueBurst <= 0 {
		c.IssueBurst = 3
	}
}

// Machine issues, verifies, and expires one-time challenges. A
// challenge moves Issued -> Verified | Expired | Invalidated
// (superseded by a newer challenge for the same user and method).
type Machine struct {
	store    *ChallengeStore
	stepup   *StepUpTracker
	sender   Sender
	throttle *issueThrottle
	config   Config
}

// NewMachine creates a challenge machine. sender may be nil when the
// caller delivers codes itself.
func NewMachine(store *ChallengeStore, stepup *StepUpTracker, sender Sender, cfg Config) (*Machine, error) {
	if store == nil {
		return nil, errors.New("mfa challenge store is required")
	}
	cfg.applyDefaults()
	return &Machine{
		store:    store,
		stepup:   stepup,
		sender:   sender,
		throttle: newIssueThrottle(cfg.IssuePerMin, cfg.IssueBurst),
		config:   cfg,
	}, nil
}

// Create issues a new single-use challenge for userID and invalidates
// any prior unused challenge of the same method, preventing code reuse
// across attempts. recipient is the out-of-band delivery address.
func (m *Machine) Create(ctx context.Context, userID string, method Method, recipient, ipAddress, deviceID string) (*Challenge, error) {
	if userID == "" {
		return nil, ErrChallengeNotFound
	}
	if !m.throttle.Allow(userID) {
		return nil, ErrIssueThrottled
	}

	code, err := newNumericCode(m.config.CodeDigits)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ch := &Challenge{
		ID:        uuid.NewString(),
		UserID:    userID,
		Method:    method,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(m.config.ChallengeTTL),
		IPAddress: ipAddress,
		DeviceID:  deviceID,
	}

	record := &Record{
		UserID:    userID,
		Method:    method,
		CodeHash:  CodeHash(userID, code),
		CreatedAt: now.Unix(),
		ExpiresAt: ch.ExpiresAt.Unix(),
		IPAddress: ipAddress,
		DeviceID:  deviceID,
	}
	if err := m.store.Save(ctx, ch.ID, record, m.config.ChallengeTTL); err != nil {
		return nil, err
	}
	if err := m.store.SetCurrent(ctx, userID, method, ch.ID, m.config.ChallengeTTL); err != nil {
		_, _ = m.store.Delete(ctx, ch.ID)
		return nil, err
	}

	if m.sender != nil && recipient != "" {
		if err := m.sender.Send(ctx, string(method), recipient, code); err != nil {
			// Undeliverable challenges are withdrawn so the code can
			// never be guessed against a silent failure.
			_, _ = m.store.Delete(ctx, ch.ID)
			return nil, fmt.Errorf("challenge delivery failed: %w", err)
		}
	}
	return ch, nil
}

// Verify checks, in order: the challenge exists for userID, has not
// been used, has not expired, and the code matches in constant time.
// A match consumes the challenge atomically, so of two concurrent
// verifies with the correct code exactly one succeeds. A mismatch
// leaves the challenge valid for retry until expiry.
//
// The returned attempt count is nonzero only for mismatches, as a
// signal for anomaly detection.
func (m *Machine) Verify(ctx context.Context, challengeID, code, userID, ipAddress string) (int, error) {
	record, err := m.store.Get(ctx, challengeID)
	if err != nil {
		return 0, err
	}
	if record.UserID != userID {
		// Cross-user probes look identical to a missing challenge.
		return 0, ErrChallengeNotFound
	}
	if record.Used {
		return 0, ErrChallengeUsed
	}

	submitted := CodeHash(userID, code)
	if subtle.ConstantTimeCompare(submitted[:], record.CodeHash[:]) != 1 {
		attempts, recErr := m.store.RecordMismatch(ctx, challengeID)
		if recErr != nil && !errors.Is(recErr, ErrChallengeExpired) {
			return 0, recErr
		}
		return attempts, ErrCodeMismatch
	}

	if err := m.store.Consume(ctx, challengeID); err != nil {
		return 0, err
	}
	if m.stepup != nil {
		if err := m.stepup.MarkVerified(ctx, userID); err != nil {
			return 0, err
		}
	}
	return 0, nil
}

// RequiresStepUp reports whether userID must complete a fresh MFA
// verification before a sensitive operation. A successful verification
// within the configured window covers a short burst of sensitive
// actions without re-prompting.
func (m *Machine) RequiresStepUp(ctx context.Context, userID string) (bool, error) {
	if m.stepup == nil {
		return true, nil
	}
	recent, err := m.stepup.RecentlyVerified(ctx, userID)
	if err != nil {
		return true, err
	}
	return !recent, nil
}

// CodeHash derives the stored hash for a challenge or backup code,
// salted with the user id so equal codes hash differently per user.
func CodeHash(userID, code string) [32]byte {
	return sha256.Sum256([]byte(userID + ":" + canonicalizeCode(code)))
}

func newNumericCode(digits int) (string, error) {
	max := big.NewInt(10)
	code := make([]byte, digits)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = '0' + byte(n.Int64())
	}
	return string(code), nil
}
