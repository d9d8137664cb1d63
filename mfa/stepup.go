package mfa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StepUpTracker records recent successful MFA verifications so a
// single confirmation covers a short burst of sensitive operations.
// The marker lives in Redis with a TTL equal to the step-up window,
// making it visible to every worker.
type StepUpTracker struct {
	redis  redis.UniversalClient
	prefix string
	window time.Duration
}

// NewStepUpTracker creates a tracker. prefix defaults to "asu",
// window to 15 minutes.
func NewStepUpTracker(redisClient redis.UniversalClient, prefix string, window time.Duration) *StepUpTracker {
	if prefix == "" {
		prefix = "asu"
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &StepUpTracker{redis: redisClient, prefix: prefix, window: window}
}

func (t *StepUpTracker) key(userID string) string {
	return t.prefix + ":" + userID
}

// MarkVerified records a successful verification for userID.
func (t *StepUpTracker) MarkVerified(ctx context.Context, userID string) error {
	if err := t.redis.Set(ctx, t.key(userID), time.Now().Unix(), t.window).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}

// RecentlyVerified reports whether userID verified within the window.
func (t *StepUpTracker) RecentlyVerified(ctx context.Context, userID string) (bool, error) {
	err := t.redis.Get(ctx, t.key(userID)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return true, nil
}

// Invalidate drops the recent-verification marker, forcing the next
// sensitive operation to re-verify.
func (t *StepUpTracker) Invalidate(ctx context.Context, userID string) error {
	if err := t.redis.Del(ctx, t.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrChallengeBackend, err)
	}
	return nil
}
