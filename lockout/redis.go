package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const recordFailureScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local threshold = tonumber(ARGV[2])
local lock_ms = tonumber(ARGV[3])
local window_ms = tonumber(ARGV[4])

local lock_until = tonumber(redis.call("HGET", key, "until") or "0")
if lock_until > 0 and lock_until <= now then
  redis.call("DEL", key)
  lock_until = 0
end

local fails = redis.call("HINCRBY", key, "fails", 1)
if fails == 1 and window_ms > 0 then
  redis.call("PEXPIRE", key, window_ms)
end

if fails >= threshold and lock_until == 0 and lock_ms > 0 then
  lock_until = now + lock_ms
  redis.call("HSET", key, "until", lock_until)
  redis.call("PEXPIRE", key, lock_ms)
end

return {fails, lock_until}
`

var recordFailureLua = redis.NewScript(recordFailureScript)

// RedisStore is a Redis-backed [Store] for multi-worker deployments.
// The increment/threshold/lock sequence runs inside a single Lua
// script so concurrent failures for one identifier are linearized by
// the Redis server.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed store. prefix defaults to "alk".
func NewRedisStore(redisClient redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "alk"
	}
	return &RedisStore{redis: redisClient, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":" + id
}

// RecordFailure implements [Store].
func (s *RedisStore) RecordFailure(ctx context.Context, id string, threshold int, lockFor time.Duration) (State, error) {
	now := time.Now()
	windowMs := lockFor.Milliseconds()

	res, err := recordFailureLua.Run(ctx, s.redis, []string{s.key(id)},
		now.UnixMilli(), threshold, lockFor.Milliseconds(), windowMs).Int64Slice()
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) != 2 {
		return State{}, fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}

	st := State{Failures: int(res[0])}
	if res[1] > 0 {
		st.LockedUntil = time.UnixMilli(res[1])
	}
	return st, nil
}

// Get implements [Store].
func (s *RedisStore) Get(ctx context.Context, id string) (State, error) {
	vals, err := s.redis.HMGet(ctx, s.key(id), "fails", "until").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var st State
	if len(vals) == 2 {
		if fails, ok := vals[0].(string); ok {
			var n int64
			_, _ = fmt.Sscan(fails, &n)
			st.Failures = int(n)
		}
		if until, ok := vals[1].(string); ok {
			var ms int64
			_, _ = fmt.Sscan(until, &ms)
			if ms > 0 {
				st.LockedUntil = time.UnixMilli(ms)
			}
		}
	}
	return st, nil
}

// Clear implements [Store].
func (s *RedisStore) Clear(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
