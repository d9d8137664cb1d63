package lockout

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"
)

// ErrStoreUnavailable indicates the lockout backend is unreachable.
var ErrStoreUnavailable = errors.New("lockout backend unavailable")

// State is the derived lockout state for one identifier. A zero
// LockedUntil means the identifier is not under a timed lock.
type State struct {
	Failures    int
	LockedUntil time.Time
}

// Store persists per-identifier failure counters. Implementations must
// make RecordFailure atomic per identifier: concurrent failures may
// never under-count, and the threshold crossing must be observed by
// exactly one caller as the transition (Failures == threshold).
type Store interface {
	RecordFailure(ctx context.Context, id string, threshold int, lockFor time.Duration) (State, error)
	Get(ctx context.Context, id string) (State, error)
	Clear(ctx context.Context, id string) error
}

const memoryShardCount = 32

type memoryEntry struct {
	failures    int
	lockedUntil time.Time
}

type memoryShard struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// MemoryStore is a sharded in-memory [Store] for single-process
// deployments. Each shard is guarded by its own mutex, held only for
// the increment/compare, never across I/O.
type MemoryStore struct {
	shards [memoryShardCount]memoryShard
	now    func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*memoryEntry)
	}
	return s
}

func (s *MemoryStore) shard(id string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &s.shards[h.Sum32()%memoryShardCount]
}

// RecordFailure implements [Store].
func (s *MemoryStore) RecordFailure(_ context.Context, id string, threshold int, lockFor time.Duration) (State, error) {
	now := s.now()
	sh := s.shard(id)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e := sh.entries[id]
	if e == nil {
		e = &memoryEntry{}
		sh.entries[id] = e
	}
	if !e.lockedUntil.IsZero() && !e.lockedUntil.After(now) {
		// Elapsed lock: the counter resets fully before this failure counts.
		e.failures = 0
		e.lockedUntil = time.Time{}
	}
	e.failures++
	if e.failures >= threshold && e.lockedUntil.IsZero() && lockFor > 0 {
		e.lockedUntil = now.Add(lockFor)
	}
	return State{Failures: e.failures, LockedUntil: e.lockedUntil}, nil
}

// Get implements [Store].
func (s *MemoryStore) Get(_ context.Context, id string) (State, error) {
	sh := s.shard(id)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	e := sh.entries[id]
	if e == nil {
		return State{}, nil
	}
	return State{Failures: e.failures, LockedUntil: e.lockedUntil}, nil
}

// Clear implements [Store].
func (s *MemoryStore) Clear(_ context.Context, id string) error {
	sh := s.shard(id)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	delete(sh.entries, id)
	return nil
}
