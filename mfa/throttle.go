package mfa

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const throttlePruneAfter = 30 * time.Minute

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// issueThrottle is an in-process per-identifier token bucket guarding
// challenge issuance against delivery-channel abuse. It complements,
// not replaces, the external request throttle.
type issueThrottle struct {
	mu      sync.Mutex
	entries map[string]*throttleEntry
	limit   rate.Limit
	burst   int
}

func newIssueThrottle(perMin float64, burst int) *issueThrottle {
	return &issueThrottle{
		entries: make(map[string]*throttleEntry),
		limit:   rate.Limit(perMin / 60.0),
		burst:   burst,
	}
}

func (t *issueThrottle) Allow(id string) bool {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entries[id]
	if e == nil {
		e = &throttleEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.entries[id] = e
	}
	e.lastSeen = now

	if len(t.entries) > 1024 {
		t.pruneLocked(now)
	}
	return e.limiter.Allow()
}

func (t *issueThrottle) pruneLocked(now time.Time) {
	for id, e := range t.entries {
		if now.Sub(e.lastSeen) > throttlePruneAfter {
			delete(t.entries, id)
		}
	}
}
