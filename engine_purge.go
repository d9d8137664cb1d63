package authguard

import (
	"context"
	"time"

	"github.com/coreledger/authguard/internal/audit"
)

// startPurge launches the background sweeper that removes expired
// refresh tokens and lapsed device trust grants. Challenges and
// step-up windows expire on their own through key TTLs. No-op when
// the purge interval is zero.
func (e *Engine) startPurge() {
	if e.config.Purge.Interval <= 0 {
		return
	}
	e.purgeStop = make(chan struct{})
	e.purgeWG.Add(1)
	go func() {
		defer e.purgeWG.Done()
		ticker := time.NewTicker(e.config.Purge.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.purgeSweep(context.Background())
			case <-e.purgeStop:
				return
			}
		}
	}()
}

func (e *Engine) stopPurge() {
	if e.purgeStop == nil {
		return
	}
	e.purgeOnce.Do(func() {
		close(e.purgeStop)
	})
	e.purgeWG.Wait()
}

// PurgeNow runs one sweep immediately and reports rows removed.
func (e *Engine) PurgeNow(ctx context.Context) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}
	return e.purgeSweep(ctx), nil
}

func (e *Engine) purgeSweep(ctx context.Context) int {
	total := 0
	if e.refresh != nil {
		if n, err := e.refresh.PurgeExpired(ctx); err == nil {
			total += n
		} else {
			e.emit(ctx, AuditEvent{EventType: audit.EventPurge, Error: err.Error()})
		}
	}
	if e.devices != nil {
		if n, err := e.devices.PurgeExpired(ctx); err == nil {
			total += n
		} else {
			e.emit(ctx, AuditEvent{EventType: audit.EventPurge, Error: err.Error()})
		}
	}
	if total > 0 {
		e.metrics.Add(MetricPurgeDeleted, uint64(total))
	}
	return total
}
