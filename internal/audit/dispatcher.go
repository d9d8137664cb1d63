package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering. A zero Config produces a nil
// dispatcher, which every method treats as a no-op.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher forwards security events to a Sink from a single
// background goroutine so sink latency never shows up on the
// authentication hot path. With DropIfFull set, events are shed
// rather than queued when the buffer is saturated; Dropped reports
// how many were lost.
type Dispatcher struct {
	sink       Sink
	events     chan Event
	quit       chan struct{}
	dropIfFull bool

	// deliverCtx is handed to every sink.Emit and cancelled by Close,
	// so a stalled sink can never hang shutdown.
	deliverCtx context.Context
	cancel     context.CancelFunc

	dropped  atomic.Uint64
	stopping atomic.Bool
	stop     sync.Once
	drained  sync.WaitGroup
}

// NewDispatcher starts the forwarding goroutine. It returns nil when
// auditing is disabled; callers emit through the nil receiver safely.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}

	d := &Dispatcher{
		sink:       sink,
		events:     make(chan Event, size),
		quit:       make(chan struct{}),
		dropIfFull: cfg.DropIfFull,
	}
	d.deliverCtx, d.cancel = context.WithCancel(context.Background())
	d.drained.Add(1)
	go d.forward()
	return d
}

func (d *Dispatcher) forward() {
	defer d.drained.Done()
	for {
		select {
		case ev := <-d.events:
			d.sink.Emit(d.deliverCtx, ev)
		case <-d.quit:
			d.flush()
			return
		}
	}
}

// flush offers whatever is still buffered at shutdown. The delivery
// context is already cancelled by then, so a sink that honors it may
// discard rather than deliver.
func (d *Dispatcher) flush() {
	for {
		select {
		case ev := <-d.events:
			d.sink.Emit(d.deliverCtx, ev)
		default:
			return
		}
	}
}

// Emit queues an event for delivery. It never blocks when DropIfFull
// is configured; otherwise it waits until the buffer accepts the
// event, the context ends, or the dispatcher shuts down.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.stopping.Load() {
		return
	}

	if d.dropIfFull {
		select {
		case d.events <- ev:
		case <-d.quit:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.events <- ev:
	case <-ctx.Done():
	case <-d.quit:
	}
}

// Close stops intake, cancels any in-flight sink delivery, drains the
// buffer, and waits for the forwarding goroutine to exit. It returns
// even when the sink's consumer is gone. Safe to call more than once
// and on a nil dispatcher.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stop.Do(func() {
		d.stopping.Store(true)
		d.cancel()
		close(d.quit)
		d.drained.Wait()
	})
}

// Dropped reports how many events were shed because the buffer was
// full.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
