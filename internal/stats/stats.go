// Package stats batches detection and action counters and persists them
// through a Store after a quiet period.
package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/wfce/gmgn-filter/internal/logging"
)

// DefaultDelay is the debounce period before pending counters are flushed.
const DefaultDelay = 5 * time.Second

// Kind is a countable event.
type Kind string

const (
	KindDetection Kind = "detection"
	KindAutoBuy   Kind = "auto_buy"
)

// Counters holds increments not yet persisted.
type Counters struct {
	Detections int64
	AutoBuys   int64
}

// Add folds o into c.
func (c *Counters) Add(o Counters) {
	c.Detections += o.Detections
	c.AutoBuys += o.AutoBuys
}

// IsZero reports whether there is nothing to persist.
func (c Counters) IsZero() bool {
	return c.Detections == 0 && c.AutoBuys == 0
}

// Store persists counter increments. Implementations must apply an
// increment entirely or not at all, so a failed call can be retried.
type Store interface {
	Increment(ctx context.Context, c Counters) error
}

// FlushFunc observes every flush attempt that had something to persist.
type FlushFunc func(c Counters, err error)

// Aggregator debounces counter writes. Record is cheap and safe to call
// from any goroutine.
type Aggregator struct {
	store   Store
	clock   clockwork.Clock
	delay   time.Duration
	onFlush FlushFunc

	mu      sync.Mutex
	pending Counters
	timer   clockwork.Timer
	closed  bool
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock sets the clock driving the debounce timer.
func WithClock(c clockwork.Clock) Option {
	return func(a *Aggregator) { a.clock = c }
}

// WithDelay sets the debounce period.
func WithDelay(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.delay = d
		}
	}
}

// WithFlushFunc registers a hook called after each flush attempt.
func WithFlushFunc(fn FlushFunc) Option {
	return func(a *Aggregator) { a.onFlush = fn }
}

// NewAggregator returns an aggregator writing to store.
func NewAggregator(store Store, opts ...Option) *Aggregator {
	a := &Aggregator{
		store: store,
		clock: clockwork.NewRealClock(),
		delay: DefaultDelay,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Record adds one event of kind and restarts the flush delay.
func (a *Aggregator) Record(kind Kind) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch kind {
	case KindDetection:
		a.pending.Detections++
	case KindAutoBuy:
		a.pending.AutoBuys++
	default:
		logging.Warn("stats: unknown kind", "kind", kind)
		return
	}
	a.armLocked()
}

func (a *Aggregator) armLocked() {
	if a.closed {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timer = a.clock.AfterFunc(a.delay, a.flushDeferred)
}

// flushDeferred runs on the timer goroutine. A failed flush keeps the
// counters and re-arms the timer.
func (a *Aggregator) flushDeferred() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.Flush(ctx); err != nil {
		logging.Warn("stats flush failed, will retry", "error", err)
		a.mu.Lock()
		a.armLocked()
		a.mu.Unlock()
	}
}

// Flush persists the pending counters now. On failure the snapshot is
// added back to whatever accumulated meanwhile.
func (a *Aggregator) Flush(ctx context.Context) error {
	a.mu.Lock()
	snap := a.pending
	a.pending = Counters{}
	a.mu.Unlock()

	if snap.IsZero() {
		return nil
	}

	err := a.store.Increment(ctx, snap)
	if err != nil {
		a.mu.Lock()
		a.pending.Add(snap)
		a.mu.Unlock()
		err = fmt.Errorf("stats flush: %w", err)
	} else {
		logging.Debug("stats flushed", "detections", snap.Detections, "auto_buys", snap.AutoBuys)
	}

	if a.onFlush != nil {
		a.onFlush(snap, err)
	}
	return err
}

// Pending returns the counters not yet persisted.
func (a *Aggregator) Pending() Counters {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

// Close stops the timer and makes a final flush attempt.
func (a *Aggregator) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()

	return a.Flush(ctx)
}
