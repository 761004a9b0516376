// Package autotrigger watches newly seen items for groups that accumulate
// enough distinct members inside a short window, and selects the oldest
// member for a one-shot action.
package autotrigger

import (
	"context"
	"fmt"
	"time"

	"github.com/wfce/gmgn-filter/internal/leader"
	"github.com/wfce/gmgn-filter/internal/model"
)

// Executor performs the action for a selected target.
type Executor interface {
	Execute(ctx context.Context, target model.Target) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, target model.Target) error

func (f ExecutorFunc) Execute(ctx context.Context, target model.Target) error {
	return f(ctx, target)
}

// Config controls episode detection.
type Config struct {
	TimeWindow    time.Duration
	MinDuplicates int
	TieBreak      leader.TieBreak
	// HistoryMaxAge bounds how long an idle history survives Sweep.
	HistoryMaxAge time.Duration
}

// DefaultConfig returns the detection defaults.
func DefaultConfig() Config {
	return Config{
		TimeWindow:    10 * time.Second,
		MinDuplicates: 2,
		TieBreak:      leader.TieBreakLargerPosition,
		HistoryMaxAge: 5 * time.Minute,
	}
}

// Observation is one sighting of a new item under a group key.
type Observation struct {
	Identity  model.Identity
	RecencyMs *int64
	Position  int
	At        time.Time
}

// SkipReason explains why a detected episode did not produce an action.
type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipLocked    SkipReason = "locked"
	SkipPurchased SkipReason = "purchased"
)

// Outcome is returned when an observation crosses the threshold. The
// episode is consumed either way; Fire reports whether the caller now
// holds the global lock and must execute Target.
type Outcome struct {
	Target model.Target
	Skip   SkipReason
}

// Fire reports whether the action should run.
func (o *Outcome) Fire() bool {
	return o != nil && o.Skip == SkipNone
}

// Engine holds per-key histories, fired keys, the purchased set and the
// global action lock. It is not safe for concurrent use.
type Engine struct {
	cfg Config

	history   map[string][]Observation
	fired     map[string]struct{}
	purchased map[model.Identity]struct{}
	locked    bool
}

// New returns an empty engine. MinDuplicates below 2 is raised to 2; a
// single item is never a duplicate.
func New(cfg Config) *Engine {
	if cfg.MinDuplicates < 2 {
		cfg.MinDuplicates = 2
	}
	if cfg.HistoryMaxAge <= 0 {
		cfg.HistoryMaxAge = DefaultConfig().HistoryMaxAge
	}
	e := &Engine{cfg: cfg}
	e.Reset()
	return e
}

// Config returns the active configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Observe records a new item under each of its keys that has not fired.
// At most one episode is consumed per observation.
func (e *Engine) Observe(now time.Time, it model.Item) *Outcome {
	obs := Observation{
		Identity:  it.Identity,
		RecencyMs: it.RecencyMs,
		Position:  it.Position,
		At:        now,
	}

	for _, key := range it.Keys {
		if _, done := e.fired[key]; done {
			continue
		}

		hist := prune(append(e.history[key], obs), now, e.cfg.TimeWindow)
		distinct := countDistinct(hist)
		if distinct < e.cfg.MinDuplicates {
			e.history[key] = hist
			continue
		}

		win := e.winner(hist)
		e.fired[key] = struct{}{}
		delete(e.history, key)

		out := &Outcome{Target: model.Target{
			Identity:  win.Identity,
			Key:       key,
			RecencyMs: win.RecencyMs,
			Position:  win.Position,
			Distinct:  distinct,
		}}
		switch {
		case e.locked:
			out.Skip = SkipLocked
		case e.Purchased(win.Identity):
			out.Skip = SkipPurchased
		default:
			e.locked = true
		}
		return out
	}
	return nil
}

// prune drops observations older than window, preserving order.
func prune(hist []Observation, now time.Time, window time.Duration) []Observation {
	kept := hist[:0]
	for _, o := range hist {
		if now.Sub(o.At) <= window {
			kept = append(kept, o)
		}
	}
	return kept
}

func countDistinct(hist []Observation) int {
	seen := make(map[model.Identity]struct{}, len(hist))
	for _, o := range hist {
		seen[o.Identity] = struct{}{}
	}
	return len(seen)
}

// winner picks the oldest observation. Observations without recency only
// win against each other.
func (e *Engine) winner(hist []Observation) Observation {
	best := hist[0]
	for _, o := range hist[1:] {
		if e.before(o, best) {
			best = o
		}
	}
	return best
}

func (e *Engine) before(a, b Observation) bool {
	switch {
	case a.RecencyMs != nil && b.RecencyMs == nil:
		return true
	case a.RecencyMs == nil && b.RecencyMs != nil:
		return false
	}
	ra := leader.Record{Leader: a.Identity, Position: a.Position}
	rb := leader.Record{Leader: b.Identity, Position: b.Position}
	if a.RecencyMs != nil {
		ra.RecencyMs, rb.RecencyMs = *a.RecencyMs, *b.RecencyMs
	}
	return leader.Earlier(ra, rb, e.cfg.TieBreak)
}

// Locked reports whether an action is in flight or cooling down.
func (e *Engine) Locked() bool {
	return e.locked
}

// Release frees the global lock after the cool-down.
func (e *Engine) Release() {
	e.locked = false
}

// Complete records the result of an action. Only a success adds the
// target to the purchased set; a failure leaves later episodes free to
// retry.
func (e *Engine) Complete(target model.Target, ok bool) {
	if ok {
		e.purchased[target.Identity] = struct{}{}
	}
}

// Purchased reports whether id was already acted upon.
func (e *Engine) Purchased(id model.Identity) bool {
	_, ok := e.purchased[id]
	return ok
}

// Fired reports whether key's episode already fired.
func (e *Engine) Fired(key string) bool {
	_, ok := e.fired[key]
	return ok
}

// Pending returns the number of observations held for key.
func (e *Engine) Pending(key string) int {
	return len(e.history[key])
}

// Sweep drops histories whose newest observation is older than
// HistoryMaxAge, along with any history left under a fired key.
func (e *Engine) Sweep(now time.Time) int {
	removed := 0
	for key, hist := range e.history {
		_, fired := e.fired[key]
		if fired || len(hist) == 0 || now.Sub(hist[len(hist)-1].At) > e.cfg.HistoryMaxAge {
			delete(e.history, key)
			removed++
		}
	}
	return removed
}

// Stats summarizes engine state for status displays.
type Stats struct {
	Keys      int
	Fired     int
	Purchased int
	Locked    bool
}

func (s Stats) String() string {
	return fmt.Sprintf("keys=%d fired=%d purchased=%d locked=%t", s.Keys, s.Fired, s.Purchased, s.Locked)
}

// Stats returns current counts.
func (e *Engine) Stats() Stats {
	return Stats{
		Keys:      len(e.history),
		Fired:     len(e.fired),
		Purchased: len(e.purchased),
		Locked:    e.locked,
	}
}

// Reset clears histories, fired keys, the purchased set and the lock.
func (e *Engine) Reset() {
	e.history = make(map[string][]Observation)
	e.fired = make(map[string]struct{})
	e.purchased = make(map[model.Identity]struct{})
	e.locked = false
}
