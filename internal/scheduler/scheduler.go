// Package scheduler coalesces scan triggers into rate-limited,
// non-overlapping scan cycles.
//
// Scheduler is a pure state machine. It never sleeps or starts timers; it
// returns a Plan and the caller arranges for Begin to be invoked when the
// plan says so. Every scan is stamped with a generation so continuations
// that outlive a reset can tell they are stale.
package scheduler

import (
	"fmt"
	"time"
)

// DefaultMinInterval is the minimum spacing between completed scans.
const DefaultMinInterval = 80 * time.Millisecond

// State is the scheduler's lifecycle position.
type State int

const (
	Idle State = iota
	Scheduled
	Running
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scheduled:
		return "scheduled"
	case Running:
		return "running"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Action tells the caller what to do with a trigger.
type Action int

const (
	// Noop: a scan is already scheduled; the trigger was absorbed.
	Noop Action = iota
	// RunNow: begin a scan on the next loop turn.
	RunNow
	// RunAfter: begin a scan after Plan.Delay.
	RunAfter
	// Deferred: a scan is running; one follow-up will be planned by Finish.
	Deferred
)

func (a Action) String() string {
	switch a {
	case Noop:
		return "noop"
	case RunNow:
		return "run-now"
	case RunAfter:
		return "run-after"
	case Deferred:
		return "deferred"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Plan is the scheduler's answer to a trigger.
type Plan struct {
	Action Action
	Delay  time.Duration
}

// Starts reports whether the caller must arrange a scan.
func (p Plan) Starts() bool {
	return p.Action == RunNow || p.Action == RunAfter
}

// Scheduler is not safe for concurrent use.
type Scheduler struct {
	minInterval time.Duration

	state    State
	pending  bool
	gen      uint64
	lastDone time.Time
}

// New returns an idle scheduler. A negative interval is treated as zero.
func New(minInterval time.Duration) *Scheduler {
	if minInterval < 0 {
		minInterval = 0
	}
	return &Scheduler{minInterval: minInterval}
}

// SetMinInterval changes the spacing used by later plans.
func (s *Scheduler) SetMinInterval(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.minInterval = d
}

// Trigger records that the input may have changed.
func (s *Scheduler) Trigger(now time.Time) Plan {
	switch s.state {
	case Running:
		s.pending = true
		return Plan{Action: Deferred}
	case Scheduled:
		return Plan{Action: Noop}
	}
	s.state = Scheduled
	return s.plan(now)
}

// plan computes the delay that fills the minimum interval since the last
// completed scan.
func (s *Scheduler) plan(now time.Time) Plan {
	if s.lastDone.IsZero() {
		return Plan{Action: RunNow}
	}
	wait := s.minInterval - now.Sub(s.lastDone)
	if wait <= 0 {
		return Plan{Action: RunNow}
	}
	return Plan{Action: RunAfter, Delay: wait}
}

// Begin starts a scan and returns its generation. It returns false when
// no scan is scheduled, which happens when a timer fires after a reset.
func (s *Scheduler) Begin() (uint64, bool) {
	if s.state != Scheduled {
		return 0, false
	}
	s.state = Running
	s.gen++
	return s.gen, true
}

// Finish completes the scan stamped gen. When triggers arrived while it
// ran, exactly one follow-up is scheduled and its plan returned. A stale
// gen changes nothing and reports false.
func (s *Scheduler) Finish(now time.Time, gen uint64) (Plan, bool) {
	if s.state != Running || gen != s.gen {
		return Plan{}, false
	}
	s.lastDone = now
	s.state = Idle
	if !s.pending {
		return Plan{Action: Noop}, true
	}
	s.pending = false
	s.state = Scheduled
	return s.plan(now), true
}

// Invalidate abandons any scheduled or running scan. In-flight work
// stamped with an older generation becomes stale.
func (s *Scheduler) Invalidate() {
	s.gen++
	s.state = Idle
	s.pending = false
}

// Current returns the latest generation.
func (s *Scheduler) Current() uint64 {
	return s.gen
}

// IsCurrent reports whether gen belongs to the scan in progress.
func (s *Scheduler) IsCurrent(gen uint64) bool {
	return s.state == Running && gen == s.gen
}

// State returns the lifecycle position.
func (s *Scheduler) State() State {
	return s.state
}

// Pending reports whether a follow-up was requested during the running
// scan.
func (s *Scheduler) Pending() bool {
	return s.pending
}
