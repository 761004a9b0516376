// Package hysteresis stabilizes first/duplicate classifications across
// scans. A confirmed classification is held for a fixed duration and only
// flips from first to duplicate when the scan in progress names a
// different leader for one of the item's keys.
package hysteresis

import (
	"time"

	"github.com/wfce/gmgn-filter/internal/leader"
	"github.com/wfce/gmgn-filter/internal/model"
)

// DefaultDuration is the lock duration used when none is configured.
const DefaultDuration = 2000 * time.Millisecond

// State is the locked classification of one identity.
type State struct {
	Identity    model.Identity
	IsFirst     bool
	ConfirmedAt time.Time
	Keys        []string
}

// Outcome describes how Classify arrived at its answer.
type Outcome int

const (
	// Accepted means the computed value was taken and the lock (re)armed.
	Accepted Outcome = iota
	// Retained means a first→duplicate flip lacked evidence and the locked
	// value was kept.
	Retained
)

// Lock holds per-identity states. It is not safe for concurrent use; the
// engine loop is its only caller.
type Lock struct {
	duration time.Duration
	states   map[model.Identity]*State
}

// New returns a lock holding classifications for d. A non-positive d
// selects DefaultDuration.
func New(d time.Duration) *Lock {
	if d <= 0 {
		d = DefaultDuration
	}
	return &Lock{duration: d, states: make(map[model.Identity]*State)}
}

// Duration returns the configured lock duration.
func (l *Lock) Duration() time.Duration {
	return l.duration
}

// Classify returns the final classification for id given the value
// computed from the current scan. evidence is the build index of that scan.
// When the locked value is retained, State reports the locked keys.
func (l *Lock) Classify(now time.Time, id model.Identity, keys []string, computed bool, evidence *leader.Index) (bool, Outcome, *State) {
	st, ok := l.states[id]
	if !ok || now.Sub(st.ConfirmedAt) >= l.duration {
		return computed, Accepted, l.confirm(now, id, keys, computed)
	}

	if st.IsFirst == computed || computed {
		// Agreement refreshes; duplicate→first is always taken.
		return computed, Accepted, l.confirm(now, id, keys, computed)
	}

	// first→duplicate needs a rival leader in the same scan.
	if _, rival := evidence.Rival(id, keys); rival {
		return computed, Accepted, l.confirm(now, id, keys, computed)
	}

	return st.IsFirst, Retained, st
}

func (l *Lock) confirm(now time.Time, id model.Identity, keys []string, isFirst bool) *State {
	st := &State{
		Identity:    id,
		IsFirst:     isFirst,
		ConfirmedAt: now,
		Keys:        append([]string(nil), keys...),
	}
	l.states[id] = st
	return st
}

// Get returns the locked state for id, if any.
func (l *Lock) Get(id model.Identity) (State, bool) {
	st, ok := l.states[id]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Sweep deletes states confirmed more than twice the lock duration ago and
// returns how many were removed.
func (l *Lock) Sweep(now time.Time) int {
	grace := 2 * l.duration
	removed := 0
	for id, st := range l.states {
		if now.Sub(st.ConfirmedAt) > grace {
			delete(l.states, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of held states.
func (l *Lock) Len() int {
	return len(l.states)
}

// Reset drops every state.
func (l *Lock) Reset() {
	l.states = make(map[model.Identity]*State)
}
