// Package feed supplies the engine with complete listing snapshots.
//
// A Source must return whole snapshots. A partially rendered column looks
// to the engine like a real change in leadership and weakens the anti
// flicker guarantees.
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wfce/gmgn-filter/internal/model"
)

// ErrNoSnapshot is returned by sources with nothing to show yet.
var ErrNoSnapshot = errors.New("feed: no snapshot available")

// Column is one independently scrolling list.
type Column struct {
	ID string
	// Primary marks the column whose new items feed auto-trigger.
	Primary bool
	Items   []model.Item
}

// Snapshot is the state of every column at one instant.
type Snapshot struct {
	Columns []Column
	At      time.Time
}

// Source produces snapshots on demand.
type Source interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (Snapshot, error)

func (f SourceFunc) Snapshot(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

// Static serves whatever snapshot was last stored. Safe for concurrent
// use.
type Static struct {
	mu   sync.RWMutex
	snap *Snapshot
}

// NewStatic returns a source holding snap.
func NewStatic(snap Snapshot) *Static {
	s := &Static{}
	s.Set(snap)
	return s
}

// Set replaces the served snapshot.
func (s *Static) Set(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = &snap
}

// Snapshot implements Source.
func (s *Static) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return Snapshot{}, ErrNoSnapshot
	}
	return *s.snap, nil
}
