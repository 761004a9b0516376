package engine

import (
	"time"

	"github.com/wfce/gmgn-filter/internal/autotrigger"
	"github.com/wfce/gmgn-filter/internal/config"
	"github.com/wfce/gmgn-filter/internal/feed"
	"github.com/wfce/gmgn-filter/internal/leader"
	"github.com/wfce/gmgn-filter/internal/model"
	"github.com/wfce/gmgn-filter/internal/scheduler"
)

// Class is an item's classification within its group.
type Class int

const (
	// Unclassified items produced no group key and are never hidden.
	Unclassified Class = iota
	First
	Duplicate
)

func (c Class) String() string {
	switch c {
	case First:
		return "first"
	case Duplicate:
		return "duplicate"
	}
	return "unclassified"
}

// Decision is the engine's verdict for one item in one scan.
type Decision struct {
	Item  model.Item
	Class Class
	Hide  bool
	// Leader is the earlier item of the group, set only for duplicates.
	Leader *model.Identity
	// Retained is true when the lock overrode a computed duplicate.
	Retained bool
}

// Frame carries one column's decisions to the presentation layer.
type Frame struct {
	Column     string
	Primary    bool
	Generation uint64
	At         time.Time
	Decisions  []Decision
	// Index is the render index published with this frame. Nil in the
	// empty frames sent on reset.
	Index *leader.Index
}

// Presenter receives frames from the engine loop. Present must not block
// for long; it runs on the loop goroutine.
type Presenter interface {
	Present(Frame)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(Frame)

func (f PresenterFunc) Present(fr Frame) { f(fr) }

// Status is a point-in-time summary of loop-owned state.
type Status struct {
	Enabled     bool
	AutoBuy     bool
	State       scheduler.State
	Generation  uint64
	Epoch       uint64
	Columns     int
	Locks       int
	Scans       int
	LastScan    time.Time
	AutoTrigger autotrigger.Stats
}

// columnState is the per-column memory carried between scans.
type columnState struct {
	buf     leader.Buffer
	known   map[model.Identity]struct{}
	scanned bool
}

// event is anything the loop reacts to.
type event interface{}

type evTrigger struct {
	src scheduler.Source
}

type evDebounced struct {
	src   scheduler.Source
	seq   uint64
	epoch uint64
}

type evScanDue struct {
	epoch uint64
}

type evSnapshot struct {
	gen     uint64
	snap    feed.Snapshot
	err     error
	started time.Time
}

type evActionDone struct {
	epoch  uint64
	target model.Target
	err    error
}

type evLockRelease struct {
	epoch uint64
}

type evReset struct{}

type evConfig struct {
	cfg *config.Config
}

type evStatus struct {
	reply chan Status
}
