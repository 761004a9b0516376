// Package leader builds the per-scan leadership index: for every group key,
// the earliest item observed in the scan and whether more than one identity
// contends for the key.
package leader

import (
	"sort"
	"time"

	"github.com/wfce/gmgn-filter/internal/model"
)

// TieBreak decides between two items with identical recency.
type TieBreak string

const (
	// TieBreakLargerPosition favors the item at the larger slot index.
	// Feeds list newest-first, so a larger index is usually older.
	TieBreakLargerPosition TieBreak = "larger"
	// TieBreakSmallerPosition favors the item at the smaller slot index.
	TieBreakSmallerPosition TieBreak = "smaller"
)

// Options controls which items participate and how they are ordered.
type Options struct {
	// OnlyWithinWindow excludes items older than Window from comparison.
	OnlyWithinWindow bool
	Window           time.Duration
	TieBreak         TieBreak
}

// Comparable reports whether it participates in leadership.
// Items without recency, or outside the window when one is enforced,
// are always treated as first.
func (o Options) Comparable(it model.Item) bool {
	if it.RecencyMs == nil {
		return false
	}
	if o.OnlyWithinWindow && *it.RecencyMs > o.Window.Milliseconds() {
		return false
	}
	return true
}

// Record is the leader of one group key.
type Record struct {
	Leader    model.Identity
	RecencyMs int64
	Position  int
}

// Earlier reports whether a precedes b under tb. Greater recency wins,
// then position per tb, then the smaller identity string. The order is
// total, so leaders do not depend on input order.
func Earlier(a, b Record, tb TieBreak) bool {
	if a.RecencyMs != b.RecencyMs {
		return a.RecencyMs > b.RecencyMs
	}
	if a.Position != b.Position {
		if tb == TieBreakSmallerPosition {
			return a.Position < b.Position
		}
		return a.Position > b.Position
	}
	return a.Leader.String() < b.Leader.String()
}

// Index maps group keys to leaders for one scan. It is not modified after
// Build returns, so a published Index may be shared freely.
type Index struct {
	records map[string]Record
	dupKeys map[string]struct{}
}

// Build computes leaders over the comparable items.
func Build(items []model.Item, opts Options) *Index {
	idx := &Index{
		records: make(map[string]Record),
		dupKeys: make(map[string]struct{}),
	}

	for _, it := range items {
		if !opts.Comparable(it) {
			continue
		}
		cand := Record{Leader: it.Identity, RecencyMs: *it.RecencyMs, Position: it.Position}

		for _, k := range it.Keys {
			rec, ok := idx.records[k]
			if ok && rec.Leader != it.Identity {
				idx.dupKeys[k] = struct{}{}
			}
			if !ok || Earlier(cand, rec, opts.TieBreak) {
				idx.records[k] = cand
			}
		}
	}

	return idx
}

// Len returns the number of group keys with a leader.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.records)
}

// Record returns the leader for key.
func (x *Index) Record(key string) (Record, bool) {
	if x == nil {
		return Record{}, false
	}
	rec, ok := x.records[key]
	return rec, ok
}

// IsFirst reports whether id leads every key in keys it appears under.
func (x *Index) IsFirst(id model.Identity, keys []string) bool {
	_, rival := x.Rival(id, keys)
	return !rival
}

// Rival returns the first record among keys whose leader is not id.
// A rival is positive evidence that an earlier competitor exists in
// this scan.
func (x *Index) Rival(id model.Identity, keys []string) (Record, bool) {
	if x == nil {
		return Record{}, false
	}
	for _, k := range keys {
		if rec, ok := x.records[k]; ok && rec.Leader != id {
			return rec, true
		}
	}
	return Record{}, false
}

// IsDup reports whether two or more identities contended for key.
func (x *Index) IsDup(key string) bool {
	if x == nil {
		return false
	}
	_, ok := x.dupKeys[key]
	return ok
}

// InDupGroup reports whether any of keys is contended.
func (x *Index) InDupGroup(keys []string) bool {
	for _, k := range keys {
		if x.IsDup(k) {
			return true
		}
	}
	return false
}

// Keys returns all group keys in sorted order.
func (x *Index) Keys() []string {
	if x == nil {
		return nil
	}
	keys := make([]string, 0, len(x.records))
	for k := range x.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DupKeys returns the contended keys in sorted order.
func (x *Index) DupKeys() []string {
	if x == nil {
		return nil
	}
	keys := make([]string, 0, len(x.dupKeys))
	for k := range x.dupKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
