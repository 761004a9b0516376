// Package otel records structured engine events.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// them asynchronously through a buffered channel drained by one goroutine.
// An optional RingBuffer keeps the most recent events in memory for the
// TUI overlay.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// EventKind identifies the category of an event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Scan cycle
	KindScanStart    EventKind = "scan.start"
	KindScanComplete EventKind = "scan.complete"
	KindScanStale    EventKind = "scan.stale"
	KindScanError    EventKind = "scan.error"

	// Hysteresis
	KindLockRetained EventKind = "lock.retained"

	// Auto-trigger
	KindTriggerFire EventKind = "trigger.fire"
	KindTriggerSkip EventKind = "trigger.skip"
	KindActionOK    EventKind = "action.ok"
	KindActionFail  EventKind = "action.fail"

	// Stats persistence
	KindStatsFlush EventKind = "stats.flush"
	KindStatsError EventKind = "stats.error"

	// Engine lifecycle
	KindEngineReset  EventKind = "engine.reset"
	KindConfigReload EventKind = "engine.config"

	// System
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
	KindError    EventKind = "sys.error"

	// Per-item decisions, only with SNIPER_TRACE set
	KindDecision EventKind = "trace.decision"
)

// Event is the universal record. Every field except Kind and Time is
// optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"` // "engine", "feed", "stats", "main"
	SessionID string         `json:"session_id,omitempty"`
	Gen       uint64         `json:"gen,omitempty"`    // scan generation
	Column    string         `json:"column,omitempty"` // feed column ID
	Token     string         `json:"token,omitempty"`  // chain:address
	Key       string         `json:"key,omitempty"`    // group key
	Dur       time.Duration  `json:"-"`
	DurMs     float64        `json:"dur_ms,omitempty"` // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}

// Subsystem returns the part of Kind before the dot.
func (k EventKind) Subsystem() string {
	for i := 0; i < len(k); i++ {
		if k[i] == '.' {
			return string(k[:i])
		}
	}
	return string(k)
}
