package otel

import (
	"os"
	"sync/atomic"
)

// traceEnabled gates per-item decision events, which are too chatty for
// normal runs.
var traceEnabled atomic.Bool

func init() {
	traceEnabled.Store(os.Getenv("SNIPER_TRACE") != "")
}

// TraceEnabled reports whether SNIPER_TRACE is set.
func TraceEnabled() bool {
	return traceEnabled.Load()
}

// SetTraceEnabled overrides the flag; used by the --trace CLI flag and tests.
func SetTraceEnabled(v bool) {
	traceEnabled.Store(v)
}
