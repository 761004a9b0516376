package scheduler

import "time"

// Source names what caused a trigger.
type Source int

const (
	SourceMutation Source = iota
	SourceScroll
	SourceResize
	SourceHeartbeat
	SourceManual
)

func (s Source) String() string {
	switch s {
	case SourceMutation:
		return "mutation"
	case SourceScroll:
		return "scroll"
	case SourceResize:
		return "resize"
	case SourceHeartbeat:
		return "heartbeat"
	case SourceManual:
		return "manual"
	}
	return "unknown"
}

// Debounce holds the quiet periods applied before a trigger reaches the
// scheduler.
type Debounce struct {
	Mutation       time.Duration
	MutationBurst  time.Duration // used once a burst exceeds BurstThreshold
	BurstThreshold int
	Scroll         time.Duration
	Heartbeat      time.Duration // period of the idle heartbeat
}

// DefaultDebounce matches the feed's observed churn.
func DefaultDebounce() Debounce {
	return Debounce{
		Mutation:       40 * time.Millisecond,
		MutationBurst:  120 * time.Millisecond,
		BurstThreshold: 3,
		Scroll:         60 * time.Millisecond,
		Heartbeat:      800 * time.Millisecond,
	}
}

// Delay returns the quiet period for src given how many notifications of
// that source arrived since its last debounced delivery. Zero means the
// trigger goes straight to the scheduler.
func (d Debounce) Delay(src Source, burst int) time.Duration {
	switch src {
	case SourceMutation:
		if burst > d.BurstThreshold {
			return d.MutationBurst
		}
		return d.Mutation
	case SourceScroll:
		return d.Scroll
	}
	return 0
}
