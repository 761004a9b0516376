package otel

import "sync"

// DefaultRingSize is the default ring buffer capacity.
const DefaultRingSize = 512

// RingBuffer keeps the most recent events for live inspection. Safe for
// concurrent use.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []Event
	next  int // slot the next Push writes
	count int
}

// NewRingBuffer creates a ring buffer holding size events.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &RingBuffer{buf: make([]Event, size)}
}

// Push appends e, overwriting the oldest event when full. Extra is
// copied so later writes by the caller do not leak into the buffer.
func (r *RingBuffer) Push(e Event) {
	if e.Extra != nil {
		cp := make(map[string]any, len(e.Extra))
		for k, v := range e.Extra {
			cp[k] = v
		}
		e.Extra = cp
	}
	r.mu.Lock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	r.mu.Unlock()
}

// at returns the i-th oldest buffered event. Caller holds mu.
func (r *RingBuffer) at(i int) Event {
	oldest := (r.next - r.count + len(r.buf)) % len(r.buf)
	return r.buf[(oldest+i)%len(r.buf)]
}

// tail copies the newest n events, oldest first. Caller holds mu.
func (r *RingBuffer) tail(n int) []Event {
	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]Event, n)
	for i := range out {
		out[i] = r.at(r.count - n + i)
	}
	return out
}

// Snapshot returns every buffered event, oldest first.
func (r *RingBuffer) Snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tail(r.count)
}

// Last returns the n most recent events, oldest first.
func (r *RingBuffer) Last(n int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tail(n)
}

// Len returns the number of buffered events.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the buffer capacity.
func (r *RingBuffer) Cap() int {
	return len(r.buf)
}

// Matching returns up to n of the most recent events whose subsystem is
// sub, oldest first. An empty sub matches everything.
func (r *RingBuffer) Matching(sub string, n int) []Event {
	if n <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for i := r.count - 1; i >= 0 && len(out) < n; i-- {
		if e := r.at(i); sub == "" || e.Kind.Subsystem() == sub {
			out = append(out, e)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Stats counts buffered events by kind.
func (r *RingBuffer) Stats() map[EventKind]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[EventKind]int)
	for i := 0; i < r.count; i++ {
		counts[r.at(i).Kind]++
	}
	return counts
}
