package otel

// The drain goroutine is the only reader of l.ch and the only writer to
// l.w. Logger.mu guards the l.buf pointer alone; the ring buffer has its
// own lock, and drain never holds both.

import (
	"bufio"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// writerChanSize is the capacity of the async write channel.
const writerChanSize = 4096

// logEntry carries the encoded line for disk and the Event for the ring,
// so fields excluded from JSON survive in memory.
type logEntry struct {
	data []byte
	ev   Event
}

// Logger serializes events as JSONL via an async background writer.
// Goroutine-safe. A nil *Logger discards everything, so components can
// hold one unconditionally.
type Logger struct {
	mu        sync.Mutex
	buf       *RingBuffer
	sessionID string
	ch        chan logEntry
	w         io.Writer
	closer    io.Closer
	dropped   atomic.Uint64 // full channel, encode failure or write error
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewLogger creates a Logger writing JSONL to w asynchronously.
// Call Close to flush and stop the drain goroutine.
func NewLogger(w io.Writer) *Logger {
	var sid [8]byte
	_, _ = rand.Read(sid[:])

	l := &Logger{
		sessionID: fmt.Sprintf("%x", sid[:]),
		ch:        make(chan logEntry, writerChanSize),
		w:         w,
		done:      make(chan struct{}),
	}
	go l.drain()
	return l
}

// NewNullLogger creates a Logger that discards output.
func NewNullLogger() *Logger {
	return NewLogger(io.Discard)
}

// EventsPath returns the JSONL file for events on day under dir.
func EventsPath(dir string, day time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("events-%s.jsonl", day.Format("2006-01-02")))
}

// OpenFile appends to today's event file under dir. Close also closes the
// file.
func OpenFile(dir string) (*Logger, string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, "", fmt.Errorf("create events dir: %w", err)
	}
	path := EventsPath(dir, time.Now())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, "", fmt.Errorf("open events file: %w", err)
	}
	l := NewLogger(f)
	l.closer = f
	return l, path, nil
}

func (l *Logger) drain() {
	defer close(l.done)
	for entry := range l.ch {
		if _, err := l.w.Write(entry.data); err != nil {
			l.dropped.Add(1)
		}

		l.mu.Lock()
		rb := l.buf
		l.mu.Unlock()

		if rb != nil {
			rb.Push(entry.ev)
		}
	}
}

// Emit queues e for writing. Sets Time (if zero) and SessionID. Never
// blocks: when the channel is full or the logger closed, the event is
// dropped and counted.
func (l *Logger) Emit(e Event) {
	if l == nil {
		return
	}
	// Close may win the race between the flag check and the send.
	defer func() {
		if recover() != nil {
			l.dropped.Add(1)
		}
	}()

	if l.closed.Load() {
		l.dropped.Add(1)
		return
	}

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	e.SessionID = l.sessionID

	data, err := json.Marshal(e)
	if err != nil {
		l.dropped.Add(1)
		return
	}
	data = append(data, '\n')

	select {
	case l.ch <- logEntry{data: data, ev: e}:
	default:
		l.dropped.Add(1)
	}
}

// Info emits an info-level event.
func (l *Logger) Info(kind EventKind, comp string, msg string) {
	l.Emit(Event{Level: LevelInfo, Kind: kind, Comp: comp, Msg: msg})
}

// Error emits an error-level event. Nil err is safe.
func (l *Logger) Error(kind EventKind, comp string, err error) {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}
	l.Emit(Event{Level: LevelError, Kind: kind, Comp: comp, Err: errStr})
}

// Warn emits a warn-level event.
func (l *Logger) Warn(kind EventKind, comp string, msg string) {
	l.Emit(Event{Level: LevelWarn, Kind: kind, Comp: comp, Msg: msg})
}

// SetRingBuffer attaches a ring buffer for live inspection.
func (l *Logger) SetRingBuffer(buf *RingBuffer) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = buf
}

// SessionID returns the random ID stamped on every event of this run.
func (l *Logger) SessionID() string {
	if l == nil {
		return ""
	}
	return l.sessionID
}

// Dropped returns the number of events dropped since creation.
func (l *Logger) Dropped() uint64 {
	if l == nil {
		return 0
	}
	return l.dropped.Load()
}

// Close flushes pending events and stops the drain goroutine. Emits that
// race with Close are dropped.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.ch)
		<-l.done

		if l.closer != nil {
			l.closer.Close()
		}
		if d := l.dropped.Load(); d > 0 {
			fmt.Fprintf(os.Stderr, "sniper: %d events dropped during session %s\n", d, l.sessionID)
		}
	})
}

// ReadEvents decodes a JSONL event stream, skipping lines that do not
// parse. It returns the events and the number of skipped lines.
func ReadEvents(r io.Reader) ([]Event, int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var events []Event
	skipped := 0
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return events, skipped, fmt.Errorf("read events: %w", err)
	}
	return events, skipped, nil
}
