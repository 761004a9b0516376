package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wfce/gmgn-filter/internal/logging"
)

// Frame is one recorded page state, one JSON object per line.
type Frame struct {
	Columns []FrameColumn `json:"columns"`
}

// FrameColumn is a recorded column.
type FrameColumn struct {
	ID      string `json:"id"`
	Primary bool   `json:"primary,omitempty"`
	Rows    []Row  `json:"rows"`
}

// ReadFrames decodes JSONL frames. Blank lines are skipped.
func ReadFrames(r io.Reader) ([]Frame, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var frames []Frame
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("frame line %d: %w", line, err)
		}
		frames = append(frames, f)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read frames: %w", err)
	}
	return frames, nil
}

// LoadFrames reads a JSONL recording from path.
func LoadFrames(path string) ([]Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()
	return ReadFrames(f)
}

// Snapshot converts the frame to parsed columns stamped with at.
func (f Frame) Snapshot(at time.Time) Snapshot {
	snap := Snapshot{At: at, Columns: make([]Column, 0, len(f.Columns))}
	for _, c := range f.Columns {
		snap.Columns = append(snap.Columns, Column{
			ID:      c.ID,
			Primary: c.Primary,
			Items:   ParseRows(c.Rows),
		})
	}
	return snap
}

// Replay steps through recorded frames at a fixed pace, acting as a
// Source for the frame currently on screen.
type Replay struct {
	frames  []Frame
	limiter *rate.Limiter
	loop    bool

	mu   sync.RWMutex
	cur  int
	snap Snapshot
}

// NewReplay returns a replay advancing one frame per interval.
func NewReplay(frames []Frame, interval time.Duration, loop bool) *Replay {
	if interval <= 0 {
		interval = time.Second
	}
	return &Replay{
		frames:  frames,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		loop:    loop,
		cur:     -1,
	}
}

// Snapshot implements Source.
func (r *Replay) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cur < 0 {
		return Snapshot{}, ErrNoSnapshot
	}
	return r.snap, nil
}

// Frame returns the index of the frame on screen, or -1 before Run.
func (r *Replay) Frame() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cur
}

// Run advances frames until the recording ends or ctx is done. changed is
// called after every step, the way a page reports DOM mutations.
func (r *Replay) Run(ctx context.Context, changed func()) error {
	if len(r.frames) == 0 {
		return ErrNoSnapshot
	}

	for next := 0; ; next++ {
		if next == len(r.frames) {
			if !r.loop {
				logging.Info("replay finished", "frames", len(r.frames))
				return nil
			}
			next = 0
		}

		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}

		r.mu.Lock()
		r.cur = next
		r.snap = r.frames[next].Snapshot(time.Now())
		r.mu.Unlock()

		if changed != nil {
			changed()
		}
	}
}
