package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ms(n int) time.Time {
	return t0.Add(time.Duration(n) * time.Millisecond)
}

func TestFirstTriggerRunsNow(t *testing.T) {
	s := New(80 * time.Millisecond)

	p := s.Trigger(ms(0))
	assert.Equal(t, RunNow, p.Action)
	assert.True(t, p.Starts())
	assert.Equal(t, Scheduled, s.State())
}

func TestTriggersCoalesceWhileScheduled(t *testing.T) {
	s := New(80 * time.Millisecond)
	s.Trigger(ms(0))

	for i := 1; i <= 100; i++ {
		assert.Equal(t, Noop, s.Trigger(ms(i)).Action)
	}
	gen, ok := s.Begin()
	require.True(t, ok)
	assert.Equal(t, uint64(1), gen)
}

func TestMinIntervalMeasuredFromCompletion(t *testing.T) {
	s := New(80 * time.Millisecond)
	s.Trigger(ms(0))
	gen, _ := s.Begin()
	plan, ok := s.Finish(ms(30), gen)
	require.True(t, ok)
	assert.Equal(t, Noop, plan.Action)
	assert.Equal(t, Idle, s.State())

	p := s.Trigger(ms(50))
	assert.Equal(t, RunAfter, p.Action)
	assert.Equal(t, 60*time.Millisecond, p.Delay, "fills the interval since ms(30)")

	s = New(80 * time.Millisecond)
	s.Trigger(ms(0))
	gen, _ = s.Begin()
	s.Finish(ms(10), gen)
	assert.Equal(t, RunNow, s.Trigger(ms(200)).Action)
}

func TestTriggerWhileRunningSchedulesOneFollowUp(t *testing.T) {
	s := New(80 * time.Millisecond)
	s.Trigger(ms(0))
	gen, _ := s.Begin()

	for i := 0; i < 5; i++ {
		assert.Equal(t, Deferred, s.Trigger(ms(i+1)).Action)
	}
	assert.True(t, s.Pending())

	plan, ok := s.Finish(ms(20), gen)
	require.True(t, ok)
	assert.Equal(t, RunAfter, plan.Action)
	assert.Equal(t, 80*time.Millisecond, plan.Delay)
	assert.Equal(t, Scheduled, s.State())
	assert.False(t, s.Pending())

	next, ok := s.Begin()
	require.True(t, ok)
	assert.Equal(t, gen+1, next)

	plan, _ = s.Finish(ms(200), next)
	assert.Equal(t, Noop, plan.Action, "only one follow-up")
}

func TestNeverTwoRunning(t *testing.T) {
	s := New(0)
	s.Trigger(ms(0))
	_, ok := s.Begin()
	require.True(t, ok)

	_, ok = s.Begin()
	assert.False(t, ok)
}

func TestInvalidateMakesInFlightScanStale(t *testing.T) {
	s := New(0)
	s.Trigger(ms(0))
	gen, _ := s.Begin()
	s.Trigger(ms(1))

	s.Invalidate()
	assert.Equal(t, Idle, s.State())
	assert.False(t, s.Pending())
	assert.False(t, s.IsCurrent(gen))

	_, ok := s.Finish(ms(5), gen)
	assert.False(t, ok)

	// A late timer for the abandoned schedule finds nothing to begin.
	_, ok = s.Begin()
	assert.False(t, ok)

	s.Trigger(ms(6))
	next, ok := s.Begin()
	require.True(t, ok)
	assert.Greater(t, next, gen+1)
	assert.True(t, s.IsCurrent(next))
}

func TestZeroIntervalAlwaysRunsNow(t *testing.T) {
	s := New(-time.Second)
	for i := 0; i < 3; i++ {
		require.Equal(t, RunNow, s.Trigger(ms(i)).Action)
		gen, _ := s.Begin()
		s.Finish(ms(i), gen)
	}
}

func TestDebounceDelay(t *testing.T) {
	d := DefaultDebounce()

	tests := []struct {
		src   Source
		burst int
		want  time.Duration
	}{
		{SourceMutation, 1, 40 * time.Millisecond},
		{SourceMutation, 3, 40 * time.Millisecond},
		{SourceMutation, 4, 120 * time.Millisecond},
		{SourceScroll, 1, 60 * time.Millisecond},
		{SourceScroll, 50, 60 * time.Millisecond},
		{SourceResize, 1, 0},
		{SourceHeartbeat, 1, 0},
		{SourceManual, 9, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, d.Delay(tt.src, tt.burst), "%s burst=%d", tt.src, tt.burst)
	}
}
