package autotrigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfce/gmgn-filter/internal/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sec(n float64) time.Time {
	return t0.Add(time.Duration(n * float64(time.Second)))
}

func newItem(addr string, ageMs int64, pos int, keys ...string) model.Item {
	return model.Item{
		Identity:  model.Identity{Chain: "sol", Address: addr},
		RecencyMs: model.Ms(ageMs),
		Position:  pos,
		Keys:      keys,
	}
}

func TestFiresOnceWhenThresholdReached(t *testing.T) {
	e := New(DefaultConfig())

	assert.Nil(t, e.Observe(sec(0), newItem("X", 3_000, 0, "K")))
	assert.Equal(t, 1, e.Pending("K"))

	out := e.Observe(sec(5), newItem("Y", 9_000, 1, "K"))
	require.NotNil(t, out)
	assert.True(t, out.Fire())
	assert.Equal(t, "Y", out.Target.Identity.Address, "greater age wins")
	assert.Equal(t, "K", out.Target.Key)
	assert.Equal(t, 2, out.Target.Distinct)
	assert.True(t, e.Locked())
	assert.True(t, e.Fired("K"))
	assert.Equal(t, 0, e.Pending("K"), "history dropped on fire")

	e.Complete(out.Target, true)
	e.Release()

	// The episode is over; later duplicates never fire again.
	for i, addr := range []string{"Z1", "Z2", "Z3"} {
		assert.Nil(t, e.Observe(sec(6+float64(i)), newItem(addr, 1_000, 0, "K")))
	}
}

func TestSameIdentityDoesNotCount(t *testing.T) {
	e := New(DefaultConfig())
	assert.Nil(t, e.Observe(sec(0), newItem("X", 1_000, 0, "K")))
	assert.Nil(t, e.Observe(sec(1), newItem("X", 2_000, 0, "K")))
	assert.Equal(t, 2, e.Pending("K"))
}

func TestObservationsOutsideWindowArePruned(t *testing.T) {
	e := New(DefaultConfig())
	assert.Nil(t, e.Observe(sec(0), newItem("X", 1_000, 0, "K")))
	assert.Nil(t, e.Observe(sec(10.5), newItem("Y", 1_000, 0, "K")))
	assert.Equal(t, 1, e.Pending("K"))

	out := e.Observe(sec(12), newItem("Z", 500, 1, "K"))
	require.NotNil(t, out)
	assert.Equal(t, "Y", out.Target.Identity.Address)
}

func TestOneEpisodePerObservation(t *testing.T) {
	e := New(DefaultConfig())
	e.Observe(sec(0), newItem("A", 5_000, 0, "S:pepe", "N:pepe"))

	out := e.Observe(sec(1), newItem("B", 1_000, 1, "S:pepe", "N:pepe"))
	require.NotNil(t, out)
	assert.Equal(t, "S:pepe", out.Target.Key)
	assert.True(t, e.Fired("S:pepe"))
	assert.False(t, e.Fired("N:pepe"), "second key left untouched")
	assert.Equal(t, 1, e.Pending("N:pepe"))
}

func TestItemsWithoutRecencyLose(t *testing.T) {
	e := New(DefaultConfig())
	e.Observe(sec(0), model.Item{Identity: model.Identity{Chain: "sol", Address: "NOAGE"}, Keys: []string{"K"}, Position: 9})

	out := e.Observe(sec(1), newItem("AGED", 1, 0, "K"))
	require.NotNil(t, out)
	assert.Equal(t, "AGED", out.Target.Identity.Address)
}

func TestSkipWhileLocked(t *testing.T) {
	e := New(DefaultConfig())
	e.Observe(sec(0), newItem("A", 5_000, 0, "K1"))
	first := e.Observe(sec(1), newItem("B", 1_000, 1, "K1"))
	require.True(t, first.Fire())

	e.Observe(sec(1), newItem("C", 5_000, 0, "K2"))
	second := e.Observe(sec(1.2), newItem("D", 1_000, 1, "K2"))
	require.NotNil(t, second)
	assert.False(t, second.Fire())
	assert.Equal(t, SkipLocked, second.Skip)
	assert.True(t, e.Fired("K2"), "skipped episode is still consumed")
}

func TestPurchasedSetIdempotence(t *testing.T) {
	e := New(DefaultConfig())
	executions := 0
	exec := ExecutorFunc(func(ctx context.Context, target model.Target) error {
		executions++
		return nil
	})

	run := func(out *Outcome) {
		if !out.Fire() {
			return
		}
		err := Invoke(context.Background(), exec, out.Target, time.Second)
		e.Complete(out.Target, err == nil)
		e.Release()
	}

	// Winner W leads two separate episodes.
	e.Observe(sec(0), newItem("W", 9_000, 0, "S:w", "N:w"))
	out := e.Observe(sec(1), newItem("P", 1_000, 1, "S:w"))
	require.NotNil(t, out)
	run(out)

	out = e.Observe(sec(2), newItem("Q", 1_000, 2, "N:w"))
	require.NotNil(t, out)
	assert.Equal(t, "W", out.Target.Identity.Address)
	assert.Equal(t, SkipPurchased, out.Skip)
	run(out)

	assert.Equal(t, 1, executions)
	assert.True(t, e.Purchased(out.Target.Identity))
}

func TestFailureDoesNotMarkPurchased(t *testing.T) {
	e := New(DefaultConfig())
	e.Observe(sec(0), newItem("W", 9_000, 0, "K"))
	out := e.Observe(sec(1), newItem("P", 1_000, 1, "K"))
	require.True(t, out.Fire())

	e.Complete(out.Target, false)
	e.Release()
	assert.False(t, e.Purchased(out.Target.Identity))
	assert.False(t, e.Locked())
}

func TestSweep(t *testing.T) {
	e := New(DefaultConfig())
	e.Observe(sec(0), newItem("A", 1_000, 0, "old"))
	e.Observe(sec(200), newItem("B", 1_000, 0, "fresh"))

	assert.Equal(t, 1, e.Sweep(sec(301)))
	assert.Equal(t, 0, e.Pending("old"))
	assert.Equal(t, 1, e.Pending("fresh"))
}

func TestReset(t *testing.T) {
	e := New(DefaultConfig())
	e.Observe(sec(0), newItem("A", 5_000, 0, "K"))
	out := e.Observe(sec(1), newItem("B", 1_000, 1, "K"))
	e.Complete(out.Target, true)

	e.Reset()
	assert.Equal(t, Stats{}, e.Stats())
	assert.False(t, e.Fired("K"))
	assert.False(t, e.Purchased(out.Target.Identity))
}

func TestMinDuplicatesFloor(t *testing.T) {
	e := New(Config{TimeWindow: time.Second, MinDuplicates: 1})
	assert.Equal(t, 2, e.Config().MinDuplicates)
	assert.Nil(t, e.Observe(sec(0), newItem("A", 1, 0, "K")))
}

func TestInvokeErrors(t *testing.T) {
	target := model.Target{Identity: model.Identity{Chain: "sol", Address: "A"}}
	boom := errors.New("boom")

	err := Invoke(context.Background(), ExecutorFunc(func(context.Context, model.Target) error {
		return boom
	}), target, time.Second)
	assert.ErrorIs(t, err, boom)

	err = Invoke(context.Background(), ExecutorFunc(func(context.Context, model.Target) error {
		panic("executor exploded")
	}), target, time.Second)
	assert.ErrorContains(t, err, "executor exploded")

	err = Invoke(context.Background(), ExecutorFunc(func(ctx context.Context, _ model.Target) error {
		<-ctx.Done()
		return ctx.Err()
	}), target, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInvokeAbandonsExecutorIgnoringContext(t *testing.T) {
	target := model.Target{Identity: model.Identity{Chain: "sol", Address: "A"}}
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	err := Invoke(context.Background(), ExecutorFunc(func(context.Context, model.Target) error {
		<-release
		return nil
	}), target, 50*time.Millisecond)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestInvokeLateSuccessIsSuccess(t *testing.T) {
	target := model.Target{Identity: model.Identity{Chain: "sol", Address: "A"}}

	err := Invoke(context.Background(), ExecutorFunc(func(context.Context, model.Target) error {
		time.Sleep(80 * time.Millisecond)
		return nil
	}), target, 50*time.Millisecond)
	assert.NoError(t, err)

	err = Invoke(context.Background(), ExecutorFunc(func(ctx context.Context, _ model.Target) error {
		<-ctx.Done()
		return nil
	}), target, 20*time.Millisecond)
	assert.NoError(t, err)
}
