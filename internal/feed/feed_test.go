package feed

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfce/gmgn-filter/internal/model"
)

func TestParseAge(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"40s", 40_000, true},
		{"3m", 180_000, true},
		{"2h", 7_200_000, true},
		{"1d", 86_400_000, true},
		{" 5 S ", 5_000, true},
		{"0s", 0, true},
		{"", 0, false},
		{"1.5m", 0, false},
		{"3w", 0, false},
		{"-1s", 0, false},
		{"999999999999999d", 0, false},
		{"99999999999999999999s", 0, false},
		{"106751991167d", 9_223_372_036_828_800_000, true},
		{"m", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseAge(tt.in)
		assert.Equal(t, tt.ok, ok, "ParseAge(%q)", tt.in)
		assert.Equal(t, tt.want, got, "ParseAge(%q)", tt.in)
	}
}

func TestParseHref(t *testing.T) {
	id, ok := ParseHref("/sol/token/So11111?tab=trades")
	require.True(t, ok)
	assert.Equal(t, model.Identity{Chain: "sol", Address: "So11111"}, id)

	id, ok = ParseHref("/bsc/token/0xabc#top")
	require.True(t, ok)
	assert.Equal(t, "0xabc", id.Address)

	for _, bad := range []string{"", "/sol/pair/abc", "sol/token/abc", "https://gmgn.ai/sol/token/x", "/sol/token/"} {
		_, ok := ParseHref(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseRow(t *testing.T) {
	it, ok := ParseRow(Row{Href: "/sol/token/A", Symbol: " PEPE ", Name: "Pepe", Age: "40s", Slot: 3})
	require.True(t, ok)
	assert.Equal(t, "PEPE", it.Symbol)
	assert.Equal(t, int64(40_000), it.Recency())
	assert.Equal(t, 3, it.Position)
	assert.True(t, it.Visible)

	it, ok = ParseRow(Row{Href: "/sol/token/B", Age: "just now", Hidden: true})
	require.True(t, ok)
	assert.False(t, it.HasRecency())
	assert.False(t, it.Visible)

	_, ok = ParseRow(Row{Href: "/about"})
	assert.False(t, ok)
}

const recording = `{"columns":[{"id":"new","primary":true,"rows":[{"href":"/sol/token/A","symbol":"PEPE","age":"40s","slot":0},{"href":"bogus"}]}]}

{"columns":[{"id":"new","primary":true,"rows":[{"href":"/sol/token/A","symbol":"PEPE","age":"41s","slot":1},{"href":"/sol/token/B","symbol":"PEPE","age":"1s","slot":0}]},{"id":"soon","rows":[]}]}
`

func TestReadFrames(t *testing.T) {
	frames, err := ReadFrames(strings.NewReader(recording))
	require.NoError(t, err)
	require.Len(t, frames, 2)

	snap := frames[0].Snapshot(time.Unix(0, 0))
	require.Len(t, snap.Columns, 1)
	assert.True(t, snap.Columns[0].Primary)
	assert.Len(t, snap.Columns[0].Items, 1, "row without token link dropped")

	snap = frames[1].Snapshot(time.Unix(0, 0))
	assert.Len(t, snap.Columns, 2)
	assert.False(t, snap.Columns[1].Primary)

	_, err = ReadFrames(strings.NewReader("{not json}\n"))
	assert.ErrorContains(t, err, "line 1")
}

func TestReplayRun(t *testing.T) {
	frames, err := ReadFrames(strings.NewReader(recording))
	require.NoError(t, err)

	r := NewReplay(frames, time.Millisecond, false)
	_, err = r.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)

	var changes atomic.Int32
	require.NoError(t, r.Run(context.Background(), func() { changes.Add(1) }))
	assert.Equal(t, int32(2), changes.Load())
	assert.Equal(t, 1, r.Frame())

	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Columns[0].Items, 2)
}

func TestReplayLoopStopsOnCancel(t *testing.T) {
	frames, _ := ReadFrames(strings.NewReader(recording))
	r := NewReplay(frames, time.Millisecond, true)

	ctx, cancel := context.WithCancel(context.Background())
	var changes atomic.Int32
	err := r.Run(ctx, func() {
		if changes.Add(1) == 5 {
			cancel()
		}
	})
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.GreaterOrEqual(t, changes.Load(), int32(5))
}

func TestStatic(t *testing.T) {
	var s Static
	_, err := s.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshot)

	s.Set(Snapshot{Columns: []Column{{ID: "new"}}})
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new", snap.Columns[0].ID)
}
