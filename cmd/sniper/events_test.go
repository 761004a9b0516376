package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfce/gmgn-filter/internal/otel"
)

const eventLog = `{"t":"2026-03-01T12:00:00Z","level":"info","kind":"scan.complete","comp":"engine","gen":1}
not json
{"t":"2026-03-01T12:00:01Z","level":"warn","kind":"scan.stale","comp":"engine","gen":2}
{"t":"2026-03-01T12:00:02Z","level":"info","kind":"trigger.fire","comp":"engine","token":"sol:AAA","key":"S:pepe","count":3}
{"t":"2026-03-01T12:00:03Z","level":"error","kind":"action.fail","comp":"engine","token":"sol:AAA","err":"rpc down"}

{"t":"2026-03-01T12:00:04Z","level":"info","kind":"stats.flush","comp":"stats","count":2}
`

func all(otel.Event) bool { return true }

func TestReadTailKeepsLastMatching(t *testing.T) {
	got := readTail(strings.NewReader(eventLog), 2, all)
	require.Len(t, got, 2)
	assert.Equal(t, otel.KindActionFail, got[0].ev.Kind)
	assert.Equal(t, otel.KindStatsFlush, got[1].ev.Kind)

	assert.Empty(t, readTail(strings.NewReader(eventLog), 0, all))
	assert.Len(t, readTail(strings.NewReader(eventLog), 100, all), 5)
}

func TestEventFilter(t *testing.T) {
	tests := []struct {
		name   string
		filter eventFilter
		want   []otel.EventKind
	}{
		{"kind prefix", eventFilter{kind: "scan"}, []otel.EventKind{otel.KindScanComplete, otel.KindScanStale}},
		{"min level", eventFilter{level: "warn"}, []otel.EventKind{otel.KindScanStale, otel.KindActionFail}},
		{"component", eventFilter{comp: "stats"}, []otel.EventKind{otel.KindStatsFlush}},
		{"token", eventFilter{token: "sol:AAA"}, []otel.EventKind{otel.KindTriggerFire, otel.KindActionFail}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var kinds []otel.EventKind
			for _, l := range readTail(strings.NewReader(eventLog), 100, tt.filter.match) {
				kinds = append(kinds, l.ev.Kind)
			}
			assert.Equal(t, tt.want, kinds)
		})
	}
}

func TestFormatEvent(t *testing.T) {
	ev := otel.Event{
		Time:  time.Date(2026, 3, 1, 12, 0, 2, 0, time.Local),
		Level: otel.LevelInfo,
		Kind:  otel.KindTriggerFire,
		Comp:  "engine",
		Token: "sol:AAA",
		Key:   "S:pepe",
		DurMs: 12.5,
		Count: 3,
	}
	line := formatEvent(ev)
	assert.True(t, strings.HasPrefix(line, "12:00:02.000 INFO "), line)
	assert.Contains(t, line, "trigger.fire")
	assert.Contains(t, line, "token=sol:AAA")
	assert.Contains(t, line, "key=S:pepe")
	assert.Contains(t, line, "(12.5ms)")
	assert.Contains(t, line, "n=3")

	assert.Contains(t, formatEvent(otel.Event{Kind: otel.KindError}), "?")
}
