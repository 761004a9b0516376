package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/wfce/gmgn-filter/internal/otel"
)

// debugPanelChrome is the number of terminal lines consumed by DebugPanel's
// border (top + bottom = 2) and vertical padding (top + bottom = 2).
const debugPanelChrome = 4

// debugOverlay renders engine counters and recent events. Returns empty
// string if ring is nil.
func debugOverlay(ring *otel.RingBuffer, width, height int) string {
	if ring == nil {
		return ""
	}

	stats := ring.Stats()
	recent := ring.Last(20)

	var lines []string
	lines = append(lines, DebugHeaderStyle.Render("Engine Stats"))
	lines = append(lines, fmt.Sprintf("  Scans:      %d complete, %d stale, %d errors",
		stats[otel.KindScanComplete], stats[otel.KindScanStale], stats[otel.KindScanError]))
	lines = append(lines, fmt.Sprintf("  Locks:      %d retained", stats[otel.KindLockRetained]))
	lines = append(lines, fmt.Sprintf("  Triggers:   %d fired, %d skipped",
		stats[otel.KindTriggerFire], stats[otel.KindTriggerSkip]))
	lines = append(lines, fmt.Sprintf("  Actions:    %d ok, %d failed",
		stats[otel.KindActionOK], stats[otel.KindActionFail]))
	lines = append(lines, fmt.Sprintf("  Resets:     %d", stats[otel.KindEngineReset]))
	lines = append(lines, fmt.Sprintf("  Buffer:     %d / %d events", ring.Len(), ring.Cap()))
	lines = append(lines, "")

	if actions := ring.Matching("action", 3); len(actions) > 0 {
		lines = append(lines, DebugHeaderStyle.Render("Last Actions"))
		for _, e := range actions {
			result := "ok"
			if e.Kind == otel.KindActionFail {
				result = "failed"
			}
			lines = append(lines, fmt.Sprintf("  %6s  %-6s  %s  %s",
				formatAge(time.Since(e.Time)), result, truncateRunes(e.Token, 20), e.Key))
		}
		lines = append(lines, "")
	}

	lines = append(lines, DebugHeaderStyle.Render("Recent Events"))
	for _, e := range recent {
		line := fmt.Sprintf("  %6s  %-16s", formatAge(time.Since(e.Time)), string(e.Kind))
		if e.Token != "" {
			line += "  " + truncateRunes(e.Token, 20)
		}
		if e.Msg != "" {
			line += "  " + truncateRunes(e.Msg, 30)
		}
		if e.Err != "" {
			line += "  ERR:" + truncateRunes(e.Err, 30)
		}
		lines = append(lines, line)
	}

	maxHeight := height - debugPanelChrome
	if maxHeight < 1 {
		maxHeight = 1
	}
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
	}

	panelWidth := 76
	if panelWidth > width-4 {
		panelWidth = width - 4
	}
	if panelWidth < 20 {
		panelWidth = 20
	}

	return DebugPanel.Width(panelWidth).Render(strings.Join(lines, "\n"))
}

// formatAge formats a duration as a compact human string.
// Negative durations from clock skew clamp to "0ms".
func formatAge(d time.Duration) string {
	if d < 0 {
		return "0ms"
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
}

func debugStatusBar(width int) string {
	keys := StatusBarKey.Render("?") + StatusBarText.Render(":close")
	return StatusBar.Width(width).Render("  [DEBUG]  " + keys)
}
