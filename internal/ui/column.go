package ui

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/wfce/gmgn-filter/internal/engine"
)

// visibleRows returns the decisions to list. Hidden rows are dropped
// unless showHidden is set.
func visibleRows(f engine.Frame, showHidden bool) []engine.Decision {
	if showHidden {
		return f.Decisions
	}
	rows := make([]engine.Decision, 0, len(f.Decisions))
	for _, d := range f.Decisions {
		if !d.Hide {
			rows = append(rows, d)
		}
	}
	return rows
}

// calcScrollOffset keeps cursor inside a window of height rows.
func calcScrollOffset(cursor, height int) int {
	if height < 1 {
		height = 1
	}
	if cursor < height {
		return 0
	}
	return cursor - height + 1
}

// RenderColumn renders up to height rows of a column.
func RenderColumn(rows []engine.Decision, cursor, width, height int) string {
	if len(rows) == 0 {
		return HelpStyle.Render("No items in this column yet.")
	}

	offset := calcScrollOffset(cursor, height)
	var b strings.Builder
	for i := offset; i < len(rows) && i < offset+height; i++ {
		b.WriteString(renderRow(rows[i], i == cursor, width))
		b.WriteString("\n")
	}
	return b.String()
}

func renderRow(d engine.Decision, selected bool, width int) string {
	it := d.Item

	var badge string
	switch d.Class {
	case engine.First:
		badge = FirstBadge.Render("FIRST")
	case engine.Duplicate:
		badge = DupBadge.Render("NOT FIRST")
	default:
		badge = "          "
	}
	if d.Retained {
		badge += LockBadge.Render("*")
	}

	label := it.Symbol
	if it.Name != "" && it.Name != it.Symbol {
		label += " " + it.Name
	}
	text := fmt.Sprintf("%-4s %s  %s", formatRecency(it.RecencyMs), truncateRunes(label, 32), it.Identity.Short())
	if d.Leader != nil {
		text += "  " + OpenFirst.Render("open first "+d.Leader.Short())
	}

	style := NormalItem
	switch {
	case selected:
		style = SelectedItem
	case d.Hide:
		style = HiddenItem
	}
	if width > 0 {
		style = style.MaxWidth(width)
	}
	return style.Render(badge + " " + text)
}

// formatRecency renders an age in milliseconds the way the feed shows it.
func formatRecency(ms *int64) string {
	if ms == nil {
		return "?"
	}
	s := *ms / 1000
	switch {
	case s < 60:
		return fmt.Sprintf("%ds", s)
	case s < 3600:
		return fmt.Sprintf("%dm", s/60)
	case s < 86400:
		return fmt.Sprintf("%dh", s/3600)
	default:
		return fmt.Sprintf("%dd", s/86400)
	}
}

// truncateRunes shortens s to max runes, adding an ellipsis.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}

// counts tallies a frame for the status bar.
func counts(f engine.Frame) (first, dup, hidden int) {
	for _, d := range f.Decisions {
		switch d.Class {
		case engine.First:
			first++
		case engine.Duplicate:
			dup++
		}
		if d.Hide {
			hidden++
		}
	}
	return first, dup, hidden
}
