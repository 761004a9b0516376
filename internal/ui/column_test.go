package ui

import (
	"strings"
	"testing"

	"github.com/wfce/gmgn-filter/internal/engine"
	"github.com/wfce/gmgn-filter/internal/model"
)

func TestCalcScrollOffset(t *testing.T) {
	tests := []struct {
		cursor, height, want int
	}{
		{0, 10, 0},
		{9, 10, 0},
		{10, 10, 1},
		{25, 10, 16},
		{3, 0, 3},
	}
	for _, tt := range tests {
		if got := calcScrollOffset(tt.cursor, tt.height); got != tt.want {
			t.Errorf("calcScrollOffset(%d, %d) = %d, want %d", tt.cursor, tt.height, got, tt.want)
		}
	}
}

func TestRenderColumnNoOverRender(t *testing.T) {
	var rows []engine.Decision
	for i := 0; i < 50; i++ {
		rows = append(rows, decision("A", "PEPE", engine.First, false))
	}
	out := RenderColumn(rows, 0, 100, 8)
	if n := strings.Count(out, "\n"); n != 8 {
		t.Errorf("rendered %d lines, want 8", n)
	}
}

func TestRenderRowBadges(t *testing.T) {
	leader := model.Identity{Chain: "sol", Address: "LeaderAddress123456"}
	dup := decision("B", "PEPE", engine.Duplicate, false)
	dup.Leader = &leader

	out := renderRow(dup, false, 0)
	if !strings.Contains(out, "NOT FIRST") {
		t.Errorf("duplicate badge missing: %q", out)
	}
	if !strings.Contains(out, "open first") {
		t.Errorf("leader link missing: %q", out)
	}

	first := renderRow(decision("A", "PEPE", engine.First, false), false, 0)
	if !strings.Contains(first, "FIRST") || strings.Contains(first, "NOT FIRST") {
		t.Errorf("first badge wrong: %q", first)
	}
}

func TestFormatRecency(t *testing.T) {
	tests := []struct {
		ms   *int64
		want string
	}{
		{nil, "?"},
		{model.Ms(40_000), "40s"},
		{model.Ms(180_000), "3m"},
		{model.Ms(7_200_000), "2h"},
		{model.Ms(172_800_000), "2d"},
	}
	for _, tt := range tests {
		if got := formatRecency(tt.ms); got != tt.want {
			t.Errorf("formatRecency = %q, want %q", got, tt.want)
		}
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("狗狗币宇宙", 3); got != "狗狗…" {
		t.Errorf("truncateRunes = %q", got)
	}
	if got := truncateRunes("pepe", 10); got != "pepe" {
		t.Errorf("truncateRunes = %q", got)
	}
}
