package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wfce/gmgn-filter/internal/grouping"
	"github.com/wfce/gmgn-filter/internal/leader"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.LockDuration != 2*time.Second {
		t.Errorf("LockDuration = %v, want 2s", cfg.LockDuration)
	}
	if cfg.AutoBuy.MinDuplicates != 2 || cfg.AutoBuy.TimeWindow != 10*time.Second {
		t.Errorf("auto-buy defaults = %+v", cfg.AutoBuy)
	}
	if cfg.Window() != 2*time.Hour {
		t.Errorf("Window() = %v, want 2h", cfg.Window())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown match mode", func(c *Config) { c.MatchMode = "symbol-only" }},
		{"unknown show mode", func(c *Config) { c.ShowMode = "none" }},
		{"unknown tie-break", func(c *Config) { c.TieBreak = "random" }},
		{"zero lock", func(c *Config) { c.LockDuration = 0 }},
		{"negative scan interval", func(c *Config) { c.MinScanInterval = -time.Millisecond }},
		{"threshold of one", func(c *Config) { c.AutoBuy.MinDuplicates = 1 }},
		{"zero window", func(c *Config) { c.WindowMinutes = 0 }},
		{"empty db path", func(c *Config) { c.Storage.DBPath = "" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestZeroScanIntervalAllowed(t *testing.T) {
	cfg := Default()
	cfg.MinScanInterval = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MatchMode != grouping.ModeSymbol {
		t.Errorf("MatchMode = %q", cfg.MatchMode)
	}
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
match_mode: either
show_mode: hideNonDupFirst
tie_break: smaller
lock_duration: 3s
auto_buy:
  enabled: true
  time_window: 15s
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MatchMode != grouping.ModeEither || cfg.ShowMode != ShowHideNonDupFirst {
		t.Errorf("modes = %q/%q", cfg.MatchMode, cfg.ShowMode)
	}
	if cfg.LockDuration != 3*time.Second {
		t.Errorf("LockDuration = %v", cfg.LockDuration)
	}
	if !cfg.AutoBuy.Enabled || cfg.AutoBuy.TimeWindow != 15*time.Second {
		t.Errorf("AutoBuy = %+v", cfg.AutoBuy)
	}
	// Untouched fields keep defaults.
	if cfg.AutoBuy.MinDuplicates != 2 || cfg.WindowMinutes != 120 {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if cfg.LeaderOptions().TieBreak != leader.TieBreakSmallerPosition {
		t.Errorf("LeaderOptions tie-break = %q", cfg.LeaderOptions().TieBreak)
	}
	if cfg.AutoTrigger().TimeWindow != 15*time.Second {
		t.Errorf("AutoTrigger window = %v", cfg.AutoTrigger().TimeWindow)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("match_mode: fuzzy\n"), 0644)

	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Load() = %v, want ErrInvalid", err)
	}

	os.WriteFile(path, []byte("match_mode: [\n"), 0644)
	if _, err := Load(path); err == nil || errors.Is(err, ErrInvalid) {
		t.Fatalf("Load() = %v, want parse error", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SNIPER_MATCH_MODE", "name")
	t.Setenv("SNIPER_AUTO_BUY", "true")
	t.Setenv("SNIPER_MIN_DUPLICATES", "3")
	t.Setenv("SNIPER_LOCK_DURATION", "1500ms")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MatchMode != grouping.ModeName {
		t.Errorf("MatchMode = %q", cfg.MatchMode)
	}
	if !cfg.AutoBuy.Enabled || cfg.AutoBuy.MinDuplicates != 3 {
		t.Errorf("AutoBuy = %+v", cfg.AutoBuy)
	}
	if cfg.LockDuration != 1500*time.Millisecond {
		t.Errorf("LockDuration = %v", cfg.LockDuration)
	}
}

func TestEnvOverrideParseError(t *testing.T) {
	t.Setenv("SNIPER_ENABLED", "maybe")
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for unparsable SNIPER_ENABLED")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.ShowMode = ShowOnlyDup
	cfg.AutoBuy.Cooldown = 750 * time.Millisecond

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.ShowMode != ShowOnlyDup || got.AutoBuy.Cooldown != 750*time.Millisecond {
		t.Errorf("round trip lost fields: %+v", got)
	}
}

func TestWatchDeliversReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Default().Save(path); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *Config) { got <- c }) }()

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)

	// An invalid edit is skipped.
	os.WriteFile(path, []byte("show_mode: sideways\n"), 0644)
	time.Sleep(2 * watchSettle)

	os.WriteFile(path, []byte("show_mode: onlyFirst\n"), 0644)

	select {
	case cfg := <-got:
		if cfg.ShowMode != ShowOnlyFirst {
			t.Errorf("ShowMode = %q", cfg.ShowMode)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload delivered")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}
