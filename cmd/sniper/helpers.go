package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wfce/gmgn-filter/internal/config"
	"github.com/wfce/gmgn-filter/internal/store"
)

// eventsDir holds the daily JSONL event files.
func eventsDir() string {
	return filepath.Join(config.Dir(), "events")
}

// loadConfig reads the file named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openStore opens the stats database, creating its directory.
func openStore(cfg *config.Config) (*store.Store, error) {
	if cfg.Storage.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DBPath), 0755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	return store.Open(cfg.Storage.DBPath)
}

// isShutdown reports whether err only says the run was cancelled.
func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
