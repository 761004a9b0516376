// Package store provides SQLite persistence for counters and the action
// audit trail.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/wfce/gmgn-filter/internal/model"
	"github.com/wfce/gmgn-filter/internal/stats"
)

const dateLayout = "2006-01-02"

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// Totals are the persisted counters.
type Totals struct {
	AutoBuys      int64
	Detections    int64
	TodayBuys     int64
	LastResetDate string
}

// Action is one executed (or attempted) auto-buy.
type Action struct {
	ID       string
	Identity model.Identity
	Key      string
	Distinct int
	OK       bool
	Error    string
	DryRun   bool
	At       time.Time
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		// Each connection would get its own empty database.
		db.SetMaxOpenConns(1)
		db.SetConnMaxLifetime(0)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db, now: time.Now}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// SetClock replaces the time source used for the daily reset.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stats (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		auto_buys INTEGER NOT NULL DEFAULT 0,
		detections INTEGER NOT NULL DEFAULT 0,
		today_buys INTEGER NOT NULL DEFAULT 0,
		last_reset_date TEXT NOT NULL DEFAULT ''
	);

	INSERT OR IGNORE INTO stats (id) VALUES (1);

	CREATE TABLE IF NOT EXISTS actions (
		id TEXT PRIMARY KEY,
		chain TEXT NOT NULL,
		address TEXT NOT NULL,
		group_key TEXT NOT NULL,
		distinct_count INTEGER NOT NULL,
		ok INTEGER NOT NULL,
		error TEXT,
		dry_run INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_actions_created ON actions(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_actions_token ON actions(chain, address);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Increment adds c to the persisted counters in one transaction. The
// daily counter starts over when the stored date is not today.
func (s *Store) Increment(ctx context.Context, c stats.Counters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var last string
	if err := tx.QueryRowContext(ctx, "SELECT last_reset_date FROM stats WHERE id = 1").Scan(&last); err != nil {
		return fmt.Errorf("read reset date: %w", err)
	}

	today := s.now().Format(dateLayout)
	if last != today {
		if _, err := tx.ExecContext(ctx,
			"UPDATE stats SET today_buys = 0, last_reset_date = ? WHERE id = 1", today); err != nil {
			return fmt.Errorf("daily reset: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE stats SET
			auto_buys = auto_buys + ?,
			detections = detections + ?,
			today_buys = today_buys + ?
		WHERE id = 1
	`, c.AutoBuys, c.Detections, c.AutoBuys)
	if err != nil {
		return fmt.Errorf("increment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Totals returns the persisted counters. TodayBuys reads as zero when no
// increment has happened today.
// Thread-safe: acquires read lock.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t Totals
	err := s.db.QueryRowContext(ctx,
		"SELECT auto_buys, detections, today_buys, last_reset_date FROM stats WHERE id = 1",
	).Scan(&t.AutoBuys, &t.Detections, &t.TodayBuys, &t.LastResetDate)
	if err != nil {
		return Totals{}, fmt.Errorf("read totals: %w", err)
	}

	if t.LastResetDate != s.now().Format(dateLayout) {
		t.TodayBuys = 0
	}
	return t, nil
}

// RecordAction appends a to the audit trail and returns its ID. An empty
// ID is filled with a fresh UUID; a zero time with the store clock.
func (s *Store) RecordAction(ctx context.Context, a Action) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.At.IsZero() {
		a.At = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actions (
			id, chain, address, group_key, distinct_count, ok, error, dry_run, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID,
		a.Identity.Chain,
		a.Identity.Address,
		a.Key,
		a.Distinct,
		boolToInt(a.OK),
		a.Error,
		boolToInt(a.DryRun),
		a.At.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("insert action: %w", err)
	}
	return a.ID, nil
}

// RecentActions returns up to limit actions, newest first.
// Thread-safe: acquires read lock.
func (s *Store) RecentActions(ctx context.Context, limit int) ([]Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chain, address, group_key, distinct_count, ok, error, dry_run, created_at
		FROM actions
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var a Action
		var okInt, dryInt int
		var errText sql.NullString
		var createdMs int64
		err := rows.Scan(
			&a.ID,
			&a.Identity.Chain,
			&a.Identity.Address,
			&a.Key,
			&a.Distinct,
			&okInt,
			&errText,
			&dryInt,
			&createdMs,
		)
		if err != nil {
			return nil, err
		}
		a.OK = okInt != 0
		a.DryRun = dryInt != 0
		a.Error = errText.String
		a.At = time.UnixMilli(createdMs).UTC()
		actions = append(actions, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return actions, nil
}

// HasSucceeded reports whether a successful, non-dry-run action exists
// for id.
func (s *Store) HasSucceeded(ctx context.Context, id model.Identity) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM actions WHERE chain = ? AND address = ? AND ok = 1 AND dry_run = 0 LIMIT 1",
		id.Chain, id.Address,
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query action: %w", err)
	}
	return true, nil
}

// boolToInt converts a bool to an int for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
