// Package sqlite 是基于 modernc sqlite 的 ResultStore 实现。
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pairlab/internal/store"
	"pairlab/internal/types"

	_ "modernc.org/sqlite"
)

// Store 管理 sessions/candidates/backtest_* 表。
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

var _ store.ResultStore = (*Store)(nil)

func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("result store 路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS screening_sessions (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			completed_at INTEGER,
			total_pairs_tested INTEGER NOT NULL DEFAULT 0,
			pairs_found INTEGER NOT NULL DEFAULT 0,
			assets_skipped INTEGER NOT NULL DEFAULT 0,
			pairs_skipped INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			params_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_started ON screening_sessions(started_at DESC);`,
		`CREATE TABLE IF NOT EXISTS pair_candidates (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			pair_key TEXT NOT NULL,
			asset_a TEXT NOT NULL,
			asset_b TEXT NOT NULL,
			correlation REAL NOT NULL,
			adf_statistic REAL NOT NULL,
			adf_pvalue REAL NOT NULL,
			adf_lags INTEGER NOT NULL,
			alpha REAL NOT NULL,
			beta REAL NOT NULL,
			spread_mean REAL NOT NULL,
			spread_std REAL NOT NULL,
			hurst REAL,
			half_life REAL,
			current_zscore REAL NOT NULL,
			score REAL NOT NULL,
			lookback_days INTEGER NOT NULL,
			observations INTEGER NOT NULL,
			screening_date INTEGER NOT NULL,
			FOREIGN KEY(session_id) REFERENCES screening_sessions(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_candidates_session ON pair_candidates(session_id, score DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_candidates_pair ON pair_candidates(pair_key, screening_date);`,
		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			asset_a TEXT NOT NULL,
			asset_b TEXT NOT NULL,
			config_json TEXT NOT NULL,
			error TEXT,
			alpha REAL NOT NULL DEFAULT 0,
			beta REAL NOT NULL DEFAULT 0,
			bars INTEGER NOT NULL DEFAULT 0,
			total_trades INTEGER NOT NULL DEFAULT 0,
			final_equity REAL NOT NULL DEFAULT 0,
			total_return_pct REAL NOT NULL DEFAULT 0,
			sharpe REAL NOT NULL DEFAULT 0,
			max_drawdown_pct REAL NOT NULL DEFAULT 0,
			metrics_json TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			completed_at INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS backtest_trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			side TEXT NOT NULL,
			entry_ts INTEGER NOT NULL,
			exit_ts INTEGER,
			exit_reason TEXT,
			pnl REAL NOT NULL,
			trade_json TEXT NOT NULL,
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON backtest_trades(run_id, seq);`,
		`CREATE TABLE IF NOT EXISTS backtest_series (
			run_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			seq INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY(run_id, kind, seq),
			FOREIGN KEY(run_id) REFERENCES backtest_runs(id) ON DELETE CASCADE
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	// 旧库补列
	columns := []struct {
		table, name, typ string
	}{
		{"screening_sessions", "pairs_skipped", "INTEGER NOT NULL DEFAULT 0"},
	}
	for _, col := range columns {
		if err := addColumnIfMissing(db, col.table, col.name, col.typ); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func addColumnIfMissing(db *sql.DB, table, column, typ string) error {
	var cnt int
	query := fmt.Sprintf("SELECT COUNT(1) FROM pragma_table_info('%s') WHERE name='%s'", table, column)
	if err := db.QueryRow(query).Scan(&cnt); err != nil || cnt > 0 {
		return err
	}
	_, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, typ))
	return err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, types.ErrNotFound)
	}
	return err
}

func nullableTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := timeFromMillis(v.Int64)
	return &t
}

func timeFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 || limit > max {
		return def
	}
	return limit
}
