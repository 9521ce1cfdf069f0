// Package cache 在行情源前加一层 SQLite K 线缓存，避免重复筛选时反复请求交易所。
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"pairlab/internal/types"
)

// Manifest 记录某个 symbol@interval 的缓存范围。
type Manifest struct {
	Symbol     string
	Interval   string
	MinTime    int64
	MaxTime    int64
	Rows       int64
	LastSyncAt int64
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cache path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			symbol    TEXT NOT NULL,
			interval  TEXT NOT NULL,
			open_time INTEGER NOT NULL,
			close     REAL NOT NULL,
			volume    REAL NOT NULL,
			PRIMARY KEY (symbol, interval, open_time)
		);`,
		`CREATE TABLE IF NOT EXISTS manifest (
			symbol       TEXT NOT NULL,
			interval     TEXT NOT NULL,
			min_time     INTEGER NOT NULL DEFAULT 0,
			max_time     INTEGER NOT NULL DEFAULT 0,
			rows         INTEGER NOT NULL DEFAULT 0,
			last_sync_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, interval)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Upsert 批量写入 K 线（重复 open_time 将被覆盖）并刷新 manifest。
func (s *Store) Upsert(ctx context.Context, interval string, series types.PriceSeries, syncedAt time.Time) (int, error) {
	if series.Len() == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, interval, open_time, close, volume)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(symbol, interval, open_time) DO UPDATE SET
		    close=excluded.close,
		    volume=excluded.volume`)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	defer stmt.Close()
	for _, bar := range series.Bars {
		if _, err := stmt.ExecContext(ctx, series.Symbol, interval, bar.Time.UnixMilli(), bar.Close, bar.Volume); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO manifest (symbol, interval, min_time, max_time, rows, last_sync_at)
		SELECT ?, ?, COALESCE(MIN(open_time), 0), COALESCE(MAX(open_time), 0), COUNT(1), ?
		FROM candles WHERE symbol = ? AND interval = ?
		ON CONFLICT(symbol, interval) DO UPDATE SET
		    min_time=excluded.min_time,
		    max_time=excluded.max_time,
		    rows=excluded.rows,
		    last_sync_at=excluded.last_sync_at`,
		series.Symbol, interval, syncedAt.UnixMilli(), series.Symbol, interval); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return series.Len(), nil
}

// Manifest 返回缓存范围；未缓存时 ok=false。
func (s *Store) Manifest(ctx context.Context, symbol, interval string) (Manifest, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT symbol, interval, min_time, max_time, rows, last_sync_at FROM manifest WHERE symbol = ? AND interval = ?`, symbol, interval)
	var m Manifest
	if err := row.Scan(&m.Symbol, &m.Interval, &m.MinTime, &m.MaxTime, &m.Rows, &m.LastSyncAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Manifest{}, false, nil
		}
		return Manifest{}, false, err
	}
	return m, true, nil
}

// Query 读取 open_time > since 的 K 线，按时间升序。
func (s *Store) Query(ctx context.Context, symbol, interval string, since time.Time) (types.PriceSeries, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT open_time, close, volume FROM candles
		WHERE symbol = ? AND interval = ? AND open_time > ?
		ORDER BY open_time ASC`, symbol, interval, since.UnixMilli())
	if err != nil {
		return types.PriceSeries{}, err
	}
	defer rows.Close()
	out := types.PriceSeries{Symbol: symbol}
	for rows.Next() {
		var (
			ts  int64
			bar types.Bar
		)
		if err := rows.Scan(&ts, &bar.Close, &bar.Volume); err != nil {
			return types.PriceSeries{}, err
		}
		bar.Time = time.UnixMilli(ts).UTC()
		out.Bars = append(out.Bars, bar)
	}
	return out, rows.Err()
}
