package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"pairlab/internal/types"
)

const (
	seriesEquity = "equity"
	seriesZScore = "zscore"
)

const runColumns = `id, status, config_json, error, alpha, beta, bars, metrics_json, created_at, completed_at`

func (s *Store) CreateBacktest(ctx context.Context, run types.BacktestRun) error {
	if run.ID == "" {
		return fmt.Errorf("run id 不能为空")
	}
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	status := run.Status
	if status == "" {
		status = types.RunPending
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backtest_runs (id, status, asset_a, asset_b, config_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(status), run.Config.AssetA, run.Config.AssetB, string(cfg),
		created.UnixMilli(), time.Now().UnixMilli())
	return err
}

// CompleteBacktest 在一个事务里写入汇总、交易和曲线，避免出现半完成的结果。
func (s *Store) CompleteBacktest(ctx context.Context, id string, result types.BacktestResult) error {
	metrics, err := json.Marshal(result.Metrics)
	if err != nil {
		return err
	}
	cfg, err := json.Marshal(result.Config)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	m := result.Metrics
	res, err := tx.ExecContext(ctx, `
		UPDATE backtest_runs
		SET status=?, config_json=?, error=NULL, alpha=?, beta=?, bars=?, total_trades=?,
		    final_equity=?, total_return_pct=?, sharpe=?, max_drawdown_pct=?, metrics_json=?,
		    updated_at=?, completed_at=?
		WHERE id=?`,
		string(types.RunDone), string(cfg), result.Alpha, result.Beta, result.Bars, m.TotalTrades,
		m.FinalEquity, m.TotalReturnPct, m.SharpeRatio, m.MaxDrawdownPct, string(metrics),
		now, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, types.ErrNotFound)
	}

	tradeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades (run_id, seq, side, entry_ts, exit_ts, exit_reason, pnl, trade_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer tradeStmt.Close()
	for i, tr := range result.Trades {
		payload, err := json.Marshal(tr)
		if err != nil {
			return err
		}
		if _, err := tradeStmt.ExecContext(ctx, id, i, string(tr.Side), tr.EntryDate.UnixMilli(),
			nullableTime(tr.ExitDate), string(tr.ExitReason), tr.PnL, string(payload)); err != nil {
			return err
		}
	}

	seriesStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_series (run_id, kind, seq, ts, value) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer seriesStmt.Close()
	for i, p := range result.EquityCurve {
		if _, err := seriesStmt.ExecContext(ctx, id, seriesEquity, i, p.Time.UnixMilli(), p.Equity); err != nil {
			return err
		}
	}
	for i, p := range result.ZScores {
		if _, err := seriesStmt.ExecContext(ctx, id, seriesZScore, i, p.Time.UnixMilli(), p.ZScore); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// FailBacktest 标记失败并清掉可能残留的明细。
func (s *Store) FailBacktest(ctx context.Context, id string, reason string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := time.Now().UnixMilli()
	res, err := tx.ExecContext(ctx, `
		UPDATE backtest_runs SET status=?, error=?, metrics_json=NULL, updated_at=?, completed_at=?
		WHERE id=?`, string(types.RunFailed), reason, now, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, types.ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM backtest_trades WHERE run_id=?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM backtest_series WHERE run_id=?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// GetBacktest 返回运行记录；完成的运行附带完整结果。
func (s *Store) GetBacktest(ctx context.Context, id string) (types.BacktestRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM backtest_runs WHERE id=?`, id)
	run, err := scanRun(row)
	if err != nil {
		return types.BacktestRun{}, notFound(err, "backtest", id)
	}
	if run.Result == nil {
		return run, nil
	}
	if run.Result.Trades, err = s.listTrades(ctx, id); err != nil {
		return types.BacktestRun{}, err
	}
	if err := s.loadSeries(ctx, id, run.Result); err != nil {
		return types.BacktestRun{}, err
	}
	return run, nil
}

// ListBacktests 只返回汇总，不加载交易与曲线。
func (s *Store) ListBacktests(ctx context.Context, limit int) ([]types.BacktestRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM backtest_runs
		ORDER BY created_at DESC LIMIT ?`, clampLimit(limit, 50, 500))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []types.BacktestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, run)
	}
	return list, rows.Err()
}

func (s *Store) listTrades(ctx context.Context, runID string) ([]types.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT trade_json FROM backtest_trades WHERE run_id=? ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var trades []types.Trade
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var tr types.Trade
		if err := json.Unmarshal([]byte(payload), &tr); err != nil {
			return nil, err
		}
		trades = append(trades, tr)
	}
	return trades, rows.Err()
}

func (s *Store) loadSeries(ctx context.Context, runID string, res *types.BacktestResult) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, ts, value FROM backtest_series WHERE run_id=? ORDER BY kind, seq`, runID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kind  string
			ts    int64
			value float64
		)
		if err := rows.Scan(&kind, &ts, &value); err != nil {
			return err
		}
		switch kind {
		case seriesEquity:
			res.EquityCurve = append(res.EquityCurve, types.EquityPoint{Time: timeFromMillis(ts), Equity: value})
		case seriesZScore:
			res.ZScores = append(res.ZScores, types.ZScorePoint{Time: timeFromMillis(ts), ZScore: value})
		}
	}
	return rows.Err()
}

func scanRun(row scanner) (types.BacktestRun, error) {
	var (
		run       types.BacktestRun
		status    string
		cfgStr    string
		errMsg    sql.NullString
		alpha     float64
		beta      float64
		bars      int
		metrics   sql.NullString
		created   int64
		completed sql.NullInt64
	)
	if err := row.Scan(&run.ID, &status, &cfgStr, &errMsg, &alpha, &beta, &bars, &metrics,
		&created, &completed); err != nil {
		return types.BacktestRun{}, err
	}
	run.Status = types.RunStatus(status)
	run.Error = errMsg.String
	run.CreatedAt = timeFromMillis(created)
	run.CompletedAt = timePtr(completed)
	if err := json.Unmarshal([]byte(cfgStr), &run.Config); err != nil {
		return types.BacktestRun{}, err
	}
	if run.Status == types.RunDone && metrics.Valid && metrics.String != "" {
		res := &types.BacktestResult{RunID: run.ID, Config: run.Config, Alpha: alpha, Beta: beta, Bars: bars}
		if err := json.Unmarshal([]byte(metrics.String), &res.Metrics); err != nil {
			return types.BacktestRun{}, err
		}
		run.Result = res
	}
	return run, nil
}
