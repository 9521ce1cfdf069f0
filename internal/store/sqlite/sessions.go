package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"pairlab/internal/store"
	"pairlab/internal/types"
)

const sessionColumns = `id, status, started_at, completed_at, total_pairs_tested, pairs_found, assets_skipped, pairs_skipped, error, params_json`

const candidateColumns = `id, session_id, asset_a, asset_b, correlation, adf_statistic, adf_pvalue, adf_lags,
	alpha, beta, spread_mean, spread_std, hurst, half_life, current_zscore, score,
	lookback_days, observations, screening_date`

// SaveSession 按 id upsert；会话状态只会向前推进。
func (s *Store) SaveSession(ctx context.Context, session types.ScreeningSession) error {
	if session.ID == "" {
		return fmt.Errorf("session id 不能为空")
	}
	params, err := json.Marshal(session.Params)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO screening_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status=excluded.status,
			completed_at=excluded.completed_at,
			total_pairs_tested=excluded.total_pairs_tested,
			pairs_found=excluded.pairs_found,
			assets_skipped=excluded.assets_skipped,
			pairs_skipped=excluded.pairs_skipped,
			error=excluded.error`,
		session.ID, string(session.Status), session.StartedAt.UnixMilli(), nullableTime(session.CompletedAt),
		session.TotalPairsTested, session.PairsFound, session.AssetsSkipped, session.PairsSkipped, session.Error, string(params))
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (types.ScreeningSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM screening_sessions WHERE id=?`, id)
	sess, err := scanSession(row)
	if err != nil {
		return types.ScreeningSession{}, notFound(err, "session", id)
	}
	return sess, nil
}

// LatestSession 返回最近一次完成的会话。
func (s *Store) LatestSession(ctx context.Context) (types.ScreeningSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM screening_sessions
		WHERE status=?
		ORDER BY started_at DESC LIMIT 1`, string(types.SessionCompleted))
	sess, err := scanSession(row)
	if err != nil {
		return types.ScreeningSession{}, notFound(err, "session", "latest")
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, limit int) ([]types.ScreeningSession, error) {
	limit = clampLimit(limit, 50, 500)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM screening_sessions
		ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []types.ScreeningSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, sess)
	}
	return list, rows.Err()
}

func scanSession(row scanner) (types.ScreeningSession, error) {
	var (
		sess      types.ScreeningSession
		status    string
		started   int64
		completed sql.NullInt64
		errMsg    sql.NullString
		params    string
	)
	if err := row.Scan(&sess.ID, &status, &started, &completed, &sess.TotalPairsTested,
		&sess.PairsFound, &sess.AssetsSkipped, &sess.PairsSkipped, &errMsg, &params); err != nil {
		return types.ScreeningSession{}, err
	}
	sess.Status = types.SessionStatus(status)
	sess.StartedAt = timeFromMillis(started)
	sess.CompletedAt = timePtr(completed)
	sess.Error = errMsg.String
	if err := json.Unmarshal([]byte(params), &sess.Params); err != nil {
		return types.ScreeningSession{}, err
	}
	return sess, nil
}

// SaveCandidates 在一个事务内写入会话的全部候选对。
func (s *Store) SaveCandidates(ctx context.Context, sessionID string, candidates []types.PairCandidate) error {
	if len(candidates) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pair_candidates (pair_key, `+candidateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, c := range candidates {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx, c.Key().String(), c.ID, sessionID, c.AssetA, c.AssetB,
			c.Correlation, c.ADFStatistic, c.ADFPValue, c.ADFLags, c.Alpha, c.Beta, c.SpreadMean,
			c.SpreadStd, nullableFloat(c.Hurst), nullableFloat(c.HalfLife), c.CurrentZScore, c.Score,
			c.LookbackDays, c.Observations, c.ScreeningDate.UnixMilli()); err != nil {
			return fmt.Errorf("insert candidate %s: %w", c.Key(), err)
		}
	}
	return tx.Commit()
}

func (s *Store) ListCandidates(ctx context.Context, filter store.CandidateFilter) ([]types.PairCandidate, error) {
	sessionID := strings.TrimSpace(filter.SessionID)
	if sessionID == "" {
		latest, err := s.LatestSession(ctx)
		if errors.Is(err, types.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		sessionID = latest.ID
	}
	query := `SELECT ` + candidateColumns + ` FROM pair_candidates WHERE session_id=? AND score>=?`
	args := []interface{}{sessionID, filter.MinScore}
	if asset := strings.ToUpper(strings.TrimSpace(filter.Asset)); asset != "" {
		query += ` AND (asset_a=? OR asset_b=?)`
		args = append(args, asset, asset)
	}
	query += ` ORDER BY score DESC, pair_key ASC LIMIT ?`
	args = append(args, clampLimit(filter.Limit, 200, 5000))
	return s.queryCandidates(ctx, query, args...)
}

func (s *Store) GetCandidate(ctx context.Context, id string) (types.PairCandidate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+candidateColumns+` FROM pair_candidates WHERE id=?`, id)
	c, err := scanCandidate(row)
	if err != nil {
		return types.PairCandidate{}, notFound(err, "candidate", id)
	}
	return c, nil
}

// PairHistory 返回某个资产对在历次会话中的记录，按筛选时间升序。
func (s *Store) PairHistory(ctx context.Context, key types.PairKey, limit int) ([]types.PairCandidate, error) {
	return s.queryCandidates(ctx, `
		SELECT `+candidateColumns+` FROM (
			SELECT * FROM pair_candidates WHERE pair_key=? ORDER BY screening_date DESC LIMIT ?
		) ORDER BY screening_date ASC`, key.String(), clampLimit(limit, 100, 1000))
}

func (s *Store) queryCandidates(ctx context.Context, query string, args ...interface{}) ([]types.PairCandidate, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []types.PairCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func scanCandidate(row scanner) (types.PairCandidate, error) {
	var (
		c        types.PairCandidate
		hurst    sql.NullFloat64
		halfLife sql.NullFloat64
		screened int64
	)
	if err := row.Scan(&c.ID, &c.SessionID, &c.AssetA, &c.AssetB, &c.Correlation, &c.ADFStatistic,
		&c.ADFPValue, &c.ADFLags, &c.Alpha, &c.Beta, &c.SpreadMean, &c.SpreadStd, &hurst, &halfLife,
		&c.CurrentZScore, &c.Score, &c.LookbackDays, &c.Observations, &screened); err != nil {
		return types.PairCandidate{}, err
	}
	c.Hurst = floatPtr(hurst)
	c.HalfLife = floatPtr(halfLife)
	c.ScreeningDate = timeFromMillis(screened)
	return c, nil
}
