package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairlab/internal/store"
	"pairlab/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func ptr(v float64) *float64 { return &v }

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	started := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	sess := types.ScreeningSession{
		ID:        "s1",
		StartedAt: started,
		Status:    types.SessionRunning,
		Params:    types.ScreeningParams{LookbackDays: 365, MinCorrelation: 0.7, MaxADFPValue: 0.05, IncludeHurst: true},
	}
	require.NoError(t, st.SaveSession(ctx, sess))

	_, err := st.LatestSession(ctx)
	assert.ErrorIs(t, err, types.ErrNotFound)

	done := started.Add(time.Minute)
	sess.Status = types.SessionCompleted
	sess.CompletedAt = &done
	sess.TotalPairsTested = 45
	sess.PairsFound = 2
	sess.AssetsSkipped = 1
	sess.PairsSkipped = 4
	require.NoError(t, st.SaveSession(ctx, sess))

	got, err := st.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, types.SessionCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, done.Equal(*got.CompletedAt))
	assert.Equal(t, 45, got.TotalPairsTested)
	assert.Equal(t, 1, got.AssetsSkipped)
	assert.Equal(t, 4, got.PairsSkipped)
	assert.Equal(t, sess.Params, got.Params)

	latest, err := st.LatestSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", latest.ID)

	_, err = st.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestOpenAddsMissingSessionColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE screening_sessions (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		completed_at INTEGER,
		total_pairs_tested INTEGER NOT NULL DEFAULT 0,
		pairs_found INTEGER NOT NULL DEFAULT 0,
		assets_skipped INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		params_json TEXT NOT NULL
	)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO screening_sessions (id, status, started_at, params_json) VALUES ('old', 'completed', 1, '{}')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	st, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	got, err := st.GetSession(ctx, "old")
	require.NoError(t, err)
	assert.Zero(t, got.PairsSkipped)

	got.PairsSkipped = 3
	require.NoError(t, st.SaveSession(ctx, got))
	got, err = st.GetSession(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, 3, got.PairsSkipped)
}

func TestCandidates(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new"} {
		done := day.AddDate(0, 0, i)
		require.NoError(t, st.SaveSession(ctx, types.ScreeningSession{
			ID: id, StartedAt: day.AddDate(0, 0, i), CompletedAt: &done, Status: types.SessionCompleted,
		}))
	}
	require.NoError(t, st.SaveCandidates(ctx, "old", []types.PairCandidate{
		{ID: "c0", AssetA: "ETHUSDT", AssetB: "BTCUSDT", Correlation: 0.9, Score: 70, ScreeningDate: day},
	}))
	require.NoError(t, st.SaveCandidates(ctx, "new", []types.PairCandidate{
		{ID: "c1", AssetA: "ETHUSDT", AssetB: "BTCUSDT", Correlation: 0.8, Score: 60, Hurst: ptr(0.3), ScreeningDate: day.AddDate(0, 0, 1)},
		{ID: "c2", AssetA: "SOLUSDT", AssetB: "AVAXUSDT", Correlation: 0.85, Score: 80, HalfLife: ptr(4.5), ScreeningDate: day.AddDate(0, 0, 1)},
	}))

	t.Run("latest session by default", func(t *testing.T) {
		list, err := st.ListCandidates(ctx, store.CandidateFilter{})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "c2", list[0].ID)
		assert.Equal(t, "c1", list[1].ID)
		require.NotNil(t, list[1].Hurst)
		assert.Equal(t, 0.3, *list[1].Hurst)
		assert.Nil(t, list[1].HalfLife)
	})
	t.Run("filters", func(t *testing.T) {
		list, err := st.ListCandidates(ctx, store.CandidateFilter{SessionID: "new", Asset: "eth", MinScore: 50})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "c1", list[0].ID)
	})
	t.Run("get", func(t *testing.T) {
		c, err := st.GetCandidate(ctx, "c2")
		require.NoError(t, err)
		require.NotNil(t, c.HalfLife)
		assert.Equal(t, 4.5, *c.HalfLife)
		assert.Equal(t, "new", c.SessionID)
		_, err = st.GetCandidate(ctx, "nope")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
	t.Run("pair history ignores leg order", func(t *testing.T) {
		list, err := st.PairHistory(ctx, types.NewPairKey("btcusdt", "ethusdt"), 10)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "c0", list[0].ID)
		assert.Equal(t, "c1", list[1].ID)
	})
}

func TestBacktestRuns(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)
	cfg := types.BacktestConfig{AssetA: "ETHUSDT", AssetB: "BTCUSDT", LookbackDays: 200, EntryThreshold: 2}
	created := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, st.CreateBacktest(ctx, types.BacktestRun{ID: "r1", Status: types.RunPending, Config: cfg, CreatedAt: created}))
	require.NoError(t, st.CreateBacktest(ctx, types.BacktestRun{ID: "r2", Status: types.RunPending, Config: cfg, CreatedAt: created.Add(time.Hour)}))

	exit := created.AddDate(0, 0, 5)
	result := types.BacktestResult{
		Config: cfg,
		Alpha:  1.5,
		Beta:   0.05,
		Bars:   3,
		EquityCurve: []types.EquityPoint{
			{Time: created, Equity: 10000},
			{Time: created.AddDate(0, 0, 1), Equity: 10010},
			{Time: created.AddDate(0, 0, 2), Equity: 10020},
		},
		ZScores: []types.ZScorePoint{{Time: created.AddDate(0, 0, 2), ZScore: -1.2}},
		Trades: []types.Trade{{
			Side: types.LongSpread, EntryDate: created, ExitDate: &exit, ExitReason: types.ExitTakeProfit, PnL: 20,
		}},
		Metrics: types.Metrics{TotalTrades: 1, WinningTrades: 1, FinalEquity: 10020, TotalReturnPct: 0.2},
	}
	require.NoError(t, st.CompleteBacktest(ctx, "r1", result))
	require.NoError(t, st.FailBacktest(ctx, "r2", "fetch BTCUSDT: data unavailable"))

	run, err := st.GetBacktest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, types.RunDone, run.Status)
	require.NotNil(t, run.CompletedAt)
	require.NotNil(t, run.Result)
	assert.Equal(t, "r1", run.Result.RunID)
	assert.Equal(t, 0.05, run.Result.Beta)
	assert.Equal(t, 10020.0, run.Result.Metrics.FinalEquity)
	require.Len(t, run.Result.EquityCurve, 3)
	assert.Equal(t, 10010.0, run.Result.EquityCurve[1].Equity)
	require.Len(t, run.Result.ZScores, 1)
	require.Len(t, run.Result.Trades, 1)
	assert.Equal(t, types.ExitTakeProfit, run.Result.Trades[0].ExitReason)

	failed, err := st.GetBacktest(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, failed.Status)
	assert.Nil(t, failed.Result)
	assert.Contains(t, failed.Error, "unavailable")

	list, err := st.ListBacktests(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r2", list[0].ID)

	assert.ErrorIs(t, st.CompleteBacktest(ctx, "ghost", result), types.ErrNotFound)
	_, err = st.GetBacktest(ctx, "ghost")
	assert.ErrorIs(t, err, types.ErrNotFound)
}
