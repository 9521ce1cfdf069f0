package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairlab/internal/store/sqlite"
	"pairlab/internal/types"
)

type recordingNotifier struct{ msgs []string }

func (r *recordingNotifier) SendText(text string) error {
	r.msgs = append(r.msgs, text)
	return nil
}

func cand(id, a, b string, corr, p, beta, score float64) types.PairCandidate {
	return types.PairCandidate{ID: id, AssetA: a, AssetB: b, Correlation: corr, ADFPValue: p, Beta: beta, Score: score}
}

// seed 写入三次完成的会话：ETH/BTC 相关性逐步下降，SOL/AVAX 在最后一次失去协整，
// XRP/ADA 只在第二次出现，LINK/DOT 只在第三次出现。
func seed(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	sessions := []struct {
		id    string
		cands []types.PairCandidate
	}{
		{"s1", []types.PairCandidate{
			cand("a1", "ETHUSDT", "BTCUSDT", 0.95, 0.01, 1.0, 80),
			cand("b1", "SOLUSDT", "AVAXUSDT", 0.90, 0.02, 2.0, 70),
		}},
		{"s2", []types.PairCandidate{
			cand("a2", "ETHUSDT", "BTCUSDT", 0.93, 0.02, 1.1, 78),
			cand("b2", "SOLUSDT", "AVAXUSDT", 0.88, 0.03, 2.0, 68),
			cand("c2", "XRPUSDT", "ADAUSDT", 0.85, 0.04, 0.5, 50),
		}},
		{"s3", []types.PairCandidate{
			cand("a3", "ETHUSDT", "BTCUSDT", 0.80, 0.04, 1.2, 60),
			cand("b3", "SOLUSDT", "AVAXUSDT", 0.87, 0.08, 2.1, 55),
			cand("d3", "LINKUSDT", "DOTUSDT", 0.91, 0.01, 0.7, 75),
		}},
	}
	for i, s := range sessions {
		started := day.AddDate(0, 0, i)
		done := started.Add(time.Minute)
		require.NoError(t, st.SaveSession(ctx, types.ScreeningSession{
			ID: s.id, StartedAt: started, CompletedAt: &done, Status: types.SessionCompleted, PairsFound: len(s.cands),
		}))
		for j := range s.cands {
			s.cands[j].SessionID = s.id
			s.cands[j].ScreeningDate = started
		}
		require.NoError(t, st.SaveCandidates(ctx, s.id, s.cands))
	}
	require.NoError(t, st.SaveSession(ctx, types.ScreeningSession{
		ID: "failed", StartedAt: day.AddDate(0, 0, 5), Status: types.SessionFailed,
	}))
	return st
}

func newTestAnalyzer(t *testing.T, n *recordingNotifier) *Analyzer {
	t.Helper()
	cfg := Config{Store: seed(t), CorrelationDrop: 0.1, MaxADFPValue: 0.05}
	if n != nil {
		cfg.Notifier = n
	}
	a, err := NewAnalyzer(cfg)
	require.NoError(t, err)
	return a
}

func TestDiffMatchesUnorderedKeys(t *testing.T) {
	cur := []types.PairCandidate{cand("x", "ETHUSDT", "BTCUSDT", 0.9, 0.01, 1, 70)}
	prev := []types.PairCandidate{cand("y", "BTCUSDT", "ETHUSDT", 0.8, 0.03, 1, 60)}
	changes := Diff(cur, prev)
	require.Len(t, changes, 1)
	assert.Equal(t, StatusUpdated, changes[0].Status)
	assert.InDelta(t, 0.1, *changes[0].CorrelationChange, 1e-12)
	assert.InDelta(t, -0.02, *changes[0].ADFPValueChange, 1e-12)
	assert.InDelta(t, 10, *changes[0].ScoreChange, 1e-12)

	assert.Empty(t, Diff(nil, nil))
}

func TestCompareLatestWithPrevious(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	cmp, err := a.Compare(context.Background(), "", "")
	require.NoError(t, err)

	assert.Equal(t, "s3", cmp.Current.SessionID)
	assert.Equal(t, "s2", cmp.Previous.SessionID)
	assert.Equal(t, 1, cmp.New)
	assert.Equal(t, 1, cmp.Removed)
	assert.Equal(t, 2, cmp.Updated)

	require.Len(t, cmp.Changes, 4)
	statuses := make(map[string]ChangeStatus)
	for _, ch := range cmp.Changes {
		statuses[types.NewPairKey(ch.AssetA, ch.AssetB).String()] = ch.Status
	}
	assert.Equal(t, StatusRemoved, statuses["ADAUSDT/XRPUSDT"])
	assert.Equal(t, StatusNew, statuses["DOTUSDT/LINKUSDT"])
	assert.Equal(t, StatusUpdated, statuses["BTCUSDT/ETHUSDT"])
	assert.Equal(t, "ADAUSDT/XRPUSDT", types.NewPairKey(cmp.Changes[0].AssetA, cmp.Changes[0].AssetB).String())

	require.Len(t, cmp.Degraded, 2)
	assert.Equal(t, "ETHUSDT", cmp.Degraded[0].AssetA)
	assert.Equal(t, []string{ReasonCorrelationDrop}, cmp.Degraded[0].Reasons)
	assert.InDelta(t, 0.13, cmp.Degraded[0].CorrelationDrop, 1e-9)
	assert.Equal(t, []string{ReasonLostCointegration}, cmp.Degraded[1].Reasons)

	explicit, err := a.Compare(context.Background(), "s2", "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, explicit.New)
	assert.Zero(t, explicit.Removed)
	assert.Empty(t, explicit.Degraded)

	_, err = a.Compare(context.Background(), "s1", "")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestDegradationsUseFullHistory(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	got, err := a.Degradations(context.Background(), "s3")
	require.NoError(t, err)
	require.Len(t, got, 2)
	eth := got[0]
	assert.InDelta(t, 0.94, eth.HistoricalAvgCorrelation, 1e-9)
	assert.Equal(t, 2, eth.HistoricalObservations)
	require.NotNil(t, eth.PreviousADFPValue)
	assert.InDelta(t, 0.02, *eth.PreviousADFPValue, 1e-12)
}

func TestTrendsAndPairTrend(t *testing.T) {
	a := newTestAnalyzer(t, nil)
	ctx := context.Background()

	points, err := a.Trends(ctx, 10)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, "s1", points[0].SessionID)
	assert.Equal(t, 2, points[0].PairsFound)
	assert.InDelta(t, 0.925, points[0].AvgCorrelation, 1e-9)
	assert.InDelta(t, 75, points[0].AvgScore, 1e-9)
	assert.Equal(t, 3, points[2].PairsFound)

	trend, err := a.PairTrend(ctx, "btc/usdt", "ETHUSDT", 0)
	require.NoError(t, err)
	require.Len(t, trend.Points, 3)
	assert.Equal(t, 0.95, trend.Points[0].Correlation)
	assert.Equal(t, "s3", trend.Points[2].SessionID)

	_, err = a.PairTrend(ctx, "ETHUSDT", "DOGEUSDT", 0)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	_, err = a.PairTrend(ctx, "ETHUSDT", "eth/usdt", 0)
	assert.True(t, errors.Is(err, types.ErrInvalidConfig))
}

func TestOnSessionCompleteNotifies(t *testing.T) {
	n := &recordingNotifier{}
	a := newTestAnalyzer(t, n)
	ctx := context.Background()
	sess, err := a.store.GetSession(ctx, "s3")
	require.NoError(t, err)
	cands, err := a.candidates(ctx, "s3")
	require.NoError(t, err)

	a.OnSessionComplete(ctx, sess, cands)
	require.Len(t, n.msgs, 1)
	assert.Contains(t, n.msgs[0], "ETHUSDT/BTCUSDT corr 0.800")
	assert.Contains(t, n.msgs[0], "lost_cointegration")

	quiet := &recordingNotifier{}
	b := newTestAnalyzer(t, quiet)
	s1, err := b.store.GetSession(ctx, "s1")
	require.NoError(t, err)
	first, err := b.candidates(ctx, "s1")
	require.NoError(t, err)
	b.OnSessionComplete(ctx, s1, first)
	assert.Empty(t, quiet.msgs)
}
