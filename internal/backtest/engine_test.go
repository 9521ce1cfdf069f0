package backtest

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairlab/internal/types"
)

func makePair(a, b []float64) types.AlignedPair {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	times := make([]time.Time, len(a))
	for i := range times {
		times[i] = start.AddDate(0, 0, i)
	}
	return types.AlignedPair{SymbolA: "AAAUSDT", SymbolB: "BBBUSDT", Times: times, A: a, B: b}
}

func sinePair(n int, amp float64) types.AlignedPair {
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		b[i] = 100 + 0.1*float64(i)
		a[i] = 2*b[i] + amp*math.Sin(2*math.Pi*float64(i)/40)
	}
	return makePair(a, b)
}

func baseConfig(n int) types.BacktestConfig {
	beta := 2.0
	return types.BacktestConfig{
		AssetA:             "AAAUSDT",
		AssetB:             "BBBUSDT",
		LookbackDays:       n,
		EntryThreshold:     1.0,
		StopLoss:           types.StopLoss{Type: types.StopLossNone},
		TakeProfit:         types.TakeProfit{Type: types.TakeProfitZScore, Value: 0},
		InitialCapital:     10000,
		PositionSizePct:    10,
		TransactionCostPct: 0.0005,
		Beta:               &beta,
	}
}

// peakedPair 的价差在 ±amp 之间摆动，半周期 20 根；尖峰形状让滚动 z 的极值约为 ±3。
func peakedPair(n int, amp float64) types.AlignedPair {
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		s := math.Sin(2 * math.Pi * float64(i) / 40)
		b[i] = 100 + 0.1*float64(i)
		a[i] = 2*b[i] + amp*math.Copysign(math.Pow(math.Abs(s), 32), s)
	}
	return makePair(a, b)
}

func TestSimulateThreeSigmaSpreadExample(t *testing.T) {
	const amp = 5.0
	cfg := baseConfig(480)
	cfg.EntryThreshold = 2
	res, err := Simulate(context.Background(), peakedPair(480, amp), cfg)
	require.NoError(t, err)

	maxZ := 0.0
	for _, p := range res.ZScores[60:] {
		maxZ = math.Max(maxZ, math.Abs(p.ZScore))
	}
	assert.InDelta(t, 3.0, maxZ, 0.25)

	require.GreaterOrEqual(t, len(res.Trades), 20)
	sides := map[types.TradeSide]int{}
	for _, tr := range res.Trades {
		sides[tr.Side]++
		assert.Equal(t, types.ExitTakeProfit, tr.ExitReason)
		assert.Greater(t, tr.PnL, 0.0)
		assert.GreaterOrEqual(t, math.Abs(tr.EntryZScore), 2.0)
		assert.Less(t, math.Abs(tr.EntryZScore), 3.0)
		assert.Less(t, math.Abs(tr.ExitZScore), 0.5)
		// 最大不利偏移不超过入场点到局部极值的距离
		assert.LessOrEqual(t, tr.MAE, tr.QuantityA*(amp-math.Abs(tr.EntrySpread))+1e-6)
	}
	assert.Positive(t, sides[types.LongSpread])
	assert.Positive(t, sides[types.ShortSpread])
	assert.Equal(t, 100.0, res.Metrics.WinRatePct)
}

func TestSimulateSinusoidalSpreadWinsEveryTrade(t *testing.T) {
	pair := sinePair(503, 5)
	res, err := Simulate(context.Background(), pair, baseConfig(503))
	require.NoError(t, err)

	require.NotEmpty(t, res.Trades)
	for _, tr := range res.Trades {
		assert.Equal(t, types.ExitTakeProfit, tr.ExitReason)
		assert.Greater(t, tr.PnL, 0.0)
		assert.GreaterOrEqual(t, tr.MAE, 0.0)
		require.NotNil(t, tr.ExitDate)
		assert.True(t, tr.ExitDate.After(tr.EntryDate))
	}
	assert.Equal(t, 100.0, res.Metrics.WinRatePct)
	assert.Equal(t, len(res.Trades), res.Metrics.WinningTrades)
	assert.Nil(t, res.Metrics.ProfitFactor)
	assert.Greater(t, res.Metrics.FinalEquity, 10000.0)
	assert.Len(t, res.EquityCurve, 503)
	assert.Equal(t, 2.0, res.Beta)

	sides := map[types.TradeSide]int{}
	for _, tr := range res.Trades {
		sides[tr.Side]++
	}
	assert.Positive(t, sides[types.LongSpread])
	assert.Positive(t, sides[types.ShortSpread])
}

func TestSimulateThresholdAboveMaxZ(t *testing.T) {
	cfg := baseConfig(200)
	cfg.EntryThreshold = 5
	res, err := Simulate(context.Background(), sinePair(200, 0.5), cfg)
	require.NoError(t, err)

	assert.Empty(t, res.Trades)
	for _, p := range res.EquityCurve {
		assert.Equal(t, 10000.0, p.Equity)
	}
	assert.Equal(t, 0.0, res.Metrics.TotalReturnPct)
	assert.Equal(t, 0.0, res.Metrics.SharpeRatio)
	assert.Equal(t, 0.0, res.Metrics.MaxDrawdownPct)
}

func TestSimulateStopLossTakesPrecedence(t *testing.T) {
	n := 130
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		b[i] = 100
		a[i] = 100 + 0.5*math.Sin(1.3*float64(i))
	}
	// 第 100 根向下跳开仓，下一根同时满足止盈和 ATR 止损
	a[100] = 95
	a[101] = 105
	beta := 1.0
	cfg := baseConfig(n)
	cfg.Beta = &beta
	cfg.EntryThreshold = 2
	cfg.StopLoss = types.StopLoss{Type: types.StopLossATR, Value: 2}

	res, err := Simulate(context.Background(), makePair(a, b), cfg)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, types.LongSpread, tr.Side)
	assert.Equal(t, types.ExitStopLoss, tr.ExitReason)
	assert.Equal(t, 1, tr.HoldingBars)

	cfg.StopLoss = types.StopLoss{Type: types.StopLossNone}
	res, err = Simulate(context.Background(), makePair(a, b), cfg)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, types.ExitTakeProfit, res.Trades[0].ExitReason)
}

func TestSimulateRebalancingKeepsPnLIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	n := 400
	a := make([]float64, n)
	b := make([]float64, n)
	b[0] = 50
	for i := 1; i < n; i++ {
		b[i] = b[i-1] + rng.NormFloat64()*0.5
		if b[i] < 10 {
			b[i] = 10
		}
	}
	for i := 0; i < n; i++ {
		a[i] = 10 + 2*b[i] + 3*math.Sin(float64(i)/6) + rng.NormFloat64()*0.3
	}
	cfg := baseConfig(n)
	cfg.Beta = nil
	cfg.EntryThreshold = 1.5
	cfg.StopLoss = types.StopLoss{Type: types.StopLossPercent, Value: 2}
	cfg.Rebalancing = types.Rebalancing{Enabled: true, FrequencyDays: 5, DriftThreshold: 0.05}

	res, err := Simulate(context.Background(), makePair(a, b), cfg)
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)

	sum, rebalances, cost, drift := 0.0, 0, 0.0, 0.0
	for _, tr := range res.Trades {
		sum += tr.PnL
		rebalances += tr.RebalanceCount
		cost += tr.RebalanceCost
		drift += tr.BetaDrift
		assert.GreaterOrEqual(t, tr.MAE, 0.0)
	}
	final := res.EquityCurve[len(res.EquityCurve)-1].Equity
	assert.InDelta(t, final-cfg.InitialCapital, sum, 1e-6)
	assert.InDelta(t, final, res.Metrics.FinalEquity, 1e-9)
	assert.Positive(t, res.Metrics.Rebalancing.TotalRebalances)
	assert.Equal(t, rebalances, res.Metrics.Rebalancing.TotalRebalances)
	assert.Positive(t, cost)
	assert.InDelta(t, cost, res.Metrics.Rebalancing.TotalCost, 1e-9)
	assert.Positive(t, drift)
}

func TestSimulateRebalancesOnFrequency(t *testing.T) {
	// 固定 beta，漂移恒为 0，只有频率会触发
	cfg := baseConfig(200)
	cfg.Rebalancing = types.Rebalancing{Enabled: true, FrequencyDays: 5, DriftThreshold: 0.5}
	res, err := Simulate(context.Background(), sinePair(200, 5), cfg)
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)

	total := 0
	for _, tr := range res.Trades {
		if tr.ExitReason != types.ExitTakeProfit {
			continue
		}
		// 出场那根不再调整
		assert.Equal(t, (tr.HoldingBars-1)/5, tr.RebalanceCount, "holding %d", tr.HoldingBars)
		assert.Zero(t, tr.BetaDrift)
		total += tr.RebalanceCount
	}
	assert.Positive(t, total)
}

func TestSimulateRebalancesOnDrift(t *testing.T) {
	// 真实 beta 从 2 漂到 3.5；频率 30 根，持仓不足 30 根的调整只能来自漂移
	n := 400
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		b[i] = 50 + 10*math.Sin(float64(i)/15) + 0.05*float64(i)
		a[i] = 10 + (2+1.5*float64(i)/float64(n))*b[i] + 3*math.Sin(float64(i)/6)
	}
	cfg := baseConfig(n)
	cfg.Beta = nil
	cfg.EntryThreshold = 1.5
	cfg.Rebalancing = types.Rebalancing{Enabled: true, FrequencyDays: 30, DriftThreshold: 0.05}

	res, err := Simulate(context.Background(), makePair(a, b), cfg)
	require.NoError(t, err)

	driftOnly := 0
	for _, tr := range res.Trades {
		if tr.HoldingBars >= 30 || tr.RebalanceCount == 0 {
			continue
		}
		driftOnly += tr.RebalanceCount
		assert.GreaterOrEqual(t, tr.BetaDrift, 0.05*float64(tr.RebalanceCount)-1e-12)
	}
	assert.Positive(t, driftOnly)
}

func TestSimulateATRIgnoresHedgeRefit(t *testing.T) {
	// 第 199 根价差向下跳开多，之后两腿价格冻结；滚动对冲仍在重估
	n := 240
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		b[i] = 100 + 10*math.Sin(float64(i)/10)
		a[i] = 2*b[i] + 0.1*math.Sin(1.7*float64(i))
	}
	a[199] = 2*b[199] - 5
	for i := 200; i < n; i++ {
		a[i], b[i] = a[199], b[199]
	}
	cfg := baseConfig(n)
	cfg.Beta = nil
	cfg.EntryThreshold = 3
	cfg.StopLoss = types.StopLoss{Type: types.StopLossATR, Value: 0.5}
	cfg.TakeProfit = types.TakeProfit{Type: types.TakeProfitPercent, Value: 50}

	res, err := Simulate(context.Background(), makePair(a, b), cfg)
	require.NoError(t, err)
	require.Len(t, res.Trades, 1)
	tr := res.Trades[0]
	assert.Equal(t, types.LongSpread, tr.Side)
	assert.Equal(t, res.EquityCurve[199].Time, tr.EntryDate)
	assert.Equal(t, types.ExitEndOfData, tr.ExitReason)
	assert.Equal(t, tr.EntryPriceA, tr.ExitPriceA)
	assert.Equal(t, tr.EntryPriceB, tr.ExitPriceB)
	assert.Equal(t, n-1-199, tr.HoldingBars)
}

func TestSpreadMoveUsesPositionHedge(t *testing.T) {
	s := newPortfolio(10000, 0)
	require.True(t, s.open(types.LongSpread, 0, time.Time{}, 210, 100, -2.5, -4, hedge{alpha: 14, beta: 2}, 1000))
	pos := s.position
	assert.Zero(t, pos.spreadMove(210, 100))
	assert.InDelta(t, 3.0, pos.spreadMove(213, 100), 1e-12)

	s.rebalance(5, 210, 100, hedge{alpha: -20, beta: 2.3}, 0.15)
	assert.Zero(t, pos.spreadMove(210, 100))
	assert.InDelta(t, -2.3, pos.spreadMove(210, 101), 1e-12)
	assert.Equal(t, 2.3, pos.effBeta)
}

func TestSpreadATRUsesWindowOnly(t *testing.T) {
	n := 60
	a := make([]float64, n)
	b := make([]float64, n)
	for i := range a {
		b[i] = 100
		a[i] = 200 + float64(i%2)
	}
	h := hedge{beta: 2}
	assert.True(t, math.IsNaN(spreadATR(a, b, 2*ATRPeriod-3, h)))
	assert.InDelta(t, 1.0, spreadATR(a, b, 2*ATRPeriod-2, h), 1e-12)
	// 窗口之后的数据不影响结果
	a[n-1] = 500
	assert.InDelta(t, 1.0, spreadATR(a, b, n-2, h), 1e-12)
}

func TestSimulateClosesOpenPositionAtEnd(t *testing.T) {
	n := 120
	a := make([]float64, n)
	b := make([]float64, n)
	for i := 0; i < n; i++ {
		b[i] = 100
		a[i] = 100 + 0.5*math.Sin(1.3*float64(i))
	}
	// 最后一段持续偏离，止盈永远达不到
	for i := 110; i < n; i++ {
		a[i] = 90 - float64(i-110)
	}
	beta := 1.0
	cfg := baseConfig(n)
	cfg.Beta = &beta
	cfg.EntryThreshold = 2

	res, err := Simulate(context.Background(), makePair(a, b), cfg)
	require.NoError(t, err)
	require.NotEmpty(t, res.Trades)
	last := res.Trades[len(res.Trades)-1]
	assert.Equal(t, types.ExitEndOfData, last.ExitReason)
	require.NotNil(t, last.ExitDate)
	assert.Equal(t, res.EquityCurve[n-1].Time, *last.ExitDate)
}

func TestSimulateRejectsBadInput(t *testing.T) {
	t.Run("insufficient data", func(t *testing.T) {
		pair := sinePair(20, 5)
		_, err := Simulate(context.Background(), pair, baseConfig(60))
		assert.ErrorIs(t, err, types.ErrInsufficientData)
	})
	t.Run("invalid config", func(t *testing.T) {
		cfg := baseConfig(200)
		cfg.EntryThreshold = 0
		_, err := Simulate(context.Background(), sinePair(200, 5), cfg)
		assert.ErrorIs(t, err, types.ErrInvalidConfig)
	})
	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Simulate(ctx, sinePair(200, 5), baseConfig(200))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPositionMAEIsMonotone(t *testing.T) {
	pos := &positionState{}
	seen := 0.0
	for _, pnl := range []float64{5, -3, 2, -8, -1, 10, -7} {
		pos.updateMAE(pnl)
		assert.GreaterOrEqual(t, pos.mae, seen)
		assert.GreaterOrEqual(t, pos.mae, 0.0)
		seen = pos.mae
	}
	assert.Equal(t, 8.0, pos.mae)
}

func TestZScoreTarget(t *testing.T) {
	assert.Equal(t, 0.0, zScoreTarget(0, -2))
	assert.Equal(t, 0.5, zScoreTarget(0.5, -2))
	assert.Equal(t, -0.5, zScoreTarget(-0.5, -2))
	assert.Equal(t, -0.5, zScoreTarget(0.5, 2))
	assert.Equal(t, 0.5, zScoreTarget(-0.5, 2))
}
