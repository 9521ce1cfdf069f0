package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"pairlab/internal/types"
)

const (
	periodsPerYear = 252

	// 杠杆建议
	TargetSharpe        = 1.0
	DrawdownBudgetPct   = 20.0
	MaxLeverage         = 5.0
	RecommendedFraction = 0.75
)

// ComputeMetrics 由权益曲线与已平仓交易汇总绩效；数值边界情况回落为 0 或缺省。
func ComputeMetrics(initial float64, equity []types.EquityPoint, trades []types.Trade) types.Metrics {
	m := types.Metrics{FinalEquity: initial, TotalTrades: len(trades)}
	if len(equity) > 0 {
		m.FinalEquity = equity[len(equity)-1].Equity
	}
	if initial > 0 {
		m.TotalReturnPct = (m.FinalEquity - initial) / initial * 100
	}
	m.SharpeRatio = sharpe(equity)
	m.MaxDrawdownPct = maxDrawdownPct(initial, equity)

	var grossProfit, grossLoss, holding, maeSum, maePctSum float64
	for _, t := range trades {
		holding += float64(t.HoldingBars)
		maeSum += t.MAE
		maePctSum += t.MAEPct
		m.MaxMAE = math.Max(m.MaxMAE, t.MAE)
		m.MaxMAEPct = math.Max(m.MaxMAEPct, t.MAEPct)
		m.Rebalancing.TotalRebalances += t.RebalanceCount
		m.Rebalancing.TotalCost += t.RebalanceCost
		switch {
		case t.PnL > 0:
			m.WinningTrades++
			grossProfit += t.PnL
		case t.PnL < 0:
			m.LosingTrades++
			grossLoss += -t.PnL
		}
	}
	if n := float64(len(trades)); n > 0 {
		m.WinRatePct = float64(m.WinningTrades) / n * 100
		m.AvgHoldingBars = holding / n
		m.AvgMAE = maeSum / n
		m.AvgMAEPct = maePctSum / n
		m.Rebalancing.AvgPerTrade = float64(m.Rebalancing.TotalRebalances) / n
		if m.AvgMAEPct > 0 {
			m.ReturnToMAE = m.TotalReturnPct / m.AvgMAEPct
		}
	}
	if grossLoss > 0 {
		pf := grossProfit / grossLoss
		m.ProfitFactor = &pf
	}
	if initial > 0 {
		m.Rebalancing.CostPctOfCapital = m.Rebalancing.TotalCost / initial * 100
	}
	m.Leverage = RecommendLeverage(m.SharpeRatio, m.MaxDrawdownPct)
	m.Kelly = Kelly(trades)
	return m
}

// sharpe 基于逐 bar 权益收益率，年化系数 √252；标准差为 0 时返回 0。
func sharpe(equity []types.EquityPoint) float64 {
	if len(equity) < 3 {
		return 0
	}
	rets := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev <= 0 {
			continue
		}
		rets = append(rets, equity[i].Equity/prev-1)
	}
	if len(rets) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(rets, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

func maxDrawdownPct(initial float64, equity []types.EquityPoint) float64 {
	peak := initial
	worst := 0.0
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if dd := (peak - p.Equity) / peak * 100; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// RecommendLeverage 取 Sharpe 与回撤两种约束中较保守的一个，建议值再打 0.75 折。
// Sharpe 非正时不建议加杠杆，全部返回 1。
func RecommendLeverage(sharpeRatio, maxDDPct float64) types.LeverageInfo {
	if !(sharpeRatio > 0) {
		return types.LeverageInfo{SharpeBased: 1, DrawdownBased: 1, Optimal: 1, Recommended: 1}
	}
	sharpeBased := sharpeRatio / TargetSharpe
	ddBased := MaxLeverage
	if maxDDPct > 0 {
		ddBased = math.Min(DrawdownBudgetPct/maxDDPct, MaxLeverage)
	}
	optimal := math.Min(math.Min(sharpeBased, ddBased), MaxLeverage)
	return types.LeverageInfo{
		SharpeBased:   sharpeBased,
		DrawdownBased: ddBased,
		Optimal:       optimal,
		Recommended:   optimal * RecommendedFraction,
	}
}

// Kelly 计算凯利比例（百分比，截断到 [0,100]）。
// 没有亏损交易时按 b→∞ 的极限取胜率本身；没有盈利交易时为 0。
func Kelly(trades []types.Trade) types.KellyInfo {
	var (
		info            types.KellyInfo
		wins, losses    int
		winSum, lossSum float64
	)
	for _, t := range trades {
		switch {
		case t.PnL > 0:
			wins++
			winSum += t.PnL
		case t.PnL < 0:
			losses++
			lossSum += -t.PnL
		}
	}
	total := len(trades)
	if total == 0 || wins == 0 {
		if losses > 0 {
			info.AvgLoss = lossSum / float64(losses)
		}
		return info
	}
	p := float64(wins) / float64(total)
	info.AvgWin = winSum / float64(wins)
	if losses == 0 {
		info.KellyPct = clampPct(p * 100)
		return info
	}
	info.AvgLoss = lossSum / float64(losses)
	b := info.AvgWin / info.AvgLoss
	info.WinLossRatio = b
	info.KellyPct = clampPct((p - (1-p)/b) * 100)
	return info
}

func clampPct(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
