// Package export 把筛选结果、回测与价差序列导出为 CSV 或图表。
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"pairlab/internal/spread"
	"pairlab/internal/types"
)

var candidateHeader = []string{
	"session_id", "asset_a", "asset_b", "score", "correlation",
	"adf_statistic", "adf_pvalue", "adf_lags", "alpha", "beta",
	"spread_mean", "spread_std", "hurst", "half_life", "current_zscore",
	"lookback_days", "observations", "screening_date",
}

// WriteCandidatesCSV 输出候选对，顺序与入参一致。
func WriteCandidatesCSV(w io.Writer, candidates []types.PairCandidate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(candidateHeader); err != nil {
		return err
	}
	for _, c := range candidates {
		row := []string{
			c.SessionID, c.AssetA, c.AssetB,
			formatFloat(c.Score), formatFloat(c.Correlation),
			formatFloat(c.ADFStatistic), formatFloat(c.ADFPValue), strconv.Itoa(c.ADFLags),
			formatFloat(c.Alpha), formatFloat(c.Beta),
			formatFloat(c.SpreadMean), formatFloat(c.SpreadStd),
			formatOptional(c.Hurst), formatOptional(c.HalfLife),
			formatFloat(c.CurrentZScore),
			strconv.Itoa(c.LookbackDays), strconv.Itoa(c.Observations),
			formatTime(c.ScreeningDate),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

var tradeHeader = []string{
	"side", "entry_date", "exit_date", "entry_price_a", "entry_price_b",
	"exit_price_a", "exit_price_b", "entry_zscore", "exit_zscore",
	"quantity_a", "quantity_b", "trade_capital", "beta_used", "exit_reason",
	"pnl", "pnl_pct", "mae", "mae_pct", "beta_drift", "rebalance_count",
	"rebalance_cost", "holding_bars",
}

// WriteTradesCSV 输出回测交易明细；未平仓交易的出场列留空。
func WriteTradesCSV(w io.Writer, trades []types.Trade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tradeHeader); err != nil {
		return err
	}
	for _, t := range trades {
		exit := ""
		if t.ExitDate != nil {
			exit = formatTime(*t.ExitDate)
		}
		row := []string{
			string(t.Side), formatTime(t.EntryDate), exit,
			formatFloat(t.EntryPriceA), formatFloat(t.EntryPriceB),
			formatFloat(t.ExitPriceA), formatFloat(t.ExitPriceB),
			formatFloat(t.EntryZScore), formatFloat(t.ExitZScore),
			formatFloat(t.QuantityA), formatFloat(t.QuantityB),
			formatFloat(t.TradeCapital), formatFloat(t.BetaUsed),
			string(t.ExitReason),
			formatFloat(t.PnL), formatFloat(t.PnLPct),
			formatFloat(t.MAE), formatFloat(t.MAEPct),
			formatFloat(t.BetaDrift), strconv.Itoa(t.RebalanceCount),
			formatFloat(t.RebalanceCost), strconv.Itoa(t.HoldingBars),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSeriesCSV 输出价差图的逐 bar 数据。
func WriteSeriesCSV(w io.Writer, data spread.ChartData) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "spread", "zscore", "norm_a", "norm_b"}); err != nil {
		return err
	}
	for _, p := range data.Points {
		row := []string{
			formatTime(p.Time), formatFloat(p.Spread), formatFloat(p.Z),
			formatFloat(p.NormA), formatFloat(p.NormB),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV 输出权益曲线与同期 z-score。
func WriteEquityCSV(w io.Writer, res types.BacktestResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "equity", "zscore"}); err != nil {
		return err
	}
	z := make(map[int64]float64, len(res.ZScores))
	for _, p := range res.ZScores {
		z[p.Time.UnixMilli()] = p.ZScore
	}
	for _, p := range res.EquityCurve {
		zs := ""
		if v, ok := z[p.Time.UnixMilli()]; ok {
			zs = formatFloat(v)
		}
		if err := cw.Write([]string{formatTime(p.Time), formatFloat(p.Equity), zs}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
