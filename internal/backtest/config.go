package backtest

import (
	"fmt"
	"math"
	"strings"

	"pairlab/internal/market"
	"pairlab/internal/types"
)

// 模拟器常量，按 bar 计。
const (
	HedgeWindow     = 90
	MinHedgeBars    = 30
	MaxRollingBeta  = 10.0
	ZScoreWindow    = 60
	MinZScoreBars   = 30
	ATRPeriod       = 14
	MinBacktestBars = 50
)

// Normalize 清洗并校验回测参数，错误统一包装 types.ErrInvalidConfig。
func Normalize(cfg types.BacktestConfig) (types.BacktestConfig, error) {
	cfg.AssetA = market.NormalizeSymbol(cfg.AssetA)
	cfg.AssetB = market.NormalizeSymbol(cfg.AssetB)
	cfg.StopLoss.Type = types.StopLossType(strings.ToLower(strings.TrimSpace(string(cfg.StopLoss.Type))))
	cfg.TakeProfit.Type = types.TakeProfitType(strings.ToLower(strings.TrimSpace(string(cfg.TakeProfit.Type))))
	if cfg.StopLoss.Type == "" {
		cfg.StopLoss.Type = types.StopLossNone
	}
	if cfg.TakeProfit.Type == "" {
		cfg.TakeProfit.Type = types.TakeProfitZScore
	}
	if err := validate(cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
	}
	return cfg, nil
}

func validate(cfg types.BacktestConfig) error {
	switch {
	case cfg.AssetA == "" || cfg.AssetB == "":
		return fmt.Errorf("asset_a/asset_b 不能为空")
	case cfg.AssetA == cfg.AssetB:
		return fmt.Errorf("asset_a 与 asset_b 不能相同")
	case !finite(cfg.EntryThreshold) || cfg.EntryThreshold <= 0 || cfg.EntryThreshold > 5:
		return fmt.Errorf("entry_threshold must be within (0,5]")
	case !finite(cfg.InitialCapital) || cfg.InitialCapital <= 0:
		return fmt.Errorf("initial_capital must be > 0")
	case !finite(cfg.PositionSizePct) || cfg.PositionSizePct <= 0 || cfg.PositionSizePct > 100:
		return fmt.Errorf("position_size_pct must be within (0,100]")
	case !finite(cfg.TransactionCostPct) || cfg.TransactionCostPct < 0 || cfg.TransactionCostPct > 0.05:
		return fmt.Errorf("transaction_cost_pct must be within [0,0.05]")
	case cfg.LookbackDays < MinBacktestBars || cfg.LookbackDays > 1000:
		return fmt.Errorf("lookback_days must be within [%d,1000]", MinBacktestBars)
	}
	if cfg.Beta != nil && (!finite(*cfg.Beta) || *cfg.Beta <= 0) {
		return fmt.Errorf("beta override must be > 0")
	}
	switch cfg.StopLoss.Type {
	case types.StopLossNone:
	case types.StopLossZScore, types.StopLossPercent, types.StopLossATR:
		if !finite(cfg.StopLoss.Value) || cfg.StopLoss.Value <= 0 {
			return fmt.Errorf("stop_loss.value must be > 0 for %s", cfg.StopLoss.Type)
		}
	default:
		return fmt.Errorf("unknown stop_loss.type %q", cfg.StopLoss.Type)
	}
	switch cfg.TakeProfit.Type {
	case types.TakeProfitZScore:
		if !finite(cfg.TakeProfit.Value) {
			return fmt.Errorf("take_profit.value must be finite")
		}
	case types.TakeProfitPercent, types.TakeProfitATR:
		if !finite(cfg.TakeProfit.Value) || cfg.TakeProfit.Value <= 0 {
			return fmt.Errorf("take_profit.value must be > 0 for %s", cfg.TakeProfit.Type)
		}
	default:
		return fmt.Errorf("unknown take_profit.type %q", cfg.TakeProfit.Type)
	}
	if r := cfg.Rebalancing; r.Enabled {
		if r.FrequencyDays < 1 || r.FrequencyDays > 30 {
			return fmt.Errorf("rebalancing.frequency_days must be within [1,30]")
		}
		if !finite(r.DriftThreshold) || r.DriftThreshold < 0.01 || r.DriftThreshold > 0.5 {
			return fmt.Errorf("rebalancing.drift_threshold must be within [0.01,0.5]")
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
