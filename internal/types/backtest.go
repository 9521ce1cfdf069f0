package types

import "time"

type StopLossType string

const (
	StopLossNone    StopLossType = "none"
	StopLossZScore  StopLossType = "zscore"
	StopLossPercent StopLossType = "percent"
	StopLossATR     StopLossType = "atr"
)

type TakeProfitType string

const (
	TakeProfitZScore  TakeProfitType = "zscore"
	TakeProfitPercent TakeProfitType = "percent"
	TakeProfitATR     TakeProfitType = "atr"
)

type TradeSide string

const (
	LongSpread  TradeSide = "long_spread"
	ShortSpread TradeSide = "short_spread"
)

type ExitReason string

const (
	ExitStopLoss   ExitReason = "stop_loss"
	ExitTakeProfit ExitReason = "take_profit"
	ExitEndOfData  ExitReason = "end_of_data"
)

type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	RunFailed  RunStatus = "failed"
)

type Rebalancing struct {
	Enabled        bool    `json:"enabled"`
	FrequencyDays  int     `json:"frequency_days"`
	DriftThreshold float64 `json:"drift_threshold"`
}

type StopLoss struct {
	Type  StopLossType `json:"type"`
	Value float64      `json:"value"`
}

type TakeProfit struct {
	Type  TakeProfitType `json:"type"`
	Value float64        `json:"value"`
}

type BacktestConfig struct {
	AssetA             string      `json:"asset_a"`
	AssetB             string      `json:"asset_b"`
	LookbackDays       int         `json:"lookback_days"`
	EntryThreshold     float64     `json:"entry_threshold"`
	StopLoss           StopLoss    `json:"stop_loss"`
	TakeProfit         TakeProfit  `json:"take_profit"`
	InitialCapital     float64     `json:"initial_capital"`
	PositionSizePct    float64     `json:"position_size_pct"`
	TransactionCostPct float64     `json:"transaction_cost_pct"`
	Beta               *float64    `json:"beta,omitempty"`
	Rebalancing        Rebalancing `json:"rebalancing"`
	Preset             string      `json:"preset,omitempty"`
}

type Trade struct {
	Side           TradeSide  `json:"side"`
	EntryDate      time.Time  `json:"entry_date"`
	EntryPriceA    float64    `json:"entry_price_a"`
	EntryPriceB    float64    `json:"entry_price_b"`
	EntryZScore    float64    `json:"entry_zscore"`
	EntrySpread    float64    `json:"entry_spread"`
	QuantityA      float64    `json:"quantity_a"`
	QuantityB      float64    `json:"quantity_b"`
	TradeCapital   float64    `json:"trade_capital"`
	BetaUsed       float64    `json:"beta_used"`
	ExitDate       *time.Time `json:"exit_date,omitempty"`
	ExitPriceA     float64    `json:"exit_price_a"`
	ExitPriceB     float64    `json:"exit_price_b"`
	ExitZScore     float64    `json:"exit_zscore"`
	ExitReason     ExitReason `json:"exit_reason,omitempty"`
	PnL            float64    `json:"pnl"`
	PnLPct         float64    `json:"pnl_pct"`
	MAE            float64    `json:"mae"`
	MAEPct         float64    `json:"mae_pct"`
	BetaDrift      float64    `json:"beta_drift"`
	RebalanceCount int        `json:"rebalance_count"`
	RebalanceCost  float64    `json:"rebalance_cost"`
	HoldingBars    int        `json:"holding_bars"`
}

type EquityPoint struct {
	Time   time.Time `json:"time"`
	Equity float64   `json:"equity"`
}

type ZScorePoint struct {
	Time   time.Time `json:"time"`
	ZScore float64   `json:"zscore"`
}

type LeverageInfo struct {
	SharpeBased   float64 `json:"sharpe_based"`
	DrawdownBased float64 `json:"drawdown_based"`
	Optimal       float64 `json:"optimal"`
	Recommended   float64 `json:"recommended"`
}

type KellyInfo struct {
	KellyPct     float64 `json:"kelly_pct"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	WinLossRatio float64 `json:"win_loss_ratio"`
}

type RebalanceStats struct {
	TotalRebalances  int     `json:"total_rebalances"`
	AvgPerTrade      float64 `json:"avg_per_trade"`
	TotalCost        float64 `json:"total_cost"`
	CostPctOfCapital float64 `json:"cost_pct_of_capital"`
}

type Metrics struct {
	TotalTrades    int            `json:"total_trades"`
	WinningTrades  int            `json:"winning_trades"`
	LosingTrades   int            `json:"losing_trades"`
	FinalEquity    float64        `json:"final_equity"`
	TotalReturnPct float64        `json:"total_return_pct"`
	SharpeRatio    float64        `json:"sharpe_ratio"`
	MaxDrawdownPct float64        `json:"max_drawdown_pct"`
	WinRatePct     float64        `json:"win_rate_pct"`
	ProfitFactor   *float64       `json:"profit_factor,omitempty"`
	AvgHoldingBars float64        `json:"avg_holding_bars"`
	AvgMAE         float64        `json:"avg_mae"`
	MaxMAE         float64        `json:"max_mae"`
	AvgMAEPct      float64        `json:"avg_mae_pct"`
	MaxMAEPct      float64        `json:"max_mae_pct"`
	ReturnToMAE    float64        `json:"return_to_mae"`
	Rebalancing    RebalanceStats `json:"rebalancing"`
	Leverage       LeverageInfo   `json:"leverage"`
	Kelly          KellyInfo      `json:"kelly"`
}

type BacktestResult struct {
	RunID       string         `json:"run_id"`
	Config      BacktestConfig `json:"config"`
	Alpha       float64        `json:"alpha"`
	Beta        float64        `json:"beta"`
	Bars        int            `json:"bars"`
	EquityCurve []EquityPoint  `json:"equity_curve"`
	ZScores     []ZScorePoint  `json:"zscores"`
	Trades      []Trade        `json:"trades"`
	Metrics     Metrics        `json:"metrics"`
}

// BacktestRun 是持久化层的运行记录；Result 仅在 Status=done 时存在。
type BacktestRun struct {
	ID          string          `json:"id"`
	Status      RunStatus       `json:"status"`
	Config      BacktestConfig  `json:"config"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Result      *BacktestResult `json:"result,omitempty"`
}
