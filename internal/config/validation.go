package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验；参数范围与 HTTP 请求校验保持一致。
func validate(c *Config) error {
	if err := c.Market.validate(); err != nil {
		return err
	}
	if err := c.Screening.validate(); err != nil {
		return err
	}
	if err := c.Backtest.validate(); err != nil {
		return err
	}
	if err := c.Alerts.validate(); err != nil {
		return err
	}
	return c.Notify.validate()
}

func (m *MarketConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(m.Source)) {
	case "binance", "gate":
	default:
		return fmt.Errorf("market.source unsupported: %s", m.Source)
	}
	if m.Interval != "1d" && m.Interval != "4h" && m.Interval != "1h" {
		return fmt.Errorf("market.interval must be one of 1d/4h/1h")
	}
	if m.RateLimitPerMin <= 0 {
		return fmt.Errorf("market.rate_limit_per_min must be > 0")
	}
	return nil
}

func (s *ScreeningConfig) validate() error {
	if s.LookbackDays < 50 || s.LookbackDays > 1000 {
		return fmt.Errorf("screening.lookback_days must be within [50,1000]")
	}
	if s.MinCorrelation < 0 || s.MinCorrelation > 1 {
		return fmt.Errorf("screening.min_correlation must be within [0,1]")
	}
	if s.MaxADFPValue < 0 || s.MaxADFPValue > 0.5 {
		return fmt.Errorf("screening.max_adf_pvalue must be within [0,0.5]")
	}
	if s.MinVolumeUSD < 0 {
		return fmt.Errorf("screening.min_volume_usd must be >= 0")
	}
	if strings.TrimSpace(s.RescreenInterval) != "" && s.RescreenEvery() <= 0 {
		return fmt.Errorf("screening.rescreen_interval invalid: %s", s.RescreenInterval)
	}
	return nil
}

func (b *BacktestConfig) validate() error {
	if b.InitialCapital <= 0 {
		return fmt.Errorf("backtest.initial_capital must be > 0")
	}
	if b.PositionSizePct <= 0 || b.PositionSizePct > 100 {
		return fmt.Errorf("backtest.position_size_pct must be within (0,100]")
	}
	if b.TransactionCostPct < 0 || b.TransactionCostPct > 0.05 {
		return fmt.Errorf("backtest.transaction_cost_pct must be within [0,0.05]")
	}
	if b.EntryThreshold <= 0 || b.EntryThreshold > 5 {
		return fmt.Errorf("backtest.entry_threshold must be within (0,5]")
	}
	switch b.StopLossType {
	case "none", "zscore", "percent", "atr":
	default:
		return fmt.Errorf("backtest.stop_loss_type unsupported: %s", b.StopLossType)
	}
	switch b.TakeProfitType {
	case "zscore", "percent", "atr":
	default:
		return fmt.Errorf("backtest.take_profit_type unsupported: %s", b.TakeProfitType)
	}
	if b.Rebalancing.Enabled {
		if b.Rebalancing.FrequencyDays < 1 || b.Rebalancing.FrequencyDays > 30 {
			return fmt.Errorf("backtest.rebalancing.frequency_days must be within [1,30]")
		}
		if b.Rebalancing.DriftThreshold < 0.01 || b.Rebalancing.DriftThreshold > 0.5 {
			return fmt.Errorf("backtest.rebalancing.drift_threshold must be within [0.01,0.5]")
		}
	}
	if b.MaxConcurrent <= 0 {
		return fmt.Errorf("backtest.max_concurrent must be > 0")
	}
	return nil
}

func (a *AlertsConfig) validate() error {
	if !a.Enabled {
		return nil
	}
	if a.CheckEvery() <= 0 {
		return fmt.Errorf("alerts.check_interval invalid: %s", a.CheckInterval)
	}
	if a.LookbackDays < 30 {
		return fmt.Errorf("alerts.lookback_days must be >= 30")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if !n.Telegram.Enabled {
		return nil
	}
	if strings.TrimSpace(n.Telegram.BotToken) == "" || strings.TrimSpace(n.Telegram.ChatID) == "" {
		return fmt.Errorf("notify.telegram requires bot_token and chat_id when enabled")
	}
	return nil
}
