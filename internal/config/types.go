package config

import (
	"strconv"
	"strings"
	"time"
)

// Config 是 pairlab 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Market    MarketConfig    `toml:"market"`
	Storage   StorageConfig   `toml:"storage"`
	Screening ScreeningConfig `toml:"screening"`
	Backtest  BacktestConfig  `toml:"backtest"`
	Alerts    AlertsConfig    `toml:"alerts"`
	Notify    NotifyConfig    `toml:"notify"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	HTTPAddr string `toml:"http_addr"`
	LogPath  string `toml:"log_path"`
}

// MarketConfig 控制行情来源（Binance REST）与本地 K 线缓存。
type MarketConfig struct {
	Source           string `toml:"source"`
	RESTBaseURL      string `toml:"rest_base_url"`
	QuoteAsset       string `toml:"quote_asset"`
	Interval         string `toml:"interval"`
	RateLimitPerMin  int    `toml:"rate_limit_per_min"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	CachePath        string `toml:"cache_path"`
	CacheTTLMinutes  int    `toml:"cache_ttl_minutes"`
	BreakerThreshold int    `toml:"breaker_threshold"`
	BreakerCooldown  int    `toml:"breaker_cooldown_seconds"`
}

func (m MarketConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSeconds) * time.Second
}

func (m MarketConfig) CacheTTL() time.Duration {
	return time.Duration(m.CacheTTLMinutes) * time.Minute
}

func (m MarketConfig) BreakerCooldownDuration() time.Duration {
	return time.Duration(m.BreakerCooldown) * time.Second
}

type StorageConfig struct {
	ResultsPath   string `toml:"results_path"`
	PositionsPath string `toml:"positions_path"`
	ExportDir     string `toml:"export_dir"`
}

// ScreeningConfig 对应一次筛选会话的默认参数，HTTP 请求可以覆盖。
type ScreeningConfig struct {
	LookbackDays        int     `toml:"lookback_days"`
	MinCorrelation      float64 `toml:"min_correlation"`
	MaxADFPValue        float64 `toml:"max_adf_pvalue"`
	IncludeHurst        bool    `toml:"include_hurst"`
	MinVolumeUSD        float64 `toml:"min_volume_usd"`
	MaxAssets           int     `toml:"max_assets"`
	Workers             int     `toml:"workers"`
	RescreenInterval    string  `toml:"rescreen_interval"`
	DegradationCorrDrop float64 `toml:"degradation_corr_drop"`
}

func (s ScreeningConfig) RescreenEvery() time.Duration {
	return parseDurationOrZero(s.RescreenInterval)
}

type BacktestConfig struct {
	InitialCapital     float64           `toml:"initial_capital"`
	PositionSizePct    float64           `toml:"position_size_pct"`
	TransactionCostPct float64           `toml:"transaction_cost_pct"`
	EntryThreshold     float64           `toml:"entry_threshold"`
	LookbackDays       int               `toml:"lookback_days"`
	StopLossType       string            `toml:"stop_loss_type"`
	StopLossValue      float64           `toml:"stop_loss_value"`
	TakeProfitType     string            `toml:"take_profit_type"`
	TakeProfitValue    float64           `toml:"take_profit_value"`
	Rebalancing        RebalancingConfig `toml:"rebalancing"`
	MaxConcurrent      int               `toml:"max_concurrent"`
	PresetsPath        string            `toml:"presets_path"`
	NotifyOnComplete   bool              `toml:"notify_on_complete"`
}

type RebalancingConfig struct {
	Enabled        bool    `toml:"enabled"`
	FrequencyDays  int     `toml:"frequency_days"`
	DriftThreshold float64 `toml:"drift_threshold"`
}

// AlertsConfig 控制 z-score 提醒的巡检节奏。
type AlertsConfig struct {
	Enabled       bool   `toml:"enabled"`
	CheckInterval string `toml:"check_interval"`
	LookbackDays  int    `toml:"lookback_days"`
}

func (a AlertsConfig) CheckEvery() time.Duration {
	return parseDurationOrZero(a.CheckInterval)
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

// parseDurationOrZero 在 time.ParseDuration 基础上支持 "1d"、"2w" 这类整数天/周写法。
func parseDurationOrZero(raw string) time.Duration {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return 0
	}
	if unit := raw[len(raw)-1]; unit == 'd' || unit == 'w' {
		n, err := strconv.Atoi(raw[:len(raw)-1])
		if err != nil || n <= 0 {
			return 0
		}
		day := 24 * time.Hour
		if unit == 'w' {
			day *= 7
		}
		return time.Duration(n) * day
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
