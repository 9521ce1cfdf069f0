package config

import "strings"

// 默认值常量
const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppHTTPAddr      = ":9991"
	defaultAppLogPath       = "data/logs/pairlab.log"
	defaultMarketSource     = "binance"
	defaultMarketREST       = "https://fapi.binance.com"
	defaultGateREST         = "https://api.gateio.ws/api/v4"
	defaultQuoteAsset       = "USDT"
	defaultInterval         = "1d"
	defaultRateLimitPerMin  = 600
	defaultMarketTimeout    = 15
	defaultCachePath        = "data/db/candles.db"
	defaultCacheTTLMinutes  = 60
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30
	defaultResultsPath      = "data/db/results.db"
	defaultPositionsPath    = "data/db/positions.db"
	defaultExportDir        = "data/exports"
	defaultLookbackDays     = 365
	defaultMinCorrelation   = 0.8
	defaultMaxADFPValue     = 0.10
	defaultMinVolumeUSD     = 1_000_000
	defaultMaxAssets        = 100
	defaultWorkers          = 8
	defaultCorrDrop         = 0.1
	defaultInitialCapital   = 10_000
	defaultPositionSizePct  = 10
	defaultTransactionCost  = 0.001
	defaultEntryThreshold   = 2.0
	defaultStopLossType     = "zscore"
	defaultStopLossValue    = 3.0
	defaultTakeProfitType   = "zscore"
	defaultTakeProfitValue  = 0.0
	defaultRebalanceFreq    = 5
	defaultRebalanceDrift   = 0.1
	defaultMaxConcurrent    = 2
	defaultPresetsPath      = "configs/presets.yaml"
	defaultAlertInterval    = "15m"
	defaultAlertLookback    = 180
)

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Market.applyDefaults(keys)
	c.Storage.applyDefaults(keys)
	c.Screening.applyDefaults(keys)
	c.Backtest.applyDefaults(keys)
	c.Alerts.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		stringFieldDefault("app.log_path", &a.LogPath, defaultAppLogPath),
	)
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("market.source", &m.Source, defaultMarketSource),
	)
	m.Source = strings.ToLower(strings.TrimSpace(m.Source))
	rest := defaultMarketREST
	if m.Source == "gate" {
		rest = defaultGateREST
	}
	applyFieldDefaults(keys,
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, rest),
		stringFieldDefault("market.quote_asset", &m.QuoteAsset, defaultQuoteAsset),
		stringFieldDefault("market.interval", &m.Interval, defaultInterval),
		intFieldDefault("market.rate_limit_per_min", &m.RateLimitPerMin, defaultRateLimitPerMin),
		intFieldDefault("market.timeout_seconds", &m.TimeoutSeconds, defaultMarketTimeout),
		stringFieldDefault("market.cache_path", &m.CachePath, defaultCachePath),
		intFieldDefault("market.cache_ttl_minutes", &m.CacheTTLMinutes, defaultCacheTTLMinutes),
		intFieldDefault("market.breaker_threshold", &m.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("market.breaker_cooldown_seconds", &m.BreakerCooldown, defaultBreakerCooldown),
	)
	m.QuoteAsset = strings.ToUpper(strings.TrimSpace(m.QuoteAsset))
}

func (s *StorageConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("storage.results_path", &s.ResultsPath, defaultResultsPath),
		stringFieldDefault("storage.positions_path", &s.PositionsPath, defaultPositionsPath),
		stringFieldDefault("storage.export_dir", &s.ExportDir, defaultExportDir),
	)
}

func (s *ScreeningConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		intFieldDefault("screening.lookback_days", &s.LookbackDays, defaultLookbackDays),
		floatFieldDefault("screening.min_correlation", &s.MinCorrelation, defaultMinCorrelation),
		floatFieldDefault("screening.max_adf_pvalue", &s.MaxADFPValue, defaultMaxADFPValue),
		floatFieldDefault("screening.min_volume_usd", &s.MinVolumeUSD, defaultMinVolumeUSD),
		intFieldDefault("screening.max_assets", &s.MaxAssets, defaultMaxAssets),
		intFieldDefault("screening.workers", &s.Workers, defaultWorkers),
		floatFieldDefault("screening.degradation_corr_drop", &s.DegradationCorrDrop, defaultCorrDrop),
		fieldDefault{
			key:   "screening.include_hurst",
			apply: func() { s.IncludeHurst = true },
		},
	)
}

func (b *BacktestConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("backtest.initial_capital", &b.InitialCapital, defaultInitialCapital),
		floatFieldDefault("backtest.position_size_pct", &b.PositionSizePct, defaultPositionSizePct),
		floatFieldDefault("backtest.transaction_cost_pct", &b.TransactionCostPct, defaultTransactionCost),
		floatFieldDefault("backtest.entry_threshold", &b.EntryThreshold, defaultEntryThreshold),
		intFieldDefault("backtest.lookback_days", &b.LookbackDays, defaultLookbackDays),
		stringFieldDefault("backtest.stop_loss_type", &b.StopLossType, defaultStopLossType),
		floatFieldDefault("backtest.stop_loss_value", &b.StopLossValue, defaultStopLossValue),
		stringFieldDefault("backtest.take_profit_type", &b.TakeProfitType, defaultTakeProfitType),
		fieldDefault{
			key:   "backtest.take_profit_value",
			apply: func() { b.TakeProfitValue = defaultTakeProfitValue },
		},
		intFieldDefault("backtest.rebalancing.frequency_days", &b.Rebalancing.FrequencyDays, defaultRebalanceFreq),
		floatFieldDefault("backtest.rebalancing.drift_threshold", &b.Rebalancing.DriftThreshold, defaultRebalanceDrift),
		intFieldDefault("backtest.max_concurrent", &b.MaxConcurrent, defaultMaxConcurrent),
		stringFieldDefault("backtest.presets_path", &b.PresetsPath, defaultPresetsPath),
	)
}

func (a *AlertsConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("alerts.check_interval", &a.CheckInterval, defaultAlertInterval),
		intFieldDefault("alerts.lookback_days", &a.LookbackDays, defaultAlertLookback),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}
