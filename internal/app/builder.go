package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"pairlab/internal/alerts"
	"pairlab/internal/backtest"
	brcfg "pairlab/internal/config"
	"pairlab/internal/export"
	"pairlab/internal/history"
	"pairlab/internal/logger"
	"pairlab/internal/notifier"
	"pairlab/internal/pairs"
	"pairlab/internal/positions"
	"pairlab/internal/preset"
	"pairlab/internal/screener"
	"pairlab/internal/store/gormstore"
	"pairlab/internal/store/sqlite"
	"pairlab/internal/types"
	apihttp "pairlab/internal/transport/http/api"
)

type AppBuilder struct {
	cfg *brcfg.Config

	marketStackFn func(*brcfg.Config) (*MarketStack, error)
	notifierFn    func(brcfg.TelegramConfig) notifier.TextNotifier
	watchPresets  bool
}

type AppBuilderOption func(*AppBuilder)

// WithMarketStack 替换行情来源，测试与离线回放使用。
func WithMarketStack(fn func(*brcfg.Config) (*MarketStack, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.marketStackFn = fn }
}

func WithNotifier(fn func(brcfg.TelegramConfig) notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) { b.notifierFn = fn }
}

func WithPresetWatch(watch bool) AppBuilderOption {
	return func(b *AppBuilder) { b.watchPresets = watch }
}

func NewAppBuilder(cfg *brcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:           cfg,
		marketStackFn: buildMarketStack,
		notifierFn:    notifier.New,
		watchPresets:  true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Build 按 存储 → 行情 → 领域服务 → HTTP 的顺序装配；任一步失败都会关闭已打开的资源。
func (b *AppBuilder) Build(ctx context.Context) (_ *App, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	var closers []io.Closer
	defer func() {
		if err != nil {
			closeAll(closers)
		}
	}()

	results, err := sqlite.Open(cfg.Storage.ResultsPath)
	if err != nil {
		return nil, fmt.Errorf("打开结果库失败: %w", err)
	}
	closers = append(closers, results)
	gs, err := gormstore.NewGormStore(cfg.Storage.PositionsPath)
	if err != nil {
		return nil, fmt.Errorf("打开仓位库失败: %w", err)
	}
	closers = append(closers, gs)

	mkt, err := b.marketStackFn(cfg)
	if err != nil {
		return nil, err
	}
	closers = append(closers, mkt)

	notify := b.notifierFn(cfg.Notify.Telegram)
	registry := b.loadPresets(cfg.Backtest.PresetsPath)

	analyzer, err := history.NewAnalyzer(history.Config{
		Store:           results,
		Notifier:        notify,
		CorrelationDrop: cfg.Screening.DegradationCorrDrop,
		MaxADFPValue:    cfg.Screening.MaxADFPValue,
	})
	if err != nil {
		return nil, err
	}
	feed := apihttp.NewFeed()
	engine, err := screener.NewEngine(screener.EngineConfig{
		Universe: mkt.Universe,
		History:  mkt.History,
		Recorder: results,
		Workers:  cfg.Screening.Workers,
		OnComplete: func(ctx context.Context, session types.ScreeningSession, candidates []types.PairCandidate) {
			analyzer.OnSessionComplete(ctx, session, candidates)
			feed.Publish(apihttp.EventScreeningCompleted, map[string]any{"session": session, "count": len(candidates)})
		},
	})
	if err != nil {
		return nil, err
	}
	engine.SetContext(ctx)

	simCfg := backtest.SimulatorConfig{
		Provider:      mkt.History,
		Runs:          results,
		Defaults:      backtestDefaults(cfg.Backtest),
		MaxConcurrent: cfg.Backtest.MaxConcurrent,
	}
	if registry != nil {
		simCfg.Presets = registry
	}
	if cfg.Backtest.NotifyOnComplete {
		simCfg.Notifier = notify
	}
	sim, err := backtest.NewSimulator(simCfg)
	if err != nil {
		return nil, err
	}
	sim.SetContext(ctx)

	pairSvc, err := pairs.NewService(mkt.History, results)
	if err != nil {
		return nil, err
	}
	posSvc, err := positions.NewService(gs, mkt.History)
	if err != nil {
		return nil, err
	}
	alertSvc, err := alerts.NewService(alerts.Config{
		Store:        gs,
		Candidates:   results,
		Provider:     mkt.History,
		Notifier:     notify,
		LookbackDays: cfg.Alerts.LookbackDays,
		OnTrigger: func(t alerts.Trigger) {
			feed.Publish(apihttp.EventAlertTriggered, t)
		},
	})
	if err != nil {
		return nil, err
	}

	srv, err := apihttp.NewServer(apihttp.Config{
		Addr:              cfg.App.HTTPAddr,
		Screener:          engine,
		Results:           results,
		Simulator:         sim,
		Pairs:             pairSvc,
		Positions:         posSvc,
		Alerts:            alertSvc,
		History:           analyzer,
		Presets:           registry,
		Exports:           export.NewDir(cfg.Storage.ExportDir),
		Feed:              feed,
		ScreeningDefaults: screeningDefaults(cfg.Screening),
	})
	if err != nil {
		return nil, err
	}

	presetCount := 0
	if registry != nil {
		presetCount = len(registry.List())
	}
	return &App{
		cfg:      cfg,
		http:     srv,
		screener: engine,
		alerts:   alertSvc,
		closers:  closers,
		Summary:  newStartupSummary(cfg, mkt.Summary, presetCount),
	}, nil
}

// loadPresets 预设文件缺失时只告警，回测仍可使用显式参数。
func (b *AppBuilder) loadPresets(path string) *preset.Registry {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Warnf("预设文件 %s 不存在，preset 功能关闭", path)
		return nil
	}
	reg, err := preset.NewRegistry(path, b.watchPresets)
	if err != nil {
		logger.Warnf("加载预设失败，preset 功能关闭: %v", err)
		return nil
	}
	return reg
}

func backtestDefaults(c brcfg.BacktestConfig) types.BacktestConfig {
	return types.BacktestConfig{
		InitialCapital:     c.InitialCapital,
		PositionSizePct:    c.PositionSizePct,
		TransactionCostPct: c.TransactionCostPct,
		EntryThreshold:     c.EntryThreshold,
		LookbackDays:       c.LookbackDays,
		StopLoss:           types.StopLoss{Type: types.StopLossType(c.StopLossType), Value: c.StopLossValue},
		TakeProfit:         types.TakeProfit{Type: types.TakeProfitType(c.TakeProfitType), Value: c.TakeProfitValue},
		Rebalancing: types.Rebalancing{
			Enabled:        c.Rebalancing.Enabled,
			FrequencyDays:  c.Rebalancing.FrequencyDays,
			DriftThreshold: c.Rebalancing.DriftThreshold,
		},
	}
}

func screeningDefaults(c brcfg.ScreeningConfig) types.ScreeningParams {
	return types.ScreeningParams{
		LookbackDays:   c.LookbackDays,
		MinCorrelation: c.MinCorrelation,
		MaxADFPValue:   c.MaxADFPValue,
		IncludeHurst:   c.IncludeHurst,
		MinVolumeUSD:   c.MinVolumeUSD,
		MaxAssets:      c.MaxAssets,
	}
}

func closeAll(closers []io.Closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logger.Warnf("关闭资源失败: %v", err)
		}
	}
}
