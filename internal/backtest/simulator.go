package backtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pairlab/internal/logger"
	"pairlab/internal/market"
	"pairlab/internal/types"

	"github.com/google/uuid"
)

var log = logger.Component("backtest")

// Notifier 用于运行完成后的推送（Telegram 等）。
type Notifier interface {
	SendText(text string) error
}

// RunRecorder 持久化回测运行记录。
type RunRecorder interface {
	CreateBacktest(ctx context.Context, run types.BacktestRun) error
	CompleteBacktest(ctx context.Context, id string, result types.BacktestResult) error
	FailBacktest(ctx context.Context, id string, reason string) error
}

// PresetApplier 把命名预设叠加到请求上（请求里显式给出的字段优先）。
type PresetApplier interface {
	Apply(name string, cfg *types.BacktestConfig) error
}

type SimulatorConfig struct {
	Provider      market.PriceHistoryProvider
	Runs          RunRecorder
	Presets       PresetApplier
	Notifier      Notifier
	Defaults      types.BacktestConfig
	MaxConcurrent int
}

// Simulator 负责取数、对齐并调用 Simulate；Start 在后台执行并记录运行状态。
type Simulator struct {
	provider market.PriceHistoryProvider
	runs     RunRecorder
	presets  PresetApplier
	notifier Notifier
	defaults types.BacktestConfig

	sem     chan struct{}
	baseCtx context.Context
	now     func() time.Time
}

func NewSimulator(cfg SimulatorConfig) (*Simulator, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("price provider 不能为空")
	}
	if cfg.Runs == nil {
		return nil, fmt.Errorf("run recorder 不能为空")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Simulator{
		provider: cfg.Provider,
		runs:     cfg.Runs,
		presets:  cfg.Presets,
		notifier: cfg.Notifier,
		defaults: cfg.Defaults,
		sem:      make(chan struct{}, maxConcurrent),
		baseCtx:  context.Background(),
		now:      time.Now,
	}, nil
}

func (s *Simulator) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Simulator) ctx() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

// Prepare 先叠加预设，再用默认值补齐仍为零值的字段，校验后返回可直接交给 Simulate 的配置。
func (s *Simulator) Prepare(req types.BacktestConfig) (types.BacktestConfig, error) {
	cfg := req
	if name := strings.TrimSpace(cfg.Preset); name != "" {
		if s.presets == nil {
			return cfg, fmt.Errorf("%w: preset %q 不可用", types.ErrInvalidConfig, name)
		}
		if err := s.presets.Apply(name, &cfg); err != nil {
			return cfg, err
		}
	}
	return Normalize(s.withDefaults(cfg))
}

// withDefaults 只填充请求中的零值字段。
func (s *Simulator) withDefaults(cfg types.BacktestConfig) types.BacktestConfig {
	d := s.defaults
	if cfg.LookbackDays == 0 {
		cfg.LookbackDays = d.LookbackDays
	}
	if cfg.EntryThreshold == 0 {
		cfg.EntryThreshold = d.EntryThreshold
	}
	if cfg.InitialCapital == 0 {
		cfg.InitialCapital = d.InitialCapital
	}
	if cfg.PositionSizePct == 0 {
		cfg.PositionSizePct = d.PositionSizePct
	}
	if cfg.TransactionCostPct == 0 {
		cfg.TransactionCostPct = d.TransactionCostPct
	}
	if cfg.StopLoss.Type == "" {
		cfg.StopLoss = d.StopLoss
	}
	if cfg.TakeProfit.Type == "" {
		cfg.TakeProfit = d.TakeProfit
	}
	if !cfg.Rebalancing.Enabled && cfg.Rebalancing.FrequencyDays == 0 && cfg.Rebalancing.DriftThreshold == 0 {
		cfg.Rebalancing = d.Rebalancing
	}
	return cfg
}

// Run 同步执行一次回测，不写运行记录。
func (s *Simulator) Run(ctx context.Context, req types.BacktestConfig) (types.BacktestResult, error) {
	cfg, err := s.Prepare(req)
	if err != nil {
		return types.BacktestResult{}, err
	}
	return s.simulate(ctx, cfg)
}

func (s *Simulator) simulate(ctx context.Context, cfg types.BacktestConfig) (types.BacktestResult, error) {
	a, err := s.provider.History(ctx, cfg.AssetA, cfg.LookbackDays)
	if err != nil {
		return types.BacktestResult{}, fmt.Errorf("fetch %s: %w", cfg.AssetA, err)
	}
	b, err := s.provider.History(ctx, cfg.AssetB, cfg.LookbackDays)
	if err != nil {
		return types.BacktestResult{}, fmt.Errorf("fetch %s: %w", cfg.AssetB, err)
	}
	return Simulate(ctx, market.Align(a, b), cfg)
}

// Start 创建回测任务并立即返回，模拟过程在后台进行。
func (s *Simulator) Start(req types.BacktestConfig) (types.BacktestRun, error) {
	cfg, err := s.Prepare(req)
	if err != nil {
		return types.BacktestRun{}, err
	}
	run := types.BacktestRun{
		ID:        uuid.NewString(),
		Status:    types.RunPending,
		Config:    cfg,
		CreatedAt: s.now().UTC(),
	}
	if err := s.runs.CreateBacktest(s.ctx(), run); err != nil {
		return types.BacktestRun{}, err
	}
	go s.runLoop(run.ID, cfg)
	return run, nil
}

func (s *Simulator) runLoop(runID string, cfg types.BacktestConfig) {
	select {
	case s.sem <- struct{}{}:
	default:
		log.Warnf("run %s 等待可用 worker", runID)
		s.sem <- struct{}{}
	}
	defer func() { <-s.sem }()

	ctx := s.ctx()
	res, err := s.simulate(ctx, cfg)
	if err != nil {
		log.Warnf("run %s 失败: %v", runID, err)
		if ferr := s.runs.FailBacktest(context.WithoutCancel(ctx), runID, err.Error()); ferr != nil {
			log.Errorf("run %s 写入失败状态出错: %v", runID, ferr)
		}
		return
	}
	res.RunID = runID
	if err := s.runs.CompleteBacktest(ctx, runID, res); err != nil {
		log.Errorf("run %s 保存结果失败: %v", runID, err)
		if !errors.Is(err, context.Canceled) {
			_ = s.runs.FailBacktest(context.WithoutCancel(ctx), runID, err.Error())
		}
		return
	}
	log.Infof("run %s 完成 %s/%s trades=%d return=%.2f%%", runID, cfg.AssetA, cfg.AssetB, res.Metrics.TotalTrades, res.Metrics.TotalReturnPct)
	s.notify(res)
}

func (s *Simulator) notify(res types.BacktestResult) {
	if s.notifier == nil {
		return
	}
	m := res.Metrics
	msg := fmt.Sprintf("*回测完成* ✅\n```\nid      : %s\npair    : %s/%s\ntrades  : %d\nreturn  : %.2f%%\nwinrate : %.2f%% (%d/%d)\nsharpe  : %.2f\nmaxDD   : %.2f%%\nfinal   : %.2f\n```\n",
		res.RunID, res.Config.AssetA, res.Config.AssetB, m.TotalTrades, m.TotalReturnPct,
		m.WinRatePct, m.WinningTrades, m.TotalTrades, m.SharpeRatio, m.MaxDrawdownPct, m.FinalEquity)
	if err := s.notifier.SendText(msg); err != nil {
		log.Warnf("回测通知失败: %v", err)
	}
}
