// Package screener 在资产池上两两筛选协整资产对并持久化排序后的候选列表。
package screener

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"pairlab/internal/logger"
	"pairlab/internal/market"
	"pairlab/internal/types"
)

var log = logger.Component("screener")

// SessionRecorder 是 Engine 需要的持久化子集。
type SessionRecorder interface {
	SaveSession(ctx context.Context, session types.ScreeningSession) error
	SaveCandidates(ctx context.Context, sessionID string, candidates []types.PairCandidate) error
}

// CompletionHook 在会话成功完成、候选已保存之后调用。
type CompletionHook func(ctx context.Context, session types.ScreeningSession, candidates []types.PairCandidate)

type EngineConfig struct {
	Universe   market.UniverseProvider
	History    market.PriceHistoryProvider
	Recorder   SessionRecorder
	Guard      Guard
	Workers    int
	OnComplete CompletionHook
}

type Engine struct {
	universe   market.UniverseProvider
	history    market.PriceHistoryProvider
	recorder   SessionRecorder
	guard      Guard
	workers    int
	onComplete CompletionHook

	baseCtx context.Context
	now     func() time.Time
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Universe == nil || cfg.History == nil {
		return nil, fmt.Errorf("screener: universe/history provider 不能为空")
	}
	if cfg.Recorder == nil {
		return nil, fmt.Errorf("screener: recorder 不能为空")
	}
	guard := cfg.Guard
	if guard == nil {
		guard = &AtomicGuard{}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		universe:   cfg.Universe,
		history:    cfg.History,
		recorder:   cfg.Recorder,
		guard:      guard,
		workers:    workers,
		onComplete: cfg.OnComplete,
		baseCtx:    context.Background(),
		now:        time.Now,
	}, nil
}

func (e *Engine) SetContext(ctx context.Context) {
	if ctx != nil {
		e.baseCtx = ctx
	}
}

// Running 报告是否有会话在执行。
func (e *Engine) Running() bool { return e.guard.Running() }

// Start 同步完成参数校验与互斥获取，筛选本身在后台运行。
func (e *Engine) Start(params types.ScreeningParams) (types.ScreeningSession, error) {
	sess, err := e.begin(e.baseCtx, params)
	if err != nil {
		return types.ScreeningSession{}, err
	}
	go func() {
		defer e.guard.Release()
		if _, _, err := e.execute(e.baseCtx, sess); err != nil {
			log.Warnf("session %s 失败: %v", sess.ID, err)
		}
	}()
	return sess, nil
}

// Run 同步执行一次完整筛选，返回完成后的会话与排序后的候选。
func (e *Engine) Run(ctx context.Context, params types.ScreeningParams) (types.ScreeningSession, []types.PairCandidate, error) {
	sess, err := e.begin(ctx, params)
	if err != nil {
		return types.ScreeningSession{}, nil, err
	}
	defer e.guard.Release()
	return e.execute(ctx, sess)
}

func (e *Engine) begin(ctx context.Context, params types.ScreeningParams) (types.ScreeningSession, error) {
	params = withDefaults(params)
	if err := Validate(params); err != nil {
		return types.ScreeningSession{}, err
	}
	if !e.guard.TryAcquire() {
		return types.ScreeningSession{}, types.ErrAlreadyRunning
	}
	sess := types.ScreeningSession{
		ID:        uuid.NewString(),
		StartedAt: e.now().UTC(),
		Status:    types.SessionRunning,
		Params:    params,
	}
	if err := e.recorder.SaveSession(ctx, sess); err != nil {
		e.guard.Release()
		return types.ScreeningSession{}, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

func (e *Engine) execute(ctx context.Context, sess types.ScreeningSession) (types.ScreeningSession, []types.PairCandidate, error) {
	started := time.Now()
	candidates, err := e.screen(ctx, &sess)
	if err != nil {
		return e.fail(ctx, sess, err)
	}
	if err := e.recorder.SaveCandidates(ctx, sess.ID, candidates); err != nil {
		return e.fail(ctx, sess, fmt.Errorf("save candidates: %w", err))
	}
	done := e.now().UTC()
	sess.Status = types.SessionCompleted
	sess.CompletedAt = &done
	sess.PairsFound = len(candidates)
	if err := e.recorder.SaveSession(ctx, sess); err != nil {
		return sess, candidates, fmt.Errorf("save session: %w", err)
	}
	log.Infof("session %s 完成: tested=%d found=%d skipped_assets=%d skipped_pairs=%d 耗时=%s",
		sess.ID, sess.TotalPairsTested, sess.PairsFound, sess.AssetsSkipped, sess.PairsSkipped, time.Since(started).Round(time.Millisecond))
	if e.onComplete != nil {
		e.onComplete(ctx, sess, candidates)
	}
	return sess, candidates, nil
}

func (e *Engine) fail(ctx context.Context, sess types.ScreeningSession, cause error) (types.ScreeningSession, []types.PairCandidate, error) {
	done := e.now().UTC()
	sess.Status = types.SessionFailed
	sess.CompletedAt = &done
	sess.Error = cause.Error()
	if err := e.recorder.SaveSession(context.WithoutCancel(ctx), sess); err != nil {
		log.Errorf("session %s 写入失败状态出错: %v", sess.ID, err)
	}
	return sess, nil, cause
}

func (e *Engine) screen(ctx context.Context, sess *types.ScreeningSession) ([]types.PairCandidate, error) {
	params := sess.Params
	universe, err := e.universe.Universe(ctx)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}
	assets := market.RankByVolume(universe, params.MinVolumeUSD, params.MaxAssets)
	log.Infof("session %s: 资产池 %d 个，流动性过滤后 %d 个", sess.ID, len(universe), len(assets))

	series, skipped, err := e.fetchAll(ctx, assets, params.LookbackDays)
	if err != nil {
		return nil, err
	}
	sess.AssetsSkipped = skipped

	type job struct{ i, j int }
	var jobs []job
	for i := 0; i < len(series); i++ {
		for j := i + 1; j < len(series); j++ {
			jobs = append(jobs, job{i, j})
		}
	}
	sess.TotalPairsTested = len(jobs)

	// 每个资产对写入自己的槽位，结束后再合并
	slots := make([]*types.PairCandidate, len(jobs))
	failed := make([]bool, len(jobs))
	now := e.now().UTC()
	var eg errgroup.Group
	eg.SetLimit(e.workers)
	for k, jb := range jobs {
		if ctx.Err() != nil {
			break
		}
		k, jb := k, jb
		eg.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			a, b := series[jb.i], series[jb.j]
			cand, reason, err := EvaluatePair(a, b, params, sess.ID, now)
			switch {
			case err != nil:
				failed[k] = true
				log.Debugf("skip %s/%s: %v", a.Symbol, b.Symbol, err)
			case reason == RejectNone:
				slots[k] = &cand
			}
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, f := range failed {
		if f {
			sess.PairsSkipped++
		}
	}
	return rank(slots), nil
}

// fetchAll 并发拉取历史；不可用或覆盖率不足的资产计入 skipped，不中断会话。
func (e *Engine) fetchAll(ctx context.Context, assets []types.Asset, lookback int) ([]types.PriceSeries, int, error) {
	slots := make([]*types.PriceSeries, len(assets))
	var (
		mu      sync.Mutex
		skipped int
		eg      errgroup.Group
	)
	eg.SetLimit(e.workers)
	for i, asset := range assets {
		i, asset := i, asset
		eg.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			s, err := e.history.History(ctx, asset.Symbol, lookback)
			if err == nil && market.Coverage(s, lookback) < MinCoverage {
				err = fmt.Errorf("coverage %.0f%% < %.0f%%: %w", market.Coverage(s, lookback)*100, MinCoverage*100, types.ErrDataUnavailable)
			}
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Debugf("skip asset %s: %v", asset.Symbol, err)
				}
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}
			if s.Symbol == "" {
				s.Symbol = asset.Symbol
			}
			slots[i] = &s
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	out := make([]types.PriceSeries, 0, len(assets))
	for _, s := range slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out, skipped, nil
}

// rank 按分数降序，分数相同按资产对标识升序，保证结果与提交顺序无关。
func rank(slots []*types.PairCandidate) []types.PairCandidate {
	out := make([]types.PairCandidate, 0, len(slots))
	for _, c := range slots {
		if c != nil {
			out = append(out, *c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Key().String() < out[j].Key().String()
	})
	return out
}
