// Package pairs 汇总单个资产对的详情：最近一次筛选结果、价差分析报告与图表数据。
package pairs

import (
	"context"
	"fmt"

	"pairlab/internal/logger"
	"pairlab/internal/market"
	"pairlab/internal/spread"
	"pairlab/internal/stats"
	"pairlab/internal/types"
)

var log = logger.Component("pairs")

const (
	DefaultLookbackDays = 180
	MinObservations     = 30
)

// CandidateHistory 是详情需要的候选查询子集。
type CandidateHistory interface {
	PairHistory(ctx context.Context, key types.PairKey, limit int) ([]types.PairCandidate, error)
}

// Detail 是 /api/pairs/:a/:b 的响应体。
type Detail struct {
	AssetA    string               `json:"asset_a"`
	AssetB    string               `json:"asset_b"`
	Beta      float64              `json:"beta"`
	BetaFrom  string               `json:"beta_source"`
	Candidate *types.PairCandidate `json:"latest_candidate,omitempty"`
	Report    spread.Report        `json:"analysis"`
	Chart     spread.ChartData     `json:"chart"`
}

type Service struct {
	provider   market.PriceHistoryProvider
	candidates CandidateHistory
}

func NewService(provider market.PriceHistoryProvider, candidates CandidateHistory) (*Service, error) {
	if provider == nil {
		return nil, fmt.Errorf("pairs: price provider 不能为空")
	}
	return &Service{provider: provider, candidates: candidates}, nil
}

// Detail 按最近一次筛选的方向与 beta 分析资产对；从未筛选过的组合按请求方向现算 OLS。
// lookbackDays<=0 时沿用候选的回看窗口，没有候选则取 DefaultLookbackDays。
func (s *Service) Detail(ctx context.Context, assetA, assetB string, lookbackDays, horizon int) (Detail, error) {
	a, b := market.NormalizeSymbol(assetA), market.NormalizeSymbol(assetB)
	if a == "" || b == "" || a == b {
		return Detail{}, fmt.Errorf("%w: 需要两个不同的资产，得到 %q/%q", types.ErrInvalidConfig, assetA, assetB)
	}
	latest := s.latest(ctx, a, b)
	if latest != nil {
		a, b = latest.AssetA, latest.AssetB
		if lookbackDays <= 0 {
			lookbackDays = latest.LookbackDays
		}
	}
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}

	pair, err := s.aligned(ctx, a, b, lookbackDays)
	if err != nil {
		return Detail{}, err
	}
	beta, source := 0.0, "screening"
	if latest != nil && latest.Beta > 0 {
		beta = latest.Beta
	} else {
		res, err := stats.HedgeRatio(pair.A, pair.B)
		if err != nil {
			return Detail{}, err
		}
		beta, source = res.Beta, "ols"
	}
	report, static, err := spread.Analyze(pair, beta, horizon)
	if err != nil {
		return Detail{}, err
	}
	return Detail{
		AssetA:    a,
		AssetB:    b,
		Beta:      beta,
		BetaFrom:  source,
		Candidate: latest,
		Report:    report,
		Chart:     spread.BuildChartData(pair, static),
	}, nil
}

// Chart 只返回图表数据，供 CSV/PNG 导出使用。
func (s *Service) Chart(ctx context.Context, assetA, assetB string, lookbackDays int) (spread.ChartData, error) {
	d, err := s.Detail(ctx, assetA, assetB, lookbackDays, 0)
	if err != nil {
		return spread.ChartData{}, err
	}
	return d.Chart, nil
}

func (s *Service) latest(ctx context.Context, a, b string) *types.PairCandidate {
	if s.candidates == nil {
		return nil
	}
	hist, err := s.candidates.PairHistory(ctx, types.NewPairKey(a, b), 1)
	if err != nil {
		log.Debugf("%s/%s 读取候选历史失败: %v", a, b, err)
		return nil
	}
	if len(hist) == 0 {
		return nil
	}
	c := hist[len(hist)-1]
	return &c
}

func (s *Service) aligned(ctx context.Context, a, b string, lookbackDays int) (types.AlignedPair, error) {
	sa, err := s.provider.History(ctx, a, lookbackDays)
	if err != nil {
		return types.AlignedPair{}, err
	}
	sb, err := s.provider.History(ctx, b, lookbackDays)
	if err != nil {
		return types.AlignedPair{}, err
	}
	pair := market.Align(sa, sb)
	if pair.Len() < MinObservations {
		return types.AlignedPair{}, fmt.Errorf("%s/%s 只有 %d 根对齐数据: %w", a, b, pair.Len(), types.ErrInsufficientData)
	}
	return pair, nil
}
