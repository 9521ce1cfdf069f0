package screener

import (
	"fmt"
	"time"

	"pairlab/internal/market"
	"pairlab/internal/scoring"
	"pairlab/internal/spread"
	"pairlab/internal/stats"
	"pairlab/internal/types"
)

// Rejection 说明资产对未入选的原因；数据不足也算一种拒绝。
type Rejection string

const (
	RejectNone        Rejection = ""
	RejectData        Rejection = "insufficient_data"
	RejectCorrelation Rejection = "low_correlation"
	RejectADF         Rejection = "not_cointegrated"
)

// EvaluatePair 对单个资产对跑完整的统计流水线。纯计算，可并发调用。
func EvaluatePair(a, b types.PriceSeries, params types.ScreeningParams, sessionID string, now time.Time) (types.PairCandidate, Rejection, error) {
	pair := market.Align(a, b)
	if pair.Len() < MinPairObservations {
		return types.PairCandidate{}, RejectData, fmt.Errorf("%s/%s aligned %d bars: %w", a.Symbol, b.Symbol, pair.Len(), types.ErrInsufficientData)
	}

	ra, rb := stats.PairedReturns(pair.A, pair.B)
	corr, err := stats.Correlation(ra, rb)
	if err != nil {
		return types.PairCandidate{}, RejectData, err
	}
	if corr < params.MinCorrelation {
		return types.PairCandidate{}, RejectCorrelation, nil
	}

	hedge, adf, err := stats.Cointegration(pair.A, pair.B)
	if err != nil {
		return types.PairCandidate{}, RejectData, err
	}
	if adf.PValue > params.MaxADFPValue {
		return types.PairCandidate{}, RejectADF, nil
	}

	static, err := spread.NewStatic(pair.A, pair.B, hedge.Beta)
	if err != nil {
		return types.PairCandidate{}, RejectData, err
	}
	var hurst *float64
	if params.IncludeHurst {
		if h, ok := stats.Hurst(static.Spread); ok {
			hurst = &h
		}
	}

	return scoring.BuildCandidate(scoring.Evaluation{
		SessionID:     sessionID,
		AssetA:        pair.SymbolA,
		AssetB:        pair.SymbolB,
		Correlation:   corr,
		ADFStatistic:  adf.Statistic,
		ADFPValue:     adf.PValue,
		ADFLags:       adf.Lags,
		Alpha:         hedge.Alpha,
		Beta:          hedge.Beta,
		SpreadMean:    static.Mean,
		SpreadStd:     static.Std,
		Hurst:         hurst,
		HalfLife:      spread.HalfLife(static.Spread),
		CurrentZScore: static.CurrentZ(),
		LookbackDays:  params.LookbackDays,
		Observations:  pair.Len(),
		ScreenedAt:    now,
	}), RejectNone, nil
}
