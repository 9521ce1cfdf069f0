package spread

import "pairlab/internal/types"

// Report 是单个资产对的完整价差分析。
type Report struct {
	SymbolA        string          `json:"symbol_a"`
	SymbolB        string          `json:"symbol_b"`
	Beta           float64         `json:"beta"`
	SpreadMean     float64         `json:"spread_mean"`
	SpreadStd      float64         `json:"spread_std"`
	Observations   int             `json:"observations"`
	Reversion      MeanReversion   `json:"mean_reversion"`
	Deviation      Deviation       `json:"current_deviation"`
	ExpectedReturn *ExpectedReturn `json:"expected_return,omitempty"`
	Risk           *Risk           `json:"risk,omitempty"`
	Zones          []ZoneStat      `json:"zones"`
}

// Analyze 对已对齐的资产对生成报告；horizon<=0 时使用 DefaultHorizon。
func Analyze(pair types.AlignedPair, beta float64, horizon int) (Report, Static, error) {
	s, err := NewStatic(pair.A, pair.B, beta)
	if err != nil {
		return Report{}, Static{}, err
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return Report{
		SymbolA:        pair.SymbolA,
		SymbolB:        pair.SymbolB,
		Beta:           beta,
		SpreadMean:     s.Mean,
		SpreadStd:      s.Std,
		Observations:   s.Len(),
		Reversion:      AnalyzeReversion(s),
		Deviation:      CurrentDeviation(s.Z),
		ExpectedReturn: EstimateExpectedReturn(s.Z, horizon),
		Risk:           AssessRisk(s.Z),
		Zones:          ZoneProbabilities(s.Z, DefaultHorizon),
	}, s, nil
}
