// Package scoring 把单个资产对的统计量合成为 0-100 的综合评分。
package scoring

import (
	"math"
	"time"

	"github.com/google/uuid"

	"pairlab/internal/types"
)

// 各分项权重，合计为 1。缺少 Hurst 时其余权重按比例放大。
const (
	WeightCorrelation   = 0.40
	WeightCointegration = 0.30
	WeightReversion     = 0.20
	WeightOpportunity   = 0.10

	// PValueReference 是协整分项归零的 p 值。
	PValueReference = 0.10
	// HurstRandomWalk 及以上的 Hurst 不再加分。
	HurstRandomWalk = 0.5
	// OpportunityFullZ 是机会分项满分对应的 |z|。
	OpportunityFullZ = 3.0
)

// Inputs 是评分所需的统计量。
type Inputs struct {
	Correlation   float64
	ADFPValue     float64
	Hurst         *float64
	CurrentZScore float64
}

// Breakdown 记录各分项得分（0-100）与综合分。
type Breakdown struct {
	Correlation   float64  `json:"correlation"`
	Cointegration float64  `json:"cointegration"`
	Reversion     *float64 `json:"reversion,omitempty"`
	Opportunity   float64  `json:"opportunity"`
	Composite     float64  `json:"composite"`
}

// Score 返回综合评分。结果只取决于输入，与其他资产对无关。
func Score(in Inputs) Breakdown {
	b := Breakdown{
		Correlation:   unit(in.Correlation) * 100,
		Cointegration: unit(1-in.ADFPValue/PValueReference) * 100,
		Opportunity:   unit(math.Abs(in.CurrentZScore)/OpportunityFullZ) * 100,
	}
	weighted := WeightCorrelation*b.Correlation + WeightCointegration*b.Cointegration + WeightOpportunity*b.Opportunity
	total := WeightCorrelation + WeightCointegration + WeightOpportunity
	if in.Hurst != nil && !math.IsNaN(*in.Hurst) {
		r := unit((HurstRandomWalk-*in.Hurst)/HurstRandomWalk) * 100
		b.Reversion = &r
		weighted += WeightReversion * r
		total += WeightReversion
	}
	b.Composite = unit(weighted/total/100) * 100
	return b
}

// Evaluation 是 BuildCandidate 的输入。
type Evaluation struct {
	SessionID     string
	AssetA        string
	AssetB        string
	Correlation   float64
	ADFStatistic  float64
	ADFPValue     float64
	ADFLags       int
	Alpha         float64
	Beta          float64
	SpreadMean    float64
	SpreadStd     float64
	Hurst         *float64
	HalfLife      *float64
	CurrentZScore float64
	LookbackDays  int
	Observations  int
	ScreenedAt    time.Time
}

// BuildCandidate 组装不可变的 PairCandidate。
func BuildCandidate(ev Evaluation) types.PairCandidate {
	score := Score(Inputs{
		Correlation:   ev.Correlation,
		ADFPValue:     ev.ADFPValue,
		Hurst:         ev.Hurst,
		CurrentZScore: ev.CurrentZScore,
	})
	when := ev.ScreenedAt
	if when.IsZero() {
		when = time.Now().UTC()
	}
	return types.PairCandidate{
		ID:            uuid.NewString(),
		SessionID:     ev.SessionID,
		AssetA:        ev.AssetA,
		AssetB:        ev.AssetB,
		Correlation:   ev.Correlation,
		ADFStatistic:  ev.ADFStatistic,
		ADFPValue:     ev.ADFPValue,
		ADFLags:       ev.ADFLags,
		Alpha:         ev.Alpha,
		Beta:          ev.Beta,
		SpreadMean:    ev.SpreadMean,
		SpreadStd:     ev.SpreadStd,
		Hurst:         copyPtr(ev.Hurst),
		HalfLife:      copyPtr(ev.HalfLife),
		CurrentZScore: ev.CurrentZScore,
		Score:         score.Composite,
		LookbackDays:  ev.LookbackDays,
		Observations:  ev.Observations,
		ScreeningDate: when,
	}
}

func unit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func copyPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
