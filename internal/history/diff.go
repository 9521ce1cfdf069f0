// Package history 对比多次筛选会话：新增/消失/变化的资产对、指标趋势与关系退化。
package history

import (
	"sort"
	"time"

	"pairlab/internal/types"
)

type ChangeStatus string

const (
	StatusNew     ChangeStatus = "new"
	StatusRemoved ChangeStatus = "removed"
	StatusUpdated ChangeStatus = "updated"
)

// PairChange 描述一个资产对在两次会话间的变化；只在一侧出现时另一侧字段为空。
type PairChange struct {
	AssetA string       `json:"asset_a"`
	AssetB string       `json:"asset_b"`
	Status ChangeStatus `json:"status"`

	CurrentCorrelation  *float64 `json:"current_correlation,omitempty"`
	PreviousCorrelation *float64 `json:"previous_correlation,omitempty"`
	CurrentBeta         *float64 `json:"current_beta,omitempty"`
	PreviousBeta        *float64 `json:"previous_beta,omitempty"`
	CorrelationChange   *float64 `json:"correlation_change,omitempty"`
	BetaChange          *float64 `json:"beta_change,omitempty"`
	ADFPValueChange     *float64 `json:"adf_pvalue_change,omitempty"`
	ScoreChange         *float64 `json:"score_change,omitempty"`
}

// Diff 以无序的 PairKey 对齐两次结果，按 key 排序输出。
func Diff(current, previous []types.PairCandidate) []PairChange {
	cur := index(current)
	prev := index(previous)
	keys := make([]types.PairKey, 0, len(cur)+len(prev))
	for k := range cur {
		keys = append(keys, k)
	}
	for k := range prev {
		if _, ok := cur[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	out := make([]PairChange, 0, len(keys))
	for _, k := range keys {
		c, inCur := cur[k]
		p, inPrev := prev[k]
		switch {
		case inCur && inPrev:
			out = append(out, PairChange{
				AssetA:              c.AssetA,
				AssetB:              c.AssetB,
				Status:              StatusUpdated,
				CurrentCorrelation:  ptr(c.Correlation),
				PreviousCorrelation: ptr(p.Correlation),
				CurrentBeta:         ptr(c.Beta),
				PreviousBeta:        ptr(p.Beta),
				CorrelationChange:   ptr(c.Correlation - p.Correlation),
				BetaChange:          ptr(c.Beta - p.Beta),
				ADFPValueChange:     ptr(c.ADFPValue - p.ADFPValue),
				ScoreChange:         ptr(c.Score - p.Score),
			})
		case inCur:
			out = append(out, PairChange{
				AssetA:             c.AssetA,
				AssetB:             c.AssetB,
				Status:             StatusNew,
				CurrentCorrelation: ptr(c.Correlation),
				CurrentBeta:        ptr(c.Beta),
			})
		default:
			out = append(out, PairChange{
				AssetA:              p.AssetA,
				AssetB:              p.AssetB,
				Status:              StatusRemoved,
				PreviousCorrelation: ptr(p.Correlation),
				PreviousBeta:        ptr(p.Beta),
			})
		}
	}
	return out
}

// SessionPoint 是单次会话的汇总，用于画趋势。
type SessionPoint struct {
	SessionID      string    `json:"session_id"`
	Timestamp      time.Time `json:"timestamp"`
	PairsFound     int       `json:"pairs_found"`
	AvgCorrelation float64   `json:"avg_correlation"`
	AvgScore       float64   `json:"avg_score"`
}

// Summarize 汇总一次会话；没有候选时平均值为 0。
func Summarize(session types.ScreeningSession, candidates []types.PairCandidate) SessionPoint {
	pt := SessionPoint{SessionID: session.ID, Timestamp: session.StartedAt, PairsFound: len(candidates)}
	if len(candidates) == 0 {
		return pt
	}
	var corr, score float64
	for _, c := range candidates {
		corr += c.Correlation
		score += c.Score
	}
	n := float64(len(candidates))
	pt.AvgCorrelation = corr / n
	pt.AvgScore = score / n
	return pt
}

// Degradation 标记相对历史变差的资产对。
type Degradation struct {
	AssetA                   string   `json:"asset_a"`
	AssetB                   string   `json:"asset_b"`
	CurrentCorrelation       float64  `json:"current_correlation"`
	HistoricalAvgCorrelation float64  `json:"historical_avg_correlation"`
	CorrelationDrop          float64  `json:"degradation"`
	CurrentADFPValue         float64  `json:"current_adf_pvalue"`
	PreviousADFPValue        *float64 `json:"previous_adf_pvalue,omitempty"`
	Reasons                  []string `json:"reasons"`
	HistoricalObservations   int      `json:"historical_observations"`
}

const (
	ReasonCorrelationDrop   = "correlation_drop"
	ReasonLostCointegration = "lost_cointegration"
)

// DetectDegradation 对每个当前候选，与其更早的记录比较：
// 相关系数低于历史均值超过 corrDrop，或 p 值从 <= maxPValue 变为 > maxPValue。
// past 中的记录应按时间升序且不含当前会话。
func DetectDegradation(current []types.PairCandidate, past map[types.PairKey][]types.PairCandidate, corrDrop, maxPValue float64) []Degradation {
	var out []Degradation
	for _, c := range current {
		hist := past[c.Key()]
		if len(hist) == 0 {
			continue
		}
		var sum float64
		for _, h := range hist {
			sum += h.Correlation
		}
		avg := sum / float64(len(hist))
		last := hist[len(hist)-1]

		d := Degradation{
			AssetA:                   c.AssetA,
			AssetB:                   c.AssetB,
			CurrentCorrelation:       c.Correlation,
			HistoricalAvgCorrelation: avg,
			CorrelationDrop:          avg - c.Correlation,
			CurrentADFPValue:         c.ADFPValue,
			PreviousADFPValue:        ptr(last.ADFPValue),
			HistoricalObservations:   len(hist),
		}
		if c.Correlation < avg-corrDrop {
			d.Reasons = append(d.Reasons, ReasonCorrelationDrop)
		}
		if last.ADFPValue <= maxPValue && c.ADFPValue > maxPValue {
			d.Reasons = append(d.Reasons, ReasonLostCointegration)
		}
		if len(d.Reasons) > 0 {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CorrelationDrop > out[j].CorrelationDrop })
	return out
}

func index(list []types.PairCandidate) map[types.PairKey]types.PairCandidate {
	out := make(map[types.PairKey]types.PairCandidate, len(list))
	for _, c := range list {
		out[c.Key()] = c
	}
	return out
}

func ptr(v float64) *float64 { return &v }
