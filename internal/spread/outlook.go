package spread

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

const (
	DefaultHorizon        = 5
	similarZBand          = 0.5
	minExpectedSamples    = 5
	tradingDaysPerYear    = 252
	varConfidenceQuantile = 0.05
)

// ExpectedReturn 是与当前 z 相近的历史时点在 horizon 根后的方向性 z 变化（向均值方向为正）。
type ExpectedReturn struct {
	Horizon    int     `json:"horizon"`
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	WinRatePct float64 `json:"win_rate_pct"`
	Samples    int     `json:"samples"`
}

// EstimateExpectedReturn 使用所有合法的 t 并如实报告样本数；样本不足返回 nil。
func EstimateExpectedReturn(z []float64, horizon int) *ExpectedReturn {
	n := len(z)
	if horizon <= 0 || n <= horizon {
		return nil
	}
	cur := z[n-1]
	var rets []float64
	for t := 0; t+horizon < n; t++ {
		if math.Abs(z[t]-cur) >= similarZBand {
			continue
		}
		dir := -sign(z[t])
		rets = append(rets, dir*(z[t+horizon]-z[t]))
	}
	if len(rets) < minExpectedSamples {
		return nil
	}
	wins := 0
	for _, r := range rets {
		if r > 0 {
			wins++
		}
	}
	mean, std := stat.MeanStdDev(rets, nil)
	return &ExpectedReturn{
		Horizon:    horizon,
		Mean:       mean,
		Std:        std,
		WinRatePct: pct(wins, len(rets)),
		Samples:    len(rets),
	}
}

type Risk struct {
	VaR95            float64 `json:"var_95"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	AnnualVolatility float64 `json:"annual_volatility"`
}

// AssessRisk 在 z-score 日变化序列上计算风险指标；不足 3 个点返回 nil。
func AssessRisk(z []float64) *Risk {
	if len(z) < 3 {
		return nil
	}
	dz := make([]float64, len(z)-1)
	for i := 1; i < len(z); i++ {
		dz[i-1] = z[i] - z[i-1]
	}
	sorted := append([]float64(nil), dz...)
	sort.Float64s(sorted)

	var cum, peak, maxDD float64
	for _, d := range dz {
		cum += d
		if cum > peak {
			peak = cum
		}
		if dd := peak - cum; dd > maxDD {
			maxDD = dd
		}
	}
	return &Risk{
		VaR95:            stat.Quantile(varConfidenceQuantile, stat.Empirical, sorted, nil),
		MaxDrawdown:      maxDD,
		AnnualVolatility: stat.StdDev(dz, nil) * math.Sqrt(tradingDaysPerYear),
	}
}

type Zone string

const (
	ZoneExtremeHigh Zone = "extreme_high"
	ZoneHigh        Zone = "high"
	ZoneNeutral     Zone = "neutral"
	ZoneLow         Zone = "low"
	ZoneExtremeLow  Zone = "extreme_low"
)

var zoneOrder = []Zone{ZoneExtremeHigh, ZoneHigh, ZoneNeutral, ZoneLow, ZoneExtremeLow}

type ZoneStat struct {
	Zone          Zone     `json:"zone"`
	Samples       int      `json:"samples"`
	ProfitablePct *float64 `json:"profitable_pct,omitempty"`
	AvgMove       *float64 `json:"avg_move,omitempty"`
}

func ClassifyZone(z float64) Zone {
	switch {
	case z > 2:
		return ZoneExtremeHigh
	case z > 1:
		return ZoneHigh
	case z >= -1:
		return ZoneNeutral
	case z >= -2:
		return ZoneLow
	default:
		return ZoneExtremeLow
	}
}

// ZoneProbabilities 统计每个 z 区间 horizon 根后向均值移动的比例；无样本的区间概率为 nil。
func ZoneProbabilities(z []float64, horizon int) []ZoneStat {
	type acc struct {
		n, wins int
		move    float64
	}
	accs := make(map[Zone]*acc, len(zoneOrder))
	for _, zn := range zoneOrder {
		accs[zn] = &acc{}
	}
	if horizon > 0 {
		for t := 0; t+horizon < len(z); t++ {
			cur, fut := z[t], z[t+horizon]
			zn := ClassifyZone(cur)
			a := accs[zn]
			a.n++
			var toward float64
			switch zn {
			case ZoneExtremeHigh, ZoneHigh:
				toward = cur - fut
			case ZoneLow, ZoneExtremeLow:
				toward = fut - cur
			default:
				toward = math.Abs(cur) - math.Abs(fut)
			}
			a.move += toward
			if toward > 0 {
				a.wins++
			}
		}
	}
	out := make([]ZoneStat, 0, len(zoneOrder))
	for _, zn := range zoneOrder {
		a := accs[zn]
		st := ZoneStat{Zone: zn, Samples: a.n}
		if a.n > 0 {
			p := pct(a.wins, a.n)
			m := a.move / float64(a.n)
			st.ProfitablePct = &p
			st.AvgMove = &m
		}
		out = append(out, st)
	}
	return out
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
