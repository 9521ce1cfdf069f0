package spread

import "math"

const (
	minHalfLifePoints = 10
	// ReversionBand 是一次偏离开始的 |z| 阈值。
	ReversionBand = 1.0
)

type MeanReversion struct {
	HalfLife         *float64 `json:"half_life,omitempty"`
	MeanCrossings    int      `json:"mean_crossings"`
	PctBeyond1Sigma  float64  `json:"pct_beyond_1sigma"`
	PctBeyond2Sigma  float64  `json:"pct_beyond_2sigma"`
	PctBeyond3Sigma  float64  `json:"pct_beyond_3sigma"`
	AvgReversionBars *float64 `json:"avg_reversion_bars,omitempty"`
	ReversionEvents  int      `json:"reversion_events"`
}

// AnalyzeReversion 汇总均值回复特征。
func AnalyzeReversion(s Static) MeanReversion {
	out := MeanReversion{
		HalfLife:      HalfLife(s.Spread),
		MeanCrossings: MeanCrossings(s.Z),
	}
	if n := len(s.Z); n > 0 {
		var c1, c2, c3 int
		for _, z := range s.Z {
			az := math.Abs(z)
			if az > 1 {
				c1++
			}
			if az > 2 {
				c2++
			}
			if az > 3 {
				c3++
			}
		}
		out.PctBeyond1Sigma = pct(c1, n)
		out.PctBeyond2Sigma = pct(c2, n)
		out.PctBeyond3Sigma = pct(c3, n)
	}
	avg, events := AverageReversionTime(s.Z, ReversionBand)
	out.AvgReversionBars = avg
	out.ReversionEvents = events
	return out
}

// HalfLife 拟合 Δs_t = κ·(s_{t-1}-mean) + ε，κ∈(-1,0) 时返回 ln2/(-ln(1+κ))。
func HalfLife(spread []float64) *float64 {
	if len(spread) < minHalfLifePoints {
		return nil
	}
	mean := 0.0
	for _, v := range spread {
		mean += v
	}
	mean /= float64(len(spread))
	var sxy, sxx float64
	for t := 1; t < len(spread); t++ {
		x := spread[t-1] - mean
		y := spread[t] - spread[t-1]
		sxy += x * y
		sxx += x * x
	}
	if sxx == 0 {
		return nil
	}
	kappa := sxy / sxx
	if kappa <= -1 || kappa >= 0 {
		return nil
	}
	hl := math.Ln2 / -math.Log(1+kappa)
	if math.IsNaN(hl) || math.IsInf(hl, 0) {
		return nil
	}
	return &hl
}

// MeanCrossings 统计 z 的符号翻转次数，恰好为 0 的点沿用上一个符号。
func MeanCrossings(z []float64) int {
	count := 0
	prev := 0.0
	for _, v := range z {
		sign := math.Copysign(1, v)
		if v == 0 {
			continue
		}
		if prev != 0 && sign != prev {
			count++
		}
		prev = sign
	}
	return count
}

// AverageReversionTime 统计 |z| 越过 band 到下一次穿越 0 的平均 bar 数。
// 没有完整回归的事件时返回 nil。
func AverageReversionTime(z []float64, band float64) (*float64, int) {
	var (
		inEvent bool
		side    float64
		start   int
		total   int
		events  int
	)
	for i, v := range z {
		if !inEvent {
			if math.Abs(v) > band {
				inEvent = true
				side = math.Copysign(1, v)
				start = i
			}
			continue
		}
		if v == 0 || math.Copysign(1, v) != side {
			total += i - start
			events++
			inEvent = false
		}
	}
	if events == 0 {
		return nil, 0
	}
	avg := float64(total) / float64(events)
	return &avg, events
}

func pct(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total) * 100
}
