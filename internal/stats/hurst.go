package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	MinHurstObservations = 100
	hurstMaxLag          = 50
	hurstMinLags         = 4
)

// Hurst 估计一阶广义 Hurst 指数：K(τ)=E|X(t+τ)-X(t)| ∝ τ^H。
// 样本不足时 ok=false；结果截断到 [0,1]。
func Hurst(series []float64) (h float64, ok bool) {
	n := len(series)
	if n < MinHurstObservations {
		return 0, false
	}
	maxLag := n / 4
	if maxLag > hurstMaxLag {
		maxLag = hurstMaxLag
	}
	logTau := make([]float64, 0, maxLag)
	logK := make([]float64, 0, maxLag)
	for tau := 2; tau <= maxLag; tau++ {
		sum := 0.0
		for t := 0; t+tau < n; t++ {
			sum += math.Abs(series[t+tau] - series[t])
		}
		k := sum / float64(n-tau)
		if k <= 0 || math.IsNaN(k) {
			continue
		}
		logTau = append(logTau, math.Log(float64(tau)))
		logK = append(logK, math.Log(k))
	}
	if len(logTau) < hurstMinLags {
		return 0, false
	}
	_, slope := stat.LinearRegression(logTau, logK, nil, false)
	if math.IsNaN(slope) {
		return 0, false
	}
	return clamp(slope, 0, 1), true
}
