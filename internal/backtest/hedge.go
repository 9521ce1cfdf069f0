package backtest

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"pairlab/internal/stats"
	"pairlab/internal/types"
)

type hedge struct {
	alpha float64
	beta  float64
}

// hedgeModel 给出每根 bar 可用的对冲参数：滚动窗口不含当前 bar，不足或异常时回落到全样本 OLS。
type hedgeModel struct {
	a, b   []float64
	global hedge
	fixed  bool
}

func newHedgeModel(pair types.AlignedPair, override *float64) (*hedgeModel, error) {
	m := &hedgeModel{a: pair.A, b: pair.B}
	if override != nil {
		beta := *override
		diff := make([]float64, len(pair.A))
		for i := range pair.A {
			diff[i] = pair.A[i] - beta*pair.B[i]
		}
		m.global = hedge{alpha: stat.Mean(diff, nil), beta: beta}
		m.fixed = true
		return m, nil
	}
	res, err := stats.HedgeRatio(pair.A, pair.B)
	if err != nil {
		return nil, err
	}
	m.global = hedge{alpha: res.Alpha, beta: res.Beta}
	return m, nil
}

func (m *hedgeModel) at(i int) hedge {
	if m.fixed {
		return m.global
	}
	start := i - HedgeWindow
	if start < 0 {
		start = 0
	}
	if i-start < MinHedgeBars {
		return m.global
	}
	res, err := stats.HedgeRatio(m.a[start:i], m.b[start:i])
	if err != nil || !(res.Beta > 0 && res.Beta <= MaxRollingBeta) {
		return m.global
	}
	return hedge{alpha: res.Alpha, beta: res.Beta}
}

func (h hedge) spread(a, b float64) float64 {
	return a - (h.alpha + h.beta*b)
}

// rollingZScore 用当前对冲参数计算 [i-ZScoreWindow+1, i] 窗口内最后一根的 z-score（样本标准差）。
// 窗口不足或标准差为 0 时 ok=false。
func rollingZScore(a, b []float64, i int, h hedge) (z, spread float64, ok bool) {
	start := i - ZScoreWindow + 1
	if start < 0 {
		start = 0
	}
	if i-start+1 < MinZScoreBars {
		return 0, 0, false
	}
	window := make([]float64, 0, i-start+1)
	for j := start; j <= i; j++ {
		window = append(window, h.spread(a[j], b[j]))
	}
	mean, std := stat.MeanStdDev(window, nil)
	spread = window[len(window)-1]
	if std == 0 || math.IsNaN(std) {
		return 0, spread, false
	}
	return (spread - mean) / std, spread, true
}

// spreadATR 在对冲 h 下计算第 i 根的价差 ATR，只用 [i-2*ATRPeriod+2, i] 的数据：
// TR 取 ATRPeriod 窗口内 max-min，再做 ATRPeriod 简单均线。数据不足返回 NaN。
func spreadATR(a, b []float64, i int, h hedge) float64 {
	start := i - 2*ATRPeriod + 2
	if start < 0 || i >= len(a) || i >= len(b) {
		return math.NaN()
	}
	s := make([]float64, i-start+1)
	for j := range s {
		s[j] = h.spread(a[start+j], b[start+j])
	}
	hi := talib.Max(s, ATRPeriod)
	lo := talib.Min(s, ATRPeriod)
	warm := ATRPeriod - 1
	tr := make([]float64, len(s)-warm)
	for k := warm; k < len(s); k++ {
		tr[k-warm] = hi[k] - lo[k]
	}
	sma := talib.Sma(tr, ATRPeriod)
	return sma[len(sma)-1]
}
