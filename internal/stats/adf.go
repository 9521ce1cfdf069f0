package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"pairlab/internal/types"
)

// MinADFObservations 是 ADF 检验要求的最少样本数。
const MinADFObservations = 20

// ADFResult 汇总一次带常数项的 ADF 检验。
type ADFResult struct {
	Statistic float64
	PValue    float64
	Lags      int
	NObs      int
}

// MacKinnon (1994) 常数项、单变量的响应面系数（按幂次递增）。
var (
	adfTauMax    = 2.74
	adfTauMin    = -18.83
	adfTauStar   = -1.61
	adfSmallP    = []float64{2.1659, 1.4412, 0.038269}
	adfLargeP    = []float64{1.7339, 0.93202, -0.12745, -0.010368}
	standardNorm = distuv.UnitNormal
)

// ADF 对序列做带常数项的增广 Dickey-Fuller 检验。
// 滞后阶数在 0..⌊12·(n/100)^¼⌋ 内按 AIC 选取（公共样本上比较），再用选中的阶数重新拟合。
func ADF(series []float64) (ADFResult, error) {
	n := len(series)
	if n < MinADFObservations {
		return ADFResult{}, fmt.Errorf("adf: need %d observations, got %d: %w", MinADFObservations, n, types.ErrInsufficientData)
	}
	if !hasVariance(series) {
		return ADFResult{}, fmt.Errorf("adf: constant series: %w", types.ErrInsufficientData)
	}
	maxLag := int(math.Floor(12 * math.Pow(float64(n)/100, 0.25)))
	if limit := n/2 - 3; maxLag > limit {
		maxLag = limit
	}
	if maxLag < 0 {
		maxLag = 0
	}
	dy := make([]float64, n-1)
	for i := 1; i < n; i++ {
		dy[i-1] = series[i] - series[i-1]
	}

	bestLag, bestAIC := 0, math.Inf(1)
	for lag := 0; lag <= maxLag; lag++ {
		fit, err := adfRegression(series, dy, lag, maxLag)
		if err != nil {
			continue
		}
		if fit.aic < bestAIC {
			bestAIC = fit.aic
			bestLag = lag
		}
	}
	fit, err := adfRegression(series, dy, bestLag, bestLag)
	if err != nil {
		return ADFResult{}, err
	}
	return ADFResult{
		Statistic: fit.tstat,
		PValue:    MacKinnonPValue(fit.tstat),
		Lags:      bestLag,
		NObs:      fit.nobs,
	}, nil
}

type adfFit struct {
	tstat float64
	aic   float64
	nobs  int
}

// adfRegression 拟合 Δy_j = c + γ·y_j + Σφ_i·Δy_{j-i}；start 决定样本起点，便于在公共样本上比较 AIC。
func adfRegression(y, dy []float64, lag, start int) (adfFit, error) {
	rows := len(dy) - start
	cols := 2 + lag
	if rows <= cols+1 {
		return adfFit{}, fmt.Errorf("adf: too few rows for lag %d: %w", lag, types.ErrInsufficientData)
	}
	x := mat.NewDense(rows, cols, nil)
	target := mat.NewVecDense(rows, nil)
	for r := 0; r < rows; r++ {
		j := start + r
		x.Set(r, 0, 1)
		x.Set(r, 1, y[j])
		for i := 1; i <= lag; i++ {
			x.Set(r, 1+i, dy[j-i])
		}
		target.SetVec(r, dy[j])
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return adfFit{}, fmt.Errorf("adf: singular design: %w", types.ErrInsufficientData)
	}
	var xty mat.VecDense
	xty.MulVec(x.T(), target)
	var coef mat.VecDense
	coef.MulVec(&inv, &xty)

	var fitted mat.VecDense
	fitted.MulVec(x, &coef)
	rss := 0.0
	for r := 0; r < rows; r++ {
		e := target.AtVec(r) - fitted.AtVec(r)
		rss += e * e
	}
	dof := float64(rows - cols)
	sigma2 := rss / dof
	se := math.Sqrt(sigma2 * inv.At(1, 1))
	if se == 0 || math.IsNaN(se) {
		return adfFit{}, fmt.Errorf("adf: degenerate fit: %w", types.ErrInsufficientData)
	}
	tstat := coef.AtVec(1) / se
	nf := float64(rows)
	llf := -nf / 2 * (math.Log(2*math.Pi) + math.Log(rss/nf) + 1)
	return adfFit{
		tstat: tstat,
		aic:   -2*llf + 2*float64(cols),
		nobs:  rows,
	}, nil
}

// MacKinnonPValue 把 ADF 统计量换算为近似 p 值。
func MacKinnonPValue(stat float64) float64 {
	switch {
	case stat > adfTauMax:
		return 1
	case stat < adfTauMin:
		return 0
	}
	coefs := adfLargeP
	if stat <= adfTauStar {
		coefs = adfSmallP
	}
	return standardNorm.CDF(polyval(coefs, stat))
}

func polyval(coefs []float64, x float64) float64 {
	out := 0.0
	for i := len(coefs) - 1; i >= 0; i-- {
		out = out*x + coefs[i]
	}
	return out
}

// Cointegration 是 Engle-Granger 第二步：对对冲残差做 ADF。
func Cointegration(a, b []float64) (HedgeResult, ADFResult, error) {
	hedge, err := HedgeRatio(a, b)
	if err != nil {
		return HedgeResult{}, ADFResult{}, err
	}
	adf, err := ADF(hedge.Residuals)
	if err != nil {
		return hedge, ADFResult{}, err
	}
	return hedge, adf, nil
}
