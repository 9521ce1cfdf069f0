package stats

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"pairlab/internal/types"
)

// HedgeResult 是 a = alpha + beta*b 的 OLS 结果。
type HedgeResult struct {
	Alpha     float64
	Beta      float64
	Residuals []float64
}

// HedgeRatio 用带截距的 OLS 将 a 回归到 b 上。
func HedgeRatio(a, b []float64) (HedgeResult, error) {
	if len(a) != len(b) {
		return HedgeResult{}, fmt.Errorf("hedge ratio: length mismatch %d vs %d: %w", len(a), len(b), types.ErrInsufficientData)
	}
	if len(a) < 2 || !hasVariance(b) {
		return HedgeResult{}, fmt.Errorf("hedge ratio: need 2+ points with varying regressor: %w", types.ErrInsufficientData)
	}
	alpha, beta := stat.LinearRegression(b, a, nil, false)
	res := make([]float64, len(a))
	for i := range a {
		res[i] = a[i] - (alpha + beta*b[i])
	}
	return HedgeResult{Alpha: alpha, Beta: beta, Residuals: res}, nil
}
