// Package stats 提供配对筛选所需的时间序列统计：相关性、对冲比率、ADF 协整检验与 Hurst 指数。
// 所有函数都是纯函数，不做 I/O。
package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"pairlab/internal/types"
)

// Correlation 计算等长序列的 Pearson 相关系数。
func Correlation(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("correlation: length mismatch %d vs %d: %w", len(a), len(b), types.ErrInsufficientData)
	}
	if len(a) < 2 {
		return 0, fmt.Errorf("correlation: need at least 2 points, got %d: %w", len(a), types.ErrInsufficientData)
	}
	if !hasVariance(a) || !hasVariance(b) {
		return 0, fmt.Errorf("correlation: zero variance: %w", types.ErrInsufficientData)
	}
	r := stat.Correlation(a, b, nil)
	if math.IsNaN(r) {
		return 0, fmt.Errorf("correlation: undefined: %w", types.ErrInsufficientData)
	}
	return clamp(r, -1, 1), nil
}

// PairedReturns 计算两条对齐价格序列的简单收益率。
// 任一侧前值非正的位置两边同时跳过，保证结果仍然一一对应。
func PairedReturns(a, b []float64) ([]float64, []float64) {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return nil, nil
	}
	ra := make([]float64, 0, n-1)
	rb := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if a[i-1] <= 0 || b[i-1] <= 0 {
			continue
		}
		ra = append(ra, a[i]/a[i-1]-1)
		rb = append(rb, b[i]/b[i-1]-1)
	}
	return ra, rb
}

func hasVariance(xs []float64) bool {
	if len(xs) < 2 {
		return false
	}
	first := xs[0]
	for _, x := range xs[1:] {
		if x != first {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
