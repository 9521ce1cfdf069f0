// Package spread 分析静态价差：整段窗口上一次性计算均值/标准差得到的 z-score，
// 用于筛选与展示。回测使用的滚动 z-score 在 backtest 包内单独实现。
package spread

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"pairlab/internal/types"
)

// Static 是 spread = a - beta*b 在整段窗口上的统计。
type Static struct {
	Beta   float64
	Spread []float64
	Z      []float64
	Mean   float64
	Std    float64
}

func (s Static) Len() int { return len(s.Spread) }

// CurrentZ 返回最后一根的 z-score。
func (s Static) CurrentZ() float64 {
	if len(s.Z) == 0 {
		return 0
	}
	return s.Z[len(s.Z)-1]
}

// NewStatic 计算静态价差与 z-score；标准差为 0 时 z 全部为 0。
func NewStatic(a, b []float64, beta float64) (Static, error) {
	if len(a) != len(b) {
		return Static{}, fmt.Errorf("spread: length mismatch %d vs %d: %w", len(a), len(b), types.ErrInsufficientData)
	}
	if len(a) < 2 {
		return Static{}, fmt.Errorf("spread: need at least 2 points: %w", types.ErrInsufficientData)
	}
	spread := make([]float64, len(a))
	for i := range a {
		spread[i] = a[i] - beta*b[i]
	}
	mean, std := stat.MeanStdDev(spread, nil)
	z := make([]float64, len(spread))
	if std > 0 && !math.IsNaN(std) {
		for i, v := range spread {
			z[i] = (v - mean) / std
		}
	} else {
		std = 0
	}
	return Static{Beta: beta, Spread: spread, Z: z, Mean: mean, Std: std}, nil
}
