// Package markettest 提供固定种子的内存行情，供跨包集成测试使用。
package markettest

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"pairlab/internal/types"
)

// Market 同时实现 PriceHistoryProvider 与 UniverseProvider，忽略回看天数。
type Market struct {
	Series map[string]types.PriceSeries
	Assets []types.Asset
}

func (m *Market) History(_ context.Context, symbol string, _ int) (types.PriceSeries, error) {
	s, ok := m.Series[symbol]
	if !ok {
		return types.PriceSeries{}, fmt.Errorf("%s: %w", symbol, types.ErrDataUnavailable)
	}
	return s, nil
}

func (m *Market) Universe(context.Context) ([]types.Asset, error) { return m.Assets, nil }

// Series 从 2024-01-01 起按日生成 K 线。
func Series(symbol string, closes []float64) types.PriceSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := types.PriceSeries{Symbol: symbol}
	for i, c := range closes {
		s.Bars = append(s.Bars, types.Bar{Time: start.AddDate(0, 0, i), Close: c})
	}
	return s
}

// NewCointegrated 返回 n 根日线：AAA = 2·BBB + 噪声，CCC 与 BBB 强负相关。
// 默认筛选参数下恰好筛出 AAA/BBB 一对。
func NewCointegrated(n int) *Market {
	rng := rand.New(rand.NewSource(42))
	a := make([]float64, n)
	b := make([]float64, n)
	c := make([]float64, n)
	b[0] = 100
	for i := 1; i < n; i++ {
		b[i] = b[i-1] + rng.NormFloat64()
	}
	for i := range a {
		a[i] = 2*b[i] + rng.NormFloat64()*0.5
		c[i] = 400 - 2*b[i] + rng.NormFloat64()*0.5
	}
	return &Market{
		Series: map[string]types.PriceSeries{
			"AAAUSDT": Series("AAAUSDT", a),
			"BBBUSDT": Series("BBBUSDT", b),
			"CCCUSDT": Series("CCCUSDT", c),
		},
		Assets: []types.Asset{
			{Symbol: "AAAUSDT", VolumeUSD: 5e6},
			{Symbol: "BBBUSDT", VolumeUSD: 4e6},
			{Symbol: "CCCUSDT", VolumeUSD: 3e6},
		},
	}
}
