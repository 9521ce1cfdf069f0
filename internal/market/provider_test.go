package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pairlab/internal/types"
)

func day(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func TestAlignIntersectsTimestamps(t *testing.T) {
	a := types.PriceSeries{Symbol: "A", Bars: []types.Bar{{Time: day(0), Close: 1}, {Time: day(1), Close: 2}, {Time: day(3), Close: 4}}}
	b := types.PriceSeries{Symbol: "B", Bars: []types.Bar{{Time: day(1), Close: 20}, {Time: day(2), Close: 30}, {Time: day(3), Close: 40}}}

	p := Align(a, b)
	assert.Equal(t, 2, p.Len())
	assert.Equal(t, []float64{2, 4}, p.A)
	assert.Equal(t, []float64{20, 40}, p.B)
	assert.Equal(t, "A", p.SymbolA)
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "ETHUSDT", NormalizeSymbol(" eth/usdt "))
	assert.Equal(t, "BTCUSDT", NormalizeSymbol("btc-usdt"))
}

func TestRankByVolume(t *testing.T) {
	assets := []types.Asset{
		{Symbol: "LOW", VolumeUSD: 10},
		{Symbol: "B", VolumeUSD: 500},
		{Symbol: "A", VolumeUSD: 500},
		{Symbol: "TOP", VolumeUSD: 900},
	}
	got := RankByVolume(assets, 100, 2)
	assert.Equal(t, []types.Asset{{Symbol: "TOP", VolumeUSD: 900}, {Symbol: "A", VolumeUSD: 500}}, got)
}

func TestTrimAndCoverage(t *testing.T) {
	var bars []types.Bar
	for i := 0; i < 10; i++ {
		bars = append(bars, types.Bar{Time: day(i), Close: float64(i)})
	}
	s := types.PriceSeries{Symbol: "A", Bars: bars}
	trimmed := TrimToLookback(s, 5, day(9))
	assert.Equal(t, 5, trimmed.Len())
	assert.InDelta(t, 0.5, Coverage(trimmed, 10), 1e-12)
}
