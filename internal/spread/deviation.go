package spread

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

type Rarity string

const (
	RarityVeryRare Rarity = "Very Rare"
	RarityRare     Rarity = "Rare"
	RarityUncommon Rarity = "Uncommon"
	RarityCommon   Rarity = "Common"
)

type Deviation struct {
	ZScore                float64 `json:"zscore"`
	Percentile            float64 `json:"percentile"`
	Rarity                Rarity  `json:"rarity"`
	ExtremeProbabilityPct float64 `json:"extreme_probability_pct"`
}

// CurrentDeviation 描述最新 z-score 在历史分布中的位置。
func CurrentDeviation(z []float64) Deviation {
	if len(z) == 0 {
		return Deviation{Rarity: RarityCommon, Percentile: 50, ExtremeProbabilityPct: 100}
	}
	cur := z[len(z)-1]
	p := PercentileOfScore(z, cur)
	return Deviation{
		ZScore:                cur,
		Percentile:            p,
		Rarity:                ClassifyRarity(p),
		ExtremeProbabilityPct: ExtremeProbability(cur),
	}
}

// PercentileOfScore 返回 x 的百分位，并列值取平均秩。
func PercentileOfScore(values []float64, x float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	var left, right int
	for _, v := range values {
		if v < x {
			left++
		}
		if v <= x {
			right++
		}
	}
	extra := 0
	if right > left {
		extra = 1
	}
	return float64(left+right+extra) * 50 / float64(n)
}

func ClassifyRarity(percentile float64) Rarity {
	switch {
	case percentile < 1 || percentile > 99:
		return RarityVeryRare
	case percentile < 5 || percentile > 95:
		return RarityRare
	case percentile < 10 || percentile > 90:
		return RarityUncommon
	default:
		return RarityCommon
	}
}

// ExtremeProbability 是正态近似下 |Z| >= |z| 的双尾概率（百分比）。
func ExtremeProbability(z float64) float64 {
	return 2 * distuv.UnitNormal.Survival(math.Abs(z)) * 100
}
