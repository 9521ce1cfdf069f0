package spread

import (
	"time"

	"pairlab/internal/types"
)

// EntryBand 是图表上标注的 ±2σ 进出场带。
const EntryBand = 2.0

type MarkerKind string

const (
	MarkerEnterUpper MarkerKind = "enter_upper"
	MarkerExitUpper  MarkerKind = "exit_upper"
	MarkerEnterLower MarkerKind = "enter_lower"
	MarkerExitLower  MarkerKind = "exit_lower"
)

type ChartPoint struct {
	Time   time.Time `json:"time"`
	Spread float64   `json:"spread"`
	Z      float64   `json:"zscore"`
	NormA  float64   `json:"norm_a"`
	NormB  float64   `json:"norm_b"`
}

type Marker struct {
	Time time.Time  `json:"time"`
	Kind MarkerKind `json:"kind"`
	Z    float64    `json:"zscore"`
}

type ChartData struct {
	SymbolA string       `json:"symbol_a"`
	SymbolB string       `json:"symbol_b"`
	Beta    float64      `json:"beta"`
	Points  []ChartPoint `json:"points"`
	Markers []Marker     `json:"markers"`
}

// BuildChartData 生成价差图数据：价格以首根为 100 归一化，并标注 z 穿越 ±2σ 的位置。
func BuildChartData(pair types.AlignedPair, s Static) ChartData {
	out := ChartData{SymbolA: pair.SymbolA, SymbolB: pair.SymbolB, Beta: s.Beta}
	n := pair.Len()
	if n == 0 || s.Len() != n {
		return out
	}
	baseA, baseB := pair.A[0], pair.B[0]
	out.Points = make([]ChartPoint, n)
	for i := 0; i < n; i++ {
		p := ChartPoint{Time: pair.Times[i], Spread: s.Spread[i], Z: s.Z[i]}
		if baseA != 0 {
			p.NormA = pair.A[i] / baseA * 100
		}
		if baseB != 0 {
			p.NormB = pair.B[i] / baseB * 100
		}
		out.Points[i] = p
		if i == 0 {
			continue
		}
		prev, cur := s.Z[i-1], s.Z[i]
		var kind MarkerKind
		switch {
		case prev < EntryBand && cur >= EntryBand:
			kind = MarkerEnterUpper
		case prev >= EntryBand && cur < EntryBand:
			kind = MarkerExitUpper
		case prev > -EntryBand && cur <= -EntryBand:
			kind = MarkerEnterLower
		case prev <= -EntryBand && cur > -EntryBand:
			kind = MarkerExitLower
		default:
			continue
		}
		out.Markers = append(out.Markers, Marker{Time: pair.Times[i], Kind: kind, Z: cur})
	}
	return out
}
