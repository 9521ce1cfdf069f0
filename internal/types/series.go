package types

import "time"

// Bar 是单根收盘数据。Volume 为计价资产成交额（USD 口径）。
type Bar struct {
	Time   time.Time `json:"time"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceSeries 按时间严格递增，引擎只读不写。
type PriceSeries struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

func (p PriceSeries) Len() int { return len(p.Bars) }

func (p PriceSeries) Closes() []float64 {
	out := make([]float64, len(p.Bars))
	for i, b := range p.Bars {
		out[i] = b.Close
	}
	return out
}

func (p PriceSeries) Last() (Bar, bool) {
	if len(p.Bars) == 0 {
		return Bar{}, false
	}
	return p.Bars[len(p.Bars)-1], true
}

// AlignedPair 是两条序列按时间戳取交集后的结果。
type AlignedPair struct {
	SymbolA string      `json:"symbol_a"`
	SymbolB string      `json:"symbol_b"`
	Times   []time.Time `json:"times"`
	A       []float64   `json:"a"`
	B       []float64   `json:"b"`
}

func (p AlignedPair) Len() int { return len(p.Times) }

// Asset 是候选池中的单个标的及其流动性。
type Asset struct {
	Symbol    string  `json:"symbol"`
	VolumeUSD float64 `json:"volume_usd"`
}
