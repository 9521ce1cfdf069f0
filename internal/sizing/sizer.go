// Package sizing 把资金、对冲比率和现价换算成两腿的数量与金额。
package sizing

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"pairlab/internal/types"
)

type Strategy string

const (
	DollarNeutral Strategy = "dollar_neutral"
	EqualDollar   Strategy = "equal_dollar"
	LongAssetA    Strategy = "long_asset_a"
	LongAssetB    Strategy = "long_asset_b"
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

const (
	dollarPlaces   = 2
	quantityPlaces = 8
)

var decTwo = decimal.NewFromInt(2)

type Request struct {
	Capital  float64  `json:"capital"`
	Beta     float64  `json:"beta"`
	PriceA   float64  `json:"price_a"`
	PriceB   float64  `json:"price_b"`
	Strategy Strategy `json:"strategy"`
	ZScore   float64  `json:"zscore"`
}

type Leg struct {
	Side     Side    `json:"side"`
	Quantity float64 `json:"quantity"`
	Dollars  float64 `json:"dollar_amount"`
	Price    float64 `json:"price"`
}

type Result struct {
	AssetA      Leg      `json:"asset_a"`
	AssetB      Leg      `json:"asset_b"`
	Capital     float64  `json:"total_capital"`
	Strategy    Strategy `json:"strategy"`
	Beta        float64  `json:"beta"`
	ZScore      float64  `json:"zscore"`
	NetExposure float64  `json:"net_exposure"`
}

// PnL 是按给定退出价估算的两腿盈亏。
type PnL struct {
	LegA      float64 `json:"pnl_a"`
	LegB      float64 `json:"pnl_b"`
	Total     float64 `json:"total_pnl"`
	ReturnPct float64 `json:"return_pct"`
}

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return DollarNeutral, nil
	case DollarNeutral, EqualDollar, LongAssetA, LongAssetB:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown sizing strategy %q", types.ErrInvalidConfig, s)
	}
}

// Size 为一个价差头寸计算两腿。中性策略的方向由 z 决定：z>0 做空价差（空 A 多 B）。
func Size(req Request) (Result, error) {
	if !(req.Capital > 0) || math.IsInf(req.Capital, 0) {
		return Result{}, fmt.Errorf("%w: capital must be positive", types.ErrInvalidCapital)
	}
	if !(req.Beta > 0) || math.IsInf(req.Beta, 0) {
		return Result{}, fmt.Errorf("%w: beta must be positive", types.ErrInvalidConfig)
	}
	if !(req.PriceA > 0) || !(req.PriceB > 0) {
		return Result{}, fmt.Errorf("%w: prices must be positive", types.ErrInvalidConfig)
	}
	strategy, err := ParseStrategy(string(req.Strategy))
	if err != nil {
		return Result{}, err
	}

	capital := decFromFloat(req.Capital)
	beta := decFromFloat(req.Beta)
	sideA, sideB := SideLong, SideShort
	if req.ZScore > 0 {
		sideA, sideB = SideShort, SideLong
	}

	var dollarA, dollarB decimal.Decimal
	switch strategy {
	case DollarNeutral:
		dollarA = capital
		dollarB = capital.Mul(beta)
	case EqualDollar:
		half := capital.Div(decTwo)
		dollarA = half
		dollarB = half.Mul(beta)
	case LongAssetA:
		dollarA = capital
		dollarB = capital.Mul(beta)
		sideA, sideB = SideLong, SideShort
	case LongAssetB:
		dollarA = capital.Mul(beta)
		dollarB = capital
		sideA, sideB = SideShort, SideLong
	}

	res := Result{
		AssetA:      newLeg(sideA, dollarA, req.PriceA),
		AssetB:      newLeg(sideB, dollarB, req.PriceB),
		Capital:     decToFloat(capital.Round(dollarPlaces)),
		Strategy:    strategy,
		Beta:        req.Beta,
		ZScore:      req.ZScore,
		NetExposure: decToFloat(dollarA.Sub(dollarB).Abs().Round(dollarPlaces)),
	}
	return res, nil
}

func newLeg(side Side, dollars decimal.Decimal, price float64) Leg {
	qty := dollars.DivRound(decFromFloat(price), quantityPlaces)
	return Leg{
		Side:     side,
		Quantity: decToFloat(qty),
		Dollars:  decToFloat(dollars.Round(dollarPlaces)),
		Price:    price,
	}
}

// EstimatePnL 按退出价估算盈亏；价格非正时该腿按 0 计。
func EstimatePnL(res Result, exitA, exitB float64) PnL {
	a := legPnL(res.AssetA, exitA)
	b := legPnL(res.AssetB, exitB)
	total := a.Add(b)
	out := PnL{
		LegA:  decToFloat(a.Round(dollarPlaces)),
		LegB:  decToFloat(b.Round(dollarPlaces)),
		Total: decToFloat(total.Round(dollarPlaces)),
	}
	if res.Capital > 0 {
		out.ReturnPct = decToFloat(total.Div(decFromFloat(res.Capital)).Mul(decimal.NewFromInt(100)).Round(4))
	}
	return out
}

func legPnL(leg Leg, exit float64) decimal.Decimal {
	if exit <= 0 || leg.Price <= 0 {
		return decimal.Zero
	}
	move := decFromFloat(exit).Sub(decFromFloat(leg.Price)).Mul(decFromFloat(leg.Quantity))
	if leg.Side == SideShort {
		return move.Neg()
	}
	return move
}

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}
