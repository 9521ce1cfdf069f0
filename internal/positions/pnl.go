package positions

import (
	"context"
	"fmt"

	"pairlab/internal/sizing"
	"pairlab/internal/types"
)

// PositionPnL 是头寸在给定现价下的浮动盈亏。
type PositionPnL struct {
	PositionID    int64   `json:"position_id"`
	CurrentPriceA float64 `json:"current_price_a"`
	CurrentPriceB float64 `json:"current_price_b"`
	GrossEntry    float64 `json:"gross_entry"`
	sizing.PnL
}

// PnL 估算盈亏：long 为 (pa-ea)*qa + (eb-pb)*qb，short 反之。
// priceA/priceB 为 nil 时取行情源最新收盘价。
func (s *Service) PnL(ctx context.Context, id int64, priceA, priceB *float64) (PositionPnL, error) {
	row, err := s.store.GetPosition(ctx, id)
	if err != nil {
		return PositionPnL{}, err
	}
	pos := fromModel(row)
	pa, err := s.price(ctx, pos.AssetA, priceA)
	if err != nil {
		return PositionPnL{}, err
	}
	pb, err := s.price(ctx, pos.AssetB, priceB)
	if err != nil {
		return PositionPnL{}, err
	}
	return Estimate(pos, pa, pb), nil
}

// Estimate 复用仓位计算器的逐腿 decimal 计算，收益率以两腿开仓名义金额之和为分母。
func Estimate(pos Position, priceA, priceB float64) PositionPnL {
	sideA, sideB := sizing.SideLong, sizing.SideShort
	if pos.Side == sizing.SideShort {
		sideA, sideB = sizing.SideShort, sizing.SideLong
	}
	gross := pos.QuantityA*pos.EntryPriceA + pos.QuantityB*pos.EntryPriceB
	res := sizing.Result{
		AssetA:  sizing.Leg{Side: sideA, Quantity: pos.QuantityA, Price: pos.EntryPriceA},
		AssetB:  sizing.Leg{Side: sideB, Quantity: pos.QuantityB, Price: pos.EntryPriceB},
		Capital: gross,
	}
	return PositionPnL{
		PositionID:    pos.ID,
		CurrentPriceA: priceA,
		CurrentPriceB: priceB,
		GrossEntry:    gross,
		PnL:           sizing.EstimatePnL(res, priceA, priceB),
	}
}

func (s *Service) price(ctx context.Context, symbol string, given *float64) (float64, error) {
	if given != nil {
		if !(*given > 0) {
			return 0, fmt.Errorf("%w: %s price must be > 0", types.ErrInvalidConfig, symbol)
		}
		return *given, nil
	}
	if s.provider == nil {
		return 0, fmt.Errorf("%s: no price source: %w", symbol, types.ErrDataUnavailable)
	}
	series, err := s.provider.History(ctx, symbol, quoteLookbackDays)
	if err != nil {
		return 0, err
	}
	last, ok := series.Last()
	if !ok {
		return 0, fmt.Errorf("%s: empty history: %w", symbol, types.ErrDataUnavailable)
	}
	return last.Close, nil
}
