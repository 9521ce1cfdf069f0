package backtest

import (
	"context"
	"fmt"
	"math"

	"pairlab/internal/types"
)

// Simulate 逐根回放 z-score 均值回复策略。纯计算，不做 I/O；每根 bar 之间检查 ctx。
//
// 每根 bar 的顺序：计算滚动 z → 空仓时判断入场 → 持仓时先止损后止盈 → 仍持仓则判断再平衡 → 记录权益。
// 数据结束时未平仓位按最后一根强制平仓（end_of_data）。
func Simulate(ctx context.Context, pair types.AlignedPair, cfg types.BacktestConfig) (types.BacktestResult, error) {
	cfg, err := Normalize(cfg)
	if err != nil {
		return types.BacktestResult{}, err
	}
	n := pair.Len()
	if n < MinBacktestBars || len(pair.A) != n || len(pair.B) != n {
		return types.BacktestResult{}, fmt.Errorf("backtest needs %d aligned bars, got %d: %w", MinBacktestBars, n, types.ErrInsufficientData)
	}
	model, err := newHedgeModel(pair, cfg.Beta)
	if err != nil {
		return types.BacktestResult{}, err
	}
	state := newPortfolio(cfg.InitialCapital, cfg.TransactionCostPct)
	tradeCapital := cfg.InitialCapital * cfg.PositionSizePct / 100
	lastZ := 0.0

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return types.BacktestResult{}, ctx.Err()
		default:
		}
		ts, pa, pb := pair.Times[i], pair.A[i], pair.B[i]
		h := model.at(i)
		z, spread, ok := rollingZScore(pair.A, pair.B, i, h)
		if ok {
			lastZ = z
			state.zscores = append(state.zscores, types.ZScorePoint{Time: ts, ZScore: z})
			if pos := state.position; pos == nil {
				switch {
				case z <= -cfg.EntryThreshold:
					state.open(types.LongSpread, i, ts, pa, pb, z, spread, h, tradeCapital)
				case z >= cfg.EntryThreshold:
					state.open(types.ShortSpread, i, ts, pa, pb, z, spread, h, tradeCapital)
				}
			} else if i > pos.entryIdx {
				pnlPct := pos.legsPnL(pa, pb) / cfg.InitialCapital * 100
				move := pos.spreadMove(pa, pb)
				atr := spreadATR(pair.A, pair.B, i, pos.hedge)
				if reason, exit := checkExit(cfg, pos, z, move, atr, pnlPct); exit {
					state.close(i, ts, pa, pb, z, reason)
				} else if cfg.Rebalancing.Enabled {
					maybeRebalance(state, cfg.Rebalancing, i, pa, pb, h)
				}
			}
		}
		if pos := state.position; pos != nil {
			pos.updateMAE(pos.legsPnL(pa, pb))
		}
		state.equity = append(state.equity, types.EquityPoint{Time: ts, Equity: state.markToMarket(pa, pb)})
	}

	if state.position != nil {
		last := n - 1
		state.close(last, pair.Times[last], pair.A[last], pair.B[last], lastZ, types.ExitEndOfData)
		state.equity[last].Equity = state.cash
	}

	return types.BacktestResult{
		Config:      cfg,
		Alpha:       model.global.alpha,
		Beta:        model.global.beta,
		Bars:        n,
		EquityCurve: state.equity,
		ZScores:     state.zscores,
		Trades:      state.trades,
		Metrics:     ComputeMetrics(cfg.InitialCapital, state.equity, state.trades),
	}, nil
}

// checkExit 先判断止损再判断止盈，两者同时满足时止损优先。pnlPct 以初始资金为分母；
// move 与 atr 都在持仓的对冲参数下计算。
func checkExit(cfg types.BacktestConfig, pos *positionState, z, move, atr, pnlPct float64) (types.ExitReason, bool) {
	if stopLossHit(cfg.StopLoss, pos, z, move, atr, pnlPct) {
		return types.ExitStopLoss, true
	}
	if takeProfitHit(cfg.TakeProfit, pos, z, move, atr, pnlPct) {
		return types.ExitTakeProfit, true
	}
	return "", false
}

func stopLossHit(sl types.StopLoss, pos *positionState, z, move, atr, pnlPct float64) bool {
	v := math.Abs(sl.Value)
	switch sl.Type {
	case types.StopLossPercent:
		return pnlPct <= -v
	case types.StopLossZScore:
		if pos.side == types.LongSpread {
			return z <= -v
		}
		return z >= v
	case types.StopLossATR:
		if math.IsNaN(atr) || atr <= 0 {
			return false
		}
		return math.Abs(move) >= v*atr
	}
	return false
}

func takeProfitHit(tp types.TakeProfit, pos *positionState, z, move, atr, pnlPct float64) bool {
	switch tp.Type {
	case types.TakeProfitPercent:
		return pnlPct >= tp.Value
	case types.TakeProfitZScore:
		target := zScoreTarget(tp.Value, pos.entryZ)
		if pos.side == types.LongSpread {
			return z >= target
		}
		return z <= target
	case types.TakeProfitATR:
		if math.IsNaN(atr) || atr <= 0 {
			return false
		}
		return pos.direction()*move >= tp.Value*atr
	}
	return false
}

// zScoreTarget: 0 表示回到均值；正值表示穿越均值到对侧 |v|；负值表示在到达均值前 |v| 处离场。
func zScoreTarget(v, entryZ float64) float64 {
	if v == 0 {
		return 0
	}
	s := 1.0
	if entryZ < 0 {
		s = -1
	}
	if v > 0 {
		return -s * math.Abs(v)
	}
	return s * math.Abs(v)
}

// maybeRebalance: 距上次调整满 frequency 根，或 beta 相对漂移达到阈值时触发。
func maybeRebalance(state *portfolioState, rb types.Rebalancing, i int, pa, pb float64, h hedge) {
	pos := state.position
	if pos == nil || pos.effBeta <= 0 {
		return
	}
	drift := math.Abs(h.beta-pos.effBeta) / pos.effBeta
	if i-pos.lastRebalance >= rb.FrequencyDays || drift >= rb.DriftThreshold {
		state.rebalance(i, pa, pb, h, drift)
	}
}
