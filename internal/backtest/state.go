package backtest

import (
	"math"
	"time"

	"pairlab/internal/types"
)

// leg 是单腿持仓：qty 带符号（多头为正），avg 为持仓均价。
type leg struct {
	qty      float64
	avg      float64
	realized float64
}

func (l *leg) pnl(price float64) float64 {
	return l.realized + l.qty*(price-l.avg)
}

// resize 把持仓调整到 target（与原方向同号），减仓部分按当前价实现盈亏。
func (l *leg) resize(target, price float64) {
	switch {
	case math.Abs(target) > math.Abs(l.qty):
		l.avg = (l.qty*l.avg + (target-l.qty)*price) / target
	case math.Abs(target) < math.Abs(l.qty):
		l.realized += (l.qty - target) * (price - l.avg)
	}
	l.qty = target
}

type positionState struct {
	side          types.TradeSide
	entryIdx      int
	entryTime     time.Time
	entryA        float64
	entryB        float64
	entryZ        float64
	entrySpread   float64
	tradeCapital  float64
	entryBeta     float64
	effBeta       float64
	hedge         hedge
	legA          leg
	legB          leg
	entryCost     float64
	rebalanceCost float64
	rebalances    int
	lastRebalance int
	betaDrift     float64
	mae           float64
}

// legsPnL 是两腿合计盈亏（不含手续费）。
func (p *positionState) legsPnL(pa, pb float64) float64 {
	return p.legA.pnl(pa) + p.legB.pnl(pb)
}

// updateMAE 记录持仓期间最差浮动盈亏的幅度，只增不减且不小于 0。
func (p *positionState) updateMAE(pnl float64) {
	if -pnl > p.mae {
		p.mae = -pnl
	}
}

func (p *positionState) notional(pa, pb float64) float64 {
	return math.Abs(p.legA.qty)*pa + math.Abs(p.legB.qty)*pb
}

// spreadMove 是相对入场的价差变动：入场价与现价都用持仓当前的对冲参数换算，
// 对冲参数变化本身不产生变动。
func (p *positionState) spreadMove(pa, pb float64) float64 {
	return p.hedge.spread(pa, pb) - p.hedge.spread(p.entryA, p.entryB)
}

// direction: long_spread 为 +1，short_spread 为 -1。
func (p *positionState) direction() float64 {
	if p.side == types.LongSpread {
		return 1
	}
	return -1
}

type portfolioState struct {
	initial  float64
	cash     float64
	costPct  float64
	position *positionState
	trades   []types.Trade
	equity   []types.EquityPoint
	zscores  []types.ZScorePoint
}

func newPortfolio(initial, costPct float64) *portfolioState {
	return &portfolioState{initial: initial, cash: initial, costPct: costPct}
}

func (s *portfolioState) markToMarket(pa, pb float64) float64 {
	if s.position == nil {
		return s.cash
	}
	return s.cash + s.position.legsPnL(pa, pb)
}

func (s *portfolioState) open(side types.TradeSide, idx int, ts time.Time, pa, pb, z, spread float64, h hedge, tradeCapital float64) bool {
	unit := pa + h.beta*pb
	if unit <= 0 || pa <= 0 || pb <= 0 {
		return false
	}
	qa := tradeCapital / unit
	qb := h.beta * qa
	sign := 1.0
	if side == types.ShortSpread {
		sign = -1
	}
	pos := &positionState{
		side:          side,
		entryIdx:      idx,
		entryTime:     ts,
		entryA:        pa,
		entryB:        pb,
		entryZ:        z,
		entrySpread:   spread,
		tradeCapital:  tradeCapital,
		entryBeta:     h.beta,
		effBeta:       h.beta,
		hedge:         h,
		legA:          leg{qty: sign * qa, avg: pa},
		legB:          leg{qty: -sign * qb, avg: pb},
		lastRebalance: idx,
	}
	pos.entryCost = pos.notional(pa, pb) * s.costPct
	s.cash -= pos.entryCost
	s.position = pos
	return true
}

// rebalance 按当前对冲比率把两腿重新调整到 trade capital。
func (s *portfolioState) rebalance(idx int, pa, pb float64, h hedge, drift float64) {
	pos := s.position
	unit := pa + h.beta*pb
	if pos == nil || unit <= 0 {
		return
	}
	qa := pos.tradeCapital / unit
	qb := h.beta * qa
	sign := pos.direction()
	newA, newB := sign*qa, -sign*qb
	cost := (math.Abs(newA-pos.legA.qty)*pa + math.Abs(newB-pos.legB.qty)*pb) * s.costPct
	pos.legA.resize(newA, pa)
	pos.legB.resize(newB, pb)
	pos.rebalanceCost += cost
	pos.rebalances++
	pos.betaDrift += drift
	pos.effBeta = h.beta
	pos.hedge = h
	pos.lastRebalance = idx
	s.cash -= cost
}

func (s *portfolioState) close(idx int, ts time.Time, pa, pb, z float64, reason types.ExitReason) {
	pos := s.position
	if pos == nil {
		return
	}
	legs := pos.legsPnL(pa, pb)
	pos.updateMAE(legs)
	exitCost := pos.notional(pa, pb) * s.costPct
	s.cash += legs - exitCost
	pnl := legs - pos.entryCost - pos.rebalanceCost - exitCost
	exit := ts
	trade := types.Trade{
		Side:           pos.side,
		EntryDate:      pos.entryTime,
		EntryPriceA:    pos.entryA,
		EntryPriceB:    pos.entryB,
		EntryZScore:    pos.entryZ,
		EntrySpread:    pos.entrySpread,
		QuantityA:      math.Abs(pos.legA.qty),
		QuantityB:      math.Abs(pos.legB.qty),
		TradeCapital:   pos.tradeCapital,
		BetaUsed:       pos.entryBeta,
		ExitDate:       &exit,
		ExitPriceA:     pa,
		ExitPriceB:     pb,
		ExitZScore:     z,
		ExitReason:     reason,
		PnL:            pnl,
		PnLPct:         pnl / s.initial * 100,
		MAE:            pos.mae,
		BetaDrift:      pos.betaDrift,
		RebalanceCount: pos.rebalances,
		RebalanceCost:  pos.rebalanceCost,
		HoldingBars:    idx - pos.entryIdx,
	}
	if pos.tradeCapital > 0 {
		trade.MAEPct = pos.mae / pos.tradeCapital * 100
	}
	s.trades = append(s.trades, trade)
	s.position = nil
}
