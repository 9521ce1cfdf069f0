// Package market 定义行情数据的外部接口：历史收盘序列与候选资产池。
// 核心算法只依赖这里的接口，具体实现见 market/binance 与 market/cache。
package market

import (
	"context"
	"sort"
	"strings"
	"time"

	"pairlab/internal/types"
)

// PriceHistoryProvider 返回按时间升序的收盘序列。
// 未知标的或历史不足时返回包装了 types.ErrDataUnavailable 的错误。
type PriceHistoryProvider interface {
	History(ctx context.Context, symbol string, lookbackDays int) (types.PriceSeries, error)
}

// UniverseProvider 返回可筛选的资产及其 24h 成交额。
type UniverseProvider interface {
	Universe(ctx context.Context) ([]types.Asset, error)
}

// NormalizeSymbol 统一为交易所格式，例如 "eth/usdt" -> "ETHUSDT"。
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

// Align 按时间戳取两条序列的交集，结果仍按时间升序。
func Align(a, b types.PriceSeries) types.AlignedPair {
	out := types.AlignedPair{SymbolA: a.Symbol, SymbolB: b.Symbol}
	idx := make(map[int64]float64, len(b.Bars))
	for _, bar := range b.Bars {
		idx[bar.Time.UnixMilli()] = bar.Close
	}
	for _, bar := range a.Bars {
		closeB, ok := idx[bar.Time.UnixMilli()]
		if !ok {
			continue
		}
		out.Times = append(out.Times, bar.Time)
		out.A = append(out.A, bar.Close)
		out.B = append(out.B, closeB)
	}
	return out
}

// Coverage 返回序列覆盖 lookbackDays 的比例。
func Coverage(series types.PriceSeries, lookbackDays int) float64 {
	if lookbackDays <= 0 {
		return 1
	}
	return float64(series.Len()) / float64(lookbackDays)
}

// TrimToLookback 只保留最近 lookbackDays 天内的 bar。
func TrimToLookback(series types.PriceSeries, lookbackDays int, now time.Time) types.PriceSeries {
	if lookbackDays <= 0 || series.Len() == 0 {
		return series
	}
	cutoff := now.AddDate(0, 0, -lookbackDays)
	i := sort.Search(len(series.Bars), func(i int) bool { return series.Bars[i].Time.After(cutoff) })
	return types.PriceSeries{Symbol: series.Symbol, Bars: series.Bars[i:]}
}

// RankByVolume 过滤成交额不足的资产，按成交额降序截取前 maxAssets 个。
func RankByVolume(assets []types.Asset, minVolume float64, maxAssets int) []types.Asset {
	out := make([]types.Asset, 0, len(assets))
	for _, a := range assets {
		if a.VolumeUSD >= minVolume {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].VolumeUSD == out[j].VolumeUSD {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].VolumeUSD > out[j].VolumeUSD
	})
	if maxAssets > 0 && len(out) > maxAssets {
		out = out[:maxAssets]
	}
	return out
}
