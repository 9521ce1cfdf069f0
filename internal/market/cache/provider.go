package cache

import (
	"context"
	"time"

	"pairlab/internal/logger"
	"pairlab/internal/market"
	"pairlab/internal/types"
)

var log = logger.Component("cache")

// Provider 优先读缓存，缓存过期或覆盖不足时回源并写回。
type Provider struct {
	store    *Store
	upstream market.PriceHistoryProvider
	interval string
	ttl      time.Duration
	now      func() time.Time
}

func NewProvider(store *Store, upstream market.PriceHistoryProvider, interval string, ttl time.Duration) *Provider {
	return &Provider{store: store, upstream: upstream, interval: interval, ttl: ttl, now: time.Now}
}

func (p *Provider) History(ctx context.Context, symbol string, lookbackDays int) (types.PriceSeries, error) {
	symbol = market.NormalizeSymbol(symbol)
	now := p.now()
	since := now.AddDate(0, 0, -lookbackDays)
	if m, ok, err := p.store.Manifest(ctx, symbol, p.interval); err == nil && ok {
		fresh := now.Sub(time.UnixMilli(m.LastSyncAt)) <= p.ttl
		covers := m.MinTime <= since.UnixMilli()+int64(24*time.Hour/time.Millisecond)
		if fresh && covers {
			series, err := p.store.Query(ctx, symbol, p.interval, since)
			if err == nil && series.Len() > 0 {
				return series, nil
			}
		}
	} else if err != nil {
		log.Warnf("manifest %s 读取失败: %v", symbol, err)
	}

	series, err := p.upstream.History(ctx, symbol, lookbackDays)
	if err != nil {
		return types.PriceSeries{}, err
	}
	if _, err := p.store.Upsert(ctx, p.interval, series, now); err != nil {
		log.Warnf("写入 %s 缓存失败: %v", symbol, err)
	}
	return market.TrimToLookback(series, lookbackDays, now), nil
}
