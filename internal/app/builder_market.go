package app

import (
	"fmt"
	"io"
	"strings"

	brcfg "pairlab/internal/config"
	"pairlab/internal/logger"
	"pairlab/internal/market"
	"pairlab/internal/market/binance"
	"pairlab/internal/market/cache"
	"pairlab/internal/market/gate"
)

// MarketStack 是筛选/回测/提醒共用的行情入口：History 可能带本地缓存，Universe 直连交易所。
type MarketStack struct {
	History  market.PriceHistoryProvider
	Universe market.UniverseProvider
	Summary  string
	closer   io.Closer
}

func (m *MarketStack) Close() error {
	if m == nil || m.closer == nil {
		return nil
	}
	return m.closer.Close()
}

type marketSource interface {
	market.PriceHistoryProvider
	market.UniverseProvider
}

func buildMarketStack(cfg *brcfg.Config) (*MarketStack, error) {
	mc := cfg.Market
	name := strings.ToLower(mc.Source)
	var src marketSource
	switch name {
	case "binance":
		src = binance.New(binance.Config{
			RESTBaseURL:      mc.RESTBaseURL,
			HTTPTimeout:      mc.Timeout(),
			QuoteAsset:       mc.QuoteAsset,
			Interval:         mc.Interval,
			RateLimitPerMin:  mc.RateLimitPerMin,
			BreakerThreshold: mc.BreakerThreshold,
			BreakerCooldown:  mc.BreakerCooldownDuration(),
		})
	case "gate":
		src = gate.New(gate.Config{
			RESTBaseURL:      mc.RESTBaseURL,
			HTTPTimeout:      mc.Timeout(),
			QuoteAsset:       mc.QuoteAsset,
			Interval:         mc.Interval,
			RateLimitPerMin:  mc.RateLimitPerMin,
			BreakerThreshold: mc.BreakerThreshold,
			BreakerCooldown:  mc.BreakerCooldownDuration(),
		})
	default:
		return nil, fmt.Errorf("不支持的行情源: %s", mc.Source)
	}
	stack := &MarketStack{History: src, Universe: src}
	if strings.TrimSpace(mc.CachePath) == "" {
		stack.Summary = fmt.Sprintf("%s %s %s (无缓存)", name, mc.QuoteAsset, mc.Interval)
		return stack, nil
	}
	store, err := cache.Open(mc.CachePath)
	if err != nil {
		return nil, fmt.Errorf("打开 K 线缓存失败: %w", err)
	}
	stack.History = cache.NewProvider(store, src, mc.Interval, mc.CacheTTL())
	stack.closer = store
	stack.Summary = fmt.Sprintf("%s %s %s, cache=%s ttl=%s", name, mc.QuoteAsset, mc.Interval, mc.CachePath, mc.CacheTTL())
	logger.Infof("✓ K 线缓存已启用: %s", mc.CachePath)
	return stack, nil
}
