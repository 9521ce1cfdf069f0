// Package binance 基于 go-binance SDK 实现 market.PriceHistoryProvider 与 market.UniverseProvider。
package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/time/rate"

	"pairlab/internal/logger"
	"pairlab/internal/market"
	"pairlab/internal/pkg/circuit"
	symbolpkg "pairlab/internal/pkg/symbol"
	"pairlab/internal/types"
)

const (
	maxHistoryLimit = 1500
	// Binance: Invalid symbol.
	codeInvalidSymbol = -1121
)

var log = logger.Component("market")

// Source 拉取 USDT 永续合约的收盘价与 24h 成交额。
type Source struct {
	cfg     Config
	client  *futures.Client
	limiter *rate.Limiter
	breaker *circuit.Breaker
	now     func() time.Time
}

func New(cfg Config) *Source {
	final := cfg.withDefaults()
	client := futures.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	client.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	perSec := rate.Limit(float64(final.RateLimitPerMin) / 60.0)
	return &Source{
		cfg:     final,
		client:  client,
		limiter: rate.NewLimiter(perSec, 5),
		breaker: circuit.New("binance", final.BreakerThreshold, final.BreakerCooldown),
		now:     time.Now,
	}
}

// History 返回最近 lookbackDays 天已收盘的 K 线。
func (s *Source) History(ctx context.Context, symbol string, lookbackDays int) (types.PriceSeries, error) {
	symbol = market.NormalizeSymbol(symbol)
	if symbol == "" {
		return types.PriceSeries{}, fmt.Errorf("symbol is required: %w", types.ErrDataUnavailable)
	}
	if lookbackDays <= 0 {
		lookbackDays = 1
	}
	limit := lookbackDays * barsPerDay(s.cfg.Interval)
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	var kls []*futures.Kline
	err := s.call(ctx, func() error {
		var err error
		kls, err = s.client.NewKlinesService().Symbol(symbol).Interval(s.cfg.Interval).Limit(limit).Do(ctx)
		return classify(symbol, err)
	})
	if err != nil {
		return types.PriceSeries{}, err
	}
	now := s.now().UnixMilli()
	out := types.PriceSeries{Symbol: symbol, Bars: make([]types.Bar, 0, len(kls))}
	for _, kl := range kls {
		if kl == nil || kl.CloseTime > now {
			// 未收盘的最后一根不参与计算
			continue
		}
		out.Bars = append(out.Bars, types.Bar{
			Time:   time.UnixMilli(kl.OpenTime).UTC(),
			Close:  parseFloat(kl.Close),
			Volume: parseFloat(kl.QuoteAssetVolume),
		})
	}
	if out.Len() == 0 {
		return out, fmt.Errorf("%s: no closed klines: %w", symbol, types.ErrDataUnavailable)
	}
	return out, nil
}

// Universe 返回以 QuoteAsset 计价的合约，按 24h 成交额降序。
func (s *Source) Universe(ctx context.Context) ([]types.Asset, error) {
	var stats []*futures.PriceChangeStats
	err := s.call(ctx, func() error {
		var err error
		stats, err = s.client.NewListPriceChangeStatsService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("binance universe: %w", err)
	}
	out := make([]types.Asset, 0, len(stats))
	for _, st := range stats {
		if st == nil || !symbolpkg.Parse(st.Symbol, s.cfg.QuoteAsset).Valid() {
			continue
		}
		out = append(out, types.Asset{Symbol: st.Symbol, VolumeUSD: parseFloat(st.QuoteVolume)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].VolumeUSD > out[j].VolumeUSD })
	log.Debugf("universe loaded: %d %s contracts", len(out), s.cfg.QuoteAsset)
	return out, nil
}

func (s *Source) call(ctx context.Context, fn func() error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	err := s.breaker.Execute(fn, func(err error) bool { return errors.Is(err, types.ErrDataUnavailable) })
	if errors.Is(err, circuit.ErrOpen) {
		return fmt.Errorf("binance unavailable: %w", err)
	}
	return err
}

func classify(symbol string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) && apiErr.Code == codeInvalidSymbol {
		return fmt.Errorf("%s: %s: %w", symbol, apiErr.Message, types.ErrDataUnavailable)
	}
	return err
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
