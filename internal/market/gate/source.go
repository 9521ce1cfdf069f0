// Package gate 基于 gateapi-go 实现 Gate.io USDT 永续合约的行情来源。
package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/antihax/optional"
	gateapi "github.com/gateio/gateapi-go/v7"
	"golang.org/x/time/rate"

	"pairlab/internal/logger"
	"pairlab/internal/market"
	"pairlab/internal/pkg/circuit"
	symbolpkg "pairlab/internal/pkg/symbol"
	"pairlab/internal/types"
)

const (
	defaultREST     = "https://api.gateio.ws/api/v4"
	maxHistoryLimit = 2000
)

var log = logger.Component("market")

type Source struct {
	cfg     Config
	settle  string
	rest    *gateapi.APIClient
	limiter *rate.Limiter
	breaker *circuit.Breaker
	now     func() time.Time
}

func New(cfg Config) *Source {
	final := cfg.withDefaults()
	conf := gateapi.NewConfiguration()
	conf.BasePath = final.RESTBaseURL
	conf.HTTPClient = &http.Client{Timeout: final.HTTPTimeout}
	perSec := rate.Limit(float64(final.RateLimitPerMin) / 60.0)
	return &Source{
		cfg:     final,
		settle:  strings.ToLower(final.QuoteAsset),
		rest:    gateapi.NewAPIClient(conf),
		limiter: rate.NewLimiter(perSec, 5),
		breaker: circuit.New("gate", final.BreakerThreshold, final.BreakerCooldown),
		now:     time.Now,
	}
}

// History 返回最近 lookbackDays 天已收盘的 K 线，symbol 使用 BTCUSDT 形式。
func (s *Source) History(ctx context.Context, symbol string, lookbackDays int) (types.PriceSeries, error) {
	symbol = market.NormalizeSymbol(symbol)
	contract := symbolpkg.Parse(symbol, s.cfg.QuoteAsset).Gate()
	if contract == "" {
		return types.PriceSeries{}, fmt.Errorf("%q is not a %s contract: %w", symbol, s.cfg.QuoteAsset, types.ErrDataUnavailable)
	}
	if lookbackDays <= 0 {
		lookbackDays = 1
	}
	step := intervalDuration(s.cfg.Interval)
	limit := int(time.Duration(lookbackDays) * 24 * time.Hour / step)
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	opts := &gateapi.ListFuturesCandlesticksOpts{
		Limit:    optional.NewInt32(int32(limit)),
		Interval: optional.NewString(s.cfg.Interval),
	}
	var kls []gateapi.FuturesCandlestick
	err := s.call(ctx, func() error {
		var (
			resp *http.Response
			err  error
		)
		kls, resp, err = s.rest.FuturesApi.ListFuturesCandlesticks(ctx, s.settle, contract, opts)
		return classify(symbol, resp, err)
	})
	if err != nil {
		return types.PriceSeries{}, err
	}
	now := s.now()
	out := types.PriceSeries{Symbol: symbol, Bars: make([]types.Bar, 0, len(kls))}
	for _, kl := range kls {
		open := time.Unix(int64(kl.T), 0).UTC()
		if open.Add(step).After(now) {
			continue
		}
		out.Bars = append(out.Bars, types.Bar{
			Time:   open,
			Close:  parseFloat(kl.C),
			Volume: parseFloat(kl.Sum),
		})
	}
	if out.Len() == 0 {
		return out, fmt.Errorf("%s: no closed candles: %w", symbol, types.ErrDataUnavailable)
	}
	return out, nil
}

// Universe 按 24h 计价币成交额降序返回全部合约。
func (s *Source) Universe(ctx context.Context) ([]types.Asset, error) {
	var tickers []gateapi.FuturesTicker
	err := s.call(ctx, func() error {
		var err error
		tickers, _, err = s.rest.FuturesApi.ListFuturesTickers(ctx, s.settle, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("gate universe: %w", err)
	}
	out := make([]types.Asset, 0, len(tickers))
	for _, t := range tickers {
		sym := symbolpkg.Parse(t.Contract, s.cfg.QuoteAsset)
		if !sym.Valid() {
			continue
		}
		out = append(out, types.Asset{Symbol: sym.Compact(), VolumeUSD: parseFloat(t.Volume24hQuote)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].VolumeUSD > out[j].VolumeUSD })
	log.Debugf("gate universe loaded: %d contracts", len(out))
	return out, nil
}

func (s *Source) call(ctx context.Context, fn func() error) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	err := s.breaker.Execute(fn, func(err error) bool { return errors.Is(err, types.ErrDataUnavailable) })
	if errors.Is(err, circuit.ErrOpen) {
		return fmt.Errorf("gate unavailable: %w", err)
	}
	return err
}

// classify 把合约不存在（400/404）映射为 ErrDataUnavailable，不计入熔断。
func classify(symbol string, resp *http.Response, err error) error {
	if err == nil {
		return nil
	}
	if resp != nil && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound) {
		return fmt.Errorf("%s: %v: %w", symbol, err, types.ErrDataUnavailable)
	}
	return err
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
