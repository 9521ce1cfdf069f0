package binance

import (
	"strings"
	"time"
)

type Config struct {
	RESTBaseURL      string
	HTTPTimeout      time.Duration
	QuoteAsset       string
	Interval         string
	RateLimitPerMin  int
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	out.RESTBaseURL = strings.TrimRight(strings.TrimSpace(out.RESTBaseURL), "/")
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://fapi.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.QuoteAsset = strings.ToUpper(strings.TrimSpace(out.QuoteAsset))
	if out.QuoteAsset == "" {
		out.QuoteAsset = "USDT"
	}
	out.Interval = strings.ToLower(strings.TrimSpace(out.Interval))
	if out.Interval == "" {
		out.Interval = "1d"
	}
	if out.RateLimitPerMin <= 0 {
		out.RateLimitPerMin = 600
	}
	if out.BreakerThreshold <= 0 {
		out.BreakerThreshold = 5
	}
	if out.BreakerCooldown <= 0 {
		out.BreakerCooldown = 30 * time.Second
	}
	return out
}

// barsPerDay 把回看天数换算为 K 线根数。
func barsPerDay(interval string) int {
	switch interval {
	case "1h":
		return 24
	case "4h":
		return 6
	default:
		return 1
	}
}
