// Package symbol 在交易所合约名与内部 BTCUSDT 形式之间转换。
package symbol

import "strings"

type Symbol struct {
	Base  string
	Quote string
}

// Compact 是内部使用的形式，同时也是 Binance 合约名，例如 BTCUSDT。
func (s Symbol) Compact() string {
	if !s.Valid() {
		return ""
	}
	return s.Base + s.Quote
}

// Gate 返回 Gate.io 合约名，例如 BTC_USDT。
func (s Symbol) Gate() string {
	if !s.Valid() {
		return ""
	}
	return s.Base + "_" + s.Quote
}

func (s Symbol) Valid() bool { return s.Base != "" && s.Quote != "" }

// Parse 识别 "BTC/USDT"、"btc_usdt"、"BTC-USDT"、"BTC/USDT:USDT" 与 "BTCUSDT"。
// 无分隔符时只按 quote 后缀拆分；quote 不匹配返回零值。
func Parse(raw, quote string) Symbol {
	s := strings.ToUpper(strings.TrimSpace(raw))
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	for _, sep := range []string{"/", "_", "-"} {
		if parts := strings.SplitN(s, sep, 2); len(parts) == 2 {
			sym := Symbol{Base: strings.TrimSpace(parts[0]), Quote: strings.TrimSpace(parts[1])}
			if quote != "" && sym.Quote != quote {
				return Symbol{}
			}
			return sym
		}
	}
	if quote == "" || len(s) <= len(quote) || !strings.HasSuffix(s, quote) {
		return Symbol{}
	}
	return Symbol{Base: s[:len(s)-len(quote)], Quote: quote}
}
