package router

import (
	"strings"
	"unicode"

	"github.com/msageha/tradedesk/internal/marketdata"
)

// Uppercase words that look like tickers but are not.
var notTickers = map[string]bool{
	"I": true, "A": true, "RSI": true, "MACD": true, "SMA": true, "EMA": true,
	"ATR": true, "VAR": true, "BUY": true, "SELL": true, "HOLD": true,
	"USD": true, "USDT": true, "USDC": true, "ETF": true, "AI": true, "OK": true,
	"DCA": true, "PNL": true, "ROI": true, "TA": true,
}

var coinNames = map[string]string{
	"bitcoin":  "BTC",
	"ethereum": "ETH",
	"ether":    "ETH",
	"solana":   "SOL",
	"cardano":  "ADA",
	"ripple":   "XRP",
	"dogecoin": "DOGE",
	"polkadot": "DOT",
	"litecoin": "LTC",
}

// ExtractSubject picks the ticker a request is about: the first uppercase
// or $-prefixed symbol, else the first well-known coin name, else
// DefaultSubject. Pairs such as ETH/USDT resolve to their base asset.
func ExtractSubject(request string) string {
	fields := strings.FieldsFunc(request, func(c rune) bool {
		return unicode.IsSpace(c) || strings.ContainsRune(",.;:!?()\"'", c)
	})

	for _, f := range fields {
		tagged := strings.HasPrefix(f, "$")
		f = strings.TrimPrefix(f, "$")
		if base, _, ok := strings.Cut(f, "/"); ok {
			f = base
		} else if base, _, ok := strings.Cut(f, "-"); ok && strings.ToUpper(f) == f {
			f = base
		}
		if !tagged && (f != strings.ToUpper(f) || len(f) < 2) {
			continue
		}
		sym, err := marketdata.ValidateSymbol(f)
		if err != nil || notTickers[sym] {
			continue
		}
		return sym
	}

	for _, f := range fields {
		if sym, ok := coinNames[strings.ToLower(f)]; ok {
			return sym
		}
	}
	return DefaultSubject
}
