package marketdata

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidInput is matched by every validation failure in this package.
var ErrInvalidInput = errors.New("invalid input")

var (
	symbolPattern = regexp.MustCompile(`^[A-Za-z]{1,10}$`)

	validTimeframes = map[string]bool{
		"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
		"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
		"1d": true, "3d": true, "1w": true, "1M": true,
	}

	supportedExchanges = map[string]bool{
		"binance": true, "kraken": true, "bitfinex": true, "kucoin": true,
		"mexc": true, "bybit": true, "okx": true, "bitget": true,
	}
)

// ValidateSymbol trims and uppercases a ticker of 1 to 10 letters.
func ValidateSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", errors.Wrap(ErrInvalidInput, "symbol must be a non-empty string")
	}
	if !symbolPattern.MatchString(symbol) {
		return "", errors.Wrapf(ErrInvalidInput, "invalid symbol '%s': must be 1-10 letters (e.g. BTC, ETH)", symbol)
	}
	return symbol, nil
}

func ValidateTimeframe(timeframe string) (string, error) {
	timeframe = strings.TrimSpace(timeframe)
	if timeframe == "" {
		return "", errors.Wrap(ErrInvalidInput, "timeframe must be a non-empty string")
	}
	if !validTimeframes[timeframe] {
		return "", errors.Wrapf(ErrInvalidInput, "invalid timeframe '%s'. Valid: %s", timeframe, strings.Join(sortedKeys(validTimeframes), ", "))
	}
	return timeframe, nil
}

func ValidateExchange(exchange string) (string, error) {
	exchange = strings.ToLower(strings.TrimSpace(exchange))
	if exchange == "" {
		return "", errors.Wrap(ErrInvalidInput, "exchange must be a non-empty string")
	}
	if !supportedExchanges[exchange] {
		return "", errors.Wrapf(ErrInvalidInput, "unsupported exchange '%s'. Supported: %s", exchange, strings.Join(sortedKeys(supportedExchanges), ", "))
	}
	return exchange, nil
}

// ValidatePositiveInt rejects values <= 0 and, when max > 0, values above max.
func ValidatePositiveInt(value int, name string, max int) (int, error) {
	if value <= 0 {
		return 0, errors.Wrapf(ErrInvalidInput, "%s must be a positive integer, got %d", name, value)
	}
	if max > 0 && value > max {
		return 0, errors.Wrapf(ErrInvalidInput, "%s must be <= %d, got %d", name, max, value)
	}
	return value, nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
