// Package marketdata supplies price candles and news headlines to the
// analysis workers.
package marketdata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// ErrNoData is returned when a source has nothing for the requested symbol.
var ErrNoData = errors.New("no market data")

// MaxLimit bounds the number of candles or headlines per request.
const MaxLimit = 1000

type Candle struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// UnmarshalJSON accepts both the object form and the exchange OHLCV row
// form [timestamp_ms, open, high, low, close, volume].
func (c *Candle) UnmarshalJSON(data []byte) error {
	var row []float64
	if err := json.Unmarshal(data, &row); err == nil {
		if len(row) < 6 {
			return errors.Errorf("ohlcv row needs 6 fields, got %d", len(row))
		}
		*c = Candle{
			Time:   time.UnixMilli(int64(row[0])).UTC(),
			Open:   row[1],
			High:   row[2],
			Low:    row[3],
			Close:  row[4],
			Volume: row[5],
		}
		return nil
	}

	type plain Candle
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Candle(p)
	return nil
}

type Headline struct {
	Time   time.Time `json:"time"`
	Title  string    `json:"title"`
	Source string    `json:"source,omitempty"`
	URL    string    `json:"url,omitempty"`
}

// Source is a provider of candles and headlines. Candles are returned oldest
// first; at most limit of the most recent entries are returned.
type Source interface {
	Candles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error)
	Headlines(ctx context.Context, symbol string, limit int) ([]Headline, error)
}

// Closes extracts the close series.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func validateRequest(symbol, timeframe string, limit int) (string, string, error) {
	symbol, err := ValidateSymbol(symbol)
	if err != nil {
		return "", "", err
	}
	if timeframe != "" {
		if timeframe, err = ValidateTimeframe(timeframe); err != nil {
			return "", "", err
		}
	}
	if _, err := ValidatePositiveInt(limit, "limit", MaxLimit); err != nil {
		return "", "", err
	}
	return symbol, timeframe, nil
}

func tail[T any](items []T, limit int) []T {
	if len(items) > limit {
		return items[len(items)-limit:]
	}
	return items
}
