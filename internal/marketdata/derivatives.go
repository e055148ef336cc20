package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// MaxDepth bounds the order book levels per side.
const MaxDepth = 200

// FuturesStats is a perpetual futures snapshot. FundingRate is the fraction
// paid per 8h funding interval. Ratios are zero when the venue does not
// publish them.
type FuturesStats struct {
	Time              time.Time `json:"time"`
	Price             float64   `json:"price"`
	FundingRate       float64   `json:"funding_rate"`
	OpenInterestUSD   float64   `json:"open_interest_usd"`
	LongShortRatio    float64   `json:"long_short_ratio,omitempty"`
	TakerBuySellRatio float64   `json:"taker_buy_sell_ratio,omitempty"`
}

// Level is one order book price level.
type Level struct {
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// UnmarshalJSON accepts both {"price", "amount"} and the exchange row form
// [price, amount].
func (l *Level) UnmarshalJSON(data []byte) error {
	var row []float64
	if err := json.Unmarshal(data, &row); err == nil {
		if len(row) < 2 {
			return errors.Errorf("order book row needs 2 fields, got %d", len(row))
		}
		*l = Level{Price: row[0], Amount: row[1]}
		return nil
	}
	type plain Level
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = Level(p)
	return nil
}

// OrderBook holds bids best (highest) first and asks best (lowest) first.
type OrderBook struct {
	Time time.Time `json:"time"`
	Bids []Level   `json:"bids"`
	Asks []Level   `json:"asks"`
}

// Prices and Amounts split a side into parallel series.
func Prices(levels []Level) []float64 {
	out := make([]float64, len(levels))
	for i, l := range levels {
		out[i] = l.Price
	}
	return out
}

func Amounts(levels []Level) []float64 {
	out := make([]float64, len(levels))
	for i, l := range levels {
		out[i] = l.Amount
	}
	return out
}

// FuturesSource is implemented by sources carrying perpetual futures data.
type FuturesSource interface {
	Futures(ctx context.Context, symbol string) (FuturesStats, error)
}

// OrderBookSource is implemented by sources carrying order book snapshots.
type OrderBookSource interface {
	OrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error)
}

// normalize sorts both sides best first and cuts them to depth.
func (b OrderBook) normalize(depth int) OrderBook {
	sort.SliceStable(b.Bids, func(i, j int) bool { return b.Bids[i].Price > b.Bids[j].Price })
	sort.SliceStable(b.Asks, func(i, j int) bool { return b.Asks[i].Price < b.Asks[j].Price })
	if len(b.Bids) > depth {
		b.Bids = b.Bids[:depth]
	}
	if len(b.Asks) > depth {
		b.Asks = b.Asks[:depth]
	}
	return b
}

func validateDepth(symbol string, depth int) (string, error) {
	symbol, err := ValidateSymbol(symbol)
	if err != nil {
		return "", err
	}
	if _, err := ValidatePositiveInt(depth, "depth", MaxDepth); err != nil {
		return "", err
	}
	return symbol, nil
}

// Futures reads {dir}/{SYMBOL}-futures.json.
func (s *FileSource) Futures(ctx context.Context, symbol string) (FuturesStats, error) {
	symbol, err := ValidateSymbol(symbol)
	if err != nil {
		return FuturesStats{}, err
	}
	var stats FuturesStats
	if err := readJSON(filepath.Join(s.dir, fmt.Sprintf("%s-futures.json", symbol)), &stats); err != nil {
		return FuturesStats{}, err
	}
	return stats, nil
}

// OrderBook reads {dir}/{SYMBOL}-orderbook.json.
func (s *FileSource) OrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error) {
	symbol, err := validateDepth(symbol, depth)
	if err != nil {
		return OrderBook{}, err
	}
	var book OrderBook
	if err := readJSON(filepath.Join(s.dir, fmt.Sprintf("%s-orderbook.json", symbol)), &book); err != nil {
		return OrderBook{}, err
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return OrderBook{}, errors.Wrapf(ErrNoData, "%s order book", symbol)
	}
	return book.normalize(depth), nil
}

// Futures fetches GET /futures?symbol=.
func (s *HTTPSource) Futures(ctx context.Context, symbol string) (FuturesStats, error) {
	symbol, err := ValidateSymbol(symbol)
	if err != nil {
		return FuturesStats{}, err
	}
	q := url.Values{}
	q.Set("symbol", symbol)

	var stats FuturesStats
	if err := s.get(ctx, "/futures", q, &stats); err != nil {
		return FuturesStats{}, err
	}
	return stats, nil
}

// OrderBook fetches GET /orderbook?symbol=&depth=.
func (s *HTTPSource) OrderBook(ctx context.Context, symbol string, depth int) (OrderBook, error) {
	symbol, err := validateDepth(symbol, depth)
	if err != nil {
		return OrderBook{}, err
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("depth", strconv.Itoa(depth))

	var book OrderBook
	if err := s.get(ctx, "/orderbook", q, &book); err != nil {
		return OrderBook{}, err
	}
	if len(book.Bids) == 0 || len(book.Asks) == 0 {
		return OrderBook{}, errors.Wrapf(ErrNoData, "%s order book", symbol)
	}
	return book.normalize(depth), nil
}
