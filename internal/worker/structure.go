package worker

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/msageha/tradedesk/internal/indicators"
	"github.com/msageha/tradedesk/internal/logger"
	"github.com/msageha/tradedesk/internal/marketdata"
)

const (
	// BookDepth is the number of levels fetched per side.
	BookDepth = 20
	// SlippageOrderUSD is the market order notional used for slippage.
	SlippageOrderUSD = 10_000
	// LiquidationLeverage is the leverage of the liquidation estimates.
	LiquidationLeverage = 10
)

func series(candles []marketdata.Candle) indicators.Series {
	n := len(candles)
	s := indicators.Series{
		Highs:   make([]float64, n),
		Lows:    make([]float64, n),
		Closes:  make([]float64, n),
		Volumes: make([]float64, n),
	}
	for i, c := range candles {
		s.Highs[i] = c.High
		s.Lows[i] = c.Low
		s.Closes[i] = c.Close
		s.Volumes[i] = c.Volume
	}
	return s
}

// skipOptional logs why optional market data was left out of a report.
func skipOptional(ctx context.Context, worker, what string, err error) {
	entry := logger.G(ctx).WithFields(logrus.Fields{"worker": worker, "data": what}).WithError(err)
	if errors.Is(err, marketdata.ErrNoData) {
		entry.Debug("optional market data not available")
		return
	}
	entry.Warn("optional market data failed")
}

// loadFutures returns nil when the source carries no futures data.
func loadFutures(ctx context.Context, deps Deps, worker, symbol string) *marketdata.FuturesStats {
	fs, ok := deps.Source.(marketdata.FuturesSource)
	if !ok {
		return nil
	}
	stats, err := fs.Futures(ctx, symbol)
	if err != nil {
		skipOptional(ctx, worker, "futures", err)
		return nil
	}
	return &stats
}

// loadOrderBook returns nil when the source carries no order book.
func loadOrderBook(ctx context.Context, deps Deps, worker, symbol string) *marketdata.OrderBook {
	bs, ok := deps.Source.(marketdata.OrderBookSource)
	if !ok {
		return nil
	}
	book, err := bs.OrderBook(ctx, symbol, BookDepth)
	if err != nil {
		skipOptional(ctx, worker, "order book", err)
		return nil
	}
	return &book
}

type bookMeasures struct {
	spread    indicators.SpreadReading
	imbalance indicators.ImbalanceReading
	buySlip   float64
	sellSlip  float64
	filled    bool
}

func measureBook(book marketdata.OrderBook) (bookMeasures, error) {
	var m bookMeasures
	var err error
	if m.spread, err = indicators.Spread(book.Bids[0].Price, book.Asks[0].Price); err != nil {
		return m, err
	}
	if m.imbalance, err = indicators.Imbalance(marketdata.Amounts(book.Bids), marketdata.Amounts(book.Asks)); err != nil {
		return m, err
	}
	_, m.buySlip, m.filled = indicators.Slippage(marketdata.Prices(book.Asks), marketdata.Amounts(book.Asks), SlippageOrderUSD)
	var sellFilled bool
	_, m.sellSlip, sellFilled = indicators.Slippage(marketdata.Prices(book.Bids), marketdata.Amounts(book.Bids), SlippageOrderUSD)
	m.filled = m.filled && sellFilled
	return m, nil
}
