package worker

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/msageha/tradedesk/internal/indicators"
	"github.com/msageha/tradedesk/internal/logger"
	"github.com/msageha/tradedesk/internal/marketdata"
	"github.com/msageha/tradedesk/internal/model"
)

// MarketMonitor reports spot price, daily change, weekly range and volume
// trend, plus perpetual futures positioning and order book depth when the
// source carries them.
type MarketMonitor struct {
	deps Deps
}

func (w *MarketMonitor) Name() string { return model.WorkerMarketMonitor }

func (w *MarketMonitor) Run(ctx context.Context, in Input) (string, error) {
	if err := requireSource(w.deps); err != nil {
		return "", err
	}

	var daily, intraday []marketdata.Candle
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		daily, err = w.deps.Source.Candles(gctx, in.Subject, "1d", 30)
		return errors.Wrap(err, "daily candles")
	})
	g.Go(func() error {
		var err error
		// Seven days of 4h bars.
		intraday, err = w.deps.Source.Candles(gctx, in.Subject, "4h", 42)
		if errors.Is(err, marketdata.ErrNoData) {
			// The weekly range falls back to daily bars.
			return nil
		}
		return errors.Wrap(err, "4h candles")
	})
	var (
		futures *marketdata.FuturesStats
		book    *marketdata.OrderBook
	)
	g.Go(func() error {
		futures = loadFutures(gctx, w.deps, w.Name(), in.Subject)
		return nil
	})
	g.Go(func() error {
		book = loadOrderBook(gctx, w.deps, w.Name(), in.Subject)
		return nil
	})
	if err := g.Wait(); err != nil {
		return "", err
	}
	if len(daily) < 2 {
		return "", errors.Wrapf(indicators.ErrInsufficientData, "need 2 daily candles, have %d", len(daily))
	}

	last := daily[len(daily)-1]
	prev := daily[len(daily)-2]
	change := 0.0
	if prev.Close != 0 {
		change = (last.Close - prev.Close) / prev.Close * 100
	}

	week := intraday
	if len(week) == 0 {
		week = daily[max(0, len(daily)-7):]
	}
	high, low := last.High, last.Low
	for _, c := range week {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}

	logger.G(ctx).WithField("worker", w.Name()).WithField("price", last.Close).Debug("market snapshot")

	r := newReport(in.Subject + " Market Snapshot")
	r.section("Price")
	r.field("Price", "%s", money(last.Close))
	r.field("24h change", "%+.2f%%", change)
	r.field("7d high", "%s", money(high))
	r.field("7d low", "%s", money(low))
	r.section("Volume")
	r.field("24h volume", "%.2f", last.Volume)
	r.field("Volume trend", "%s", volumeTrend(daily))
	if futures != nil {
		writeDerivatives(r, *futures)
	}
	if book != nil {
		if err := writeOrderBook(r, *book); err != nil {
			skipOptional(ctx, w.Name(), "order book", err)
		}
	}
	r.section("Summary")
	r.line("%s trades at %s, %+.2f%% on the day, with %s volume.",
		in.Subject, money(last.Close), change, lowerTrend(volumeTrend(daily)))
	return r.String(), nil
}

func writeDerivatives(r *report, f marketdata.FuturesStats) {
	annual := indicators.AnnualizedFunding(f.FundingRate)
	perp := indicators.PerpetualScore(indicators.FuturesInputs{
		FundingRate:       f.FundingRate,
		LongShortRatio:    f.LongShortRatio,
		TakerBuySellRatio: f.TakerBuySellRatio,
	})
	r.section("Derivatives")
	r.field("Funding rate", "%.4f%% per 8h (%.2f%% annualized)", f.FundingRate*100, annual)
	r.field("Funding bias", "%s", indicators.FundingBias(annual))
	r.field("Open interest", "%s", money(f.OpenInterestUSD))
	if f.LongShortRatio > 0 {
		r.field("Long/short ratio", "%.2f (%s)", f.LongShortRatio, indicators.LongShortSentiment(f.LongShortRatio))
	}
	if f.TakerBuySellRatio > 0 {
		r.field("Taker buy/sell", "%.2f (%s)", f.TakerBuySellRatio, indicators.TakerPressure(f.TakerBuySellRatio))
	}
	r.field("Perpetual score", "%d/100 (%s)", perp.Score, perp.Recommendation)
	for _, reason := range perp.Reasons {
		r.line("- %s", reason)
	}
}

func writeOrderBook(r *report, book marketdata.OrderBook) error {
	m, err := measureBook(book)
	if err != nil {
		return err
	}
	r.section("Order Book")
	r.field("Best bid", "%s", money(book.Bids[0].Price))
	r.field("Best ask", "%s", money(book.Asks[0].Price))
	r.field("Spread", "%.2f bps", m.spread.Bps)
	r.field("Liquidity", "%s", m.spread.Liquidity)
	r.field("Book imbalance", "%.2f (%s)", m.imbalance.Ratio, m.imbalance.Pressure)
	if m.filled {
		r.field("Slippage", "%.4f%% buy, %.4f%% sell for %s", m.buySlip, m.sellSlip, money(SlippageOrderUSD))
	} else {
		r.field("Slippage", "book too thin for %s", money(SlippageOrderUSD))
	}
	return nil
}

// volumeTrend compares the mean volume of the last 3 days with the 7 days
// before them.
func volumeTrend(daily []marketdata.Candle) string {
	if len(daily) < 10 {
		return "UNKNOWN"
	}
	vols := make([]float64, len(daily))
	for i, c := range daily {
		vols[i] = c.Volume
	}
	n := len(vols)
	recent := indicators.Mean(vols[n-3:])
	base := indicators.Mean(vols[n-10 : n-3])
	if base == 0 {
		return "UNKNOWN"
	}
	switch ratio := recent / base; {
	case ratio > 1.2:
		return "RISING"
	case ratio < 0.8:
		return "FALLING"
	default:
		return "STABLE"
	}
}

func lowerTrend(t string) string {
	switch t {
	case "RISING":
		return "rising"
	case "FALLING":
		return "falling"
	case "STABLE":
		return "steady"
	default:
		return "unclear"
	}
}
