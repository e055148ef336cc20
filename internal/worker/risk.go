package worker

import (
	"context"

	"github.com/pkg/errors"

	"github.com/msageha/tradedesk/internal/indicators"
	"github.com/msageha/tradedesk/internal/marketdata"
	"github.com/msageha/tradedesk/internal/model"
)

// RiskSpecialist condenses volatility, tail risk and drawdown into a risk
// score, raises it for crowded funding or a thin book, and flags upstream
// data gaps.
type RiskSpecialist struct {
	deps Deps
}

func (w *RiskSpecialist) Name() string { return model.WorkerRiskSpecialist }

func (w *RiskSpecialist) Run(ctx context.Context, in Input) (string, error) {
	if err := requireSource(w.deps); err != nil {
		return "", err
	}
	candles, err := w.deps.Source.Candles(ctx, in.Subject, "1d", 100)
	if err != nil {
		return "", errors.Wrap(err, "daily candles")
	}
	m, err := measureRisk(candles)
	if err != nil {
		return "", err
	}
	futures := loadFutures(ctx, w.deps, w.Name(), in.Subject)
	book := loadOrderBook(ctx, w.deps, w.Name(), in.Subject)
	st := measureStructure(futures, book)
	m.score = min(10, m.score+st.penalty)

	r := newReport(in.Subject + " Risk Assessment")
	r.section("Risk")
	r.field("Risk score", "%d/10", m.score)
	r.field("Risk level", "%s", indicators.RiskLevel(m.volatility))
	r.field("Annualized volatility", "%.2f%% (%s)", m.volatility, indicators.ClassifyVolatility(m.volatility))
	r.field("ATR(14)", "%s (%.2f%% of price)", money(m.atr), m.atrPct)
	r.field("VaR 95%", "%.2f%%", m.var95*100)
	r.field("Sharpe ratio", "%.2f", m.sharpe)
	r.field("Max drawdown", "%.2f%%", m.drawdown*100)

	if futures != nil || st.book != nil {
		writeStructure(r, candles[len(candles)-1].Close, futures, st)
	}

	r.section("Context")
	if body, ok := in.Upstream[model.WorkerTechnicalAnalyst]; ok {
		if overall, ok := Field(body, "Overall"); ok {
			r.field("Technical signal", "%s", overall)
		}
	}
	if body, ok := in.Upstream[model.WorkerNewsSentiment]; ok {
		if s, ok := Field(body, "Sentiment"); ok {
			r.field("Sentiment", "%s", s)
		}
	}
	if body, ok := in.Upstream[model.WorkerMarketMonitor]; ok {
		if t, ok := Field(body, "Volume trend"); ok {
			r.field("Volume trend", "%s", t)
		}
	}
	if len(in.Upstream) == 0 {
		r.line("No upstream reports were available.")
	}
	writeGaps(r, in)
	if len(in.Missing) > 0 {
		r.line("")
		r.line("Confidence in this assessment is reduced by %d missing input(s).", len(in.Missing))
	}
	return r.String(), nil
}

type riskMeasures struct {
	score      int
	volatility float64
	atr        float64
	atrPct     float64
	var95      float64
	sharpe     float64
	drawdown   float64
}

func measureRisk(candles []marketdata.Candle) (riskMeasures, error) {
	var m riskMeasures
	closes := marketdata.Closes(candles)
	if len(closes) == 0 {
		return m, errors.Wrap(indicators.ErrInsufficientData, "no daily candles")
	}
	returns := indicators.Returns(closes)

	period := 30
	if len(returns) < period {
		period = len(returns)
	}
	vol, err := indicators.AnnualizedVolatility(returns, period)
	if err != nil {
		return m, err
	}

	s := series(candles)
	atr, err := indicators.ATR(s.Highs, s.Lows, closes, 14)
	if err != nil {
		return m, err
	}
	var95, err := indicators.HistoricalVaR(returns, 0.95)
	if err != nil {
		return m, err
	}
	sharpe, err := indicators.Sharpe(returns, 0)
	if err != nil {
		return m, err
	}

	m = riskMeasures{
		volatility: vol,
		atr:        atr,
		var95:      var95,
		sharpe:     sharpe,
		drawdown:   indicators.MaxDrawdown(closes),
	}
	if price := closes[len(closes)-1]; price != 0 {
		m.atrPct = atr / price * 100
	}
	m.score = indicators.RiskScore(indicators.RiskInputs{
		VolatilityPct: m.volatility,
		VaR95:         m.var95,
		MaxDrawdown:   m.drawdown,
	})
	return m, nil
}

type structureMeasures struct {
	fundingBias string
	book        *bookMeasures
	penalty     int
}

// measureStructure adds one risk point for extreme funding and one for a
// poor spread.
func measureStructure(futures *marketdata.FuturesStats, book *marketdata.OrderBook) structureMeasures {
	var st structureMeasures
	if futures != nil {
		st.fundingBias = indicators.FundingBias(indicators.AnnualizedFunding(futures.FundingRate))
		if st.fundingBias == "EXTREMELY_BULLISH" || st.fundingBias == "EXTREMELY_BEARISH" {
			st.penalty++
		}
	}
	if book != nil {
		if bm, err := measureBook(*book); err == nil {
			st.book = &bm
			if bm.spread.Liquidity == "POOR" {
				st.penalty++
			}
		}
	}
	return st
}

func writeStructure(r *report, price float64, futures *marketdata.FuturesStats, st structureMeasures) {
	r.section("Market Structure")
	if futures != nil {
		r.field("Funding", "%.2f%% annualized (%s)", indicators.AnnualizedFunding(futures.FundingRate), st.fundingBias)
		if long, err := indicators.LiquidationPrice(price, LiquidationLeverage, true); err == nil {
			r.field("Liquidation 10x long", "%s", money(long))
		}
		if short, err := indicators.LiquidationPrice(price, LiquidationLeverage, false); err == nil {
			r.field("Liquidation 10x short", "%s", money(short))
		}
	}
	if st.book != nil {
		r.field("Liquidity", "%s (%.2f bps spread)", st.book.spread.Liquidity, st.book.spread.Bps)
		r.field("Book imbalance", "%.2f (%s)", st.book.imbalance.Ratio, st.book.imbalance.Pressure)
	}
	if st.penalty > 0 {
		r.field("Structure penalty", "+%d", st.penalty)
	}
}
