package worker

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/msageha/tradedesk/internal/indicators"
	"github.com/msageha/tradedesk/internal/logger"
	"github.com/msageha/tradedesk/internal/model"
)

// TechnicalAnalyst reports momentum, volume and trend indicators and the
// combined signal.
type TechnicalAnalyst struct {
	deps Deps
}

func (w *TechnicalAnalyst) Name() string { return model.WorkerTechnicalAnalyst }

func (w *TechnicalAnalyst) Run(ctx context.Context, in Input) (string, error) {
	if err := requireSource(w.deps); err != nil {
		return "", err
	}
	candles, err := w.deps.Source.Candles(ctx, in.Subject, "1d", 100)
	if err != nil {
		return "", errors.Wrap(err, "daily candles")
	}
	s := series(candles)
	closes := s.Closes

	rsi, err := indicators.RSI(closes, 14)
	if err != nil {
		return "", err
	}
	macd, err := indicators.MACD(closes, 12, 26, 9)
	if err != nil {
		return "", err
	}
	bb, err := indicators.Bollinger(closes, 20, 2)
	if err != nil {
		return "", err
	}
	sig, err := indicators.ExtendedSignals(s)
	if err != nil {
		return "", err
	}
	ma20, _ := indicators.SMA(closes, 20)
	ma50, _ := indicators.SMA(closes, 50)
	obv, obvErr := indicators.OBVTrend(closes, s.Volumes)
	rsiDiv, divErr := indicators.RSIDivergence(closes, 14, indicators.DivergenceWindow)

	seen := technicalPatterns(macd, bb)
	if obvErr == nil {
		seen = append(seen, divergencePattern("obv", obv.Divergence)...)
	}
	if divErr == nil {
		seen = append(seen, divergencePattern("rsi", rsiDiv)...)
	}
	w.observe(ctx, in, seen)

	r := newReport(in.Subject + " Technical Analysis")
	r.section("Momentum")
	r.field("RSI(14)", "%.2f (%s, %s)", rsi.Value, rsi.Signal, rsi.Trend)
	r.field("MACD", "%.4f", macd.MACD)
	r.field("MACD signal", "%.4f", macd.Signal)
	r.field("MACD histogram", "%.4f (%s)", macd.Histogram, macd.Crossover)
	r.section("Bands and Averages")
	r.field("Bollinger upper", "%s", money(bb.Upper))
	r.field("Bollinger middle", "%s", money(bb.Middle))
	r.field("Bollinger lower", "%s", money(bb.Lower))
	r.field("Band position", "%.2f%% (%s)", bb.PositionPct, bb.Signal)
	r.field("Band width", "%.2f%%", bb.WidthPct)
	r.field("SMA20", "%s", money(ma20[len(ma20)-1]))
	r.field("SMA50", "%s", money(ma50[len(ma50)-1]))
	r.section("Volume and Trend")
	if mfi, err := indicators.MFI(s, indicators.ExtendedPeriod); err == nil {
		r.field("MFI(14)", "%.2f (%s)", mfi.Value, mfi.Signal)
	}
	if obvErr == nil {
		r.field("OBV trend", "%s, price %s (%s)", obv.Trend, obv.PriceTrend, obv.Divergence)
	}
	if divErr == nil {
		r.field("RSI divergence", "%s", rsiDiv)
	}
	if adx, err := indicators.ADX(s, indicators.ExtendedPeriod); err == nil {
		r.field("ADX(14)", "%.2f (%s, %s)", adx.ADX, adx.Strength, adx.Trend)
	}
	if ich, err := indicators.Ichimoku(s); err == nil {
		r.field("Ichimoku", "%s, %s cloud, TK %s", ich.Position, ich.CloudColor, ich.TKCross)
	}
	if wr, err := indicators.WilliamsR(s, indicators.ExtendedPeriod); err == nil {
		r.field("Williams %R", "%.2f (%s)", wr.Value, wr.Signal)
	}
	if vwap, err := indicators.VWAP(s, 20); err == nil {
		r.field("VWAP(20)", "%s (%s)", money(vwap.VWAP), vwap.Signal)
	}
	if piv, err := indicators.ClassicPivots(s); err == nil {
		name, level := piv.Closest(closes[len(closes)-1])
		r.field("Pivot", "%s (R1 %s, S1 %s)", money(piv.Pivot), money(piv.R1), money(piv.S1))
		r.field("Nearest level", "%s at %s", name, money(level))
	}
	r.section("Signal")
	for _, v := range sig.Signals {
		r.line("- %s %s (%s): %s", v.Indicator, v.Action, v.Strength, v.Reason)
	}
	r.line("")
	r.field("Signal score", "%d", sig.Score)
	r.field("Overall", "%s", sig.Overall)
	if bb.Squeeze {
		r.line("")
		r.line("Bollinger squeeze: bands are %.2f%% wide, expect a volatility expansion.", bb.WidthPct)
	}
	return r.String(), nil
}

type pattern struct{ name, desc string }

func technicalPatterns(macd indicators.MACDReading, bb indicators.BollingerReading) []pattern {
	var seen []pattern
	if bb.Squeeze {
		seen = append(seen, pattern{"bollinger-squeeze", "Bollinger bands narrower than 5% of the middle band"})
	}
	switch macd.Crossover {
	case "BULLISH_CROSSOVER":
		seen = append(seen, pattern{"macd-bullish-crossover", "MACD crossed above its signal line"})
	case "BEARISH_CROSSOVER":
		seen = append(seen, pattern{"macd-bearish-crossover", "MACD crossed below its signal line"})
	}
	return seen
}

func divergencePattern(source, divergence string) []pattern {
	switch divergence {
	case indicators.BullishDivergence:
		return []pattern{{source + "-bullish-divergence", strings.ToUpper(source) + " turned up while price fell"}}
	case indicators.BearishDivergence:
		return []pattern{{source + "-bearish-divergence", strings.ToUpper(source) + " turned down while price rose"}}
	}
	return nil
}

func (w *TechnicalAnalyst) observe(ctx context.Context, in Input, seen []pattern) {
	if w.deps.Desk == nil {
		return
	}
	for _, s := range seen {
		if _, err := w.deps.Desk.ObservePattern(ctx, s.name, in.Subject, s.desc); err != nil {
			logger.G(ctx).WithError(err).WithField("pattern", s.name).Warn("failed to record pattern")
		}
	}
}
