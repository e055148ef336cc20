package worker

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/tradedesk/internal/desk"
	"github.com/msageha/tradedesk/internal/indicators"
	"github.com/msageha/tradedesk/internal/marketdata"
	"github.com/msageha/tradedesk/internal/model"
)

type fakeSource struct {
	candles   map[string][]marketdata.Candle
	headlines []marketdata.Headline
	futures   *marketdata.FuturesStats
	book      *marketdata.OrderBook
}

func (f *fakeSource) Candles(_ context.Context, symbol, timeframe string, limit int) ([]marketdata.Candle, error) {
	c, ok := f.candles[timeframe]
	if !ok || len(c) == 0 {
		return nil, errors.Wrapf(marketdata.ErrNoData, "%s %s", symbol, timeframe)
	}
	if limit > 0 && len(c) > limit {
		c = c[len(c)-limit:]
	}
	return c, nil
}

func (f *fakeSource) Headlines(_ context.Context, symbol string, _ int) ([]marketdata.Headline, error) {
	if len(f.headlines) == 0 {
		return nil, errors.Wrapf(marketdata.ErrNoData, "%s news", symbol)
	}
	return f.headlines, nil
}

func (f *fakeSource) Futures(_ context.Context, symbol string) (marketdata.FuturesStats, error) {
	if f.futures == nil {
		return marketdata.FuturesStats{}, errors.Wrapf(marketdata.ErrNoData, "%s futures", symbol)
	}
	return *f.futures, nil
}

func (f *fakeSource) OrderBook(_ context.Context, symbol string, _ int) (marketdata.OrderBook, error) {
	if f.book == nil {
		return marketdata.OrderBook{}, errors.Wrapf(marketdata.ErrNoData, "%s order book", symbol)
	}
	return *f.book, nil
}

// crowdedLongs is positioning with extreme funding on a thin, wide book.
func crowdedLongs(src *fakeSource) *fakeSource {
	src.futures = &marketdata.FuturesStats{FundingRate: 0.001, OpenInterestUSD: 5e9, LongShortRatio: 2.5, TakerBuySellRatio: 0.5}
	src.book = &marketdata.OrderBook{
		Bids: []marketdata.Level{{Price: 100, Amount: 50}, {Price: 99, Amount: 50}},
		Asks: []marketdata.Level{{Price: 101, Amount: 10}, {Price: 102, Amount: 10}},
	}
	return src
}

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// wave is a deterministic series with a trend and oscillation.
func wave(n int) []marketdata.Candle {
	out := make([]marketdata.Candle, n)
	for i := range out {
		c := 100 + 10*math.Sin(float64(i)/4) + float64(i)*0.3
		out[i] = marketdata.Candle{
			Time:   start.AddDate(0, 0, i),
			Open:   c - 0.5,
			High:   c + 2,
			Low:    c - 2,
			Close:  c,
			Volume: 1000 + float64(i%7)*10,
		}
	}
	return out
}

func TestRegistry(t *testing.T) {
	a := Func("a", func(context.Context, Input) (string, error) { return "a", nil })
	r, err := NewRegistry(a)
	require.NoError(t, err)

	got, ok := r.Get("a")
	require.True(t, ok)
	out, err := got.Run(context.Background(), Input{})
	require.NoError(t, err)
	assert.Equal(t, "a", out)

	_, ok = r.Get("b")
	assert.False(t, ok)
	assert.Error(t, r.Register(a))
	assert.Error(t, r.Register(Func("", nil)))
	assert.Equal(t, []string{"a"}, r.Names())
}

func TestFromProfiles(t *testing.T) {
	profiles := []model.Profile{
		{Name: model.WorkerMarketMonitor, Runner: model.RunnerBuiltin},
		{Name: "external", Runner: model.RunnerCommand, Command: "my-agent --print"},
	}
	r, err := FromProfiles(profiles, Deps{})
	require.NoError(t, err)
	assert.Equal(t, []string{"external", model.WorkerMarketMonitor}, r.Names())

	w, _ := r.Get("external")
	assert.IsType(t, &CommandWorker{}, w)

	_, err = FromProfiles([]model.Profile{{Name: "unknown", Runner: model.RunnerBuiltin}}, Deps{})
	assert.Error(t, err)
}

func TestInput_MissingFor(t *testing.T) {
	in := Input{Missing: []MissingNote{{Worker: model.WorkerNewsSentiment, Note: "timeout"}}}
	m, ok := in.MissingFor(model.WorkerNewsSentiment)
	require.True(t, ok)
	assert.Equal(t, "timeout", m.Note)
	_, ok = in.MissingFor(model.WorkerMarketMonitor)
	assert.False(t, ok)
}

func TestField(t *testing.T) {
	body := "# R\n\n- **Price:** $1,234.50\n- **Risk score:** 7/10\n- **Signal score:** -3\n"
	v, ok := Field(body, "Risk score")
	require.True(t, ok)
	assert.Equal(t, "7/10", v)

	n, ok := NumberField(body, "Price")
	require.True(t, ok)
	assert.Equal(t, 1234.5, n)
	n, ok = NumberField(body, "Risk score")
	require.True(t, ok)
	assert.Equal(t, 7.0, n)
	n, ok = NumberField(body, "Signal score")
	require.True(t, ok)
	assert.Equal(t, -3.0, n)

	_, ok = Field(body, "Missing")
	assert.False(t, ok)
}

func TestField_FirstLineWinsAndNamesMatchExactly(t *testing.T) {
	body := "- **Score:** 1\n- **Signal score:** 4\n- **Score:** 2\n- **Price.x:** 9\n"
	v, ok := Field(body, "Score")
	require.True(t, ok)
	assert.Equal(t, "1", v)
	v, ok = Field(body, "Signal score")
	require.True(t, ok)
	assert.Equal(t, "4", v)
	_, ok = Field(body, "Price")
	assert.False(t, ok)
	_, ok = Field(body, "Price.")
	assert.False(t, ok)
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "$12.00", money(12))
	assert.Equal(t, "$1,234.50", money(1234.5))
	assert.Equal(t, "$999.00", money(999))
	assert.Equal(t, "-$1,234,567.89", money(-1234567.891))
}

func TestMarketMonitor(t *testing.T) {
	daily := make([]marketdata.Candle, 30)
	for i := range daily {
		daily[i] = marketdata.Candle{Time: start.AddDate(0, 0, i), Open: 100, High: 101, Low: 99, Close: 100, Volume: 100}
	}
	daily[29] = marketdata.Candle{Time: start.AddDate(0, 0, 29), Open: 100, High: 112, Low: 99, Close: 110, Volume: 200}
	daily[28].Volume = 200
	daily[27].Volume = 200

	src := &fakeSource{candles: map[string][]marketdata.Candle{"1d": daily}}
	w, err := Builtin(model.WorkerMarketMonitor, Deps{Source: src})
	require.NoError(t, err)

	out, err := w.Run(context.Background(), Input{Subject: "BTC"})
	require.NoError(t, err)

	price, ok := NumberField(out, "Price")
	require.True(t, ok)
	assert.Equal(t, 110.0, price)
	v, _ := Field(out, "24h change")
	assert.Equal(t, "+10.00%", v)
	v, _ = Field(out, "Volume trend")
	assert.Equal(t, "RISING", v)
	v, _ = Field(out, "7d high")
	assert.Equal(t, "$112.00", v)
	assert.NotContains(t, out, "## Derivatives")
	assert.NotContains(t, out, "## Order Book")
}

func TestMarketMonitor_DerivativesAndOrderBook(t *testing.T) {
	src := crowdedLongs(&fakeSource{candles: map[string][]marketdata.Candle{"1d": wave(30)}})
	w, err := Builtin(model.WorkerMarketMonitor, Deps{Source: src})
	require.NoError(t, err)

	out, err := w.Run(context.Background(), Input{Subject: "BTC"})
	require.NoError(t, err)

	fields := map[string]string{
		"Funding bias":     "EXTREMELY_BULLISH",
		"Long/short ratio": "2.50 (EXTREMELY_LONG)",
		"Taker buy/sell":   "0.50 (STRONG_SELLING)",
		"Perpetual score":  "15/100 (STRONG_SELL)",
		"Best bid":         "$100.00",
		"Spread":           "99.50 bps",
		"Liquidity":        "POOR",
		"Book imbalance":   "5.00 (EXTREME_BUY)",
		"Slippage":         "book too thin for $10,000.00",
	}
	for name, want := range fields {
		v, ok := Field(out, name)
		require.True(t, ok, name)
		assert.Equal(t, want, v, name)
	}
	assert.Contains(t, out, "- Extreme positive funding, longs crowded")
}

func TestMarketMonitor_NoSource(t *testing.T) {
	w, err := Builtin(model.WorkerMarketMonitor, Deps{})
	require.NoError(t, err)
	_, err = w.Run(context.Background(), Input{Subject: "BTC"})
	assert.Error(t, err)
}

func TestTechnicalAnalyst(t *testing.T) {
	src := &fakeSource{candles: map[string][]marketdata.Candle{"1d": wave(100)}}
	d := desk.Open(t.TempDir(), model.DefaultScorecardPolicy())
	w, err := Builtin(model.WorkerTechnicalAnalyst, Deps{Source: src, Desk: d})
	require.NoError(t, err)

	out, err := w.Run(context.Background(), Input{Subject: "BTC"})
	require.NoError(t, err)
	assert.Contains(t, out, "# BTC Technical Analysis")
	_, ok := NumberField(out, "Signal score")
	assert.True(t, ok)
	_, ok = Field(out, "Overall")
	assert.True(t, ok)
	_, ok = Field(out, "RSI(14)")
	assert.True(t, ok)
	for _, name := range []string{"MFI(14)", "OBV trend", "RSI divergence", "ADX(14)", "Ichimoku", "Williams %R", "VWAP(20)", "Pivot"} {
		_, ok = Field(out, name)
		assert.True(t, ok, name)
	}
}

func TestDivergencePattern(t *testing.T) {
	assert.Equal(t, []pattern{{"rsi-bullish-divergence", "RSI turned up while price fell"}},
		divergencePattern("rsi", indicators.BullishDivergence))
	assert.Equal(t, "obv-bearish-divergence", divergencePattern("obv", indicators.BearishDivergence)[0].name)
	assert.Empty(t, divergencePattern("rsi", indicators.NoDivergence))
}

func TestTechnicalAnalyst_InsufficientData(t *testing.T) {
	src := &fakeSource{candles: map[string][]marketdata.Candle{"1d": wave(20)}}
	w, _ := Builtin(model.WorkerTechnicalAnalyst, Deps{Source: src})
	_, err := w.Run(context.Background(), Input{Subject: "BTC"})
	require.Error(t, err)
}

func TestScoreHeadlines(t *testing.T) {
	score, per := ScoreHeadlines([]marketdata.Headline{
		{Title: "Bitcoin surges to record high"},
		{Title: "Exchange hacked, prices drop"},
		{Title: "Quiet weekend for markets"},
	})
	assert.Equal(t, 0.2, score)
	assert.Equal(t, []int{3, -2, 0}, per)
	assert.Equal(t, "NEUTRAL", ClassifySentiment(score))
	assert.Equal(t, "BULLISH", ClassifySentiment(0.5))
	assert.Equal(t, "BEARISH", ClassifySentiment(-0.5))
}

func TestNewsSentiment(t *testing.T) {
	src := &fakeSource{headlines: []marketdata.Headline{
		{Title: "ETF approval sparks rally"},
		{Title: "Inflows hit record"},
	}}
	w, _ := Builtin(model.WorkerNewsSentiment, Deps{Source: src})
	out, err := w.Run(context.Background(), Input{Subject: "BTC"})
	require.NoError(t, err)

	v, _ := Field(out, "Sentiment")
	assert.Equal(t, "BULLISH", v)
	assert.Contains(t, out, "- [bullish] ETF approval sparks rally")
}

func TestNewsSentiment_NoHeadlines(t *testing.T) {
	w, _ := Builtin(model.WorkerNewsSentiment, Deps{Source: &fakeSource{}})
	out, err := w.Run(context.Background(), Input{Subject: "BTC"})
	require.NoError(t, err)
	assert.Contains(t, out, "No recent headlines found.")
	v, _ := Field(out, "Sentiment score")
	assert.Equal(t, "0.00", v)
}

func TestRiskSpecialist_NotesGaps(t *testing.T) {
	src := &fakeSource{candles: map[string][]marketdata.Candle{"1d": wave(100)}}
	w, _ := Builtin(model.WorkerRiskSpecialist, Deps{Source: src})

	out, err := w.Run(context.Background(), Input{
		Subject: "BTC",
		Upstream: map[string]string{
			model.WorkerTechnicalAnalyst: "- **Overall:** BUY\n",
		},
		Missing: []MissingNote{{
			Worker: model.WorkerNewsSentiment,
			Label:  "sentiment",
			Note:   "timeout — proceeding without sentiment data",
		}},
	})
	require.NoError(t, err)

	score, ok := NumberField(out, "Risk score")
	require.True(t, ok)
	assert.GreaterOrEqual(t, score, 1.0)
	assert.LessOrEqual(t, score, 10.0)
	v, _ := Field(out, "Technical signal")
	assert.Equal(t, "BUY", v)
	assert.Contains(t, out, "## Data Gaps")
	assert.Contains(t, out, "- news-sentiment: timeout — proceeding without sentiment data")
}

func TestRiskSpecialist_StructurePenalty(t *testing.T) {
	candles := wave(100)
	ctx := context.Background()

	plain, _ := Builtin(model.WorkerRiskSpecialist, Deps{Source: &fakeSource{candles: map[string][]marketdata.Candle{"1d": candles}}})
	out, err := plain.Run(ctx, Input{Subject: "BTC"})
	require.NoError(t, err)
	base, ok := NumberField(out, "Risk score")
	require.True(t, ok)
	assert.NotContains(t, out, "## Market Structure")

	src := crowdedLongs(&fakeSource{candles: map[string][]marketdata.Candle{"1d": candles}})
	w, _ := Builtin(model.WorkerRiskSpecialist, Deps{Source: src})
	out, err = w.Run(ctx, Input{Subject: "BTC"})
	require.NoError(t, err)

	score, ok := NumberField(out, "Risk score")
	require.True(t, ok)
	assert.Equal(t, math.Min(10, base+2), score)
	v, _ := Field(out, "Structure penalty")
	assert.Equal(t, "+2", v)
	v, _ = Field(out, "Liquidity")
	assert.Equal(t, "POOR (99.50 bps spread)", v)

	long, err := indicators.LiquidationPrice(candles[99].Close, LiquidationLeverage, true)
	require.NoError(t, err)
	v, _ = Field(out, "Liquidation 10x long")
	assert.Equal(t, money(long), v)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		in     DecisionInputs
		action string
		conf   float64
		alloc  float64
	}{
		{"aligned buy", DecisionInputs{SignalScore: 3, HasSignal: true, Sentiment: 0.5, HasSentiment: true, RiskScore: 4, HasRisk: true, Adjustment: 1}, "BUY", 0.7, 6},
		{"risk veto", DecisionInputs{SignalScore: 3, HasSignal: true, HasSentiment: true, RiskScore: 9, HasRisk: true, Adjustment: 1}, "HOLD", 0.65, 0},
		{"sell without sentiment", DecisionInputs{SignalScore: -4, HasSignal: true, RiskScore: 5, HasRisk: true, Adjustment: 1}, "SELL", 0.6, 0},
		{"nothing known", DecisionInputs{Adjustment: 1}, "HOLD", 0.2, 0},
		{"penalized agent", DecisionInputs{Adjustment: 0.5}, "HOLD", 0.1, 0},
		{"confidence capped", DecisionInputs{SignalScore: 8, HasSignal: true, Sentiment: 1, HasSentiment: true, RiskScore: 2, HasRisk: true, Adjustment: 1.5}, "BUY", 0.95, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.in)
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.conf, d.Confidence)
			assert.Equal(t, tt.alloc, d.AllocationPct)
		})
	}
}

func TestPortfolioManager_RecordsPrediction(t *testing.T) {
	d := desk.Open(t.TempDir(), model.DefaultScorecardPolicy())
	w, _ := Builtin(model.WorkerPortfolioManager, Deps{Desk: d})
	ctx := context.Background()

	out, err := w.Run(ctx, Input{
		SessionID: "sess_1",
		Subject:   "BTC",
		Upstream: map[string]string{
			model.WorkerMarketMonitor:    "- **Price:** $1,000.00\n",
			model.WorkerTechnicalAnalyst: "- **Signal score:** 3\n",
			model.WorkerNewsSentiment:    "- **Sentiment score:** 0.50\n",
			model.WorkerRiskSpecialist:   "- **Risk score:** 4/10\n",
		},
	})
	require.NoError(t, err)
	v, _ := Field(out, "Action")
	assert.Equal(t, "BUY", v)
	v, _ = Field(out, "Allocation")
	assert.Equal(t, "6.0% of cash ($600.00)", v)

	ps, err := d.Predictions.Load(ctx)
	require.NoError(t, err)
	require.Len(t, ps.Predictions, 1)
	p := ps.Predictions[0]
	assert.Equal(t, "BUY", p.Action)
	assert.Equal(t, 1000.0, p.Price)
	assert.Equal(t, "sess_1", p.SessionID)
	assert.Equal(t, []string{
		model.WorkerNewsSentiment,
		model.WorkerPortfolioManager,
		model.WorkerRiskSpecialist,
		model.WorkerTechnicalAnalyst,
	}, p.Agents)
	prediction, _ := Field(out, "Prediction")
	assert.Equal(t, p.ID, prediction)
}

func TestPortfolioManager_ScalesByAdjustment(t *testing.T) {
	d := desk.Open(t.TempDir(), model.DefaultScorecardPolicy())
	ctx := context.Background()
	_, err := d.Scorecards.Update(ctx, func(s *desk.Scorecards) error {
		s.Record(model.WorkerPortfolioManager, false, d.Policy(), start)
		return nil
	})
	require.NoError(t, err)

	w, _ := Builtin(model.WorkerPortfolioManager, Deps{Desk: d})
	out, err := w.Run(ctx, Input{Subject: "BTC"})
	require.NoError(t, err)
	v, _ := Field(out, "Confidence adjustment")
	assert.Equal(t, "0.90", v)
	v, _ = Field(out, "Confidence")
	assert.Equal(t, "0.18", v)
}

func TestPerformanceReviewer(t *testing.T) {
	d := desk.Open(t.TempDir(), model.DefaultScorecardPolicy())
	ctx := context.Background()
	p, err := d.RecordPrediction(ctx, desk.Prediction{Subject: "BTC", Action: "BUY", Agents: []string{"technical-analyst"}})
	require.NoError(t, err)
	_, err = d.ResolvePrediction(ctx, p.ID, true)
	require.NoError(t, err)

	w, _ := Builtin(model.WorkerPerformanceReviewer, Deps{Desk: d})
	out, err := w.Run(ctx, Input{})
	require.NoError(t, err)
	v, _ := Field(out, "Accuracy")
	assert.Equal(t, "100.0%", v)
	assert.Contains(t, out, "| technical-analyst | 1 | 1 | 100.0% | 1.05 |")
}

func TestPerformanceReviewer_NeedsDesk(t *testing.T) {
	w, _ := Builtin(model.WorkerPerformanceReviewer, Deps{})
	_, err := w.Run(context.Background(), Input{})
	assert.Error(t, err)
}
