package indicators

import (
	"math"
	"slices"

	"github.com/pkg/errors"
)

type ADXReading struct {
	ADX      float64 `json:"adx"`
	PlusDI   float64 `json:"plus_di"`
	MinusDI  float64 `json:"minus_di"`
	Strength string  `json:"strength"`
	Trend    string  `json:"trend"`
}

// ADX measures trend strength. Directional movement and true range are
// smoothed with a simple rolling mean, and the index is the mean of the
// last period DX values.
func ADX(s Series, period int) (ADXReading, error) {
	if period <= 0 {
		return ADXReading{}, errors.Errorf("adx period must be positive, got %d", period)
	}
	if err := s.check("adx", 2*period, false); err != nil {
		return ADXReading{}, err
	}

	n := s.Len()
	tr := make([]float64, n-1)
	plus := make([]float64, n-1)
	minus := make([]float64, n-1)
	for i := 1; i < n; i++ {
		tr[i-1] = max(s.Highs[i]-s.Lows[i], math.Abs(s.Highs[i]-s.Closes[i-1]), math.Abs(s.Lows[i]-s.Closes[i-1]))
		up, down := s.Highs[i]-s.Highs[i-1], s.Lows[i-1]-s.Lows[i]
		if up > down && up > 0 {
			plus[i-1] = up
		}
		if down > up && down > 0 {
			minus[i-1] = down
		}
	}

	atr, _ := SMA(tr, period)
	pdm, _ := SMA(plus, period)
	mdm, _ := SMA(minus, period)
	pdi := make([]float64, len(atr))
	mdi := make([]float64, len(atr))
	dx := make([]float64, len(atr))
	for i := range atr {
		if atr[i] > 0 {
			pdi[i] = 100 * pdm[i] / atr[i]
			mdi[i] = 100 * mdm[i] / atr[i]
		}
		if sum := pdi[i] + mdi[i]; sum > 0 {
			dx[i] = 100 * math.Abs(pdi[i]-mdi[i]) / sum
		}
	}

	adx := Mean(dx[len(dx)-period:])
	r := ADXReading{
		ADX:     round(adx, 2),
		PlusDI:  round(last(pdi), 2),
		MinusDI: round(last(mdi), 2),
		Trend:   "BEARISH",
	}
	if last(pdi) > last(mdi) {
		r.Trend = "BULLISH"
	}
	switch {
	case adx > 50:
		r.Strength = "VERY_STRONG_TREND"
	case adx > 25:
		r.Strength = "STRONG_TREND"
	case adx > 20:
		r.Strength = "WEAK_TREND"
	default:
		r.Strength = "NO_TREND"
	}
	return r, nil
}

// Ichimoku windows. The leading spans are projected IchimokuShift bars
// ahead, so the cloud under the last bar was computed IchimokuShift bars
// earlier.
const (
	IchimokuTenkan = 9
	IchimokuKijun  = 26
	IchimokuSpanB  = 52
	IchimokuShift  = 26
)

type IchimokuReading struct {
	Tenkan     float64 `json:"tenkan"`
	Kijun      float64 `json:"kijun"`
	SpanA      float64 `json:"span_a"`
	SpanB      float64 `json:"span_b"`
	CloudColor string  `json:"cloud_color"`
	Position   string  `json:"position"`
	TKCross    string  `json:"tk_cross"`
}

// midpoint is the middle of the high-low range of the window ending at i.
func (s Series) midpoint(i, window int) float64 {
	from := i - window + 1
	return (slices.Max(s.Highs[from:i+1]) + slices.Min(s.Lows[from:i+1])) / 2
}

func Ichimoku(s Series) (IchimokuReading, error) {
	if err := s.check("ichimoku", IchimokuSpanB+IchimokuShift, false); err != nil {
		return IchimokuReading{}, err
	}

	n := s.Len()
	at := n - 1
	lead := at - IchimokuShift
	r := IchimokuReading{
		Tenkan: s.midpoint(at, IchimokuTenkan),
		Kijun:  s.midpoint(at, IchimokuKijun),
		SpanA:  (s.midpoint(lead, IchimokuTenkan) + s.midpoint(lead, IchimokuKijun)) / 2,
		SpanB:  s.midpoint(lead, IchimokuSpanB),
	}

	r.CloudColor = "RED"
	if r.SpanA > r.SpanB {
		r.CloudColor = "GREEN"
	}
	top, bottom := max(r.SpanA, r.SpanB), min(r.SpanA, r.SpanB)
	switch price := s.Closes[at]; {
	case price > top:
		r.Position = "ABOVE_CLOUD"
	case price < bottom:
		r.Position = "BELOW_CLOUD"
	default:
		r.Position = "INSIDE_CLOUD"
	}

	prevTenkan, prevKijun := s.midpoint(at-1, IchimokuTenkan), s.midpoint(at-1, IchimokuKijun)
	switch {
	case prevTenkan <= prevKijun && r.Tenkan > r.Kijun:
		r.TKCross = "BULLISH_CROSS"
	case prevTenkan >= prevKijun && r.Tenkan < r.Kijun:
		r.TKCross = "BEARISH_CROSS"
	default:
		r.TKCross = "NONE"
	}
	return r, nil
}

// Williams %R thresholds.
const (
	WilliamsOverbought = -20
	WilliamsOversold   = -80
)

type WilliamsReading struct {
	Value  float64 `json:"value"`
	Signal string  `json:"signal"`
}

// WilliamsR places the last close in the high-low range of the last period
// bars on a 0 to -100 scale. A flat range reads -50.
func WilliamsR(s Series, period int) (WilliamsReading, error) {
	if period <= 0 {
		return WilliamsReading{}, errors.Errorf("williams period must be positive, got %d", period)
	}
	if err := s.check("williams_r", period, false); err != nil {
		return WilliamsReading{}, err
	}

	n := s.Len()
	hi, lo := slices.Max(s.Highs[n-period:]), slices.Min(s.Lows[n-period:])
	v := -50.0
	if hi > lo {
		v = (hi - last(s.Closes)) / (hi - lo) * -100
	}

	r := WilliamsReading{Value: round(v, 2), Signal: "NEUTRAL"}
	switch {
	case v > WilliamsOverbought:
		r.Signal = "OVERBOUGHT"
	case v < WilliamsOversold:
		r.Signal = "OVERSOLD"
	}
	return r, nil
}

// PivotLevels are classic floor pivots.
type PivotLevels struct {
	Pivot float64 `json:"pivot"`
	R1    float64 `json:"r1"`
	R2    float64 `json:"r2"`
	R3    float64 `json:"r3"`
	S1    float64 `json:"s1"`
	S2    float64 `json:"s2"`
	S3    float64 `json:"s3"`
}

func Pivots(high, low, close float64) PivotLevels {
	p := (high + low + close) / 3
	return PivotLevels{
		Pivot: p,
		R1:    2*p - low,
		R2:    p + (high - low),
		R3:    high + 2*(p-low),
		S1:    2*p - high,
		S2:    p - (high - low),
		S3:    low - 2*(high-p),
	}
}

// ClassicPivots computes pivots from the last completed bar, the one before
// the bar in progress.
func ClassicPivots(s Series) (PivotLevels, error) {
	if err := s.check("pivots", 2, false); err != nil {
		return PivotLevels{}, err
	}
	i := s.Len() - 2
	return Pivots(s.Highs[i], s.Lows[i], s.Closes[i]), nil
}

// Closest returns the name and value of the level nearest to price.
func (p PivotLevels) Closest(price float64) (string, float64) {
	levels := []struct {
		name  string
		value float64
	}{
		{"S3", p.S3}, {"S2", p.S2}, {"S1", p.S1}, {"PIVOT", p.Pivot},
		{"R1", p.R1}, {"R2", p.R2}, {"R3", p.R3},
	}
	best := levels[0]
	for _, l := range levels[1:] {
		if math.Abs(l.value-price) < math.Abs(best.value-price) {
			best = l
		}
	}
	return best.name, best.value
}

// DivergenceWindow is the trailing window scanned for RSI divergence.
const DivergenceWindow = 50

// RSIDivergence splits the trailing window in halves and compares extremes.
// A higher price high with a lower RSI high is bearish, and a lower price
// low with a higher RSI low is bullish.
func RSIDivergence(closes []float64, period, window int) (string, error) {
	if window < 4 {
		return "", errors.Errorf("divergence window must be at least 4, got %d", window)
	}
	if err := need("rsi_divergence", period+window, len(closes)); err != nil {
		return "", err
	}
	rsi, err := RSISeries(closes, period)
	if err != nil {
		return "", err
	}

	prices := closes[len(closes)-window:]
	rsi = rsi[len(rsi)-window:]
	half := window / 2
	p1, p2 := prices[:half], prices[half:]
	r1, r2 := rsi[:half], rsi[half:]

	switch {
	case slices.Max(p2) > slices.Max(p1) && slices.Max(r2) < slices.Max(r1):
		return BearishDivergence, nil
	case slices.Min(p2) < slices.Min(p1) && slices.Min(r2) > slices.Min(r1):
		return BullishDivergence, nil
	default:
		return NoDivergence, nil
	}
}
