package indicators

import (
	"math"

	"github.com/pkg/errors"
)

// Series is an OHLCV history, oldest first.
type Series struct {
	Highs   []float64
	Lows    []float64
	Closes  []float64
	Volumes []float64
}

func (s Series) Len() int { return len(s.Closes) }

func (s Series) check(indicator string, n int, volume bool) error {
	if len(s.Highs) != len(s.Closes) || len(s.Lows) != len(s.Closes) {
		return errors.Errorf("%s: highs, lows and closes must have equal length", indicator)
	}
	if volume && len(s.Volumes) != len(s.Closes) {
		return errors.Errorf("%s: volumes and closes must have equal length", indicator)
	}
	return need(indicator, n, len(s.Closes))
}

func (s Series) typical(i int) float64 {
	return (s.Highs[i] + s.Lows[i] + s.Closes[i]) / 3
}

// Divergence labels shared by OBV and RSI divergence checks.
const (
	BullishDivergence = "BULLISH_DIVERGENCE"
	BearishDivergence = "BEARISH_DIVERGENCE"
	NoDivergence      = "NO_DIVERGENCE"
)

// OBV accumulates volume signed by the close-to-close direction. The first
// value is zero.
func OBV(closes, volumes []float64) ([]float64, error) {
	if len(closes) != len(volumes) {
		return nil, errors.New("obv: closes and volumes must have equal length")
	}
	if err := need("obv", 2, len(closes)); err != nil {
		return nil, err
	}
	out := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - volumes[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out, nil
}

// Slope is the least-squares slope of values against their index.
func Slope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}
	var sx, sy, sxy, sxx float64
	for i, v := range values {
		x := float64(i)
		sx += x
		sy += v
		sxy += x * v
		sxx += x * x
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0
	}
	return (n*sxy - sx*sy) / den
}

func direction(slope float64) string {
	if slope > 0 {
		return "RISING"
	}
	return "FALLING"
}

// OBVWindow is the trailing window over which OBV and price trends are fit.
const OBVWindow = 20

type OBVReading struct {
	Value      float64 `json:"value"`
	Trend      string  `json:"trend"`
	PriceTrend string  `json:"price_trend"`
	Divergence string  `json:"divergence"`
}

// OBVTrend compares the OBV slope with the price slope. Volume falling
// under a rising price is a bearish divergence, and the reverse is bullish.
func OBVTrend(closes, volumes []float64) (OBVReading, error) {
	obv, err := OBV(closes, volumes)
	if err != nil {
		return OBVReading{}, err
	}
	w := min(OBVWindow, len(obv))
	r := OBVReading{
		Value:      last(obv),
		Trend:      direction(Slope(obv[len(obv)-w:])),
		PriceTrend: direction(Slope(closes[len(closes)-w:])),
	}
	switch {
	case r.Trend == "FALLING" && r.PriceTrend == "RISING":
		r.Divergence = BearishDivergence
	case r.Trend == "RISING" && r.PriceTrend == "FALLING":
		r.Divergence = BullishDivergence
	default:
		r.Divergence = NoDivergence
	}
	return r, nil
}

// MFI thresholds.
const (
	MFIOverbought = 80
	MFIOversold   = 20
)

type MFIReading struct {
	Value  float64 `json:"value"`
	Signal string  `json:"signal"`
}

// MFI is the money flow index over the last period bars: typical price times
// volume, split by whether the typical price rose or fell.
func MFI(s Series, period int) (MFIReading, error) {
	if period <= 0 {
		return MFIReading{}, errors.Errorf("mfi period must be positive, got %d", period)
	}
	if err := s.check("mfi", period+1, true); err != nil {
		return MFIReading{}, err
	}

	var pos, neg float64
	n := s.Len()
	for i := n - period; i < n; i++ {
		tp, prev := s.typical(i), s.typical(i-1)
		flow := tp * s.Volumes[i]
		switch {
		case tp > prev:
			pos += flow
		case tp < prev:
			neg += flow
		}
	}

	var v float64
	switch {
	case pos == 0 && neg == 0:
		v = 50
	case neg == 0:
		v = 100
	default:
		v = 100 - 100/(1+pos/neg)
	}

	r := MFIReading{Value: round(v, 2), Signal: "NEUTRAL"}
	switch {
	case v > MFIOverbought:
		r.Signal = "OVERBOUGHT"
	case v < MFIOversold:
		r.Signal = "OVERSOLD"
	}
	return r, nil
}

// VWAPExtremeStd is the band width, in standard deviations, of the extreme
// zones.
const VWAPExtremeStd = 2

type VWAPReading struct {
	VWAP   float64 `json:"vwap"`
	StdDev float64 `json:"std_dev"`
	Upper1 float64 `json:"upper_1"`
	Upper2 float64 `json:"upper_2"`
	Lower1 float64 `json:"lower_1"`
	Lower2 float64 `json:"lower_2"`
	Signal string  `json:"signal"`
}

// VWAP is the volume weighted typical price of the last period bars with
// volume weighted deviation bands.
func VWAP(s Series, period int) (VWAPReading, error) {
	if period <= 0 {
		return VWAPReading{}, errors.Errorf("vwap period must be positive, got %d", period)
	}
	if err := s.check("vwap", period, true); err != nil {
		return VWAPReading{}, err
	}

	n := s.Len()
	var pv, vol float64
	for i := n - period; i < n; i++ {
		pv += s.typical(i) * s.Volumes[i]
		vol += s.Volumes[i]
	}
	if vol == 0 {
		return VWAPReading{}, errors.Wrap(ErrInsufficientData, "vwap: window has no volume")
	}
	vwap := pv / vol

	var dev float64
	for i := n - period; i < n; i++ {
		d := s.typical(i) - vwap
		dev += d * d * s.Volumes[i]
	}
	sd := math.Sqrt(dev / vol)

	r := VWAPReading{
		VWAP:   vwap,
		StdDev: sd,
		Upper1: vwap + sd,
		Upper2: vwap + VWAPExtremeStd*sd,
		Lower1: vwap - sd,
		Lower2: vwap - VWAPExtremeStd*sd,
	}
	switch price := last(s.Closes); {
	case price > r.Upper2:
		r.Signal = "EXTREMELY_OVERBOUGHT"
	case price < r.Lower2:
		r.Signal = "EXTREMELY_OVERSOLD"
	case price > vwap:
		r.Signal = "BULLISH"
	default:
		r.Signal = "BEARISH"
	}
	return r, nil
}
