package indicators

import "github.com/pkg/errors"

// RSI thresholds.
const (
	RSIOverbought = 70
	RSIOversold   = 30
)

type RSIReading struct {
	Value  float64 `json:"value"`
	Signal string  `json:"signal"`
	Trend  string  `json:"trend"`
}

// RSISeries uses simple rolling means of gains and losses. result[i]
// corresponds to closes[i+period].
func RSISeries(closes []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errors.Errorf("rsi period must be positive, got %d", period)
	}
	if err := need("rsi", period+1, len(closes)); err != nil {
		return nil, err
	}

	gains := make([]float64, len(closes)-1)
	losses := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gains[i-1] = d
		} else {
			losses[i-1] = -d
		}
	}

	avgGain, _ := SMA(gains, period)
	avgLoss, _ := SMA(losses, period)
	out := make([]float64, len(avgGain))
	for i := range avgGain {
		switch {
		case avgLoss[i] == 0 && avgGain[i] == 0:
			out[i] = 50
		case avgLoss[i] == 0:
			out[i] = 100
		default:
			rs := avgGain[i] / avgLoss[i]
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out, nil
}

func RSI(closes []float64, period int) (RSIReading, error) {
	series, err := RSISeries(closes, period)
	if err != nil {
		return RSIReading{}, err
	}
	v := last(series)

	r := RSIReading{Value: round(v, 2), Trend: "FLAT"}
	switch {
	case v > RSIOverbought:
		r.Signal = "OVERBOUGHT"
	case v < RSIOversold:
		r.Signal = "OVERSOLD"
	case v > 50:
		r.Signal = "BULLISH"
	default:
		r.Signal = "BEARISH"
	}

	recent := series
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	if n := len(recent); n >= 3 {
		if recent[n-1] > recent[n-3] {
			r.Trend = "RISING"
		} else if recent[n-1] < recent[n-3] {
			r.Trend = "FALLING"
		}
	}
	return r, nil
}

type MACDReading struct {
	MACD          float64 `json:"macd"`
	Signal        float64 `json:"signal"`
	Histogram     float64 `json:"histogram"`
	PrevHistogram float64 `json:"prev_histogram"`
	Trend         string  `json:"trend"`
	Crossover     string  `json:"crossover"`
}

func MACD(closes []float64, fast, slow, signal int) (MACDReading, error) {
	if fast <= 0 || slow <= fast || signal <= 0 {
		return MACDReading{}, errors.Errorf("invalid macd periods %d/%d/%d", fast, slow, signal)
	}
	if err := need("macd", slow+signal, len(closes)); err != nil {
		return MACDReading{}, err
	}

	emaFast := EMA(closes, fast)
	emaSlow := EMA(closes, slow)
	line := make([]float64, len(closes))
	for i := range closes {
		line[i] = emaFast[i] - emaSlow[i]
	}
	sig := EMA(line, signal)

	n := len(closes)
	r := MACDReading{
		MACD:          line[n-1],
		Signal:        sig[n-1],
		Histogram:     line[n-1] - sig[n-1],
		PrevHistogram: line[n-2] - sig[n-2],
		Trend:         "BEARISH",
		Crossover:     "NONE",
	}
	if r.MACD > r.Signal {
		r.Trend = "BULLISH"
	}
	if r.PrevHistogram < 0 && r.Histogram > 0 {
		r.Crossover = "BULLISH_CROSSOVER"
	} else if r.PrevHistogram > 0 && r.Histogram < 0 {
		r.Crossover = "BEARISH_CROSSOVER"
	}
	return r, nil
}

// SqueezeWidthPct is the band width, as percent of the middle band, under
// which a Bollinger squeeze is reported.
const SqueezeWidthPct = 5.0

type BollingerReading struct {
	Upper       float64 `json:"upper"`
	Middle      float64 `json:"middle"`
	Lower       float64 `json:"lower"`
	PositionPct float64 `json:"position_pct"`
	WidthPct    float64 `json:"width_pct"`
	Signal      string  `json:"signal"`
	Squeeze     bool    `json:"squeeze"`
}

func Bollinger(closes []float64, period int, k float64) (BollingerReading, error) {
	if period < 2 {
		return BollingerReading{}, errors.Errorf("bollinger period must be at least 2, got %d", period)
	}
	if err := need("bollinger", period, len(closes)); err != nil {
		return BollingerReading{}, err
	}

	window := closes[len(closes)-period:]
	mid := Mean(window)
	sd := StdDev(window)
	price := last(closes)

	r := BollingerReading{
		Upper:  mid + k*sd,
		Middle: mid,
		Lower:  mid - k*sd,
	}
	width := r.Upper - r.Lower
	if width > 0 {
		r.PositionPct = round((price-r.Lower)/width*100, 2)
	} else {
		r.PositionPct = 50
	}
	if mid != 0 {
		r.WidthPct = round(width/mid*100, 2)
	}
	r.Squeeze = r.WidthPct < SqueezeWidthPct

	switch {
	case price > r.Upper:
		r.Signal = "OVERBOUGHT"
	case price < r.Lower:
		r.Signal = "OVERSOLD"
	case price > mid:
		r.Signal = "BULLISH"
	default:
		r.Signal = "BEARISH"
	}
	return r, nil
}
