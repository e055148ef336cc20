package indicators

import (
	"fmt"

	"github.com/pkg/errors"
)

type Signal struct {
	Indicator string `json:"indicator"`
	Action    string `json:"action"`
	Strength  string `json:"strength"`
	Reason    string `json:"reason"`
}

type SignalReport struct {
	Price   float64  `json:"price"`
	Score   int      `json:"score"`
	Overall string   `json:"overall"`
	Signals []Signal `json:"signals"`
}

// MinSignalPoints is the history the combined strategy needs for its 50
// period moving average.
const MinSignalPoints = 50

// Signals combines RSI(14), MACD(12,26,9) and the 20/50 moving averages
// into one score. Strong RSI and MACD votes weigh 3, strong MA alignment 2,
// weak votes 1.
func Signals(closes []float64) (SignalReport, error) {
	if err := need("signals", MinSignalPoints, len(closes)); err != nil {
		return SignalReport{}, err
	}
	price := last(closes)
	report := SignalReport{Price: price}
	add := report.add

	rsi, err := RSI(closes, 14)
	if err != nil {
		return SignalReport{}, err
	}
	switch {
	case rsi.Value < 30:
		add("RSI", "BUY", "STRONG", fmt.Sprintf("RSI oversold at %.1f", rsi.Value), 3)
	case rsi.Value > 70:
		add("RSI", "SELL", "STRONG", fmt.Sprintf("RSI overbought at %.1f", rsi.Value), 3)
	case rsi.Value < 40:
		add("RSI", "BUY", "WEAK", fmt.Sprintf("RSI bearish at %.1f", rsi.Value), 1)
	case rsi.Value > 60:
		add("RSI", "SELL", "WEAK", fmt.Sprintf("RSI bullish at %.1f", rsi.Value), 1)
	}

	macd, err := MACD(closes, 12, 26, 9)
	if err != nil {
		return SignalReport{}, err
	}
	switch {
	case macd.Crossover == "BULLISH_CROSSOVER":
		add("MACD", "BUY", "STRONG", "MACD bullish crossover", 3)
	case macd.Crossover == "BEARISH_CROSSOVER":
		add("MACD", "SELL", "STRONG", "MACD bearish crossover", 3)
	case macd.MACD > macd.Signal:
		add("MACD", "BUY", "WEAK", "MACD above signal line", 1)
	default:
		add("MACD", "SELL", "WEAK", "MACD below signal line", 1)
	}

	ma20, _ := SMA(closes, 20)
	ma50, _ := SMA(closes, 50)
	m20, m50 := last(ma20), last(ma50)
	switch {
	case price > m20 && m20 > m50:
		add("MA", "BUY", "STRONG", "Price above both MAs, bullish alignment", 2)
	case price < m20 && m20 < m50:
		add("MA", "SELL", "STRONG", "Price below both MAs, bearish alignment", 2)
	case price > m20:
		add("MA", "BUY", "WEAK", "Price above short-term MA", 1)
	default:
		add("MA", "SELL", "WEAK", "Price below short-term MA", 1)
	}

	report.Overall = Overall(report.Score)
	return report, nil
}

func (r *SignalReport) add(indicator, action, strength, reason string, weight int) {
	r.Signals = append(r.Signals, Signal{Indicator: indicator, Action: action, Strength: strength, Reason: reason})
	if action == "BUY" {
		r.Score += weight
	} else {
		r.Score -= weight
	}
}

// Overall maps a combined score to a recommendation.
func Overall(score int) string {
	switch {
	case score >= 5:
		return "STRONG_BUY"
	case score >= 2:
		return "BUY"
	case score <= -5:
		return "STRONG_SELL"
	case score <= -2:
		return "SELL"
	default:
		return "HOLD"
	}
}

// ExtendedPeriod is the lookback of the volume and trend indicators.
const ExtendedPeriod = 14

// ExtendedSignals adds volume and trend votes to Signals: MFI, Williams %R,
// ADX direction, Ichimoku cloud position, VWAP extremes, OBV divergence and
// RSI divergence. Indicators without enough history are skipped.
func ExtendedSignals(s Series) (SignalReport, error) {
	report, err := Signals(s.Closes)
	if err != nil {
		return SignalReport{}, err
	}
	skip := func(err error) error {
		if errors.Is(err, ErrInsufficientData) {
			return nil
		}
		return err
	}

	if mfi, err := MFI(s, ExtendedPeriod); err != nil {
		if err := skip(err); err != nil {
			return SignalReport{}, err
		}
	} else {
		switch mfi.Signal {
		case "OVERSOLD":
			report.add("MFI", "BUY", "STRONG", fmt.Sprintf("MFI oversold at %.1f", mfi.Value), 2)
		case "OVERBOUGHT":
			report.add("MFI", "SELL", "STRONG", fmt.Sprintf("MFI overbought at %.1f", mfi.Value), 2)
		}
	}

	if wr, err := WilliamsR(s, ExtendedPeriod); err != nil {
		if err := skip(err); err != nil {
			return SignalReport{}, err
		}
	} else {
		switch wr.Signal {
		case "OVERSOLD":
			report.add("WILLIAMS_R", "BUY", "WEAK", fmt.Sprintf("Williams %%R oversold at %.1f", wr.Value), 1)
		case "OVERBOUGHT":
			report.add("WILLIAMS_R", "SELL", "WEAK", fmt.Sprintf("Williams %%R overbought at %.1f", wr.Value), 1)
		}
	}

	if adx, err := ADX(s, ExtendedPeriod); err != nil {
		if err := skip(err); err != nil {
			return SignalReport{}, err
		}
	} else if adx.ADX > 25 {
		if adx.Trend == "BULLISH" {
			report.add("ADX", "BUY", "STRONG", fmt.Sprintf("Strong uptrend, ADX %.1f", adx.ADX), 2)
		} else {
			report.add("ADX", "SELL", "STRONG", fmt.Sprintf("Strong downtrend, ADX %.1f", adx.ADX), 2)
		}
	}

	if ich, err := Ichimoku(s); err != nil {
		if err := skip(err); err != nil {
			return SignalReport{}, err
		}
	} else {
		switch {
		case ich.Position == "ABOVE_CLOUD" && ich.CloudColor == "GREEN":
			report.add("ICHIMOKU", "BUY", "STRONG", "Price above a green cloud", 2)
		case ich.Position == "ABOVE_CLOUD":
			report.add("ICHIMOKU", "BUY", "WEAK", "Price above the cloud", 1)
		case ich.Position == "BELOW_CLOUD" && ich.CloudColor == "RED":
			report.add("ICHIMOKU", "SELL", "STRONG", "Price below a red cloud", 2)
		case ich.Position == "BELOW_CLOUD":
			report.add("ICHIMOKU", "SELL", "WEAK", "Price below the cloud", 1)
		}
	}

	if vwap, err := VWAP(s, 20); err != nil {
		if err := skip(err); err != nil {
			return SignalReport{}, err
		}
	} else {
		switch vwap.Signal {
		case "EXTREMELY_OVERSOLD":
			report.add("VWAP", "BUY", "WEAK", "Price below the lower VWAP band", 1)
		case "EXTREMELY_OVERBOUGHT":
			report.add("VWAP", "SELL", "WEAK", "Price above the upper VWAP band", 1)
		}
	}

	if obv, err := OBVTrend(s.Closes, s.Volumes); err != nil {
		if err := skip(err); err != nil {
			return SignalReport{}, err
		}
	} else {
		switch obv.Divergence {
		case BullishDivergence:
			report.add("OBV", "BUY", "WEAK", "OBV rising against falling price", 1)
		case BearishDivergence:
			report.add("OBV", "SELL", "WEAK", "OBV falling against rising price", 1)
		}
	}

	if div, err := RSIDivergence(s.Closes, ExtendedPeriod, DivergenceWindow); err != nil {
		if err := skip(err); err != nil {
			return SignalReport{}, err
		}
	} else {
		switch div {
		case BullishDivergence:
			report.add("RSI_DIVERGENCE", "BUY", "STRONG", "Lower price low with a higher RSI low", 2)
		case BearishDivergence:
			report.add("RSI_DIVERGENCE", "SELL", "STRONG", "Higher price high with a lower RSI high", 2)
		}
	}

	report.Overall = Overall(report.Score)
	return report, nil
}
