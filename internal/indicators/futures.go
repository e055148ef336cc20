package indicators

import "github.com/pkg/errors"

// FundingIntervalsPerDay is the number of 8h funding payments per day.
const FundingIntervalsPerDay = 3

// AnnualizedFunding converts an 8h funding rate fraction to an annual
// percentage.
func AnnualizedFunding(rate float64) float64 {
	return rate * FundingIntervalsPerDay * DaysPerYear * 100
}

// FundingBias reads an annualized funding percentage. Positive funding means
// longs pay shorts.
func FundingBias(annualPct float64) string {
	switch {
	case annualPct > 50:
		return "EXTREMELY_BULLISH"
	case annualPct > 10:
		return "BULLISH"
	case annualPct < -50:
		return "EXTREMELY_BEARISH"
	case annualPct < -10:
		return "BEARISH"
	default:
		return "NEUTRAL"
	}
}

// LongShortSentiment reads an account long/short ratio. Zero means the
// venue did not publish one.
func LongShortSentiment(ratio float64) string {
	switch {
	case ratio <= 0:
		return "UNKNOWN"
	case ratio > 2:
		return "EXTREMELY_LONG"
	case ratio > 1.2:
		return "LONG_BIASED"
	case ratio < 0.5:
		return "EXTREMELY_SHORT"
	case ratio < 0.8:
		return "SHORT_BIASED"
	default:
		return "BALANCED"
	}
}

// TakerPressure reads the taker buy/sell volume ratio.
func TakerPressure(ratio float64) string {
	switch {
	case ratio <= 0:
		return "UNKNOWN"
	case ratio > 1.5:
		return "STRONG_BUYING"
	case ratio > 1.1:
		return "BUYING"
	case ratio < 0.7:
		return "STRONG_SELLING"
	case ratio < 0.9:
		return "SELLING"
	default:
		return "NEUTRAL"
	}
}

type FuturesInputs struct {
	FundingRate       float64
	LongShortRatio    float64
	TakerBuySellRatio float64
}

type PerpetualReading struct {
	Score          int      `json:"score"`
	Recommendation string   `json:"recommendation"`
	Reasons        []string `json:"reasons"`
}

// PerpetualScore rates positioning from 0 to 100, starting at 50. Crowded
// positioning scores against itself: extreme positive funding and an
// extreme long ratio are contrarian bearish.
func PerpetualScore(in FuturesInputs) PerpetualReading {
	r := PerpetualReading{Score: 50}

	switch annual := AnnualizedFunding(in.FundingRate); {
	case annual > 50:
		r.Score -= 15
		r.Reasons = append(r.Reasons, "Extreme positive funding, longs crowded")
	case annual < -50:
		r.Score += 15
		r.Reasons = append(r.Reasons, "Extreme negative funding, shorts crowded")
	}

	switch ls := in.LongShortRatio; {
	case ls > 2:
		r.Score -= 10
		r.Reasons = append(r.Reasons, "Long/short ratio extremely long")
	case ls > 0 && ls < 0.5:
		r.Score += 10
		r.Reasons = append(r.Reasons, "Long/short ratio extremely short")
	}

	switch TakerPressure(in.TakerBuySellRatio) {
	case "STRONG_BUYING":
		r.Score += 10
		r.Reasons = append(r.Reasons, "Strong taker buying")
	case "STRONG_SELLING":
		r.Score -= 10
		r.Reasons = append(r.Reasons, "Strong taker selling")
	}

	r.Score = max(0, min(100, r.Score))
	switch {
	case r.Score >= 70:
		r.Recommendation = "STRONG_BUY"
	case r.Score >= 55:
		r.Recommendation = "BUY"
	case r.Score <= 30:
		r.Recommendation = "STRONG_SELL"
	case r.Score <= 45:
		r.Recommendation = "SELL"
	default:
		r.Recommendation = "NEUTRAL"
	}
	return r
}

// MaintenanceMargin is the margin fraction assumed by LiquidationPrice.
const MaintenanceMargin = 0.005

// LiquidationPrice estimates the isolated-margin liquidation price.
func LiquidationPrice(entry, leverage float64, long bool) (float64, error) {
	if entry <= 0 {
		return 0, errors.Errorf("entry price must be positive, got %v", entry)
	}
	if leverage < 1 {
		return 0, errors.Errorf("leverage must be at least 1, got %v", leverage)
	}
	if long {
		return entry * (1 - 1/leverage + MaintenanceMargin), nil
	}
	return entry * (1 + 1/leverage - MaintenanceMargin), nil
}
