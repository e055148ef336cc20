package indicators

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// AnnualizedVolatility is the sample stdev of the last period returns,
// annualized over DaysPerYear and expressed in percent.
func AnnualizedVolatility(returns []float64, period int) (float64, error) {
	if period < 2 {
		return 0, errors.Errorf("volatility period must be at least 2, got %d", period)
	}
	if err := need("volatility", period, len(returns)); err != nil {
		return 0, err
	}
	window := returns[len(returns)-period:]
	return StdDev(window) * math.Sqrt(DaysPerYear) * 100, nil
}

// ClassifyVolatility buckets an annualized volatility percentage.
func ClassifyVolatility(volPct float64) string {
	switch {
	case volPct > 100:
		return "EXTREMELY_HIGH"
	case volPct > 60:
		return "HIGH"
	case volPct > 30:
		return "MODERATE"
	case volPct > 15:
		return "LOW"
	default:
		return "VERY_LOW"
	}
}

// RiskLevel maps an annualized volatility percentage to a coarse level.
func RiskLevel(volPct float64) string {
	switch {
	case volPct > 80:
		return "VERY_HIGH"
	case volPct > 50:
		return "HIGH"
	case volPct > 25:
		return "MODERATE"
	default:
		return "LOW"
	}
}

// ATR is the mean true range of the last period bars. The first bar has no
// previous close and is only used as the reference for the second.
func ATR(highs, lows, closes []float64, period int) (float64, error) {
	if len(highs) != len(closes) || len(lows) != len(closes) {
		return 0, errors.New("atr: highs, lows and closes must have equal length")
	}
	if period <= 0 {
		return 0, errors.Errorf("atr period must be positive, got %d", period)
	}
	if err := need("atr", period+1, len(closes)); err != nil {
		return 0, err
	}

	trs := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		tr := math.Max(highs[i]-lows[i], math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
		trs = append(trs, tr)
	}
	return Mean(trs[len(trs)-period:]), nil
}

// HistoricalVaR returns the loss not exceeded with the given confidence, as
// a positive fraction of value. It interpolates linearly between order
// statistics.
func HistoricalVaR(returns []float64, confidence float64) (float64, error) {
	if confidence <= 0 || confidence >= 1 {
		return 0, errors.Errorf("var confidence must be in (0, 1), got %v", confidence)
	}
	if err := need("var", 2, len(returns)); err != nil {
		return 0, err
	}

	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	q := quantile(sorted, 1-confidence)
	return math.Max(0, -q), nil
}

func quantile(sorted []float64, p float64) float64 {
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Sharpe annualizes the mean daily excess return over its stdev. A flat
// series has a ratio of zero.
func Sharpe(returns []float64, riskFreeAnnual float64) (float64, error) {
	if err := need("sharpe", 2, len(returns)); err != nil {
		return 0, err
	}
	daily := riskFreeAnnual / DaysPerYear
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - daily
	}
	sd := StdDev(excess)
	if sd == 0 {
		return 0, nil
	}
	return Mean(excess) / sd * math.Sqrt(DaysPerYear), nil
}

// MaxDrawdown is the largest peak-to-trough decline as a positive fraction.
func MaxDrawdown(values []float64) float64 {
	peak, worst := math.Inf(-1), 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

type RiskInputs struct {
	VolatilityPct float64
	VaR95         float64
	MaxDrawdown   float64
}

// RiskScore condenses volatility, tail loss and drawdown into 1..10.
func RiskScore(in RiskInputs) int {
	score := 1
	switch {
	case in.VolatilityPct > 100:
		score += 4
	case in.VolatilityPct > 60:
		score += 3
	case in.VolatilityPct > 30:
		score += 2
	case in.VolatilityPct > 15:
		score++
	}
	switch {
	case in.VaR95 > 0.08:
		score += 3
	case in.VaR95 > 0.05:
		score += 2
	case in.VaR95 > 0.03:
		score++
	}
	switch {
	case in.MaxDrawdown > 0.5:
		score += 2
	case in.MaxDrawdown > 0.25:
		score++
	}
	if score > 10 {
		score = 10
	}
	return score
}
