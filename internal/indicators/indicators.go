// Package indicators implements the technical and risk measures used by the
// analysis workers. Series are ordered oldest first.
package indicators

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// DaysPerYear annualizes daily crypto series, which trade every day.
const DaysPerYear = 365

var ErrInsufficientData = errors.New("insufficient data")

// InsufficientDataError reports how many points a calculation needed.
type InsufficientDataError struct {
	Indicator string
	Need      int
	Have      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: need at least %d data points, have %d", e.Indicator, e.Need, e.Have)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

func need(indicator string, n, have int) error {
	if have < n {
		return &InsufficientDataError{Indicator: indicator, Need: n, Have: have}
	}
	return nil
}

// SMA returns the rolling mean; result[i] covers values[i : i+period].
func SMA(values []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, errors.Errorf("sma period must be positive, got %d", period)
	}
	if err := need("sma", period, len(values)); err != nil {
		return nil, err
	}

	out := make([]float64, 0, len(values)-period+1)
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out = append(out, sum/float64(period))
		}
	}
	return out, nil
}

// EMA is the span-adjusted exponential mean with alpha = 2/(span+1). Every
// point is weighted over the whole history, so the result has len(values)
// entries.
func EMA(values []float64, span int) []float64 {
	if len(values) == 0 || span <= 0 {
		return nil
	}
	decay := 1 - 2/(float64(span)+1)
	out := make([]float64, len(values))
	num, den := 0.0, 0.0
	for i, v := range values {
		num = v + decay*num
		den = 1 + decay*den
		out[i] = num / den
	}
	return out
}

// Returns is the simple percent change between consecutive values.
func Returns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}

func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev is the sample standard deviation (n-1 denominator).
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := Mean(values)
	ss := 0.0
	for _, v := range values {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

func last(values []float64) float64 {
	return values[len(values)-1]
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
