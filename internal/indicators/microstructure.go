package indicators

import (
	"math"

	"github.com/pkg/errors"
)

// ImbalanceDepths are the cumulative depths averaged by Imbalance.
var ImbalanceDepths = []int{5, 10, 20}

// emptyAskImbalance stands in for the ratio when there are no asks.
const emptyAskImbalance = 10

type ImbalanceReading struct {
	Ratio    float64         `json:"ratio"`
	ByDepth  map[int]float64 `json:"by_depth"`
	Pressure string          `json:"pressure"`
}

// Imbalance averages the cumulative bid/ask volume ratio over
// ImbalanceDepths. Amounts are ordered best level first.
func Imbalance(bids, asks []float64) (ImbalanceReading, error) {
	if len(bids) == 0 || len(asks) == 0 {
		return ImbalanceReading{}, errors.Wrap(ErrInsufficientData, "imbalance: empty book side")
	}
	r := ImbalanceReading{ByDepth: make(map[int]float64, len(ImbalanceDepths))}
	var sum float64
	for _, d := range ImbalanceDepths {
		var bv, av float64
		for _, a := range bids[:min(d, len(bids))] {
			bv += a
		}
		for _, a := range asks[:min(d, len(asks))] {
			av += a
		}
		ratio := float64(emptyAskImbalance)
		if av > 0 {
			ratio = bv / av
		}
		r.ByDepth[d] = round(ratio, 2)
		sum += ratio
	}
	r.Ratio = round(sum/float64(len(ImbalanceDepths)), 2)

	switch {
	case r.Ratio > 2:
		r.Pressure = "EXTREME_BUY"
	case r.Ratio > 1.5:
		r.Pressure = "STRONG_BUY"
	case r.Ratio < 0.5:
		r.Pressure = "EXTREME_SELL"
	case r.Ratio < 0.66:
		r.Pressure = "STRONG_SELL"
	default:
		r.Pressure = "BALANCED"
	}
	return r, nil
}

// Spread quality bands in basis points.
const (
	SpreadExcellentBps = 5
	SpreadGoodBps      = 10
	SpreadModerateBps  = 20
)

type SpreadReading struct {
	Mid       float64 `json:"mid"`
	Absolute  float64 `json:"absolute"`
	Bps       float64 `json:"bps"`
	Liquidity string  `json:"liquidity"`
}

func Spread(bestBid, bestAsk float64) (SpreadReading, error) {
	if bestBid <= 0 || bestAsk < bestBid {
		return SpreadReading{}, errors.Errorf("invalid quote: bid %v ask %v", bestBid, bestAsk)
	}
	mid := (bestBid + bestAsk) / 2
	r := SpreadReading{Mid: mid, Absolute: bestAsk - bestBid}
	r.Bps = r.Absolute / mid * 10000
	switch {
	case r.Bps < SpreadExcellentBps:
		r.Liquidity = "EXCELLENT"
	case r.Bps < SpreadGoodBps:
		r.Liquidity = "GOOD"
	case r.Bps < SpreadModerateBps:
		r.Liquidity = "MODERATE"
	default:
		r.Liquidity = "POOR"
	}
	return r, nil
}

// Slippage walks one side of the book, best level first, filling orderUSD
// of notional. It returns the average fill price and its distance from the
// best level in percent. filled is false when the side is too thin.
func Slippage(prices, amounts []float64, orderUSD float64) (avg, pct float64, filled bool) {
	if len(prices) == 0 || len(prices) != len(amounts) || orderUSD <= 0 {
		return 0, 0, false
	}
	var cost, qty float64
	for i, p := range prices {
		notional := p * amounts[i]
		if cost+notional >= orderUSD {
			qty += (orderUSD - cost) / p
			avg = orderUSD / qty
			return avg, math.Abs(avg-prices[0]) / prices[0] * 100, true
		}
		cost += notional
		qty += amounts[i]
	}
	return 0, 0, false
}
