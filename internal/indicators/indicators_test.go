package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(from, to float64) []float64 {
	var out []float64
	step := 1.0
	if to < from {
		step = -1
	}
	for v := from; (step > 0 && v <= to) || (step < 0 && v >= to); v += step {
		out = append(out, v)
	}
	return out
}

func TestSMA(t *testing.T) {
	got, err := SMA([]float64{1, 2, 3, 4, 5}, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 4}, got)

	_, err = SMA([]float64{1, 2}, 3)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = SMA([]float64{1, 2}, 0)
	assert.Error(t, err)
}

func TestEMA_Adjusted(t *testing.T) {
	got := EMA([]float64{1, 2}, 3)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0])
	assert.InDelta(t, 2.5/1.5, got[1], 1e-12)

	assert.Equal(t, []float64{4, 4, 4}, EMA([]float64{4, 4, 4}, 9))
	assert.Nil(t, EMA(nil, 3))
}

func TestReturnsAndStdDev(t *testing.T) {
	r := Returns([]float64{100, 110, 99})
	require.Len(t, r, 2)
	assert.InDelta(t, 0.1, r[0], 1e-12)
	assert.InDelta(t, -0.1, r[1], 1e-12)
	assert.Nil(t, Returns([]float64{1}))

	assert.InDelta(t, math.Sqrt(32.0/7.0), StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-12)
	assert.Equal(t, 0.0, StdDev([]float64{3}))
}

func TestRSI(t *testing.T) {
	up, err := RSI(ramp(1, 20), 14)
	require.NoError(t, err)
	assert.Equal(t, 100.0, up.Value)
	assert.Equal(t, "OVERBOUGHT", up.Signal)
	assert.Equal(t, "FLAT", up.Trend)

	down, err := RSI(ramp(20, 1), 14)
	require.NoError(t, err)
	assert.Equal(t, 0.0, down.Value)
	assert.Equal(t, "OVERSOLD", down.Signal)

	flat, err := RSI([]float64{10, 11, 10, 11, 10, 11}, 2)
	require.NoError(t, err)
	assert.Equal(t, 50.0, flat.Value)
	assert.Equal(t, "BEARISH", flat.Signal)

	still, err := RSI([]float64{5, 5, 5, 5}, 3)
	require.NoError(t, err)
	assert.Equal(t, 50.0, still.Value)
}

func TestRSI_Trend(t *testing.T) {
	// gains accelerate at the end, so the last readings rise
	closes := []float64{10, 9, 10, 9, 10, 9, 10, 11, 12}
	r, err := RSI(closes, 2)
	require.NoError(t, err)
	assert.Equal(t, "RISING", r.Trend)
}

func TestRSI_InsufficientData(t *testing.T) {
	_, err := RSI(ramp(1, 14), 14)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)

	var ide *InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, 15, ide.Need)
	assert.Equal(t, 14, ide.Have)
}

func TestMACD(t *testing.T) {
	flat := make([]float64, 40)
	for i := range flat {
		flat[i] = 64
	}
	r, err := MACD(flat, 12, 26, 9)
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.MACD)
	assert.Equal(t, "BEARISH", r.Trend)
	assert.Equal(t, "NONE", r.Crossover)

	up, err := MACD(ramp(1, 60), 12, 26, 9)
	require.NoError(t, err)
	assert.Greater(t, up.MACD, 0.0)
	assert.Equal(t, "BULLISH", up.Trend)

	_, err = MACD(ramp(1, 34), 12, 26, 9)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = MACD(ramp(1, 60), 26, 12, 9)
	assert.Error(t, err)
}

func TestBollinger(t *testing.T) {
	closes := ramp(1, 20)
	r, err := Bollinger(closes, 20, 2)
	require.NoError(t, err)
	assert.InDelta(t, 10.5, r.Middle, 1e-12)
	assert.InDelta(t, 10.5+2*math.Sqrt(35), r.Upper, 1e-9)
	assert.InDelta(t, 10.5-2*math.Sqrt(35), r.Lower, 1e-9)
	assert.Equal(t, "BULLISH", r.Signal)
	assert.False(t, r.Squeeze)

	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 5
	}
	r, err = Bollinger(flat, 20, 2)
	require.NoError(t, err)
	assert.True(t, r.Squeeze)
	assert.Equal(t, 50.0, r.PositionPct)

	_, err = Bollinger(closes[:10], 20, 2)
	assert.ErrorIs(t, err, ErrInsufficientData)
}
