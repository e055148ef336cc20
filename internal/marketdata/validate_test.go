package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSymbol(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"BTC", "BTC", false},
		{" eth ", "ETH", false},
		{"ABCDEFGHIJ", "ABCDEFGHIJ", false},
		{"ABCDEFGHIJK", "", true},
		{"BTC1", "", true},
		{"BTC/USDT", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ValidateSymbol(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateTimeframe(t *testing.T) {
	for _, tf := range []string{"1m", "4h", "1d", "1w", "1M"} {
		got, err := ValidateTimeframe(tf)
		require.NoError(t, err)
		assert.Equal(t, tf, got)
	}

	_, err := ValidateTimeframe("2d")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "Valid:")

	_, err = ValidateTimeframe("1D")
	assert.ErrorIs(t, err, ErrInvalidInput, "timeframes are case sensitive")
}

func TestValidateExchange(t *testing.T) {
	got, err := ValidateExchange(" Kraken ")
	require.NoError(t, err)
	assert.Equal(t, "kraken", got)

	_, err = ValidateExchange("ftx")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidatePositiveInt(t *testing.T) {
	v, err := ValidatePositiveInt(100, "limit", 1000)
	require.NoError(t, err)
	assert.Equal(t, 100, v)

	_, err = ValidatePositiveInt(0, "limit", 1000)
	assert.ErrorContains(t, err, "limit must be a positive integer, got 0")

	_, err = ValidatePositiveInt(1001, "limit", 1000)
	assert.ErrorContains(t, err, "limit must be <= 1000, got 1001")

	_, err = ValidatePositiveInt(5000, "limit", 0)
	assert.NoError(t, err, "zero max means unbounded")
}
