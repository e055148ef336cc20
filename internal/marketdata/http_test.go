package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSource(t *testing.T, handler http.HandlerFunc, opts ...HTTPOption) *HTTPSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	src, err := NewHTTPSource(srv.URL, append([]HTTPOption{WithRetry(3, time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	return src
}

func TestHTTPSource_Candles(t *testing.T) {
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/candles", r.URL.Path)
		assert.Equal(t, "BTC", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1d", r.URL.Query().Get("timeframe"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Equal(t, "kraken", r.URL.Query().Get("exchange"))
		_, _ = w.Write([]byte(`[[1772323200000,1,2,0.5,1.5,10],[1772409600000,1.5,3,1,2.5,12]]`))
	}, WithExchange("kraken"))

	candles, err := src.Candles(context.Background(), "btc", "1d", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 2.5, candles[1].Close)
}

func TestHTTPSource_RetriesServerErrors(t *testing.T) {
	var calls int32
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[{"time":"2026-03-01T00:00:00Z","title":"ok"}]`))
	})

	headlines, err := src.Headlines(context.Background(), "BTC", 5)
	require.NoError(t, err)
	assert.Len(t, headlines, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPSource_RetriesRateLimit(t *testing.T) {
	var calls int32
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := src.Headlines(context.Background(), "BTC", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestHTTPSource_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := src.Candles(context.Background(), "BTC", "1d", 5)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPSource_NotFoundIsNoData(t *testing.T) {
	var calls int32
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	})

	_, err := src.Candles(context.Background(), "BTC", "1d", 5)
	assert.ErrorIs(t, err, ErrNoData)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHTTPSource_MalformedBodyNotRetried(t *testing.T) {
	var calls int32
	src := newTestSource(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{oops`))
	})

	_, err := src.Candles(context.Background(), "BTC", "1d", 5)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNewHTTPSource_Validation(t *testing.T) {
	_, err := NewHTTPSource("not a url")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewHTTPSource("http://localhost:1", WithExchange("ftx"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&statusError{Code: 502}))
	assert.True(t, isRetryable(&statusError{Code: 429}))
	assert.False(t, isRetryable(&statusError{Code: 403}))
	assert.False(t, isRetryable(context.Canceled))
	assert.False(t, isRetryable(ErrNoData))
}
