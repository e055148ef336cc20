package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"

	"github.com/msageha/tradedesk/internal/logger"
)

// HTTPSource fetches market data from a JSON gateway exposing
// GET /candles?symbol=&timeframe=&limit= and GET /news?symbol=&limit=.
type HTTPSource struct {
	baseURL  string
	exchange string
	client   *http.Client
	attempts uint
	delay    time.Duration
}

type HTTPOption func(*HTTPSource)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) { s.client = c }
}

// WithRetry sets the attempt count and the initial backoff delay.
func WithRetry(attempts uint, delay time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		s.attempts = attempts
		s.delay = delay
	}
}

// WithExchange adds an exchange query parameter to every request.
func WithExchange(exchange string) HTTPOption {
	return func(s *HTTPSource) { s.exchange = exchange }
}

func NewHTTPSource(baseURL string, opts ...HTTPOption) (*HTTPSource, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, errors.Wrapf(ErrInvalidInput, "invalid base url %q", baseURL)
	}
	s := &HTTPSource{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
		attempts: 3,
		delay:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.exchange != "" {
		ex, err := ValidateExchange(s.exchange)
		if err != nil {
			return nil, err
		}
		s.exchange = ex
	}
	return s, nil
}

func (s *HTTPSource) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	symbol, timeframe, err := validateRequest(symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	if timeframe == "" {
		return nil, errors.Wrap(ErrInvalidInput, "timeframe must be a non-empty string")
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("timeframe", timeframe)
	q.Set("limit", strconv.Itoa(limit))

	var candles []Candle
	if err := s.get(ctx, "/candles", q, &candles); err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, errors.Wrapf(ErrNoData, "%s %s", symbol, timeframe)
	}
	return tail(candles, limit), nil
}

func (s *HTTPSource) Headlines(ctx context.Context, symbol string, limit int) ([]Headline, error) {
	symbol, _, err := validateRequest(symbol, "", limit)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("limit", strconv.Itoa(limit))

	var headlines []Headline
	if err := s.get(ctx, "/news", q, &headlines); err != nil {
		return nil, err
	}
	if len(headlines) == 0 {
		return nil, errors.Wrapf(ErrNoData, "%s news", symbol)
	}
	return tail(headlines, limit), nil
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func (s *HTTPSource) get(ctx context.Context, path string, q url.Values, out any) error {
	if s.exchange != "" {
		q.Set("exchange", s.exchange)
	}
	endpoint := s.baseURL + path + "?" + q.Encode()

	attempts := s.attempts
	if attempts == 0 {
		attempts = 1
	}

	err := retry.Do(
		func() error { return s.fetch(ctx, endpoint, out) },
		retry.RetryIf(isRetryable),
		retry.Attempts(attempts),
		retry.Delay(s.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).WithField("max_attempts", attempts).WithField("endpoint", path).Warn("retrying market data request")
		}),
	)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	return nil
}

func (s *HTTPSource) fetch(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return permanent{errors.Wrap(err, "build request")}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errors.Wrapf(ErrNoData, "%s", endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return permanent{errors.Wrap(err, "decode response")}
	}
	return nil
}

// permanent marks failures that a retry cannot fix.
type permanent struct{ error }

func (p permanent) Unwrap() error { return p.error }

// isRetryable admits 5xx, 429 and transport failures.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNoData) || errors.Is(err, ErrInvalidInput) {
		return false
	}
	var p permanent
	if errors.As(err, &p) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}
