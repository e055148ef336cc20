package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// FileSource reads fixtures from {dir}/{SYMBOL}-{timeframe}.json and
// {dir}/{SYMBOL}-news.json.
type FileSource struct {
	dir string
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (s *FileSource) Candles(ctx context.Context, symbol, timeframe string, limit int) ([]Candle, error) {
	symbol, timeframe, err := validateRequest(symbol, timeframe, limit)
	if err != nil {
		return nil, err
	}
	if timeframe == "" {
		return nil, errors.Wrap(ErrInvalidInput, "timeframe must be a non-empty string")
	}

	var candles []Candle
	path := filepath.Join(s.dir, fmt.Sprintf("%s-%s.json", symbol, timeframe))
	if err := readJSON(path, &candles); err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, errors.Wrapf(ErrNoData, "%s %s", symbol, timeframe)
	}
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Time.Before(candles[j].Time) })
	return tail(candles, limit), nil
}

func (s *FileSource) Headlines(ctx context.Context, symbol string, limit int) ([]Headline, error) {
	symbol, _, err := validateRequest(symbol, "", limit)
	if err != nil {
		return nil, err
	}

	var headlines []Headline
	path := filepath.Join(s.dir, fmt.Sprintf("%s-news.json", symbol))
	if err := readJSON(path, &headlines); err != nil {
		return nil, err
	}
	if len(headlines) == 0 {
		return nil, errors.Wrapf(ErrNoData, "%s news", symbol)
	}
	sort.SliceStable(headlines, func(i, j int) bool { return headlines[i].Time.Before(headlines[j].Time) })
	return tail(headlines, limit), nil
}

func readJSON(path string, v any) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(ErrNoData, "missing fixture %s", path)
		}
		return errors.Wrapf(err, "read %s", path)
	}
	if err := json.Unmarshal(content, v); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}
