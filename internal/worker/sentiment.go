package worker

import (
	"context"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/msageha/tradedesk/internal/marketdata"
	"github.com/msageha/tradedesk/internal/model"
)

var (
	bullishWords = map[string]bool{
		"surge": true, "surges": true, "rally": true, "rallies": true, "gain": true, "gains": true,
		"soar": true, "soars": true, "bullish": true, "record": true, "adoption": true,
		"approve": true, "approves": true, "approval": true, "breakout": true, "rise": true,
		"rises": true, "inflow": true, "inflows": true, "upgrade": true, "high": true,
	}
	bearishWords = map[string]bool{
		"crash": true, "crashes": true, "drop": true, "drops": true, "fall": true, "falls": true,
		"plunge": true, "plunges": true, "bearish": true, "hack": true, "hacked": true,
		"ban": true, "bans": true, "lawsuit": true, "selloff": true, "sell-off": true,
		"outflow": true, "outflows": true, "fraud": true, "liquidation": true, "liquidations": true,
		"low": true, "slump": true, "slumps": true,
	}
)

// NewsSentiment scores recent headlines with a fixed word lexicon.
type NewsSentiment struct {
	deps Deps
}

func (w *NewsSentiment) Name() string { return model.WorkerNewsSentiment }

func (w *NewsSentiment) Run(ctx context.Context, in Input) (string, error) {
	if err := requireSource(w.deps); err != nil {
		return "", err
	}

	r := newReport(in.Subject + " News Sentiment")
	headlines, err := w.deps.Source.Headlines(ctx, in.Subject, 20)
	if errors.Is(err, marketdata.ErrNoData) {
		r.section("Headlines")
		r.line("No recent headlines found.")
		r.section("Sentiment")
		r.field("Sentiment score", "%.2f", 0.0)
		r.field("Sentiment", "NEUTRAL")
		return r.String(), nil
	}
	if err != nil {
		return "", errors.Wrap(err, "headlines")
	}

	score, scored := ScoreHeadlines(headlines)
	r.section("Headlines")
	for i, h := range headlines {
		tone := "neutral"
		switch {
		case scored[i] > 0:
			tone = "bullish"
		case scored[i] < 0:
			tone = "bearish"
		}
		r.line("- [%s] %s", tone, h.Title)
	}
	r.section("Sentiment")
	r.field("Headlines", "%d", len(headlines))
	r.field("Sentiment score", "%.2f", score)
	r.field("Sentiment", "%s", ClassifySentiment(score))
	return r.String(), nil
}

// ScoreHeadlines returns the net sentiment in [-1, 1] and the per-headline
// word balance.
func ScoreHeadlines(headlines []marketdata.Headline) (float64, []int) {
	per := make([]int, len(headlines))
	var pos, neg int
	for i, h := range headlines {
		words := strings.FieldsFunc(strings.ToLower(h.Title), func(c rune) bool {
			return !unicode.IsLetter(c) && c != '-'
		})
		for _, word := range words {
			switch {
			case bullishWords[word]:
				per[i]++
				pos++
			case bearishWords[word]:
				per[i]--
				neg++
			}
		}
	}
	if pos+neg == 0 {
		return 0, per
	}
	return float64(pos-neg) / float64(pos+neg), per
}

func ClassifySentiment(score float64) string {
	switch {
	case score > 0.2:
		return "BULLISH"
	case score < -0.2:
		return "BEARISH"
	default:
		return "NEUTRAL"
	}
}
