package worker

import (
	"context"

	"github.com/pkg/errors"

	"github.com/msageha/tradedesk/internal/model"
)

// PerformanceReviewer renders scorecards and prediction accuracy.
type PerformanceReviewer struct {
	deps Deps
}

func (w *PerformanceReviewer) Name() string { return model.WorkerPerformanceReviewer }

func (w *PerformanceReviewer) Run(ctx context.Context, in Input) (string, error) {
	if w.deps.Desk == nil {
		return "", errors.New("performance review needs the desk ledgers")
	}
	scorecards, err := w.deps.Desk.Scorecards.Load(ctx)
	if err != nil {
		return "", err
	}
	predictions, err := w.deps.Desk.Predictions.Load(ctx)
	if err != nil {
		return "", err
	}
	policy := w.deps.Desk.Policy()

	r := newReport("Performance Review")
	r.section("Predictions")
	acc, resolved := predictions.Accuracy()
	r.field("Recorded", "%d", len(predictions.Predictions))
	r.field("Resolved", "%d", resolved)
	if resolved > 0 {
		r.field("Accuracy", "%.1f%%", acc*100)
	}

	r.section("Scorecards")
	cards := scorecards.Sorted()
	if len(cards) == 0 {
		r.line("No resolved predictions yet.")
		return r.String(), nil
	}
	r.line("| Agent | Total | Correct | Accuracy | Adjustment |")
	r.line("|---|---|---|---|---|")
	var floor []string
	for _, sc := range cards {
		r.line("| %s | %d | %d | %.1f%% | %.2f |", sc.Agent, sc.Total, sc.Correct, sc.Accuracy*100, sc.ConfidenceAdjustment)
		if sc.ConfidenceAdjustment <= policy.Min+policy.Penalty {
			floor = append(floor, sc.Agent)
		}
	}
	if len(floor) > 0 {
		r.section("Attention")
		for _, a := range floor {
			r.line("- %s is at or near the confidence floor of %.2f", a, policy.Min)
		}
	}
	return r.String(), nil
}
