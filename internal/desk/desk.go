package desk

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/msageha/tradedesk/internal/logger"
	"github.com/msageha/tradedesk/internal/model"
)

var ErrAlreadyResolved = errors.New("prediction already resolved")

// Desk groups the four ledgers stored under {stateDir}/desk.
type Desk struct {
	Portfolio   *Document[Portfolio]
	Predictions *Document[Predictions]
	Scorecards  *Document[Scorecards]
	Patterns    *Document[Patterns]

	policy model.ScorecardPolicy
	now    func() time.Time
}

type Option func(*Desk)

func WithClock(now func() time.Time) Option {
	return func(d *Desk) { d.now = now }
}

func Open(stateDir string, policy model.ScorecardPolicy, opts ...Option) *Desk {
	dir := filepath.Join(stateDir, "desk")
	d := &Desk{
		Portfolio: NewDocument(filepath.Join(dir, "portfolio.json"), stateDir, func() Portfolio {
			return Portfolio{Cash: DefaultCash, Positions: map[string]Position{}, Trades: []Trade{}}
		}),
		Predictions: NewDocument(filepath.Join(dir, "predictions.json"), stateDir, func() Predictions {
			return Predictions{Predictions: []Prediction{}}
		}),
		Scorecards: NewDocument(filepath.Join(dir, "agent-scorecards.json"), stateDir, func() Scorecards {
			return Scorecards{Agents: map[string]Scorecard{}}
		}),
		Patterns: NewDocument(filepath.Join(dir, "patterns.json"), stateDir, func() Patterns {
			return Patterns{Patterns: []Pattern{}}
		}),
		policy: policy,
		now:    time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Desk) Policy() model.ScorecardPolicy { return d.policy }

// RecordPrediction stores p with a fresh id.
func (d *Desk) RecordPrediction(ctx context.Context, p Prediction) (Prediction, error) {
	p.ID = uuid.NewString()
	p.CreatedAt = d.now().UTC()
	p.Resolved = false
	p.Correct = nil
	p.ResolvedAt = nil
	p.Agents = append([]string(nil), p.Agents...)

	_, err := d.Predictions.Update(ctx, func(ps *Predictions) error {
		ps.Predictions = append(ps.Predictions, p)
		return nil
	})
	if err != nil {
		return Prediction{}, errors.Wrap(err, "failed to record prediction")
	}
	logger.G(ctx).WithField("prediction", p.ID).WithField("subject", p.Subject).
		WithField("action", p.Action).Info("prediction recorded")
	return p, nil
}

// ResolvePrediction marks a prediction correct or incorrect and applies the
// outcome to the scorecard of every contributing agent. id may be a unique
// prefix.
func (d *Desk) ResolvePrediction(ctx context.Context, id string, correct bool) (Prediction, error) {
	at := d.now().UTC()
	var resolved Prediction
	_, err := d.Predictions.Update(ctx, func(ps *Predictions) error {
		i, err := lookup(ps, id)
		if err != nil {
			return err
		}
		pr := &ps.Predictions[i]
		if pr.Resolved {
			return errors.Wrapf(ErrAlreadyResolved, "%s", pr.ID)
		}
		pr.Resolved = true
		pr.Correct = &correct
		pr.ResolvedAt = &at
		resolved = *pr
		return nil
	})
	if err != nil {
		return Prediction{}, err
	}

	_, err = d.Scorecards.Update(ctx, func(s *Scorecards) error {
		for _, agent := range resolved.Agents {
			s.Record(agent, correct, d.policy, at)
		}
		return nil
	})
	if err != nil {
		return resolved, errors.Wrap(err, "failed to update scorecards")
	}

	logger.G(ctx).WithField("prediction", resolved.ID).WithField("correct", correct).
		WithField("agents", len(resolved.Agents)).Info("prediction resolved")
	return resolved, nil
}

// Adjustment returns the agent's current confidence multiplier.
func (d *Desk) Adjustment(ctx context.Context, agent string) (float64, error) {
	s, err := d.Scorecards.Load(ctx)
	if err != nil {
		return 0, err
	}
	return s.Adjustment(agent), nil
}

// ObservePattern records a sighting in patterns.json.
func (d *Desk) ObservePattern(ctx context.Context, name, subject, description string) (Pattern, error) {
	var pt Pattern
	_, err := d.Patterns.Update(ctx, func(p *Patterns) error {
		pt = p.Observe(name, subject, description, d.now().UTC())
		return nil
	})
	return pt, err
}

func lookup(ps *Predictions, id string) (int, error) {
	if i := ps.find(id); i >= 0 {
		return i, nil
	}
	match := -1
	for i, p := range ps.Predictions {
		if id != "" && strings.HasPrefix(p.ID, id) {
			if match >= 0 {
				return -1, errors.Errorf("prediction id %q is ambiguous", id)
			}
			match = i
		}
	}
	if match < 0 {
		return -1, errors.Wrapf(ErrNotFound, "prediction %s", id)
	}
	return match, nil
}
