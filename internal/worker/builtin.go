package worker

import (
	"time"

	"github.com/pkg/errors"

	"github.com/msageha/tradedesk/internal/desk"
	"github.com/msageha/tradedesk/internal/marketdata"
	"github.com/msageha/tradedesk/internal/model"
)

// Deps are the shared services the built-in workers read from.
type Deps struct {
	Source marketdata.Source
	// Desk may be nil, in which case no prediction or pattern is recorded
	// and scorecard adjustments default to 1.0.
	Desk *desk.Desk
	Now  func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Builtin returns the built-in worker with the given name.
func Builtin(name string, deps Deps) (Worker, error) {
	switch name {
	case model.WorkerMarketMonitor:
		return &MarketMonitor{deps: deps}, nil
	case model.WorkerTechnicalAnalyst:
		return &TechnicalAnalyst{deps: deps}, nil
	case model.WorkerNewsSentiment:
		return &NewsSentiment{deps: deps}, nil
	case model.WorkerRiskSpecialist:
		return &RiskSpecialist{deps: deps}, nil
	case model.WorkerPortfolioManager:
		return &PortfolioManager{deps: deps}, nil
	case model.WorkerPerformanceReviewer:
		return &PerformanceReviewer{deps: deps}, nil
	default:
		return nil, errors.Errorf("no built-in worker named %q", name)
	}
}

// FromProfiles builds a registry with one worker per profile: the built-in
// implementation for runner builtin, an external command otherwise.
func FromProfiles(profiles []model.Profile, deps Deps) (*Registry, error) {
	r := &Registry{workers: make(map[string]Worker, len(profiles))}
	for _, p := range profiles {
		var w Worker
		var err error
		switch p.Runner {
		case model.RunnerCommand:
			w, err = NewCommandWorker(p)
		default:
			w, err = Builtin(p.Name, deps)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "profile %s", p.Name)
		}
		if err := r.Register(w); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func requireSource(deps Deps) error {
	if deps.Source == nil {
		return errors.New("no market data source configured")
	}
	return nil
}
