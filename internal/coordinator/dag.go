package coordinator

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/msageha/tradedesk/internal/ledger"
	"github.com/msageha/tradedesk/internal/logger"
	"github.com/msageha/tradedesk/internal/model"
	"github.com/msageha/tradedesk/internal/router"
)

type phaseLayout struct {
	index   model.PhaseIndex
	gating  model.Gating
	workers []string
}

// fullPipeline is the fixed gather → assess-risk → decide shape of the full tier.
var fullPipeline = []phaseLayout{
	{model.PhaseGather, model.GatingBestEffort, []string{
		model.WorkerMarketMonitor,
		model.WorkerTechnicalAnalyst,
		model.WorkerNewsSentiment,
	}},
	{model.PhaseAssess, model.GatingAllOf, []string{model.WorkerRiskSpecialist}},
	{model.PhaseDecide, model.GatingAllOf, []string{model.WorkerPortfolioManager}},
}

// BuildDAG creates the session for a routing decision, opens its artifact
// directory and loads its tasks into a fresh ledger. Full tier sessions always
// get the three-phase pipeline; every other tier is a single all_of phase over
// the routed workers. Each task is blocked by every task of the phase before.
func (c *Coordinator) BuildDAG(ctx context.Context, request string, d router.Decision) (*model.Session, *ledger.Ledger, error) {
	layouts := fullPipeline
	if d.Tier != model.TierFull {
		if len(d.Workers) == 0 {
			return nil, nil, errors.Wrapf(ErrNoWorker, "tier %s routed no workers", d.Tier)
		}
		layouts = []phaseLayout{{model.PhaseGather, model.GatingAllOf, d.Workers}}
	}

	id, err := model.GenerateID(model.IDTypeSession)
	if err != nil {
		return nil, nil, err
	}
	created := c.now()
	sess := &model.Session{
		ID:        id,
		Subject:   d.Subject,
		Request:   request,
		Tier:      d.Tier,
		Status:    model.SessionRunning,
		CreatedAt: created,
	}

	var tasks []model.Task
	var previous []string
	for _, layout := range layouts {
		phase := model.Phase{Index: layout.index, Gating: layout.gating}
		for _, name := range layout.workers {
			p, err := c.profiles.Get(name)
			if err != nil {
				return nil, nil, errors.Wrapf(ErrNoWorker, "%s: %v", name, err)
			}
			if _, ok := c.workers.Get(name); !ok {
				return nil, nil, errors.Wrapf(ErrNoWorker, "%s", name)
			}
			taskID, err := model.GenerateID(model.IDTypeTask)
			if err != nil {
				return nil, nil, err
			}

			t := model.Task{
				ID:             taskID,
				Description:    layout.index.String() + ": " + p.Description,
				AssignedWorker: name,
				Label:          p.Label(),
				BlockedBy:      append([]string(nil), previous...),
				Status:         model.StatusPending,
				CreatedAt:      created,
			}
			if layout.gating == model.GatingBestEffort && p.BestEffort {
				t.BestEffort = true
				t.Timeout = p.Timeout
				if t.Timeout == 0 {
					t.Timeout = c.cfg.BestEffortTimeout
				}
			}
			tasks = append(tasks, t)
			phase.Tasks = append(phase.Tasks, taskID)
		}
		sess.Phases = append(sess.Phases, phase)
		previous = phase.Tasks
	}

	l := ledger.New(ledger.WithClock(c.now))
	if err := l.Create(tasks); err != nil {
		return nil, nil, err
	}
	if _, err := c.store.Open(sess); err != nil {
		return nil, nil, err
	}

	logger.G(ctx).WithField("session", sess.ID).WithField("tier", sess.Tier).
		WithField("subject", sess.Subject).WithField("phases", len(sess.Phases)).
		WithField("dir", sess.Dir).Info("session created")
	return sess, l, nil
}

// deadline returns when a best-effort task stops holding its phase open. The
// zero time means it never does.
func deadline(t model.Task, startedAt time.Time) time.Time {
	if !t.BestEffort || t.Timeout <= 0 {
		return time.Time{}
	}
	return startedAt.Add(t.Timeout)
}
