// Package coordinator routes requests, builds the phase DAG of a session and
// drives phase-gated dispatch of workers until the consolidated report is
// written.
package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/msageha/tradedesk/internal/artifact"
	"github.com/msageha/tradedesk/internal/events"
	"github.com/msageha/tradedesk/internal/history"
	"github.com/msageha/tradedesk/internal/ledger"
	"github.com/msageha/tradedesk/internal/logger"
	"github.com/msageha/tradedesk/internal/model"
	"github.com/msageha/tradedesk/internal/profile"
	"github.com/msageha/tradedesk/internal/router"
	"github.com/msageha/tradedesk/internal/telemetry"
	"github.com/msageha/tradedesk/internal/worker"
)

var (
	ErrWorkerFailed = errors.New("worker failed")
	ErrNoWorker     = errors.New("no worker for task")
)

const defaultPollInterval = 2 * time.Second

// Options wires a Coordinator. Bus and History are optional; StateDir enables
// ledger snapshots under {StateDir}/sessions.
type Options struct {
	Config   model.CoordinatorConfig
	Router   *router.Router
	Profiles *profile.Set
	Workers  *worker.Registry
	Store    *artifact.Store
	Bus      *events.Bus
	History  *history.Store
	StateDir string
	Now      func() time.Time
}

type Coordinator struct {
	cfg      model.CoordinatorConfig
	router   *router.Router
	profiles *profile.Set
	workers  *worker.Registry
	store    *artifact.Store
	bus      *events.Bus
	history  *history.Store
	stateDir string
	now      func() time.Time
}

func New(opts Options) (*Coordinator, error) {
	switch {
	case opts.Router == nil:
		return nil, errors.New("coordinator: router is required")
	case opts.Profiles == nil:
		return nil, errors.New("coordinator: profiles are required")
	case opts.Workers == nil:
		return nil, errors.New("coordinator: worker registry is required")
	case opts.Store == nil:
		return nil, errors.New("coordinator: artifact store is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		cfg:      opts.Config,
		router:   opts.Router,
		profiles: opts.Profiles,
		workers:  opts.Workers,
		store:    opts.Store,
		bus:      opts.Bus,
		history:  opts.History,
		stateDir: opts.StateDir,
		now:      now,
	}, nil
}

// NewStore returns an artifact store that names each report after its
// worker's profile, plus the consolidated report of the coordinator.
func NewStore(root string, profiles *profile.Set, opts ...artifact.Option) *artifact.Store {
	names := profiles.ReportNames()
	names[model.ProducerCoordinator] = ConsolidatedReport
	return artifact.NewStore(root, append([]artifact.Option{artifact.WithReportNames(names)}, opts...)...)
}

func (c *Coordinator) Store() *artifact.Store { return c.store }

func (c *Coordinator) Route(request string) router.Decision {
	return c.router.Route(request)
}

// Session is a running analysis: the session record, its task ledger and the
// degradations applied so far.
type Session struct {
	*model.Session
	Ledger   *ledger.Ledger
	Decision router.Decision

	mu      sync.Mutex
	missing []worker.MissingNote
	late    []string
	cancels map[string]context.CancelFunc
}

func (s *Session) Missing() []worker.MissingNote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]worker.MissingNote(nil), s.missing...)
}

// Late returns the ids of tasks completed from an artifact found at timeout.
func (s *Session) Late() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.late...)
}

func (s *Session) track(taskID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancels[taskID] = cancel
	s.mu.Unlock()
}

func (s *Session) cancel(taskID string) {
	s.mu.Lock()
	cancel := s.cancels[taskID]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.cancels {
		cancel()
	}
}

type outcome struct {
	taskID string
	err    error
}

// Run routes request, runs every phase of the session in order and returns
// the consolidated report.
func (c *Coordinator) Run(ctx context.Context, request string) (*ConsolidatedArtifact, error) {
	return c.RunDecision(ctx, request, c.router.Route(request))
}

// RunDecision runs a session for an already routed request.
func (c *Coordinator) RunDecision(ctx context.Context, request string, d router.Decision) (*ConsolidatedArtifact, error) {
	if c.cfg.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.SessionTimeout)
		defer cancel()
	}
	ctx = logger.WithFields(ctx, logrus.Fields{"tier": d.Tier, "subject": d.Subject})

	var result *ConsolidatedArtifact
	err := telemetry.WithSpan(ctx, "coordinator.run", func(ctx context.Context) error {
		sess, l, err := c.BuildDAG(ctx, request, d)
		if err != nil {
			return err
		}
		s := &Session{Session: sess, Ledger: l, Decision: d, cancels: make(map[string]context.CancelFunc)}
		ctx = logger.WithFields(ctx, logrus.Fields{"session": sess.ID})
		telemetry.SetAttributes(ctx, attribute.String("session", sess.ID))

		for _, phase := range sess.Phases {
			if err := c.runPhase(ctx, s, phase); err != nil {
				c.abort(ctx, s, err)
				return err
			}
		}
		result, err = c.Finalize(ctx, s)
		return err
	}, attribute.String("tier", string(d.Tier)), attribute.String("subject", d.Subject))
	return result, err
}

func (c *Coordinator) runPhase(ctx context.Context, s *Session, phase model.Phase) error {
	return telemetry.WithSpan(ctx, "coordinator.phase", func(ctx context.Context) error {
		ctx = logger.WithFields(ctx, logrus.Fields{"phase": phase.Index.String()})
		log := logger.G(ctx)

		base, err := c.upstream(s, phase)
		if err != nil {
			return err
		}

		var wake <-chan struct{}
		if c.cfg.WatchArtifacts {
			w, err := NewWatcher(ctx, s.Dir)
			if err != nil {
				log.WithError(err).Warn("artifact watcher unavailable, polling only")
			} else {
				defer w.Close()
				wake = w.C()
			}
		}

		startedAt := c.now()
		c.publish(events.EventPhaseStarted, s.ID, map[string]any{
			"phase":  int(phase.Index),
			"gating": string(phase.Gating),
			"tasks":  len(phase.Tasks),
		})
		log.WithField("tasks", len(phase.Tasks)).WithField("gating", phase.Gating).Info("phase started")

		outcomes := make(chan outcome, len(phase.Tasks))
		for _, id := range phase.Tasks {
			tctx, cancel := context.WithCancel(ctx)
			s.track(id, cancel)
			go c.execute(tctx, cancel, s, phase, id, base, outcomes)
		}

		ticker := time.NewTicker(c.pollInterval())
		defer ticker.Stop()
		timer := time.NewTimer(0)
		timer.Stop()
		defer timer.Stop()

		for {
			ev, err := EvaluatePhase(s.Session, phase, s.Ledger, c.store, startedAt, c.now())
			if err != nil {
				return err
			}
			for _, r := range ev.Resolved {
				c.resolve(ctx, s, phase, r)
			}
			if ev.Satisfied {
				break
			}

			// The next best-effort timeout wakes the loop without waiting for a tick.
			var expired <-chan time.Time
			if !ev.NextDeadline.IsZero() {
				timer.Reset(max(ev.NextDeadline.Sub(c.now()), 0))
				expired = timer.C
			}

			select {
			case o := <-outcomes:
				if err := c.handle(ctx, s, o); err != nil {
					return err
				}
			case <-ticker.C:
			case <-expired:
			case <-wake:
			case <-ctx.Done():
				return errors.Wrapf(ctx.Err(), "phase %s", phase.Index)
			}
		}

		c.publish(events.EventPhaseCompleted, s.ID, map[string]any{
			"phase":    int(phase.Index),
			"duration": c.now().Sub(startedAt).String(),
		})
		log.Info("phase completed")
		c.snapshot(ctx, s)
		return nil
	}, attribute.String("session", s.ID), attribute.Int("phase", int(phase.Index)))
}

// upstream collects what every task of phase may read: the reports of all
// earlier completed tasks and the notes of the degraded ones.
func (c *Coordinator) upstream(s *Session, phase model.Phase) (worker.Input, error) {
	in := worker.Input{
		SessionID: s.ID,
		Subject:   s.Subject,
		Request:   s.Request,
		Phase:     phase.Index,
		Upstream:  make(map[string]string),
		Missing:   s.Missing(),
	}
	for _, p := range s.Phases {
		if p.Index >= phase.Index {
			break
		}
		for _, id := range p.Tasks {
			t, err := s.Ledger.Get(id)
			if err != nil {
				return worker.Input{}, err
			}
			if t.Status != model.StatusCompleted || t.Waived {
				continue
			}
			a, err := c.store.Read(s.ID, t.AssignedWorker)
			if err != nil {
				return worker.Input{}, errors.Wrapf(err, "upstream report of %s", t.AssignedWorker)
			}
			in.Upstream[t.AssignedWorker] = a.Body
		}
	}
	return in, nil
}

func (c *Coordinator) execute(ctx context.Context, cancel context.CancelFunc, s *Session, phase model.Phase, taskID string, base worker.Input, out chan<- outcome) {
	defer cancel()
	out <- outcome{taskID: taskID, err: c.dispatch(ctx, s, phase, taskID, base)}
}

// dispatch is the worker handle of one task: mark in progress, run, publish
// the report, mark completed.
func (c *Coordinator) dispatch(ctx context.Context, s *Session, phase model.Phase, taskID string, in worker.Input) error {
	t, err := s.Ledger.Get(taskID)
	if err != nil {
		return err
	}
	name := t.AssignedWorker
	ctx = logger.WithFields(ctx, logrus.Fields{"task": taskID, "worker": name})
	log := logger.G(ctx)

	w, ok := c.workers.Get(name)
	if !ok {
		return errors.Wrapf(ErrNoWorker, "%s", name)
	}
	p, err := c.profiles.Get(name)
	if err != nil {
		return err
	}

	if err := s.Ledger.MarkInProgress(taskID); err != nil {
		return err
	}
	c.publish(events.EventTaskDispatched, s.ID, map[string]any{
		"task_id": taskID,
		"worker":  name,
		"phase":   int(phase.Index),
	})
	log.Debug("task dispatched")

	in.TaskID = taskID
	in.Profile = p

	var content string
	err = telemetry.WithSpan(ctx, "worker.run", func(ctx context.Context) error {
		var err error
		content, err = w.Run(ctx, in)
		return err
	}, attribute.String("session", s.ID), attribute.String("task", taskID), attribute.String("worker", name))
	if err != nil {
		return err
	}

	if cur, err := s.Ledger.Get(taskID); err == nil && cur.Waived {
		log.Info("discarding report of degraded task")
		return nil
	}

	if _, err := c.store.Write(ctx, s.ID, name, artifact.Meta{Subject: s.Subject, Phase: int(phase.Index)}, content); err != nil {
		if !errors.Is(err, artifact.ErrAlreadyWritten) {
			return err
		}
		log.Info("report was already published")
	}
	if err := s.Ledger.MarkCompleted(taskID); err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			// Completed by the timeout check in the meantime.
			return nil
		}
		return err
	}
	c.publish(events.EventTaskCompleted, s.ID, map[string]any{"task_id": taskID, "worker": name})
	log.Info("task completed")
	return nil
}

// handle reacts to a finished worker. Errors of best-effort tasks degrade
// the task at once; any other worker error fails the session.
func (c *Coordinator) handle(ctx context.Context, s *Session, o outcome) error {
	if o.err == nil {
		return nil
	}
	t, err := s.Ledger.Get(o.taskID)
	if err != nil {
		return err
	}
	if t.Waived || t.Status == model.StatusCompleted {
		return nil
	}

	log := logger.G(ctx).WithField("task", t.ID).WithField("worker", t.AssignedWorker).WithError(o.err)
	if !t.BestEffort {
		log.Error("worker failed")
		return errors.Wrapf(ErrWorkerFailed, "%s: %v", t.AssignedWorker, o.err)
	}
	log.Warn("best-effort worker failed")
	c.degrade(ctx, s, t, FailureNote(t.Label), o.err.Error())
	return nil
}

func (c *Coordinator) resolve(ctx context.Context, s *Session, phase model.Phase, r Resolution) {
	t, err := s.Ledger.Get(r.TaskID)
	if err != nil {
		return
	}
	if !r.Late {
		s.cancel(r.TaskID)
		c.degrade(ctx, s, t, r.Note, "")
		return
	}

	log := logger.G(ctx).WithField("task", r.TaskID).WithField("worker", r.Worker)
	if err := s.Ledger.MarkCompleted(r.TaskID); err != nil && !errors.Is(err, ledger.ErrInvalidTransition) {
		log.WithError(err).Warn("failed to complete late task")
		return
	}
	s.cancel(r.TaskID)
	s.mu.Lock()
	s.late = append(s.late, r.TaskID)
	s.mu.Unlock()
	c.publish(events.EventTaskLateCompleted, s.ID, map[string]any{
		"task_id": r.TaskID,
		"worker":  r.Worker,
		"phase":   int(phase.Index),
	})
	log.Info("late report accepted at timeout")
}

func (c *Coordinator) degrade(ctx context.Context, s *Session, t model.Task, note, cause string) {
	log := logger.G(ctx).WithField("task", t.ID).WithField("worker", t.AssignedWorker)
	if err := s.Ledger.Waive(t.ID, note); err != nil {
		log.WithError(err).Debug("task not degraded")
		return
	}
	s.mu.Lock()
	s.missing = append(s.missing, worker.MissingNote{
		Worker: t.AssignedWorker,
		TaskID: t.ID,
		Label:  t.Label,
		Note:   note,
	})
	s.mu.Unlock()

	data := map[string]any{"task_id": t.ID, "worker": t.AssignedWorker, "note": note}
	if cause != "" {
		data["error"] = cause
	}
	c.publish(events.EventTaskDegraded, s.ID, data)
	log.WithField("note", note).Warn("task degraded")
}

func (c *Coordinator) abort(ctx context.Context, s *Session, cause error) {
	ctx = context.WithoutCancel(ctx)
	s.cancelAll()
	s.Status = model.SessionFailed
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		s.Status = model.SessionAborted
	}
	c.snapshot(ctx, s)
	c.archive(ctx, s, "")
	c.store.Close(s.ID)
	logger.G(ctx).WithError(cause).WithField("status", s.Status).Error("session stopped")
}

func (c *Coordinator) snapshot(ctx context.Context, s *Session) {
	if c.stateDir == "" {
		return
	}
	path := c.snapshotPath(s.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to create snapshot dir")
		return
	}
	if err := s.Ledger.SaveSnapshot(path); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to save ledger snapshot")
	}
}

func (c *Coordinator) snapshotPath(sessionID string) string {
	return filepath.Join(c.stateDir, "sessions", sessionID+".yaml")
}

func (c *Coordinator) publish(t events.EventType, sessionID string, data map[string]any) {
	if c.bus != nil {
		c.bus.Publish(t, sessionID, data)
	}
}

func (c *Coordinator) pollInterval() time.Duration {
	if c.cfg.PollInterval > 0 {
		return c.cfg.PollInterval
	}
	return defaultPollInterval
}
