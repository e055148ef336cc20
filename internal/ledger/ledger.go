// Package ledger tracks dependency-gated task state for one analysis session.
package ledger

import (
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/msageha/tradedesk/internal/fsio"
	"github.com/msageha/tradedesk/internal/lock"
	"github.com/msageha/tradedesk/internal/model"
)

// Ledger holds the task records of a session. Each mark_* transition runs
// under the task's own key lock so the dependency check and the status flip
// are atomic per task id.
type Ledger struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task
	order []string
	depth map[string]int
	keys  *lock.MutexMap
	now   func() time.Time
}

type Option func(*Ledger)

// WithClock overrides the time source used for transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(opts ...Option) *Ledger {
	l := &Ledger{
		tasks: make(map[string]*model.Task),
		depth: make(map[string]int),
		keys:  lock.NewMutexMap(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create inserts tasks in bulk. The combined graph of existing and new tasks
// must reference only known ids and be acyclic; nothing is inserted when
// validation fails.
func (l *Ledger) Create(tasks []model.Task) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var result *multierror.Error
	incoming := make(map[string]bool, len(tasks))
	for i, t := range tasks {
		switch {
		case t.ID == "":
			result = multierror.Append(result, errors.Errorf("tasks[%d]: id is required", i))
		case incoming[t.ID] || l.tasks[t.ID] != nil:
			result = multierror.Append(result, errors.Errorf("tasks[%d]: duplicate id %s", i, t.ID))
		}
		incoming[t.ID] = true
		if t.Status != "" && t.Status != model.StatusPending {
			result = multierror.Append(result, errors.Errorf("tasks[%d]: new task %s must be pending, got %s", i, t.ID, t.Status))
		}
	}
	for _, t := range tasks {
		for j, dep := range t.BlockedBy {
			if dep == t.ID {
				result = multierror.Append(result, errors.Errorf("%s.blocked_by[%d]: self-reference is not allowed", t.ID, j))
				continue
			}
			if !incoming[dep] && l.tasks[dep] == nil {
				result = multierror.Append(result, errors.Errorf("%s.blocked_by[%d]: references unknown task %q", t.ID, j, dep))
			}
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return errors.Wrap(err, "invalid task graph")
	}

	nodes := make([]string, 0, len(l.tasks)+len(tasks))
	edges := make(map[string][]string, len(l.tasks)+len(tasks))
	for id, t := range l.tasks {
		nodes = append(nodes, id)
		edges[id] = t.BlockedBy
	}
	for _, t := range tasks {
		nodes = append(nodes, t.ID)
		edges[t.ID] = t.BlockedBy
	}
	order, depth, err := topoOrder(nodes, edges)
	if err != nil {
		return err
	}

	created := l.now()
	for _, t := range tasks {
		c := t.Clone()
		c.Status = model.StatusPending
		if c.CreatedAt.IsZero() {
			c.CreatedAt = created
		}
		l.tasks[c.ID] = &c
	}
	l.order = order
	l.depth = depth
	return nil
}

// MarkInProgress moves a pending task to in_progress. Every blocked_by entry
// must be completed or waived, otherwise a *DependencyViolation is returned.
func (l *Ledger) MarkInProgress(id string) error {
	l.keys.Lock(id)
	defer l.keys.Unlock(id)

	l.mu.RLock()
	t, ok := l.tasks[id]
	if !ok {
		l.mu.RUnlock()
		return errors.Wrapf(ErrUnknownTask, "%s", id)
	}
	status := t.Status
	unsatisfied := l.unsatisfiedLocked(t)
	l.mu.RUnlock()

	if len(unsatisfied) > 0 {
		return &DependencyViolation{TaskID: id, Unsatisfied: unsatisfied}
	}
	if err := model.ValidateTaskTransition(status, model.StatusInProgress); err != nil {
		return errors.Wrap(ErrInvalidTransition, err.Error())
	}

	// Dependencies only ever move forward, so the check above still holds.
	l.mu.Lock()
	now := l.now()
	t.Status = model.StatusInProgress
	t.StartedAt = &now
	l.mu.Unlock()
	return nil
}

// MarkCompleted moves an in_progress task to completed.
func (l *Ledger) MarkCompleted(id string) error {
	l.keys.Lock(id)
	defer l.keys.Unlock(id)

	l.mu.RLock()
	t, ok := l.tasks[id]
	if !ok {
		l.mu.RUnlock()
		return errors.Wrapf(ErrUnknownTask, "%s", id)
	}
	status := t.Status
	unsatisfied := l.unsatisfiedLocked(t)
	l.mu.RUnlock()

	if len(unsatisfied) > 0 {
		return &DependencyViolation{TaskID: id, Unsatisfied: unsatisfied}
	}
	if err := model.ValidateTaskTransition(status, model.StatusCompleted); err != nil {
		return errors.Wrap(ErrInvalidTransition, err.Error())
	}

	l.mu.Lock()
	now := l.now()
	t.Status = model.StatusCompleted
	t.CompletedAt = &now
	l.mu.Unlock()
	return nil
}

// Waive records a timeout degradation on a best-effort task. The task keeps
// its own status, but downstream dependency checks treat it as satisfied.
func (l *Ledger) Waive(id, reason string) error {
	l.keys.Lock(id)
	defer l.keys.Unlock(id)

	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.tasks[id]
	if !ok {
		return errors.Wrapf(ErrUnknownTask, "%s", id)
	}
	if !t.BestEffort {
		return errors.Wrapf(ErrInvalidTransition, "task %s is not best-effort and cannot be waived", id)
	}
	if t.Status == model.StatusCompleted {
		return errors.Wrapf(ErrInvalidTransition, "task %s is already completed", id)
	}
	t.Waived = true
	t.WaiveReason = reason
	return nil
}

// ReadyTasks returns pending tasks whose dependencies are all satisfied,
// ordered by (depth, id).
func (l *Ledger) ReadyTasks() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var ready []string
	for _, id := range l.order {
		t := l.tasks[id]
		if t.Status == model.StatusPending && len(l.unsatisfiedLocked(t)) == 0 {
			ready = append(ready, id)
		}
	}
	return ready
}

func (l *Ledger) Get(id string) (model.Task, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.tasks[id]
	if !ok {
		return model.Task{}, errors.Wrapf(ErrUnknownTask, "%s", id)
	}
	return t.Clone(), nil
}

// Satisfied reports whether id counts as done for its dependents.
func (l *Ledger) Satisfied(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.tasks[id]
	return ok && satisfied(t)
}

// Tasks returns the ids known to the ledger ordered by (depth, id).
func (l *Ledger) Tasks() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.order...)
}

// Snapshot returns copies of every task ordered by (depth, id).
func (l *Ledger) Snapshot() []model.Task {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.Task, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.tasks[id].Clone())
	}
	return out
}

type snapshotFile struct {
	SavedAt time.Time    `yaml:"saved_at"`
	Tasks   []model.Task `yaml:"tasks"`
}

// SaveSnapshot atomically writes the ledger state as YAML.
func (l *Ledger) SaveSnapshot(path string) error {
	snap := snapshotFile{SavedAt: l.now().UTC(), Tasks: l.Snapshot()}
	return errors.Wrap(fsio.WriteYAML(path, snap), "save ledger snapshot")
}

// Discard drops every record. The ledger is empty afterwards.
func (l *Ledger) Discard() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.tasks = make(map[string]*model.Task)
	l.order = nil
	l.depth = make(map[string]int)
	l.keys.Reset()
}

// Depth returns the dependency depth of id; root tasks have depth 0.
func (l *Ledger) Depth(id string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.depth[id]
}

func (l *Ledger) unsatisfiedLocked(t *model.Task) []string {
	var out []string
	for _, dep := range t.BlockedBy {
		d, ok := l.tasks[dep]
		if !ok || !satisfied(d) {
			out = append(out, dep)
		}
	}
	return out
}

func satisfied(t *model.Task) bool {
	return t.Status == model.StatusCompleted || t.Waived
}
