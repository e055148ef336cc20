// Package worker defines the unit of analytical work dispatched by the
// coordinator, the built-in analysts, and the runner for external agent CLIs.
package worker

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/msageha/tradedesk/internal/model"
)

// MissingNote annotates an upstream artifact that was not produced in time.
type MissingNote struct {
	Worker string `json:"worker"`
	TaskID string `json:"task_id"`
	Label  string `json:"label"`
	Note   string `json:"note"`
}

// Input is everything a worker may read for one task.
type Input struct {
	SessionID string
	Subject   string
	Request   string
	TaskID    string
	Phase     model.PhaseIndex
	Profile   model.Profile
	// Upstream holds the body of every artifact produced by blocking tasks,
	// keyed by producer.
	Upstream map[string]string
	Missing  []MissingNote
}

// MissingFor reports the degradation note for an upstream worker.
func (in Input) MissingFor(worker string) (MissingNote, bool) {
	for _, m := range in.Missing {
		if m.Worker == worker {
			return m, true
		}
	}
	return MissingNote{}, false
}

// Worker produces the content of exactly one artifact.
type Worker interface {
	Name() string
	Run(ctx context.Context, in Input) (string, error)
}

type funcWorker struct {
	name string
	fn   func(context.Context, Input) (string, error)
}

// Func adapts a function to the Worker interface.
func Func(name string, fn func(context.Context, Input) (string, error)) Worker {
	return &funcWorker{name: name, fn: fn}
}

func (f *funcWorker) Name() string { return f.name }

func (f *funcWorker) Run(ctx context.Context, in Input) (string, error) {
	return f.fn(ctx, in)
}

// Registry resolves worker names to implementations.
type Registry struct {
	workers map[string]Worker
}

func NewRegistry(workers ...Worker) (*Registry, error) {
	r := &Registry{workers: make(map[string]Worker, len(workers))}
	for _, w := range workers {
		if err := r.Register(w); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(w Worker) error {
	if w == nil || w.Name() == "" {
		return errors.New("worker must have a name")
	}
	if _, ok := r.workers[w.Name()]; ok {
		return errors.Errorf("worker %q already registered", w.Name())
	}
	r.workers[w.Name()] = w
	return nil
}

func (r *Registry) Get(name string) (Worker, bool) {
	w, ok := r.workers[name]
	return w, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.workers))
	for n := range r.workers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
