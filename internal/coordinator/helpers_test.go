package coordinator

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/msageha/tradedesk/internal/events"
	"github.com/msageha/tradedesk/internal/history"
	"github.com/msageha/tradedesk/internal/ledger"
	"github.com/msageha/tradedesk/internal/model"
	"github.com/msageha/tradedesk/internal/profile"
	"github.com/msageha/tradedesk/internal/router"
	"github.com/msageha/tradedesk/internal/worker"
	"github.com/msageha/tradedesk/templates"
)

type fakeClock struct {
	mu   sync.Mutex
	base time.Time
	now  time.Time
}

func newFakeClock() *fakeClock {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return &fakeClock{base: base, now: base}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AdvanceTo moves the clock to base+d unless it is already past it.
func (c *fakeClock) AdvanceTo(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t := c.base.Add(d); t.After(c.now) {
		c.now = t
	}
}

func (c *fakeClock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(c.base)
}

type harness struct {
	c       *Coordinator
	clock   *fakeClock
	bus     *events.Bus
	history *history.Store
	root    string
}

func testConfig() model.CoordinatorConfig {
	return model.CoordinatorConfig{
		PollInterval:      5 * time.Millisecond,
		BestEffortTimeout: 4 * time.Minute,
		WatchArtifacts:    true,
	}
}

func stub(name string) worker.Worker {
	return worker.Func(name, func(_ context.Context, in worker.Input) (string, error) {
		return fmt.Sprintf("# %s %s\n\n- **Worker:** %s\n", in.Subject, name, name), nil
	})
}

// newHarness wires a coordinator over the embedded profiles, reading time from
// clock. Workers not in overrides answer immediately with a stub report.
func newHarness(t *testing.T, cfg model.CoordinatorConfig, clock *fakeClock, overrides ...worker.Worker) *harness {
	t.Helper()
	if clock == nil {
		clock = newFakeClock()
	}
	h := newHarnessIn(t, cfg, clock.Now, "", overrides...)
	h.clock = clock
	return h
}

// newHarnessIn is newHarness with a custom time source and a profile
// override directory.
func newHarnessIn(t *testing.T, cfg model.CoordinatorConfig, now func() time.Time, profilesDir string, overrides ...worker.Worker) *harness {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	if profilesDir == "" {
		profilesDir = filepath.Join(dir, "no-overrides")
	}

	profiles, err := profile.Load(ctx, profilesDir)
	require.NoError(t, err)

	byName := make(map[string]worker.Worker)
	for _, w := range overrides {
		byName[w.Name()] = w
	}
	reg, err := worker.NewRegistry()
	require.NoError(t, err)
	for _, name := range profiles.Names() {
		w, ok := byName[name]
		if !ok {
			w = stub(name)
		}
		require.NoError(t, reg.Register(w))
	}

	rt, err := router.New(nil)
	require.NoError(t, err)

	hist, err := history.Open(ctx, filepath.Join(dir, history.DefaultFile))
	require.NoError(t, err)
	t.Cleanup(func() { hist.Close() })

	bus := events.NewBus(100)
	root := filepath.Join(dir, "reports")

	c, err := New(Options{
		Config:   cfg,
		Router:   rt,
		Profiles: profiles,
		Workers:  reg,
		Store:    NewStore(root, profiles),
		Bus:      bus,
		History:  hist,
		StateDir: filepath.Join(dir, "state"),
		Now:      now,
	})
	require.NoError(t, err)
	return &harness{c: c, bus: bus, history: hist, root: root}
}

// completions returns a channel receiving the worker name of every
// task_completed event.
func (h *harness) completions() <-chan string {
	ch := make(chan string, 16)
	h.bus.Subscribe(events.EventTaskCompleted, func(e events.Event) {
		ch <- e.Data["worker"].(string)
	})
	return ch
}

func waitFor(t *testing.T, ch <-chan string, n int) []string {
	t.Helper()
	var got []string
	timeout := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case name := <-ch:
			got = append(got, name)
		case <-timeout:
			t.Fatalf("timed out waiting for %d completions, got %v", n, got)
		}
	}
	return got
}

func taskFor(t *testing.T, s *model.Session, l *ledger.Ledger, worker string) model.Task {
	t.Helper()
	for _, id := range s.TaskIDs() {
		task, err := l.Get(id)
		require.NoError(t, err)
		if task.AssignedWorker == worker {
			return task
		}
	}
	t.Fatalf("no task for %s", worker)
	return model.Task{}
}

// profileTimeout writes an override of the embedded profile name with its
// timeout replaced by d and returns the override directory.
func profileTimeout(t *testing.T, name string, d time.Duration) string {
	t.Helper()
	content, err := templates.FS.ReadFile(path.Join(templates.AgentsDir, name+".md"))
	require.NoError(t, err)
	out := regexp.MustCompile(`(?m)^timeout: .*$`).ReplaceAll(content, []byte("timeout: "+d.String()))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".md"), out, 0o644))
	return dir
}
