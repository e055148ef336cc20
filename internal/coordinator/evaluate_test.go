package coordinator

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/tradedesk/internal/artifact"
	"github.com/msageha/tradedesk/internal/ledger"
	"github.com/msageha/tradedesk/internal/model"
	"github.com/msageha/tradedesk/internal/router"
)

func fullDecision() router.Decision {
	return router.Decision{
		Tier:    model.TierFull,
		Subject: "BTC",
		Workers: []string{
			model.WorkerMarketMonitor,
			model.WorkerTechnicalAnalyst,
			model.WorkerNewsSentiment,
			model.WorkerRiskSpecialist,
			model.WorkerPortfolioManager,
		},
	}
}

func TestBuildDAG_FullShape(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	sess, l, err := h.c.BuildDAG(context.Background(), "full analysis of BTC", fullDecision())
	require.NoError(t, err)

	require.Len(t, sess.Phases, 3)
	assert.Equal(t, model.GatingBestEffort, sess.Phases[0].Gating)
	assert.Equal(t, model.GatingAllOf, sess.Phases[1].Gating)
	assert.Equal(t, model.GatingAllOf, sess.Phases[2].Gating)
	assert.Len(t, sess.Phases[0].Tasks, 3)
	assert.Len(t, sess.Phases[1].Tasks, 1)
	assert.Len(t, sess.Phases[2].Tasks, 1)

	news := taskFor(t, sess, l, model.WorkerNewsSentiment)
	assert.Empty(t, news.BlockedBy)
	assert.True(t, news.BestEffort)
	assert.Equal(t, 5*time.Minute, news.Timeout)
	assert.Equal(t, "sentiment", news.Label)

	mm := taskFor(t, sess, l, model.WorkerMarketMonitor)
	assert.Equal(t, 4*time.Minute, mm.Timeout)

	risk := taskFor(t, sess, l, model.WorkerRiskSpecialist)
	assert.ElementsMatch(t, sess.Phases[0].Tasks, risk.BlockedBy)
	assert.False(t, risk.BestEffort)

	pm := taskFor(t, sess, l, model.WorkerPortfolioManager)
	assert.Equal(t, []string{risk.ID}, pm.BlockedBy)

	assert.ElementsMatch(t, sess.Phases[0].Tasks, l.ReadyTasks())
	info, err := os.Stat(sess.Dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Contains(t, sess.Dir, "2026-03-02-btc")
}

func TestBuildDAG_SinglePhaseTiers(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	d := router.Decision{
		Tier:    model.TierStandard,
		Subject: "ETH",
		Workers: []string{model.WorkerTechnicalAnalyst, model.WorkerRiskSpecialist},
	}
	sess, l, err := h.c.BuildDAG(context.Background(), "eth rsi", d)
	require.NoError(t, err)

	require.Len(t, sess.Phases, 1)
	assert.Equal(t, model.GatingAllOf, sess.Phases[0].Gating)
	for _, id := range sess.Phases[0].Tasks {
		task, err := l.Get(id)
		require.NoError(t, err)
		assert.False(t, task.BestEffort, "all_of phases never time out")
		assert.Empty(t, task.BlockedBy)
	}
}

func TestBuildDAG_UnknownWorker(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	_, _, err := h.c.BuildDAG(context.Background(), "x", router.Decision{
		Tier: model.TierQuick, Subject: "BTC", Workers: []string{"astrologer"},
	})
	assert.True(t, errors.Is(err, ErrNoWorker))

	_, _, err = h.c.BuildDAG(context.Background(), "x", router.Decision{Tier: model.TierQuick, Subject: "BTC"})
	assert.True(t, errors.Is(err, ErrNoWorker))
}

func TestBuildDAG_RiskBlockedUntilGatherCompletes(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	sess, l, err := h.c.BuildDAG(context.Background(), "full analysis", fullDecision())
	require.NoError(t, err)

	risk := taskFor(t, sess, l, model.WorkerRiskSpecialist)
	mm := taskFor(t, sess, l, model.WorkerMarketMonitor)
	require.NoError(t, l.MarkInProgress(mm.ID))
	require.NoError(t, l.MarkCompleted(mm.ID))

	err = l.MarkInProgress(risk.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrDependencyViolation))
	var dv *ledger.DependencyViolation
	require.True(t, errors.As(err, &dv))
	assert.Len(t, dv.Unsatisfied, 2)
}

// gather starts every phase-1 task and completes the given workers.
func gather(t *testing.T, h *harness, sess *model.Session, l *ledger.Ledger, done ...string) {
	t.Helper()
	for _, id := range sess.Phases[0].Tasks {
		require.NoError(t, l.MarkInProgress(id))
	}
	for _, name := range done {
		task := taskFor(t, sess, l, name)
		_, err := h.c.Store().Write(context.Background(), sess.ID, name, artifact.Meta{Phase: 1}, "# "+name+"\n")
		require.NoError(t, err)
		require.NoError(t, l.MarkCompleted(task.ID))
	}
}

func TestEvaluatePhase_TimeoutDegradesMissingArtifact(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	sess, l, err := h.c.BuildDAG(context.Background(), "full analysis", fullDecision())
	require.NoError(t, err)
	start := h.clock.Now()

	// market-monitor at t=10s, technical-analyst at t=40s, news never.
	gather(t, h, sess, l, model.WorkerMarketMonitor, model.WorkerTechnicalAnalyst)
	news := taskFor(t, sess, l, model.WorkerNewsSentiment)

	ev, err := EvaluatePhase(sess, sess.Phases[0], l, h.c.Store(), start, start.Add(299*time.Second))
	require.NoError(t, err)
	assert.False(t, ev.Satisfied)
	assert.Equal(t, []string{news.ID}, ev.Waiting)
	assert.Empty(t, ev.Resolved)
	assert.Equal(t, start.Add(5*time.Minute), ev.NextDeadline)

	ev, err = EvaluatePhase(sess, sess.Phases[0], l, h.c.Store(), start, start.Add(300*time.Second))
	require.NoError(t, err)
	assert.True(t, ev.Satisfied)
	require.Len(t, ev.Resolved, 1)
	assert.Equal(t, news.ID, ev.Resolved[0].TaskID)
	assert.False(t, ev.Resolved[0].Late)
	assert.Equal(t, "timeout — proceeding without sentiment data", ev.Resolved[0].Note)

	// Pure: nothing was applied.
	task, err := l.Get(news.ID)
	require.NoError(t, err)
	assert.False(t, task.Waived)
}

func TestEvaluatePhase_LateArtifactCountsAsCompleted(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	sess, l, err := h.c.BuildDAG(context.Background(), "full analysis", fullDecision())
	require.NoError(t, err)
	start := h.clock.Now()

	gather(t, h, sess, l, model.WorkerMarketMonitor, model.WorkerTechnicalAnalyst)
	_, err = h.c.Store().Write(context.Background(), sess.ID, model.WorkerNewsSentiment, artifact.Meta{Phase: 1}, "# late\n")
	require.NoError(t, err)

	ev, err := EvaluatePhase(sess, sess.Phases[0], l, h.c.Store(), start, start.Add(5*time.Minute))
	require.NoError(t, err)
	assert.True(t, ev.Satisfied)
	require.Len(t, ev.Resolved, 1)
	assert.True(t, ev.Resolved[0].Late)
	assert.Empty(t, ev.Resolved[0].Note)
}

func TestEvaluatePhase_AllCompleteBeforeTimeout(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	sess, l, err := h.c.BuildDAG(context.Background(), "full analysis", fullDecision())
	require.NoError(t, err)
	start := h.clock.Now()

	gather(t, h, sess, l, model.WorkerMarketMonitor, model.WorkerTechnicalAnalyst)
	ev, err := EvaluatePhase(sess, sess.Phases[0], l, h.c.Store(), start, start.Add(49*time.Second))
	require.NoError(t, err)
	assert.False(t, ev.Satisfied)

	news := taskFor(t, sess, l, model.WorkerNewsSentiment)
	require.NoError(t, l.MarkCompleted(news.ID))
	ev, err = EvaluatePhase(sess, sess.Phases[0], l, h.c.Store(), start, start.Add(50*time.Second))
	require.NoError(t, err)
	assert.True(t, ev.Satisfied)
	assert.Empty(t, ev.Resolved)
	assert.True(t, ev.NextDeadline.IsZero())
}

func TestEvaluatePhase_AllOfNeverTimesOut(t *testing.T) {
	h := newHarness(t, testConfig(), nil)
	sess, l, err := h.c.BuildDAG(context.Background(), "full analysis", fullDecision())
	require.NoError(t, err)
	start := h.clock.Now()

	gather(t, h, sess, l, model.WorkerMarketMonitor, model.WorkerTechnicalAnalyst, model.WorkerNewsSentiment)
	risk := taskFor(t, sess, l, model.WorkerRiskSpecialist)
	require.NoError(t, l.MarkInProgress(risk.ID))

	ev, err := EvaluatePhase(sess, sess.Phases[1], l, h.c.Store(), start, start.Add(24*time.Hour))
	require.NoError(t, err)
	assert.False(t, ev.Satisfied)
	assert.Equal(t, []string{risk.ID}, ev.Waiting)
	assert.Empty(t, ev.Resolved)
	assert.True(t, ev.NextDeadline.IsZero())
}
