package desk

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/tradedesk/internal/model"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newDesk(t *testing.T) *Desk {
	t.Helper()
	return Open(t.TempDir(), model.DefaultScorecardPolicy(), WithClock(func() time.Time { return fixedNow }))
}

func TestDocument_LoadMissingReturnsEmpty(t *testing.T) {
	d := newDesk(t)
	p, err := d.Portfolio.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultCash, p.Cash)
	assert.Empty(t, p.Positions)
}

func TestDocument_UpdatePersists(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()

	_, err := d.Portfolio.Update(ctx, func(p *Portfolio) error {
		p.Cash = 500
		p.Positions["BTC"] = Position{Symbol: "BTC", Quantity: 0.5, AvgPrice: 60000}
		return nil
	})
	require.NoError(t, err)

	p, err := d.Portfolio.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 500.0, p.Cash)
	assert.Equal(t, 30000.0, p.Exposure("BTC", 60000))
	assert.Zero(t, p.Exposure("ETH", 3000))
}

func TestDocument_UpdateErrorLeavesFileUntouched(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()

	_, err := d.Portfolio.Update(ctx, func(p *Portfolio) error {
		p.Cash = 1
		return errors.New("boom")
	})
	require.Error(t, err)
	_, statErr := os.Stat(d.Portfolio.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestDocument_ConcurrentUpdates(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Patterns.Update(ctx, func(p *Patterns) error {
				p.Observe("squeeze", "BTC", "", fixedNow)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := d.Patterns.Load(ctx)
	require.NoError(t, err)
	require.Len(t, p.Patterns, 1)
	assert.Equal(t, 10, p.Patterns[0].Occurrences)
}

func TestDocument_RecoversCorruptFile(t *testing.T) {
	stateDir := t.TempDir()
	d := Open(stateDir, model.DefaultScorecardPolicy())
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Dir(d.Scorecards.Path()), 0755))
	require.NoError(t, os.WriteFile(d.Scorecards.Path(), []byte("{not json"), 0644))

	s, err := d.Scorecards.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, s.Agents)

	entries, err := os.ReadDir(filepath.Join(stateDir, "quarantine"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestScorecards_Record(t *testing.T) {
	policy := model.DefaultScorecardPolicy()
	var s Scorecards

	sc := s.Record("technical-analyst", true, policy, fixedNow)
	assert.Equal(t, 1.05, sc.ConfidenceAdjustment)
	assert.Equal(t, 1.0, sc.Accuracy)

	sc = s.Record("technical-analyst", false, policy, fixedNow)
	assert.Equal(t, 0.95, sc.ConfidenceAdjustment)
	assert.Equal(t, 0.5, sc.Accuracy)
	assert.Equal(t, 2, sc.Total)
	assert.Equal(t, 1, sc.Correct)
}

func TestScorecards_RecordClamps(t *testing.T) {
	policy := model.DefaultScorecardPolicy()
	var s Scorecards

	for i := 0; i < 20; i++ {
		s.Record("loser", false, policy, fixedNow)
		s.Record("winner", true, policy, fixedNow)
	}
	assert.Equal(t, policy.Min, s.Adjustment("loser"))
	assert.Equal(t, policy.Max, s.Adjustment("winner"))
	assert.Equal(t, 1.0, s.Adjustment("newcomer"))
}

func TestScorecards_Sorted(t *testing.T) {
	var s Scorecards
	s.Record("b", true, model.DefaultScorecardPolicy(), fixedNow)
	s.Record("a", true, model.DefaultScorecardPolicy(), fixedNow)
	sorted := s.Sorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, "a", sorted[0].Agent)
}

func TestRecordAndResolvePrediction(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()

	p, err := d.RecordPrediction(ctx, Prediction{
		SessionID:  "sess_1",
		Subject:    "BTC",
		Action:     "BUY",
		Confidence: 0.7,
		Agents:     []string{"technical-analyst", "portfolio-manager"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	assert.Equal(t, fixedNow, p.CreatedAt)

	resolved, err := d.ResolvePrediction(ctx, p.ID[:8], false)
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	require.NotNil(t, resolved.Correct)
	assert.False(t, *resolved.Correct)

	adj, err := d.Adjustment(ctx, "technical-analyst")
	require.NoError(t, err)
	assert.Equal(t, 0.9, adj)
	adj, err = d.Adjustment(ctx, "portfolio-manager")
	require.NoError(t, err)
	assert.Equal(t, 0.9, adj)

	ps, err := d.Predictions.Load(ctx)
	require.NoError(t, err)
	acc, n := ps.Accuracy()
	assert.Equal(t, 1, n)
	assert.Zero(t, acc)

	_, err = d.ResolvePrediction(ctx, p.ID, true)
	assert.True(t, errors.Is(err, ErrAlreadyResolved))
}

func TestResolvePrediction_NotFound(t *testing.T) {
	d := newDesk(t)
	_, err := d.ResolvePrediction(context.Background(), "missing", true)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestObservePattern(t *testing.T) {
	d := newDesk(t)
	ctx := context.Background()

	_, err := d.ObservePattern(ctx, "bollinger-squeeze", "BTC", "bands narrowed")
	require.NoError(t, err)
	pt, err := d.ObservePattern(ctx, "bollinger-squeeze", "BTC", "")
	require.NoError(t, err)
	assert.Equal(t, 2, pt.Occurrences)
	assert.Equal(t, "bands narrowed", pt.Description)

	pt, err = d.ObservePattern(ctx, "bollinger-squeeze", "ETH", "")
	require.NoError(t, err)
	assert.Equal(t, 1, pt.Occurrences)
}
