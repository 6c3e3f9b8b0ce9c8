package enrich

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mg-platform/enrich-cli/internal/config"
	"github.com/mg-platform/enrich-cli/internal/fallback"
	"github.com/mg-platform/enrich-cli/internal/model"
	"github.com/mg-platform/enrich-cli/internal/quality"
	"github.com/mg-platform/enrich-cli/internal/search"
)

func namedRecords(n int) []model.CompanyRecord {
	recs := make([]model.CompanyRecord, n)
	for i := range recs {
		recs[i] = model.CompanyRecord{
			Identifier:    fmt.Sprintf("123456789%05d", i+1),
			DeclaredName:  fmt.Sprintf("Company %d", i+1),
			Locality:      "Meaux",
			ActivityLabel: "Conseil en gestion",
			Row:           i,
		}
	}
	return recs
}

func assertTotals(t *testing.T, res *model.BatchResult) {
	t.Helper()
	assert.Equal(t, res.Processed, res.Enriched+res.Failed)
	assert.Len(t, res.AIDecisions, res.Processed)
	accepted := 0
	for _, d := range res.AIDecisions {
		if d.Decision == model.DecisionAccepted {
			accepted++
		}
	}
	assert.Equal(t, res.Enriched, accepted)
	assert.Len(t, res.EnrichmentData, res.Enriched)
}

// A panic in one record's search does not stop the batch.
func TestRun_FailureIsolation(t *testing.T) {
	cfg := simulationConfig()
	se := searchFunc(func(_ context.Context, name, _ string) search.Result {
		if name == "Company 4" {
			panic("search step failed")
		}
		return notFound()
	})
	r := NewRunner(cfg, se, fallback.New(cfg.Seed), quality.NewValidator())

	res, err := r.EnrichSample(context.Background(), namedRecords(10), 10)
	require.NoError(t, err)

	assert.Equal(t, 10, res.Processed)
	assert.False(t, res.Cancelled)
	assert.Equal(t, model.BatchStatusComplete, res.Status)
	assertTotals(t, res)

	d4, ok := res.Decision(4)
	require.True(t, ok)
	assert.Equal(t, model.DecisionError, d4.Decision)
	assert.Contains(t, d4.Error, "search step failed")

	for pos := 5; pos <= 10; pos++ {
		d, ok := res.Decision(pos)
		require.True(t, ok)
		assert.NotEqual(t, model.DecisionError, d.Decision)
	}
	assert.Equal(t, 1, res.Analytics.ByDecision[model.DecisionError])
	assert.Equal(t, 9, res.Enriched)
	assert.InDelta(t, 90.0, res.Analytics.SuccessRate, 0.01)
	require.Len(t, res.Analytics.ErrorsSummary, 1)
	assert.Contains(t, res.Analytics.ErrorsSummary[0], "#4")
}

func TestRun_InvalidConfigFailsFast(t *testing.T) {
	cfg := config.DefaultEnrichConfig()
	cfg.QualityThreshold = 85
	cfg.QualityThresholdFallback = 90

	se := &mockSearch{}
	fb := &mockFallback{}
	sess := NewSession(4)
	r := NewRunner(cfg, se, fb, quality.NewValidator())

	res, err := r.Run(context.Background(), sess, namedRecords(3), 3)
	require.Error(t, err)
	assert.True(t, eris.Is(err, config.ErrInvalidConfig))
	assert.Nil(t, res)
	se.AssertNotCalled(t, "SearchCompanyWebsite", mock.Anything, mock.Anything, mock.Anything)

	_, open := <-sess.Events
	assert.False(t, open)
}

func TestRun_InvalidSampleSize(t *testing.T) {
	r := NewRunner(simulationConfig(), search.Disabled{}, fallback.New(1), quality.NewValidator())
	_, err := r.EnrichSample(context.Background(), namedRecords(3), 0)
	assert.Error(t, err)
}

// Results are reported in sample order whatever the completion order.
func TestRun_ConcurrentKeepsOrder(t *testing.T) {
	cfg := simulationConfig()
	cfg.Concurrency = 4

	var inFlight, maxInFlight atomic.Int32
	se := searchFunc(func(_ context.Context, name, _ string) search.Result {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		var idx int
		_, _ = fmt.Sscanf(name, "Company %d", &idx)
		time.Sleep(time.Duration(12-idx) * time.Millisecond)
		return notFound()
	})

	recs := namedRecords(12)
	r := NewRunner(cfg, se, fallback.New(cfg.Seed), quality.NewValidator())
	res, err := r.EnrichSample(context.Background(), recs, 12)
	require.NoError(t, err)

	require.Len(t, res.AIDecisions, 12)
	for i, d := range res.AIDecisions {
		assert.Equal(t, i+1, d.Index)
		assert.Equal(t, recs[i].Identifier, d.Identifier)
	}
	for pos := 1; pos <= 12; pos++ {
		assert.Contains(t, res.EnrichmentData, model.PositionKey(pos))
	}
	assert.LessOrEqual(t, maxInFlight.Load(), int32(4))
	assertTotals(t, res)
}

func TestRun_PartialSample(t *testing.T) {
	recs := namedRecords(5)
	recs[1].Identifier = ""
	recs[3].Locality = "NaN"

	r := NewRunner(simulationConfig(), search.Disabled{}, fallback.New(3), quality.NewValidator())
	res, err := r.EnrichSample(context.Background(), recs, 10)
	require.NoError(t, err)

	assert.True(t, res.PartialSample)
	assert.Equal(t, 10, res.SampleSize)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, []string{recs[0].Identifier, recs[2].Identifier, recs[4].Identifier},
		[]string{res.AIDecisions[0].Identifier, res.AIDecisions[1].Identifier, res.AIDecisions[2].Identifier})
	assertTotals(t, res)
}

func TestRun_CancelBetweenRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	se := searchFunc(func(_ context.Context, _, _ string) search.Result {
		if calls.Add(1) == 2 {
			cancel()
		}
		return notFound()
	})

	r := NewRunner(simulationConfig(), se, fallback.New(5), quality.NewValidator())
	res, err := r.EnrichSample(ctx, namedRecords(6), 6)
	require.NoError(t, err)

	assert.True(t, res.Cancelled)
	assert.Equal(t, model.BatchStatusCancelled, res.Status)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, int32(2), calls.Load())
	_, ok := res.Decision(3)
	assert.False(t, ok)
	assertTotals(t, res)
}

func TestRun_AllFailedIsNotAnError(t *testing.T) {
	cfg := simulationConfig()
	cfg.FallbackEnabled = false

	r := NewRunner(cfg, search.Disabled{}, fallback.New(1), quality.NewValidator())
	res, err := r.EnrichSample(context.Background(), namedRecords(4), 4)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Processed)
	assert.Equal(t, 0, res.Enriched)
	assert.Equal(t, 4, res.Failed)
	assert.Equal(t, 4, res.Analytics.ByDecision[model.DecisionNoResults])
	assert.Zero(t, res.Analytics.SuccessRate)
	assert.Zero(t, res.Analytics.AverageQualityScore)
	assertTotals(t, res)
}

func TestRun_SessionEvents(t *testing.T) {
	sess := NewSession(8)
	r := NewRunner(simulationConfig(), search.Disabled{}, fallback.New(9), quality.NewValidator())

	res, err := r.Run(context.Background(), sess, namedRecords(3), 3)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, res.SessionID)

	var events []Progress
	for p := range sess.Events {
		events = append(events, p)
	}
	require.Len(t, events, 3)
	for i, p := range events {
		assert.Equal(t, sess.ID, p.SessionID)
		assert.Equal(t, i+1, p.Position)
		assert.Equal(t, i+1, p.Done)
		assert.Equal(t, 3, p.Total)
		assert.NotEmpty(t, p.Decision)
	}
}

func TestRun_SessionDoesNotBlock(t *testing.T) {
	sess := NewSession(0)
	r := NewRunner(simulationConfig(), search.Disabled{}, fallback.New(9), quality.NewValidator())

	res, err := r.Run(context.Background(), sess, namedRecords(5), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Processed)
}

// In simulation mode a fixed seed reproduces the whole batch.
func TestRun_SimulationReproducible(t *testing.T) {
	recs := namedRecords(6)
	recs[2].DeclaredName = model.SentinelName
	recs[4].DeclaredName = ""
	recs[4].ActivityLabel = "Travaux de construction"

	run := func() *model.BatchResult {
		cfg := simulationConfig()
		r := NewRunner(cfg, search.Disabled{}, fallback.New(cfg.Seed), quality.NewValidator())
		res, err := r.EnrichSample(context.Background(), recs, 6)
		require.NoError(t, err)
		return res
	}

	a, b := run(), run()
	assert.Equal(t, a.EnrichmentData, b.EnrichmentData)
	assert.Equal(t, a.QualityReports, b.QualityReports)
	require.Len(t, b.AIDecisions, len(a.AIDecisions))
	for i := range a.AIDecisions {
		assert.Equal(t, a.AIDecisions[i].Decision, b.AIDecisions[i].Decision)
		assert.Equal(t, a.AIDecisions[i].QualityScore, b.AIDecisions[i].QualityScore)
	}
	assert.NotEqual(t, a.RunID, b.RunID)
}

// Synthetic data is always tagged, and web data never is.
func TestRun_SyntheticTagging(t *testing.T) {
	recs := namedRecords(8)
	se := searchFunc(func(_ context.Context, name, locality string) search.Result {
		if name == "Company 2" || name == "Company 5" {
			return search.Result{Found: true, Website: "https://www.company.fr", Backend: "duckduckgo", Confidence: 95}
		}
		return notFound()
	})
	r := NewRunner(simulationConfig(), se, fallback.New(11), quality.NewValidator())
	res, err := r.EnrichSample(context.Background(), recs, 8)
	require.NoError(t, err)

	for _, d := range res.AIDecisions {
		data, ok := res.EnrichmentData[model.PositionKey(d.Index)]
		if !ok {
			continue
		}
		if d.SearchMethod.Synthetic() {
			assert.NotEmpty(t, data.PlausibilityNote)
			assert.True(t, d.Synthetic)
		} else {
			assert.Empty(t, data.PlausibilityNote)
			assert.False(t, d.Synthetic)
		}
	}
	assert.Equal(t, 2, res.Analytics.BySource[model.SourceWebSearchReal])
}
