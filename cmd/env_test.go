package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/mg-platform/enrich-cli/internal/config"
	"github.com/mg-platform/enrich-cli/internal/dataset"
	"github.com/mg-platform/enrich-cli/internal/output"
	"github.com/mg-platform/enrich-cli/internal/store"
)

const testExtract = "SIRET;Nom courant/Dénomination;Commune;Code NAF;Libellé NAF\n" +
	"78912345600012;Boulangerie Martin;Meaux;10.71C;Boulangerie et boulangerie-pâtisserie\n" +
	"73282932000074;INFORMATION NON-DIFFUSIBLE;Chelles;62.01Z;Programmation informatique\n" +
	";Sans Identifiant;Lyon;;\n" +
	"44306184100047;Garage Dupont;Torcy;45.20A;Entretien et réparation de véhicules\n"

// testConfig returns a configuration that runs offline against a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "extract.csv")
	require.NoError(t, os.WriteFile(path, []byte(testExtract), 0o600))

	ec := config.DefaultEnrichConfig()
	ec.SearchMode = config.SearchModeSimulation
	ec.RateLimitDelay = 0
	ec.Seed = 42

	return &config.Config{
		Enrich:  ec,
		Dataset: config.DatasetConfig{Path: path},
		Output:  config.OutputConfig{Dir: filepath.Join(dir, "out"), Colorize: true, JSONReport: true},
		Store:   config.StoreConfig{Driver: config.DriverSQLite, DatabaseURL: filepath.Join(dir, "enrich.db")},
		Server: config.ServerConfig{
			Port:               8080,
			CORSOrigins:        []string{"*"},
			RequestTimeoutSecs: 30,
			MaxSampleSize:      5,
		},
		Log: config.LogConfig{Level: "info", Format: "json"},
	}
}

func newTestEnv(t *testing.T) *enrichEnv {
	t.Helper()
	env, err := initEnrich(context.Background(), testConfig(t), "serve")
	require.NoError(t, err)
	t.Cleanup(env.Close)
	return env
}

func TestEnrichEnv_Close_Nil(t *testing.T) {
	env := &enrichEnv{}
	assert.NotPanics(t, func() {
		env.Close()
	})
}

func TestInitEnrich(t *testing.T) {
	env := newTestEnv(t)

	assert.Len(t, env.Dataset.Records, 4)
	assert.NotNil(t, env.Table)
	assert.NotNil(t, env.Store)
}

func TestInitEnrich_Errors(t *testing.T) {
	t.Run("missing dataset path", func(t *testing.T) {
		c := testConfig(t)
		c.Dataset.Path = ""
		_, err := initEnrich(context.Background(), c, "enrich")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dataset.path is required")
	})

	t.Run("invalid thresholds", func(t *testing.T) {
		c := testConfig(t)
		c.Enrich.QualityThreshold = 50
		c.Enrich.QualityThresholdFallback = 70
		_, err := initEnrich(context.Background(), c, "enrich")
		assert.True(t, eris.Is(err, config.ErrInvalidConfig))
	})

	t.Run("no eligible records", func(t *testing.T) {
		c := testConfig(t)
		require.NoError(t, os.WriteFile(c.Dataset.Path, []byte("SIRET;Commune\n;Meaux\n"), 0o600))
		_, err := initEnrich(context.Background(), c, "enrich")
		assert.True(t, eris.Is(err, dataset.ErrNoEligibleRecords))
	})

	t.Run("bad sector table", func(t *testing.T) {
		c := testConfig(t)
		c.Sectors.TablePath = filepath.Join(t.TempDir(), "missing.yaml")
		_, err := initEnrich(context.Background(), c, "enrich")
		assert.Error(t, err)
	})

	t.Run("unknown store driver", func(t *testing.T) {
		c := testConfig(t)
		c.Store.Driver = "mysql"
		_, err := initEnrich(context.Background(), c, "enrich")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store.driver")
	})
}

func TestEnrichSample(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.enrichSample(ctx, env.Config.Enrich, 3, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, res.Processed, res.Enriched+res.Failed)
	assert.False(t, res.PartialSample)
	assert.Len(t, res.AIDecisions, 3)

	assert.FileExists(t, res.OutputFile)
	assert.Equal(t, output.FileName(res.SessionID), filepath.Base(res.OutputFile))

	raw, err := os.ReadFile(filepath.Join(env.Config.Output.Dir, output.ReportName(res.SessionID)))
	require.NoError(t, err)
	var report output.Report
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, res.RunID, report.Result.RunID)
	assert.Equal(t, config.SearchModeSimulation, report.Config.SearchMode)

	stored, err := env.Store.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.OutputFile, stored.OutputFile)
	assert.Equal(t, res.Enriched, stored.Enriched)
}

func TestEnrichSample_PartialSample(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.enrichSample(context.Background(), env.Config.Enrich, 10, nil)
	require.NoError(t, err)
	assert.True(t, res.PartialSample)
	assert.Equal(t, 3, res.Processed)
}

func TestEnrichSample_InvalidConfig(t *testing.T) {
	env := newTestEnv(t)
	ec := env.Config.Enrich
	ec.SearchMode = "offline"

	_, err := env.enrichSample(context.Background(), ec, 2, nil)
	assert.True(t, eris.Is(err, config.ErrInvalidConfig))

	runs, err := env.Store.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestEnrichSample_SameSeedSameOutput(t *testing.T) {
	env := newTestEnv(t)
	ec := env.Config.Enrich

	a, err := env.enrichSample(context.Background(), ec, 3, nil)
	require.NoError(t, err)
	b, err := env.enrichSample(context.Background(), ec, 3, nil)
	require.NoError(t, err)

	assert.Equal(t, a.EnrichmentData, b.EnrichmentData)
}

func TestNewSearchEngine(t *testing.T) {
	c := testConfig(t)
	c.Search = config.SearchConfig{GoogleEnabled: true, RegionalIndicators: []string{"77"}}

	st := newSearchEngine(time.Second, c.Search)
	require.NotNil(t, st.engine)
	assert.Equal(t, time.Second, st.throttle.Delay())
	require.Len(t, st.backends, 2)
	assert.Equal(t, "duckduckgo", st.backends[0].Name())
	assert.Equal(t, "google", st.backends[1].Name())

	c.Search.GoogleEnabled = false
	assert.Len(t, newSearchEngine(time.Second, c.Search).backends, 1)
}

func TestSearchEngine_ReusedPerDelay(t *testing.T) {
	env := newTestEnv(t)

	a := env.searchEngine(time.Second)
	assert.Same(t, a, env.searchEngine(time.Second))
	assert.NotSame(t, a, env.searchEngine(2*time.Second))
}

// Two batches running at once go through one throttle, so their requests to
// the search backend stay spaced by the configured delay.
func TestEnrichSample_ConcurrentBatchesShareThrottle(t *testing.T) {
	const delay = 100 * time.Millisecond

	var (
		mu    sync.Mutex
		times []time.Time
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
		_, _ = w.Write([]byte("<html><body></body></html>"))
	}))
	defer srv.Close()

	c := testConfig(t)
	c.Search.DuckDuckGoURL = srv.URL
	env, err := initEnrich(context.Background(), c, "serve")
	require.NoError(t, err)
	defer env.Close()

	ec := c.Enrich
	ec.SearchMode = config.SearchModeReal
	ec.RateLimitDelay = delay

	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			_, err := env.enrichSample(context.Background(), ec, 1, nil)
			return err
		})
	}
	require.NoError(t, g.Wait())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, times, 6, "three queries per batch")
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), delay-20*time.Millisecond)
	}
}

func TestEnrichSample_OutputFailureKeepsResult(t *testing.T) {
	env := newTestEnv(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	env.Config.Output.Dir = filepath.Join(blocker, "out")

	res, err := env.enrichSample(context.Background(), env.Config.Enrich, 2, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write enriched sample")
	require.NotNil(t, res)
	assert.Equal(t, 2, res.Processed)
	assert.Empty(t, res.OutputFile)

	stored, err := env.Store.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.Processed, stored.Processed)
}

func TestFormatBatchSummary(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.enrichSample(context.Background(), env.Config.Enrich, 2, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	formatBatchSummary(&buf, res)

	out := buf.String()
	assert.Contains(t, out, res.RunID)
	assert.Contains(t, out, "Processed:")
	assert.Contains(t, out, "2/2")
	assert.Contains(t, out, res.OutputFile)
}
