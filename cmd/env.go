package main

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mg-platform/enrich-cli/internal/config"
	"github.com/mg-platform/enrich-cli/internal/dataset"
	"github.com/mg-platform/enrich-cli/internal/enrich"
	"github.com/mg-platform/enrich-cli/internal/fallback"
	"github.com/mg-platform/enrich-cli/internal/model"
	"github.com/mg-platform/enrich-cli/internal/output"
	"github.com/mg-platform/enrich-cli/internal/quality"
	"github.com/mg-platform/enrich-cli/internal/search"
	"github.com/mg-platform/enrich-cli/internal/sector"
	"github.com/mg-platform/enrich-cli/internal/store"
)

// enrichEnv holds the loaded dataset, the sector table and the store needed
// by the enrich and serve commands. Search engines are built once per request
// spacing and reused, so concurrent batches share throttle and breaker state.
type enrichEnv struct {
	Config  *config.Config
	Store   store.Store
	Dataset *dataset.Dataset
	Table   *sector.Table

	mu      sync.Mutex
	engines map[time.Duration]*searchStack
}

// Close releases resources held by the environment.
func (e *enrichEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnrich validates c for mode, loads the dataset and the sector table,
// and opens the store. Callers should defer env.Close().
func initEnrich(ctx context.Context, c *config.Config, mode string) (*enrichEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	ds, err := dataset.Load(c.Dataset.Path, dataset.Options{Sheet: c.Dataset.Sheet, Aliases: c.Dataset.Aliases})
	if err != nil {
		return nil, err
	}
	if err := ds.CheckEligible(); err != nil {
		return nil, err
	}

	table := sector.DefaultTable()
	if c.Sectors.TablePath != "" {
		table, err = sector.LoadTable(c.Sectors.TablePath)
		if err != nil {
			return nil, err
		}
	}

	st, err := store.Open(ctx, c.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	zap.L().Info("dataset loaded",
		zap.String("path", c.Dataset.Path),
		zap.Int("records", len(ds.Records)),
		zap.Int("columns", len(ds.Headers)),
	)
	return &enrichEnv{Config: c, Store: st, Dataset: ds, Table: table}, nil
}

// searchStack is a real search engine with the throttle and breakers it was
// built with.
type searchStack struct {
	engine   *search.Engine
	throttle *search.Throttle
	backends []*search.GuardedBackend
}

// logState reports breaker states and the current request spacing.
func (s *searchStack) logState(log *zap.Logger) {
	fields := []zap.Field{zap.Duration("delay", s.throttle.Delay())}
	for _, b := range s.backends {
		fields = append(fields, zap.Stringer(b.Name(), b.State()))
	}
	log.Debug("search state", fields...)
}

// newSearchEngine builds the real web search engine. Every backend and the
// page fetcher share one throttle, and each backend has its own breaker.
func newSearchEngine(delay time.Duration, sc config.SearchConfig) *searchStack {
	throttle := search.NewThrottle(delay)

	fetcher := search.NewHTTPFetcher(throttle,
		search.WithFetchTimeout(time.Duration(sc.FetchTimeoutSecs)*time.Second),
		search.WithMaxPageBytes(sc.MaxPageBytes),
		search.WithUserAgents(sc.UserAgents),
	)

	backendOpts := func(baseURL string) []search.BackendOption {
		opts := []search.BackendOption{
			search.WithBackendUserAgents(sc.UserAgents),
			search.WithMaxResults(sc.MaxResults),
		}
		if sc.SearchTimeoutSecs > 0 {
			opts = append(opts, search.WithHTTPClient(&http.Client{Timeout: time.Duration(sc.SearchTimeoutSecs) * time.Second}))
		}
		if baseURL != "" {
			opts = append(opts, search.WithBaseURL(baseURL))
		}
		return opts
	}

	breaker := search.BreakerConfig{
		FailureThreshold: sc.BreakerFailures,
		ResetTimeout:     time.Duration(sc.BreakerResetSecs) * time.Second,
	}

	st := &searchStack{throttle: throttle}
	engineOpts := []search.EngineOption{search.WithRegionalIndicators(sc.RegionalIndicators)}
	primary := search.WithBreaker(search.NewDuckDuckGo(throttle, backendOpts(sc.DuckDuckGoURL)...), breaker)
	st.backends = append(st.backends, primary)
	if sc.GoogleEnabled {
		google := search.WithBreaker(search.NewGoogle(throttle, backendOpts(sc.GoogleURL)...), breaker)
		st.backends = append(st.backends, google)
		engineOpts = append(engineOpts, search.WithSecondary(google))
	}
	st.engine = search.NewEngine(primary, fetcher, engineOpts...)
	return st
}

// searchEngine returns the shared engine for a request spacing, building it
// on first use.
func (e *enrichEnv) searchEngine(delay time.Duration) *searchStack {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.engines[delay]; ok {
		return st
	}
	if e.engines == nil {
		e.engines = make(map[time.Duration]*searchStack)
	}
	st := newSearchEngine(delay, e.Config.Search)
	e.engines[delay] = st
	return st
}

// newRunner wires a Runner for ec. Simulation mode never touches the network.
func (e *enrichEnv) newRunner(ec config.EnrichConfig) (*enrich.Runner, *searchStack) {
	var (
		se enrich.SearchEngine = search.Disabled{}
		st *searchStack
	)
	if ec.SearchMode == config.SearchModeReal {
		st = e.searchEngine(ec.RateLimitDelay)
		se = st.engine
	}
	fb := fallback.New(ec.Seed,
		fallback.WithClassifier(sector.NewClassifier(e.Table)),
		fallback.WithEnabled(ec.FallbackEnabled),
	)
	return enrich.NewRunner(ec, se, fb, quality.NewValidator()), st
}

// enrichSample runs one batch over the loaded dataset, writes the annotated
// spreadsheet and the JSON report, and records the run in the store.
// Output is still written when ctx is cancelled mid-batch. When the
// spreadsheet cannot be written the batch result is returned with the error.
func (e *enrichEnv) enrichSample(ctx context.Context, ec config.EnrichConfig, sampleSize int, sess *enrich.Session) (*model.BatchResult, error) {
	if err := ec.Validate(); err != nil {
		return nil, err
	}
	if sess == nil {
		sess = enrich.NewSession(0)
	}
	runner, st := e.newRunner(ec)
	res, err := runner.Run(ctx, sess, e.Dataset.Records, sampleSize)
	if err != nil {
		return nil, err
	}

	persistCtx := context.WithoutCancel(ctx)
	log := zap.L().With(zap.String("run_id", res.RunID))
	if st != nil {
		st.logState(log)
	}

	var writeErr error
	sample, _, err := enrich.SelectSample(e.Dataset.Records, sampleSize)
	if err == nil {
		res.OutputFile, err = output.NewExcelWriter(e.Config.Output).Persist(e.Dataset, sample, res)
	}
	if err != nil {
		writeErr = eris.Wrap(err, "write enriched sample")
		log.Error("enriched sample not written", zap.Error(err))
	}

	if e.Config.Output.JSONReport {
		reportPath := filepath.Join(e.Config.Output.Dir, output.ReportName(res.SessionID))
		if err := output.WriteJSONReport(reportPath, ec, res); err != nil {
			log.Warn("json report failed", zap.Error(err))
		}
	}

	if err := e.Store.SaveRun(persistCtx, res); err != nil {
		log.Error("save run failed", zap.Error(err))
	}
	return res, writeErr
}
