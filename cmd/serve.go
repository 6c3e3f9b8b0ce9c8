package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mg-platform/enrich-cli/internal/config"
	"github.com/mg-platform/enrich-cli/internal/model"
	"github.com/mg-platform/enrich-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server for sample enrichment",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}

		env, err := initEnrich(ctx, cfg, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// enrichRequest is the body of POST /enrich-sample. Unset fields keep the
// server configuration.
type enrichRequest struct {
	SampleSize               int      `json:"sample_size"`
	QualityThreshold         *int     `json:"quality_threshold,omitempty"`
	QualityThresholdFallback *int     `json:"quality_threshold_fallback,omitempty"`
	SearchMode               *string  `json:"search_mode,omitempty"`
	FallbackEnabled          *bool    `json:"fallback_enabled,omitempty"`
	Seed                     *int64   `json:"seed,omitempty"`
	Concurrency              *int     `json:"concurrency,omitempty"`
	RateLimitDelay           *float64 `json:"rate_limit_delay,omitempty"` // seconds
}

// apply returns base with the request overrides applied.
func (r enrichRequest) apply(base config.EnrichConfig) config.EnrichConfig {
	if r.QualityThreshold != nil {
		base.QualityThreshold = *r.QualityThreshold
	}
	if r.QualityThresholdFallback != nil {
		base.QualityThresholdFallback = *r.QualityThresholdFallback
	}
	if r.SearchMode != nil {
		base.SearchMode = *r.SearchMode
	}
	if r.FallbackEnabled != nil {
		base.FallbackEnabled = *r.FallbackEnabled
	}
	if r.Seed != nil {
		base.Seed = *r.Seed
	}
	if r.Concurrency != nil {
		base.Concurrency = *r.Concurrency
	}
	if r.RateLimitDelay != nil {
		base.RateLimitDelay = time.Duration(*r.RateLimitDelay * float64(time.Second))
	}
	return base
}

// newRouter builds the HTTP routes served by the serve command.
func newRouter(env *enrichEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: env.Config.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/enrich-sample", func(w http.ResponseWriter, r *http.Request) {
		var req enrichRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.SampleSize < 1 {
			writeError(w, http.StatusBadRequest, "sample_size must be >= 1")
			return
		}
		if limit := env.Config.Server.MaxSampleSize; limit > 0 && req.SampleSize > limit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("sample_size must be <= %d", limit))
			return
		}

		ec := req.apply(env.Config.Enrich)

		ctx := r.Context()
		if secs := env.Config.Server.RequestTimeoutSecs; secs > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
			defer cancel()
		}

		res, err := env.enrichSample(ctx, ec, req.SampleSize, nil)
		if eris.Is(err, config.ErrInvalidConfig) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil && res == nil {
			zap.L().Error("enrich-sample failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "enrichment failed")
			return
		}
		// A batch whose spreadsheet could not be written still returns its
		// result, with an empty output_file.
		writeJSON(w, http.StatusOK, res)
	})

	r.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.RunFilter{Status: model.BatchStatus(q.Get("status"))}
		filter.Limit, _ = strconv.Atoi(q.Get("limit"))
		filter.Offset, _ = strconv.Atoi(q.Get("offset"))

		runs, err := env.Store.ListRuns(r.Context(), filter)
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list runs failed")
			return
		}
		if runs == nil {
			runs = []store.RunSummary{}
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		run, err := env.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			zap.L().Error("get run failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get run failed")
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	r.Get("/runs/{id}/decisions", func(w http.ResponseWriter, r *http.Request) {
		decisions, err := env.Store.ListDecisions(r.Context(), chi.URLParam(r, "id"))
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			zap.L().Error("list decisions failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list decisions failed")
			return
		}
		writeJSON(w, http.StatusOK, decisions)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
