package enrich

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mg-platform/enrich-cli/internal/config"
	"github.com/mg-platform/enrich-cli/internal/model"
)

// Runner enriches a sample of records and aggregates a BatchResult.
type Runner struct {
	cfg      config.EnrichConfig
	strategy *Strategy
}

// NewRunner creates a Runner. The configuration is validated when a run starts.
func NewRunner(cfg config.EnrichConfig, se SearchEngine, fb FallbackGenerator, qv QualityValidator) *Runner {
	return &Runner{
		cfg:      cfg,
		strategy: NewStrategy(cfg, se, fb, qv),
	}
}

// EnrichSample runs a batch with a private session.
func (r *Runner) EnrichSample(ctx context.Context, records []model.CompanyRecord, sampleSize int) (*model.BatchResult, error) {
	return r.Run(ctx, NewSession(0), records, sampleSize)
}

// Run selects the sample and decides every record. Only an invalid
// configuration or sample size is returned as an error; per-record failures
// become decisions. Cancelling ctx stops the run between records and the
// result reports Cancelled with the unprocessed records absent. The session
// is closed on return.
func (r *Runner) Run(ctx context.Context, sess *Session, records []model.CompanyRecord, sampleSize int) (*model.BatchResult, error) {
	defer sess.close()

	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	sample, partial, err := SelectSample(records, sampleSize)
	if err != nil {
		return nil, err
	}

	res := model.NewBatchResult(uuid.NewString(), sess.ID, sampleSize)
	res.PartialSample = partial

	log := zap.L().With(zap.String("run_id", res.RunID), zap.String("session_id", sess.ID))
	log.Info("enrich: starting batch",
		zap.Int("sample_size", sampleSize),
		zap.Int("selected", len(sample)),
		zap.Int("quality_threshold", r.cfg.QualityThreshold),
		zap.Int("quality_threshold_fallback", r.cfg.QualityThresholdFallback),
		zap.String("search_mode", r.cfg.SearchMode),
		zap.Int("concurrency", r.cfg.Concurrency),
	)
	if partial {
		log.Warn("enrich: partial sample, fewer eligible records than requested",
			zap.Int("requested", sampleSize),
			zap.Int("eligible", len(sample)),
		)
	}

	outcomes := make([]*Outcome, len(sample))
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)

	for i, rec := range sample {
		if ctx.Err() != nil {
			break
		}
		pos := i + 1
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			o := r.strategy.Enrich(ctx, rec, pos)
			outcomes[i] = &o
			sess.publish(Progress{
				Position:   pos,
				Total:      len(sample),
				Identifier: rec.Identifier,
				Decision:   o.Decision.Decision,
			})
			return nil
		})
	}
	_ = g.Wait()

	aggregate(res, outcomes)
	res.FinishedAt = time.Now().UTC()
	res.Status = model.BatchStatusComplete
	if res.Processed < len(sample) {
		res.Cancelled = true
		res.Status = model.BatchStatusCancelled
	}

	log.Info("enrich: batch finished",
		zap.Int("processed", res.Processed),
		zap.Int("enriched", res.Enriched),
		zap.Int("failed", res.Failed),
		zap.Bool("cancelled", res.Cancelled),
		zap.Float64("success_rate", res.Analytics.SuccessRate),
	)
	return res, nil
}

// aggregate folds outcomes into res in sample order. Nil entries are records
// that were never started.
func aggregate(res *model.BatchResult, outcomes []*Outcome) {
	a := model.Analytics{
		ByDecision: make(map[model.DecisionKind]int),
		BySource:   make(map[model.Source]int),
	}
	var scoreSum, durationMS int64

	for _, o := range outcomes {
		if o == nil {
			continue
		}
		d := o.Decision
		key := model.PositionKey(o.Position)

		res.Processed++
		res.AIDecisions = append(res.AIDecisions, d)
		a.ByDecision[d.Decision]++
		durationMS += d.DurationMS
		if d.SearchMethod != "" {
			a.BySource[d.SearchMethod]++
		}
		if o.Report != nil {
			res.QualityReports[key] = *o.Report
		}

		if o.Accepted() {
			res.Enriched++
			res.EnrichmentData[key] = *o.Candidate.Data
			scoreSum += int64(d.QualityScore)
			continue
		}
		res.Failed++
		msg := d.Reason
		if d.Error != "" {
			msg = d.Error
		}
		a.ErrorsSummary = append(a.ErrorsSummary, fmt.Sprintf("#%d %s %s: %s", o.Position, o.Record.Identifier, d.Decision, msg))
	}

	if res.Processed > 0 {
		a.SuccessRate = round1(float64(res.Enriched) / float64(res.Processed) * 100)
	}
	if res.Enriched > 0 {
		a.AverageQualityScore = round1(float64(scoreSum) / float64(res.Enriched))
	}
	a.TotalProcessingSeconds = float64(durationMS) / 1000
	res.Analytics = a
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
