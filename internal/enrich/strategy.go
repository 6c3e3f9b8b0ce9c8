package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mg-platform/enrich-cli/internal/config"
	"github.com/mg-platform/enrich-cli/internal/model"
	"github.com/mg-platform/enrich-cli/internal/quality"
	"github.com/mg-platform/enrich-cli/internal/search"
)

// State is a step of the per-record state machine.
type State string

const (
	StateStart            State = "START"
	StateStrategySelected State = "STRATEGY_SELECTED"
	StateSearched         State = "SEARCHED"
	StateValidated        State = "VALIDATED"
	StateNoResults        State = "NO_RESULTS"
	StateDecided          State = "DECIDED"
)

// Outcome is everything produced while enriching one record.
type Outcome struct {
	Position  int                     `json:"position"`
	Record    model.CompanyRecord     `json:"record"`
	Context   model.EnrichmentContext `json:"context"`
	Candidate *model.Candidate        `json:"candidate,omitempty"`
	Report    *model.QualityReport    `json:"quality_report,omitempty"`
	Decision  model.DecisionLog       `json:"decision"`
	Trace     []State                 `json:"trace"`
}

func (o *Outcome) advance(s State) {
	o.Trace = append(o.Trace, s)
}

func (o *Outcome) decide(kind model.DecisionKind, reason string) {
	o.Decision.Decision = kind
	o.Decision.Reason = reason
	o.advance(StateDecided)
}

func (o *Outcome) fail(err error) {
	o.Decision.Decision = model.DecisionError
	o.Decision.Error = err.Error()
	o.Decision.Reason = "technical error during enrichment"
	o.Decision.QualityScore = 0
	o.Decision.Breakdown = nil
	o.Report = nil
	o.advance(StateDecided)
}

// Accepted reports whether the record was enriched.
func (o Outcome) Accepted() bool {
	return o.Decision.Decision == model.DecisionAccepted
}

// Strategy runs the per-record state machine.
type Strategy struct {
	cfg       config.EnrichConfig
	search    SearchEngine
	fallback  FallbackGenerator
	validator QualityValidator
}

// NewStrategy creates a Strategy.
func NewStrategy(cfg config.EnrichConfig, se SearchEngine, fb FallbackGenerator, qv QualityValidator) *Strategy {
	return &Strategy{cfg: cfg, search: se, fallback: fb, validator: qv}
}

// Enrich processes one record at 1-based position pos. It never returns an
// error: every path, including a panic in a collaborator, ends in exactly one
// decision.
func (s *Strategy) Enrich(ctx context.Context, rec model.CompanyRecord, pos int) (out Outcome) {
	start := time.Now()
	log := zap.L().With(zap.Int("index", pos), zap.String("siret", rec.Identifier))

	out = Outcome{Position: pos, Record: rec}
	out.Decision = model.DecisionLog{Index: pos, Identifier: rec.Identifier}
	out.advance(StateStart)

	defer func() {
		if r := recover(); r != nil {
			err := eris.Errorf("enrich: record %d: %v", pos, r)
			log.Error("enrich: record failed", zap.Error(err))
			out.fail(err)
		}
		out.Decision.DurationMS = time.Since(start).Milliseconds()
	}()

	if !rec.Eligible() {
		out.decide(model.DecisionSkip, "insufficient input data (missing identifier or locality)")
		log.Info("enrich: record skipped")
		return out
	}

	ec := NewEnrichmentContext(rec)
	out.Context = ec
	out.Decision.SearchStrategy = ec.Strategy
	out.Decision.SearchName = ec.SearchName
	out.advance(StateStrategySelected)

	cand := s.lookup(ctx, ec)
	out.Candidate = &cand
	out.Decision.AttemptedQueries = cand.AttemptedQueries
	out.advance(StateSearched)

	if !cand.Found {
		out.advance(StateNoResults)
		out.decide(model.DecisionNoResults, cand.ErrorReason)
		log.Info("enrich: no results", zap.String("reason", cand.ErrorReason))
		return out
	}
	if err := cand.Validate(); err != nil {
		out.fail(err)
		log.Error("enrich: invalid candidate", zap.Error(err))
		return out
	}

	out.Decision.SearchMethod = cand.Source
	out.Decision.Synthetic = cand.Source.Synthetic()
	out.Decision.PlausibilityNote = cand.Data.PlausibilityNote

	threshold := s.threshold(ec.Strategy)
	report := s.validator.Validate(cand, ec, threshold)
	out.Report = &report
	out.advance(StateValidated)

	breakdown := report.Breakdown
	out.Decision.Breakdown = &breakdown
	out.Decision.QualityScore = report.QualityScore
	out.Decision.Threshold = report.ThresholdUsed
	out.Decision.PassesStandardThreshold = report.QualityScore >= s.cfg.QualityThreshold

	if !report.IsValid {
		out.decide(model.DecisionQualityRejected, report.ErrorReason)
		log.Info("enrich: quality rejected",
			zap.Int("quality_score", report.QualityScore),
			zap.Int("threshold", threshold),
		)
		return out
	}

	reason := fmt.Sprintf("accepted (%d%% >= %d%%)", report.QualityScore, threshold)
	if c := quality.CheckConsistency(*cand.Data, rec); !c.IsConsistent {
		reason += "; consistency issues: " + strings.Join(c.Issues, ", ")
	}
	out.decide(model.DecisionAccepted, reason)
	log.Info("enrich: accepted",
		zap.String("source", string(cand.Source)),
		zap.Int("quality_score", report.QualityScore),
		zap.String("website", cand.Data.Website),
	)
	return out
}

func (s *Strategy) threshold(st model.SearchStrategy) int {
	if st == model.StrategyAlternative {
		return s.cfg.QualityThresholdFallback
	}
	return s.cfg.QualityThreshold
}

// lookup searches the web and falls back to synthesis when allowed.
func (s *Strategy) lookup(ctx context.Context, ec model.EnrichmentContext) model.Candidate {
	rec := ec.Record
	res := s.search.SearchCompanyWebsite(ctx, ec.SearchName, rec.Locality)
	if res.Found {
		return webCandidate(ec, res)
	}

	reason := res.ErrorReason
	if reason == "" {
		reason = search.ErrNoWebsite
	}
	if !s.cfg.FallbackEnabled {
		return model.NotFound(reason+" (fallback disabled)", res.AttemptedQueries)
	}

	cand := s.fallback.Generate(ec)
	cand.AttemptedQueries = res.AttemptedQueries
	if !cand.Found {
		cand.Data = nil
		cand.ErrorReason = fmt.Sprintf("no reliable data found: %s; %s", reason, cand.ErrorReason)
	}
	return cand
}

func webCandidate(ec model.EnrichmentContext, res search.Result) model.Candidate {
	rec := ec.Record
	data := &model.CandidateData{
		Website:           res.Website,
		Location:          rec.Locality,
		AIValidationScore: res.Confidence,
		SearchSource:      res.Backend,
	}
	src := model.SourceWebSearchReal
	if ec.Strategy == model.StrategyStandard {
		data.CompanyName = strings.TrimSpace(rec.DeclaredName)
		data.SearchMethod = "standard_search"
	} else {
		src = model.SourceWebSearchAlternative
		data.CompanyName = "Entreprise " + strings.TrimSpace(rec.Locality)
		data.SearchMethod = "alternative_search"
	}
	return model.Candidate{
		Found:            true,
		Data:             data,
		Source:           src,
		AttemptedQueries: res.AttemptedQueries,
	}
}
