// Package search looks up a company's website through HTML search engines
// and scores candidate pages against the company's name and locality.
package search

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrNoWebsite is the error reason reported when every query and candidate failed.
const ErrNoWebsite = "no valid website found"

// DefaultRegionalIndicators are department/region markers that raise confidence.
var DefaultRegionalIndicators = []string{"77", "seine-et-marne", "île-de-france"}

// DefaultParkedMarkers identify parked or unfinished sites.
var DefaultParkedMarkers = []string{"domain for sale", "site en construction"}

// Confidence scoring constants.
const (
	scoreBase          = 30
	scoreName          = 40
	scoreLocality      = 25
	scoreRegional      = 10
	scoreParkedPenalty = 30

	// MinConfidence is the confidence a candidate page needs to be accepted.
	MinConfidence = 50
	maxQueries    = 3
)

// CandidateScore records the evaluation of one candidate URL.
type CandidateScore struct {
	URL        string `json:"url"`
	Backend    string `json:"backend"`
	Confidence int    `json:"confidence"`
	Error      string `json:"error,omitempty"`
}

// Result is the outcome of a website search.
type Result struct {
	Found            bool             `json:"found"`
	Website          string           `json:"website,omitempty"`
	Backend          string           `json:"backend,omitempty"`
	Confidence       int              `json:"confidence"`
	AttemptedQueries []string         `json:"attempted_queries"`
	ErrorReason      string           `json:"error_reason,omitempty"`
	Candidates       []CandidateScore `json:"candidates,omitempty"`
}

// Engine runs the query plan against a primary and optional secondary backend.
type Engine struct {
	primary    Backend
	secondary  Backend
	fetcher    PageFetcher
	indicators []string
	parked     []string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSecondary sets the backend consulted on the final query when the
// primary yielded nothing acceptable.
func WithSecondary(b Backend) EngineOption {
	return func(e *Engine) { e.secondary = b }
}

// WithRegionalIndicators overrides the regional markers.
func WithRegionalIndicators(ind []string) EngineOption {
	return func(e *Engine) {
		if len(ind) > 0 {
			e.indicators = ind
		}
	}
}

// NewEngine creates an Engine.
func NewEngine(primary Backend, fetcher PageFetcher, opts ...EngineOption) *Engine {
	e := &Engine{
		primary:    primary,
		fetcher:    fetcher,
		indicators: DefaultRegionalIndicators,
		parked:     DefaultParkedMarkers,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Queries builds the query variants for a company, at most three.
func Queries(name, locality string) []string {
	name, locality = strings.TrimSpace(name), strings.TrimSpace(locality)
	if name == "" || locality == "" {
		return nil
	}
	q := []string{
		fmt.Sprintf(`"%s" %s site officiel`, name, locality),
		fmt.Sprintf(`"%s" %s`, name, locality),
		fmt.Sprintf("%s %s www", name, locality),
		fmt.Sprintf("%s %s contact", name, locality),
	}
	return q[:maxQueries]
}

// SearchCompanyWebsite looks for the company's own website. Network failures
// never escape: a failed query or page only means that source found nothing.
func (e *Engine) SearchCompanyWebsite(ctx context.Context, name, locality string) Result {
	queries := Queries(name, locality)
	res := Result{AttemptedQueries: queries}
	log := zap.L().With(zap.String("name", name), zap.String("locality", locality))

	for i, q := range queries {
		if ctx.Err() != nil {
			break
		}
		if e.tryBackend(ctx, e.primary, q, name, locality, &res) {
			return res
		}
		if i == len(queries)-1 && e.secondary != nil {
			if e.tryBackend(ctx, e.secondary, q, name, locality, &res) {
				return res
			}
		}
	}

	if err := ctx.Err(); err != nil {
		res.ErrorReason = ErrNoWebsite + ": " + err.Error()
	} else {
		res.ErrorReason = ErrNoWebsite
	}
	log.Debug("search: no website accepted",
		zap.Int("queries", len(queries)),
		zap.Int("candidates", len(res.Candidates)),
	)
	return res
}

// tryBackend runs one query on one backend and scores its candidates,
// stopping at the first page that reaches MinConfidence.
func (e *Engine) tryBackend(ctx context.Context, b Backend, query, name, locality string, res *Result) bool {
	if b == nil {
		return false
	}
	urls, err := b.Search(ctx, query)
	if err != nil {
		zap.L().Warn("search: backend query failed",
			zap.String("backend", b.Name()),
			zap.String("query", query),
			zap.Error(err),
		)
		return false
	}

	for _, u := range urls {
		if ctx.Err() != nil {
			return false
		}
		cs := CandidateScore{URL: u, Backend: b.Name()}
		text, err := e.fetcher.Fetch(ctx, u)
		if err != nil {
			cs.Error = err.Error()
			res.Candidates = append(res.Candidates, cs)
			zap.L().Debug("search: candidate fetch failed", zap.String("url", u), zap.Error(err))
			continue
		}
		cs.Confidence = ScoreContent(text, name, locality, e.indicators, e.parked)
		res.Candidates = append(res.Candidates, cs)
		if cs.Confidence >= MinConfidence {
			res.Found = true
			res.Website = u
			res.Backend = b.Name()
			res.Confidence = cs.Confidence
			return true
		}
	}
	return false
}

// ScoreContent rates how well lower-cased page text matches a company.
func ScoreContent(text, name, locality string, indicators, parked []string) int {
	text = strings.ToLower(text)
	score := scoreBase
	if n := strings.ToLower(strings.TrimSpace(name)); n != "" && strings.Contains(text, n) {
		score += scoreName
	}
	if l := strings.ToLower(strings.TrimSpace(locality)); l != "" && strings.Contains(text, l) {
		score += scoreLocality
	}
	if containsAny(text, indicators) {
		score += scoreRegional
	}
	if containsAny(text, parked) {
		score -= scoreParkedPenalty
	}
	return clamp(score, 0, 100)
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Disabled is the engine used in simulation mode: it performs no I/O.
type Disabled struct{}

// SearchCompanyWebsite always reports that nothing was found.
func (Disabled) SearchCompanyWebsite(_ context.Context, _, _ string) Result {
	return Result{
		ErrorReason: "web search disabled (simulation mode)",
	}
}
