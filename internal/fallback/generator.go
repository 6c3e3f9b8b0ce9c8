// Package fallback synthesizes plausible company data when no website could
// be found. Everything it produces is tagged as unverified.
package fallback

import (
	"strings"
	"sync"

	"github.com/brianvoe/gofakeit/v6"
	"go.uber.org/zap"

	"github.com/mg-platform/enrich-cli/internal/model"
	"github.com/mg-platform/enrich-cli/internal/sector"
	"github.com/mg-platform/enrich-cli/internal/validate"
)

// Plausibility notes attached to synthesized data.
const (
	NoteEnhanced  = "ENRICHED/BASED ON REAL DATA - website not verified"
	NoteGenerated = "PLAUSIBLE/UNVERIFIED - synthesized"
)

// Fixed producer confidences.
const (
	ScoreEnhancement = 85
	ScoreGeneration  = 75
)

// Error reasons for negative candidates.
const (
	ReasonDisabled   = "fallback disabled"
	ReasonNoLocality = "no locality to generate from"
)

// Generator produces synthetic candidates. Random choices come from a seeded
// faker guarded by a mutex, so a fixed seed and call order give identical
// output.
type Generator struct {
	mu         sync.Mutex
	faker      *gofakeit.Faker
	classifier *sector.Classifier
	enabled    bool
}

// Option configures a Generator.
type Option func(*Generator)

// WithClassifier sets the sector classifier.
func WithClassifier(c *sector.Classifier) Option {
	return func(g *Generator) {
		if c != nil {
			g.classifier = c
		}
	}
}

// WithEnabled toggles generation. A disabled generator always reports not found.
func WithEnabled(enabled bool) Option {
	return func(g *Generator) { g.enabled = enabled }
}

// New creates a Generator seeded with seed. A zero seed draws a random one.
func New(seed int64, opts ...Option) *Generator {
	g := &Generator{
		faker:      gofakeit.New(seed),
		classifier: sector.NewClassifier(nil),
		enabled:    true,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate builds a candidate for ec. A real declared name selects the
// enhancement branch; otherwise a name is synthesized from the locality and
// the activity sector.
func (g *Generator) Generate(ec model.EnrichmentContext) model.Candidate {
	if !g.enabled {
		return model.NotFound(ReasonDisabled, nil)
	}
	rec := ec.Record
	locality := strings.TrimSpace(rec.Locality)
	if locality == "" {
		return model.NotFound(ReasonNoLocality, nil)
	}

	if rec.HasDeclaredName() {
		return g.enhance(rec, locality)
	}
	return g.generate(rec, locality)
}

func (g *Generator) enhance(rec model.CompanyRecord, locality string) model.Candidate {
	name := validate.TitleCase(strings.ToLower(validate.CleanCompanyName(rec.DeclaredName)))
	analysis := g.classifier.Analyze(rec.ActivityCode, rec.ActivityLabel)

	g.mu.Lock()
	website := g.faker.RandomString(sector.WebsitePatterns(name, locality))
	g.mu.Unlock()

	zap.L().Debug("fallback: enhanced declared name",
		zap.String("siret", rec.Identifier),
		zap.String("name", name),
		zap.String("sector", analysis.MainActivity),
	)

	return model.Candidate{
		Found:  true,
		Source: model.SourceIntelligentEnhancement,
		Data: &model.CandidateData{
			CompanyName:       name,
			Website:           website,
			Location:          locality,
			BusinessSector:    analysis.MainActivity,
			AIValidationScore: ScoreEnhancement,
			PlausibilityNote:  NoteEnhanced,
			SearchSource:      "existing_enhanced",
			SearchMethod:      string(model.SourceIntelligentEnhancement),
			CompanyType:       sector.InferCompanyType(rec.DeclaredName, rec.ActivityLabel),
			GenerationMethod:  "enhancement",
			ConfidenceFactors: []string{"declared_name_available", "locality_confirmed", "sector_identified"},
		},
	}
}

func (g *Generator) generate(rec model.CompanyRecord, locality string) model.Candidate {
	analysis := g.classifier.Analyze(rec.ActivityCode, rec.ActivityLabel)
	patterns := g.classifier.Patterns(analysis)

	g.mu.Lock()
	name := sector.ExpandPattern(g.faker.RandomString(patterns), locality)
	website := g.faker.RandomString(sector.WebsitePatterns(name, locality))
	g.mu.Unlock()

	zap.L().Debug("fallback: generated company",
		zap.String("siret", rec.Identifier),
		zap.String("name", name),
		zap.String("method", analysis.Method),
	)

	return model.Candidate{
		Found:  true,
		Source: model.SourceIntelligentGeneration,
		Data: &model.CandidateData{
			CompanyName:       name,
			Website:           website,
			Location:          locality,
			BusinessSector:    analysis.MainActivity,
			AIValidationScore: ScoreGeneration,
			PlausibilityNote:  NoteGenerated,
			SearchSource:      "intelligent_generation",
			SearchMethod:      string(model.SourceIntelligentGeneration),
			CompanyType:       sector.InferCompanyType("", rec.ActivityLabel),
			CompanySize:       sector.EstimateSize(rec.Identifier),
			GenerationMethod:  analysis.Method,
			ConfidenceFactors: []string{"sector_analysis", "geographic_context", "activity_code_consistency"},
		},
	}
}
