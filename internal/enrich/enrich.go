// Package enrich decides, record by record, how a company is looked up,
// which candidate is kept and whether it passes the quality bar.
package enrich

import (
	"context"
	"strings"

	"github.com/mg-platform/enrich-cli/internal/model"
	"github.com/mg-platform/enrich-cli/internal/search"
	"github.com/mg-platform/enrich-cli/internal/sector"
)

// SearchEngine finds a company's website.
type SearchEngine interface {
	SearchCompanyWebsite(ctx context.Context, name, locality string) search.Result
}

// FallbackGenerator synthesizes a candidate when search found nothing.
type FallbackGenerator interface {
	Generate(ec model.EnrichmentContext) model.Candidate
}

// QualityValidator scores a candidate against a threshold.
type QualityValidator interface {
	Validate(c model.Candidate, ec model.EnrichmentContext, threshold int) model.QualityReport
}

// NewEnrichmentContext selects the search strategy for rec and the name to
// search with. Records without a real declared name are searched by locality
// and activity keywords.
func NewEnrichmentContext(rec model.CompanyRecord) model.EnrichmentContext {
	ec := model.EnrichmentContext{Record: rec, Strategy: rec.Strategy()}
	if ec.Strategy == model.StrategyStandard {
		ec.SearchName = strings.TrimSpace(rec.DeclaredName)
	} else {
		ec.SearchName = sector.AlternativeSearchName(rec.Locality, rec.ActivityLabel)
	}
	return ec
}
