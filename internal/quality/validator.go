// Package quality scores enrichment candidates against the record they were
// produced for. Scoring is deterministic: identical inputs always yield the
// identical report.
package quality

import (
	"fmt"
	"strings"

	"github.com/mg-platform/enrich-cli/internal/model"
	"github.com/mg-platform/enrich-cli/internal/sector"
	"github.com/mg-platform/enrich-cli/internal/validate"
)

// ValidationMethod is reported on every QualityReport.
const ValidationMethod = "adaptive_scoring"

// Bonus caps.
const (
	maxGeoBonus       = 10
	maxSectorBonus    = 5
	maxSourceBonus    = 15
	maxCoherenceBonus = 15
)

// SourceBonus is the fixed reliability bonus per producer.
var SourceBonus = map[model.Source]int{
	model.SourceWebSearchReal:          15,
	model.SourceWebSearchAlternative:   10,
	model.SourceIntelligentEnhancement: 8,
	model.SourceIntelligentGeneration:  5,
}

// Validator computes quality reports.
type Validator struct{}

// NewValidator creates a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate scores candidate c for the record in ec and compares the score
// with threshold.
func (v *Validator) Validate(c model.Candidate, ec model.EnrichmentContext, threshold int) model.QualityReport {
	report := model.QualityReport{
		ThresholdUsed:    threshold,
		ValidationMethod: ValidationMethod,
	}
	if !c.Found || c.Data == nil {
		report.ErrorReason = "no candidate data to validate"
		return report
	}

	b := Breakdown(c, ec.Record)
	report.Breakdown = b
	report.QualityScore = b.Clamped
	report.IsValid = b.Clamped >= threshold
	if !report.IsValid {
		report.ErrorReason = fmt.Sprintf("insufficient quality (%d%% < %d%%)", b.Clamped, threshold)
	}
	return report
}

// Breakdown returns the named score components for a found candidate.
func Breakdown(c model.Candidate, rec model.CompanyRecord) model.ScoreBreakdown {
	var b model.ScoreBreakdown
	if c.Data == nil {
		return b
	}
	b.Base = c.Data.AIValidationScore
	b.GeoBonus = geoBonus(c.Data.Location, rec.Locality)
	b.SectorBonus = sectorBonus(c.Data.BusinessSector, rec.ActivityLabel)
	b.SourceBonus = min(SourceBonus[c.Source], maxSourceBonus)
	b.CoherenceBonus = coherenceBonus(c.Data, rec)
	b.RawTotal = b.Base + b.GeoBonus + b.SectorBonus + b.SourceBonus + b.CoherenceBonus
	b.Clamped = max(0, min(100, b.RawTotal))
	return b
}

func geoBonus(location, locality string) int {
	loc := strings.ToLower(validate.NormalizeCommune(location))
	want := strings.ToLower(validate.NormalizeCommune(locality))
	if loc == "" || want == "" {
		return 0
	}
	if strings.Contains(loc, want) {
		return maxGeoBonus
	}
	for _, w := range strings.Fields(want) {
		if strings.Contains(loc, w) {
			return 5
		}
	}
	return 0
}

func sectorBonus(found, label string) int {
	if found == "" || label == "" {
		return 0
	}
	labelKW := make(map[string]bool)
	for _, kw := range sector.ExtractKeywords(label) {
		labelKW[kw] = true
	}
	for _, kw := range sector.ExtractKeywords(found) {
		if labelKW[kw] {
			return maxSectorBonus
		}
	}
	return 0
}

func coherenceBonus(d *model.CandidateData, rec model.CompanyRecord) int {
	bonus := 0
	if d.CompanyName != "" && rec.HasDeclaredName() {
		sim := NameSimilarity(d.CompanyName, rec.DeclaredName)
		switch {
		case sim > 70:
			bonus += 10
		case sim > 50:
			bonus += 5
		}
	}
	if ProfessionalWebsite(d.Website) {
		bonus += 5
	}
	return min(bonus, maxCoherenceBonus)
}

// NameSimilarity compares two company names on a 0-100 scale: 100 when equal,
// 85 when one contains the other, otherwise the Jaccard overlap of their words.
func NameSimilarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 85
	}

	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 20
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union) * 100
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

var amateurMarkers = []string{"free", "perso", "test"}

// ProfessionalWebsite reports whether at least two of https, a .fr domain, a
// full-length URL and the absence of amateur hosting markers hold.
func ProfessionalWebsite(website string) bool {
	if website == "" {
		return false
	}
	lower := strings.ToLower(website)
	signals := 0
	if strings.HasPrefix(website, "https://") {
		signals++
	}
	if strings.Contains(lower, ".fr") {
		signals++
	}
	if len(website) > 20 {
		signals++
	}
	amateur := false
	for _, m := range amateurMarkers {
		if strings.Contains(lower, m) {
			amateur = true
			break
		}
	}
	if !amateur {
		signals++
	}
	return signals >= 2
}

// Consistency lists the problems found between enriched data and its record.
type Consistency struct {
	IsConsistent bool     `json:"is_consistent"`
	Issues       []string `json:"issues,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// CheckConsistency flags a name that diverges from the declared one (an
// issue) and a location that does not mention the locality (a warning).
func CheckConsistency(d model.CandidateData, rec model.CompanyRecord) Consistency {
	var c Consistency
	if rec.HasDeclaredName() && NameSimilarity(d.CompanyName, rec.DeclaredName) < 30 {
		c.Issues = append(c.Issues, fmt.Sprintf("name mismatch: %q vs %q", d.CompanyName, rec.DeclaredName))
	}
	if d.Location != "" && rec.Locality != "" &&
		!strings.Contains(strings.ToLower(d.Location), strings.ToLower(rec.Locality)) {
		c.Warnings = append(c.Warnings, fmt.Sprintf("location mismatch: %q vs %q", d.Location, rec.Locality))
	}
	c.IsConsistent = len(c.Issues) == 0
	return c
}
