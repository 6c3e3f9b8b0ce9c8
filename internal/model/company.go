package model

import "strings"

// SentinelName is the registry placeholder for a withheld company name.
const SentinelName = "INFORMATION NON-DIFFUSIBLE"

// SearchStrategy selects how a record is looked up.
type SearchStrategy string

const (
	StrategyStandard    SearchStrategy = "standard"    // real declared name known
	StrategyAlternative SearchStrategy = "alternative" // name withheld, search by locality + activity
)

// CompanyRecord is one row of the source registry extract.
type CompanyRecord struct {
	Identifier    string `json:"identifier"`
	DeclaredName  string `json:"declared_name"`
	Locality      string `json:"locality"`
	ActivityCode  string `json:"activity_code,omitempty"`
	ActivityLabel string `json:"activity_label,omitempty"`
	Website       string `json:"website,omitempty"`
	Row           int    `json:"row"` // 0-based data row in the source dataset
}

// Eligible reports whether the record carries both an identifier and a locality.
func (r CompanyRecord) Eligible() bool {
	return present(r.Identifier) && present(r.Locality)
}

// HasDeclaredName reports whether the declared name is real, i.e. neither
// empty nor a missing-value marker nor the withheld-name sentinel.
func (r CompanyRecord) HasDeclaredName() bool {
	name := strings.TrimSpace(r.DeclaredName)
	return present(name) && !strings.EqualFold(name, SentinelName)
}

// Strategy returns the search strategy implied by the declared name.
func (r CompanyRecord) Strategy() SearchStrategy {
	if r.HasDeclaredName() {
		return StrategyStandard
	}
	return StrategyAlternative
}

func present(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && s != "nan" && s != "NaN"
}

// EnrichmentContext is derived once per record before the strategy runs.
// It is a value type and is never mutated afterwards.
type EnrichmentContext struct {
	Record     CompanyRecord  `json:"record"`
	Strategy   SearchStrategy `json:"search_strategy"`
	SearchName string         `json:"search_name"`
}
