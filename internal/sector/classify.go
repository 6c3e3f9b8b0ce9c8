package sector

import (
	"strings"
)

// Classification methods reported in Analysis.Method.
const (
	MethodCode     = "naf_code"
	MethodKeyword  = "keyword_analysis"
	MethodFallback = "generic_fallback"
)

// Analysis is the sector inferred for an activity code/label.
type Analysis struct {
	MainActivity string   `json:"main_activity"`
	BusinessType string   `json:"business_type"`
	Keywords     []string `json:"keywords"`
	Method       string   `json:"method"`
	Confidence   int      `json:"confidence"`
}

// Classifier maps activity codes and labels to sectors.
type Classifier struct {
	table *Table
}

// NewClassifier creates a Classifier. A nil table selects DefaultTable.
func NewClassifier(t *Table) *Classifier {
	if t == nil {
		t = DefaultTable()
	}
	return &Classifier{table: t}
}

// Analyze classifies an activity: exact code first, then the first label
// keyword found, then a generic professional-services fallback.
func (c *Classifier) Analyze(code, label string) Analysis {
	code = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(code), ".", ""))
	if entry, ok := c.table.Codes[code]; ok {
		return Analysis{
			MainActivity: entry.Activity,
			BusinessType: entry.Type,
			Keywords:     entry.Keywords,
			Method:       MethodCode,
			Confidence:   90,
		}
	}

	lower := strings.ToLower(label)
	if lower != "" {
		for _, kw := range c.table.Keywords {
			if strings.Contains(lower, kw.Keyword) {
				return Analysis{
					MainActivity: kw.Activity,
					BusinessType: kw.Type,
					Keywords:     []string{kw.Keyword},
					Method:       MethodKeyword,
					Confidence:   kw.Confidence,
				}
			}
		}
	}

	return Analysis{
		MainActivity: "Services professionnels",
		BusinessType: "service",
		Keywords:     []string{"services", "professionnel"},
		Method:       MethodFallback,
		Confidence:   50,
	}
}

// Patterns returns the name templates for an analysis. The business type is
// tried first, then the first keyword, then the generic templates.
func (c *Classifier) Patterns(a Analysis) []string {
	if p, ok := c.table.NamePatterns[a.BusinessType]; ok && len(p) > 0 {
		return p
	}
	if len(a.Keywords) > 0 {
		if p, ok := c.table.NamePatterns[a.Keywords[0]]; ok && len(p) > 0 {
			return p
		}
	}
	return genericPatterns
}

// keywordVocabulary is the fixed list of sector words compared between a
// candidate's sector and a record's activity label.
var keywordVocabulary = []string{
	"informatique", "logiciel", "développement", "digital", "tech",
	"conseil", "consulting", "expertise", "management",
	"construction", "bâtiment", "travaux", "rénovation",
	"commerce", "vente", "magasin", "distribution",
	"transport", "logistique", "déplacement",
	"santé", "médical", "soins", "cabinet",
}

// ExtractKeywords returns the vocabulary words contained in text.
func ExtractKeywords(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var found []string
	for _, kw := range keywordVocabulary {
		if strings.Contains(lower, kw) {
			found = append(found, kw)
		}
	}
	return found
}

var companyTypes = []struct {
	name     string
	keywords []string
}{
	{"conseil", []string{"conseil", "consulting", "expertise", "accompagnement"}},
	{"construction", []string{"construction", "bâtiment", "travaux", "rénovation"}},
	{"informatique", []string{"informatique", "digital", "tech", "logiciel"}},
	{"commerce", []string{"commerce", "magasin", "boutique", "distribution"}},
	{"transport", []string{"transport", "logistique", "déplacement"}},
	{"santé", []string{"santé", "médical", "soins", "cabinet"}},
}

// InferCompanyType guesses a company type from its name and activity label.
func InferCompanyType(name, label string) string {
	combined := strings.ToLower(name) + " " + strings.ToLower(label)
	for _, ct := range companyTypes {
		for _, kw := range ct.keywords {
			if strings.Contains(combined, kw) {
				return "Entreprise de " + ct.name
			}
		}
	}
	return "Entreprise de services"
}

// EstimateSize returns a size bracket derived from the identifier's trailing
// digits. It is a plausibility heuristic, not a headcount.
func EstimateSize(identifier string) string {
	if len(identifier) >= 10 {
		last := identifier[len(identifier)-4:]
		sum, ok := 0, true
		for _, r := range last {
			if r < '0' || r > '9' {
				ok = false
				break
			}
			sum += int(r - '0')
		}
		if ok {
			switch {
			case sum < 15:
				return "Micro-entreprise (1-9 salariés)"
			case sum < 25:
				return "PME (10-49 salariés)"
			default:
				return "Moyenne entreprise (50-249 salariés)"
			}
		}
	}
	return "Petite structure locale"
}
