package model

import "github.com/rotisserie/eris"

// Source identifies the producer of an enrichment candidate.
type Source string

const (
	SourceWebSearchReal          Source = "WEB_SEARCH_REAL"
	SourceWebSearchAlternative   Source = "WEB_SEARCH_ALTERNATIVE"
	SourceIntelligentEnhancement Source = "INTELLIGENT_ENHANCEMENT"
	SourceIntelligentGeneration  Source = "INTELLIGENT_GENERATION"
)

// Synthetic reports whether data from this source was generated rather than looked up.
func (s Source) Synthetic() bool {
	return s == SourceIntelligentEnhancement || s == SourceIntelligentGeneration
}

// CandidateData is the payload carried by a found candidate.
type CandidateData struct {
	CompanyName       string   `json:"company_name"`
	Website           string   `json:"website"`
	Location          string   `json:"location"`
	BusinessSector    string   `json:"business_sector,omitempty"`
	AIValidationScore int      `json:"ai_validation_score"`
	PlausibilityNote  string   `json:"plausibility_note,omitempty"`
	SearchSource      string   `json:"search_source,omitempty"`
	SearchMethod      string   `json:"search_method,omitempty"`
	CompanyType       string   `json:"company_type,omitempty"`
	CompanySize       string   `json:"company_size,omitempty"`
	GenerationMethod  string   `json:"generation_method,omitempty"`
	ConfidenceFactors []string `json:"confidence_factors,omitempty"`
}

// Candidate is the output of the web search engine or the fallback generator.
type Candidate struct {
	Found            bool           `json:"found"`
	Data             *CandidateData `json:"data,omitempty"`
	Source           Source         `json:"source,omitempty"`
	AttemptedQueries []string       `json:"attempted_queries,omitempty"`
	ErrorReason      string         `json:"error_reason,omitempty"`
}

// NotFound builds a negative candidate.
func NotFound(reason string, queries []string) Candidate {
	return Candidate{Found: false, ErrorReason: reason, AttemptedQueries: queries}
}

// Validate checks the structural rules every candidate must satisfy.
func (c Candidate) Validate() error {
	if !c.Found {
		if c.Data != nil {
			return eris.New("model: candidate not found but carries data")
		}
		if c.ErrorReason == "" {
			return eris.New("model: candidate not found without error reason")
		}
		return nil
	}
	if c.Data == nil {
		return eris.New("model: candidate found without data")
	}
	if c.Data.AIValidationScore < 0 || c.Data.AIValidationScore > 100 {
		return eris.Errorf("model: ai validation score %d out of range", c.Data.AIValidationScore)
	}
	if c.Source.Synthetic() && c.Data.PlausibilityNote == "" {
		return eris.Errorf("model: %s candidate without plausibility note", c.Source)
	}
	if !c.Source.Synthetic() && c.Data.PlausibilityNote != "" {
		return eris.Errorf("model: %s candidate carries a plausibility note", c.Source)
	}
	return nil
}
