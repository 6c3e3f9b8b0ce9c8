package model

// DecisionKind is the terminal outcome of one record's enrichment.
type DecisionKind string

const (
	DecisionAccepted        DecisionKind = "ACCEPTED"
	DecisionQualityRejected DecisionKind = "QUALITY_REJECTED"
	DecisionNoResults       DecisionKind = "NO_RESULTS"
	DecisionSkip            DecisionKind = "SKIP"
	DecisionError           DecisionKind = "ERROR"
)

// ScoreBreakdown holds the named components of a quality score.
// RawTotal is Base plus every bonus; Clamped is RawTotal limited to [0,100]
// and is always equal to the reported quality score.
type ScoreBreakdown struct {
	Base           int `json:"base"`
	GeoBonus       int `json:"geo_bonus"`
	SectorBonus    int `json:"sector_bonus"`
	SourceBonus    int `json:"source_bonus"`
	CoherenceBonus int `json:"coherence_bonus"`
	RawTotal       int `json:"raw_total"`
	Clamped        int `json:"clamped"`
}

// QualityReport is the quality validator's verdict on a candidate.
type QualityReport struct {
	QualityScore     int            `json:"quality_score"`
	ThresholdUsed    int            `json:"threshold_used"`
	IsValid          bool           `json:"is_valid"`
	ValidationMethod string         `json:"validation_method"`
	ErrorReason      string         `json:"error_reason,omitempty"`
	Breakdown        ScoreBreakdown `json:"score_breakdown"`
}

// DecisionLog is the audit record produced by every terminal transition.
type DecisionLog struct {
	Index                   int             `json:"index"`
	Identifier              string          `json:"identifier"`
	Decision                DecisionKind    `json:"decision"`
	SearchStrategy          SearchStrategy  `json:"search_strategy,omitempty"`
	SearchName              string          `json:"search_name,omitempty"`
	SearchMethod            Source          `json:"search_method,omitempty"`
	QualityScore            int             `json:"quality_score,omitempty"`
	Threshold               int             `json:"threshold,omitempty"`
	PassesStandardThreshold bool            `json:"passes_standard_threshold"`
	Breakdown               *ScoreBreakdown `json:"score_breakdown,omitempty"`
	Reason                  string          `json:"reason,omitempty"`
	Error                   string          `json:"error,omitempty"`
	AttemptedQueries        []string        `json:"attempted_queries,omitempty"`
	Synthetic               bool            `json:"synthetic"`
	PlausibilityNote        string          `json:"plausibility_note,omitempty"`
	DurationMS              int64           `json:"duration_ms"`
}

// Failed reports whether the decision counts as a failure in batch totals.
func (d DecisionLog) Failed() bool {
	return d.Decision != DecisionAccepted
}
