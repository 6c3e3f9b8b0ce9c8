package model

import (
	"strconv"
	"time"
)

// BatchStatus represents the lifecycle state of a batch run.
type BatchStatus string

const (
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusComplete  BatchStatus = "complete"
	BatchStatusCancelled BatchStatus = "cancelled"
	BatchStatusFailed    BatchStatus = "failed"
)

// Analytics summarizes a finished batch.
type Analytics struct {
	SuccessRate            float64              `json:"success_rate"`
	AverageQualityScore    float64              `json:"average_quality_score"`
	TotalProcessingSeconds float64              `json:"total_processing_seconds"`
	ErrorsSummary          []string             `json:"errors_summary,omitempty"`
	ByDecision             map[DecisionKind]int `json:"by_decision"`
	BySource               map[Source]int       `json:"by_source"`
}

// BatchResult aggregates one sample enrichment run. Per-record maps are keyed
// by the record's 1-based position in the sample.
type BatchResult struct {
	RunID          string                   `json:"run_id"`
	SessionID      string                   `json:"session_id"`
	Status         BatchStatus              `json:"status"`
	SampleSize     int                      `json:"sample_size"`
	Processed      int                      `json:"processed"`
	Enriched       int                      `json:"enriched"`
	Failed         int                      `json:"failed"`
	PartialSample  bool                     `json:"partial_sample"`
	Cancelled      bool                     `json:"cancelled"`
	EnrichmentData map[string]CandidateData `json:"enrichment_data"`
	QualityReports map[string]QualityReport `json:"quality_reports"`
	AIDecisions    []DecisionLog            `json:"ai_decisions"`
	Analytics      Analytics                `json:"analytics"`
	StartedAt      time.Time                `json:"started_at"`
	FinishedAt     time.Time                `json:"finished_at"`
	OutputFile     string                   `json:"output_file,omitempty"`
}

// NewBatchResult creates an empty running batch.
func NewBatchResult(runID, sessionID string, sampleSize int) *BatchResult {
	return &BatchResult{
		RunID:          runID,
		SessionID:      sessionID,
		Status:         BatchStatusRunning,
		SampleSize:     sampleSize,
		EnrichmentData: make(map[string]CandidateData),
		QualityReports: make(map[string]QualityReport),
		StartedAt:      time.Now().UTC(),
	}
}

// PositionKey formats a 1-based sample position as a map key.
func PositionKey(pos int) string {
	return strconv.Itoa(pos)
}

// Decision returns the decision log for a 1-based position.
func (b *BatchResult) Decision(pos int) (DecisionLog, bool) {
	for _, d := range b.AIDecisions {
		if d.Index == pos {
			return d, true
		}
	}
	return DecisionLog{}, false
}
