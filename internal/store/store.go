// Package store persists batch results and their decision logs.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/mg-platform/enrich-cli/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.BatchStatus `json:"status,omitempty"`
	Limit  int               `json:"limit,omitempty"`
	Offset int               `json:"offset,omitempty"`
}

// DefaultListLimit caps ListRuns when the filter sets no limit.
const DefaultListLimit = 100

// RunSummary is the stored view of a batch. Result is only loaded by GetRun.
type RunSummary struct {
	ID                  string             `json:"id"`
	SessionID           string             `json:"session_id"`
	Status              model.BatchStatus  `json:"status"`
	SampleSize          int                `json:"sample_size"`
	Processed           int                `json:"processed"`
	Enriched            int                `json:"enriched"`
	Failed              int                `json:"failed"`
	PartialSample       bool               `json:"partial_sample"`
	Cancelled           bool               `json:"cancelled"`
	SuccessRate         float64            `json:"success_rate"`
	AverageQualityScore float64            `json:"average_quality_score"`
	OutputFile          string             `json:"output_file,omitempty"`
	StartedAt           time.Time          `json:"started_at"`
	FinishedAt          time.Time          `json:"finished_at"`
	Result              *model.BatchResult `json:"result,omitempty"`
}

// Summarize builds the stored view of res.
func Summarize(res *model.BatchResult) RunSummary {
	return RunSummary{
		ID:                  res.RunID,
		SessionID:           res.SessionID,
		Status:              res.Status,
		SampleSize:          res.SampleSize,
		Processed:           res.Processed,
		Enriched:            res.Enriched,
		Failed:              res.Failed,
		PartialSample:       res.PartialSample,
		Cancelled:           res.Cancelled,
		SuccessRate:         res.Analytics.SuccessRate,
		AverageQualityScore: res.Analytics.AverageQualityScore,
		OutputFile:          res.OutputFile,
		StartedAt:           res.StartedAt,
		FinishedAt:          res.FinishedAt,
	}
}

// Store defines the persistence interface for batch history.
type Store interface {
	// SaveRun inserts or replaces a run and its decisions.
	SaveRun(ctx context.Context, res *model.BatchResult) error
	GetRun(ctx context.Context, runID string) (*RunSummary, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error)
	// ListDecisions returns a run's decisions in sample order.
	ListDecisions(ctx context.Context, runID string) ([]model.DecisionLog, error)

	Migrate(ctx context.Context) error
	Close() error
}

func limitOf(f RunFilter) int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

type scannable interface {
	Scan(dest ...any) error
}

// scanRun reads the summary columns in table order, then any extra
// destinations.
func scanRun(row scannable, extra ...any) (*RunSummary, error) {
	var sum RunSummary
	var status string
	dest := []any{
		&sum.ID, &sum.SessionID, &status, &sum.SampleSize, &sum.Processed, &sum.Enriched, &sum.Failed,
		&sum.PartialSample, &sum.Cancelled, &sum.SuccessRate, &sum.AverageQualityScore, &sum.OutputFile,
		&sum.StartedAt, &sum.FinishedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	sum.Status = model.BatchStatus(status)
	return &sum, nil
}

// decisionRows flattens the decision logs of res into insert rows.
func decisionRows(res *model.BatchResult) [][]any {
	rows := make([][]any, 0, len(res.AIDecisions))
	for _, d := range res.AIDecisions {
		data, err := json.Marshal(d)
		if err != nil {
			continue
		}
		rows = append(rows, []any{
			res.RunID, d.Index, d.Identifier, string(d.Decision), string(d.SearchMethod),
			d.QualityScore, d.Synthetic, string(data),
		})
	}
	return rows
}
