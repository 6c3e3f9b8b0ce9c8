package store

import (
	"fmt"
	"time"

	"github.com/mg-platform/enrich-cli/internal/model"
)

// testRun builds a finished batch with n decisions, every other one accepted.
func testRun(id string, n int, started time.Time) *model.BatchResult {
	res := model.NewBatchResult(id, "sess-"+id, n)
	res.StartedAt = started
	res.FinishedAt = started.Add(3 * time.Second)
	res.Status = model.BatchStatusComplete
	for i := 1; i <= n; i++ {
		d := model.DecisionLog{
			Index:      i,
			Identifier: fmt.Sprintf("7891234560%04d", i),
			Decision:   model.DecisionNoResults,
			Reason:     "no reliable data found",
		}
		if i%2 == 1 {
			d.Decision = model.DecisionAccepted
			d.QualityScore = 90
			d.SearchMethod = model.SourceIntelligentEnhancement
			d.Synthetic = true
			d.PlausibilityNote = "ENRICHED/BASED ON REAL DATA - website not verified"
			res.Enriched++
			res.EnrichmentData[model.PositionKey(i)] = model.CandidateData{CompanyName: fmt.Sprintf("Company %d", i)}
		} else {
			res.Failed++
		}
		res.AIDecisions = append(res.AIDecisions, d)
		res.Processed++
	}
	res.Analytics.SuccessRate = float64(res.Enriched) / float64(res.Processed) * 100
	return res
}
