package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/mg-platform/enrich-cli/internal/config"
	"github.com/mg-platform/enrich-cli/internal/model"
)

// Report is the JSON document written next to the spreadsheet.
type Report struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Config      config.EnrichConfig `json:"config"`
	Result      *model.BatchResult  `json:"result"`
}

// ReportName returns the JSON report name for a session.
func ReportName(sessionID string) string {
	return fmt.Sprintf("AI_ENRICHED_Report_%s.json", sessionID)
}

// WriteJSONReport writes res, with the configuration that produced it, to
// path as indented JSON.
func WriteJSONReport(path string, cfg config.EnrichConfig, res *model.BatchResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return eris.Wrap(err, "output: create report dir")
	}

	file, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "output: create report")
	}
	defer file.Close() //nolint:errcheck

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Report{GeneratedAt: time.Now().UTC(), Config: cfg, Result: res}); err != nil {
		return eris.Wrap(err, "output: encode report")
	}
	return nil
}
