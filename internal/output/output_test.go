package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mg-platform/enrich-cli/internal/config"
	"github.com/mg-platform/enrich-cli/internal/dataset"
	"github.com/mg-platform/enrich-cli/internal/model"
)

const extractCSV = "SIRET,Nom courant/Dénomination,Commune\n" +
	"00012345678901,Boulangerie Martin,Meaux\n" +
	"78912345600012,INFORMATION NON-DIFFUSIBLE,Lyon\n" +
	"73282932000074,Acme,Paris\n"

func loadExtract(t *testing.T) *dataset.Dataset {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extract.csv")
	require.NoError(t, os.WriteFile(path, []byte(extractCSV), 0o600))
	ds, err := dataset.Load(path, dataset.Options{})
	require.NoError(t, err)
	return ds
}

// Two accepted records (one web, one synthetic) and a third never processed.
func sampleResult() *model.BatchResult {
	res := model.NewBatchResult("run-1", "sess-1", 3)
	res.Processed, res.Enriched = 2, 2
	res.Status = model.BatchStatusCancelled
	res.Cancelled = true
	res.EnrichmentData["1"] = model.CandidateData{
		CompanyName:       "Boulangerie Martin",
		Website:           "https://www.boulangerie-martin.fr",
		AIValidationScore: 95,
	}
	res.EnrichmentData["2"] = model.CandidateData{
		CompanyName:       "Entreprise Lyon Conseil",
		Website:           "https://www.lyon-conseil.fr",
		AIValidationScore: 75,
		PlausibilityNote:  "PLAUSIBLE/UNVERIFIED - synthesized",
	}
	res.AIDecisions = []model.DecisionLog{
		{Index: 1, Decision: model.DecisionAccepted, QualityScore: 90, SearchMethod: model.SourceWebSearchReal},
		{
			Index: 2, Decision: model.DecisionAccepted, QualityScore: 70, Synthetic: true,
			SearchMethod: model.SourceIntelligentGeneration, PlausibilityNote: "PLAUSIBLE/UNVERIFIED - synthesized",
		},
	}
	return res
}

func cell(t *testing.T, f *excelize.File, ref string) string {
	t.Helper()
	v, err := f.GetCellValue(SheetName, ref)
	require.NoError(t, err)
	return v
}

func style(t *testing.T, f *excelize.File, ref string) int {
	t.Helper()
	id, err := f.GetCellStyle(SheetName, ref)
	require.NoError(t, err)
	return id
}

func TestPersist(t *testing.T) {
	ds := loadExtract(t)
	res := sampleResult()
	dir := filepath.Join(t.TempDir(), "out")

	w := NewExcelWriter(config.OutputConfig{Dir: dir, Colorize: true})
	w.now = func() time.Time { return time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC) }

	path, err := w.Persist(ds, ds.Records, res)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "AI_ENRICHED_Sample_sess-1.xlsx"), path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	// Headers: dataset columns, the added website column, then metadata.
	assert.Equal(t, "SIRET", cell(t, f, "A1"))
	assert.Equal(t, DefaultWebsiteHeader, cell(t, f, "D1"))
	assert.Equal(t, ColEnriched, cell(t, f, "E1"))
	assert.Equal(t, ColSessionID, cell(t, f, "L1"))

	// Identifiers keep their leading zeros.
	assert.Equal(t, "00012345678901", cell(t, f, "A2"))

	// Web hit.
	assert.Equal(t, "Boulangerie Martin", cell(t, f, "B2"))
	assert.Equal(t, "https://www.boulangerie-martin.fr", cell(t, f, "D2"))
	assert.Equal(t, "TRUE", cell(t, f, "E2"))
	assert.Equal(t, "90", cell(t, f, "F2"))
	assert.Equal(t, "WEB_SEARCH_REAL", cell(t, f, "G2"))
	assert.Equal(t, "FALSE", cell(t, f, "H2"))
	assert.Equal(t, "ACCEPTED", cell(t, f, "J2"))
	assert.Equal(t, "2026-03-01 10:30:00", cell(t, f, "K2"))
	assert.Equal(t, "sess-1", cell(t, f, "L2"))

	// Synthetic record: withheld name replaced, data tagged.
	assert.Equal(t, "Entreprise Lyon Conseil", cell(t, f, "B3"))
	assert.Equal(t, "https://www.lyon-conseil.fr", cell(t, f, "D3"))
	assert.Equal(t, "TRUE", cell(t, f, "H3"))
	assert.Equal(t, "PLAUSIBLE/UNVERIFIED - synthesized", cell(t, f, "I3"))

	// Unprocessed record keeps its original data.
	assert.Equal(t, "Acme", cell(t, f, "B4"))
	assert.Empty(t, cell(t, f, "D4"))
	assert.Equal(t, "FALSE", cell(t, f, "E4"))
	assert.Equal(t, NotProcessed, cell(t, f, "J4"))

	webStyle, synthStyle := style(t, f, "D2"), style(t, f, "D3")
	assert.NotZero(t, webStyle)
	assert.NotZero(t, synthStyle)
	assert.NotEqual(t, webStyle, synthStyle)
	assert.Equal(t, synthStyle, style(t, f, "B3"))
	assert.Zero(t, style(t, f, "D4"))
	assert.NotEqual(t, style(t, f, "E2"), webStyle)

	assert.Equal(t, Legend[0], cell(t, f, "B6"))
	assert.Equal(t, Legend[1], cell(t, f, "B7"))
}

func TestPersist_RejectedRecordsAreNotWritten(t *testing.T) {
	ds := loadExtract(t)
	res := model.NewBatchResult("run-2", "sess-2", 1)
	res.Processed, res.Failed = 1, 1
	// A rejected candidate never reaches EnrichmentData, but guard anyway.
	res.EnrichmentData["1"] = model.CandidateData{Website: "https://www.nope.fr"}
	res.AIDecisions = []model.DecisionLog{{Index: 1, Decision: model.DecisionQualityRejected, QualityScore: 40}}

	w := NewExcelWriter(config.OutputConfig{Dir: t.TempDir()})
	path, err := w.Persist(ds, ds.Records[:1], res)
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	assert.Empty(t, cell(t, f, "D2"))
	assert.Equal(t, "FALSE", cell(t, f, "E2"))
	assert.Equal(t, "0", cell(t, f, "F2"))
	assert.Equal(t, "QUALITY_REJECTED", cell(t, f, "J2"))
}

func TestPersist_NoColorize(t *testing.T) {
	ds := loadExtract(t)
	w := NewExcelWriter(config.OutputConfig{Dir: t.TempDir(), Colorize: false})
	path, err := w.Persist(ds, ds.Records, sampleResult())
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	assert.Zero(t, style(t, f, "D2"))
	assert.Empty(t, cell(t, f, "B6"))
}

func TestPersist_IdentifiersKeepLeadingZeros(t *testing.T) {
	content := "SIRET,SIRET siège,Commune\n" +
		"1234567890123,1.2345678900001e+13,Meaux\n" +
		"1.2345678900001e+13,78912345600012,Lyon\n"
	path := filepath.Join(t.TempDir(), "coerced.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	ds, err := dataset.Load(path, dataset.Options{})
	require.NoError(t, err)
	require.Len(t, ds.Records, 2)

	res := model.NewBatchResult("run-3", "sess-3", 2)
	out, err := NewExcelWriter(config.OutputConfig{Dir: t.TempDir()}).Persist(ds, ds.Records, res)
	require.NoError(t, err)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	assert.Equal(t, "01234567890123", cell(t, f, "A2"))
	assert.Equal(t, "12345678900001", cell(t, f, "B2"))
	assert.Equal(t, "12345678900001", cell(t, f, "A3"))
	assert.Equal(t, "78912345600012", cell(t, f, "B3"))
}

func TestFixIdentifier(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "00012345678901", fixIdentifier("SIRET", "12345678901"))
	assert.Equal(t, "12345678900001", fixIdentifier("N° Siret", "1.2345678900001e+13"))
	assert.Equal(t, "789123456", fixIdentifier("SIREN", "789123456.0"))
	assert.Equal(t, "non diffusé", fixIdentifier("SIRET", "non diffusé"))
}

func TestIdentifierColumns(t *testing.T) {
	t.Parallel()

	cols := identifierColumns([]string{"SIRET", "Nom", "SIREN siège", "Commune"})
	assert.Equal(t, map[int]bool{0: true, 2: true}, cols)
}

func TestWriteJSONReport(t *testing.T) {
	res := sampleResult()
	path := filepath.Join(t.TempDir(), "reports", ReportName(res.SessionID))

	require.NoError(t, WriteJSONReport(path, config.DefaultEnrichConfig(), res))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Report
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, 85, got.Config.QualityThreshold)
	require.NotNil(t, got.Result)
	assert.Equal(t, "run-1", got.Result.RunID)
	assert.Len(t, got.Result.AIDecisions, 2)
	assert.True(t, got.Result.Cancelled)
	assert.Equal(t, "Entreprise Lyon Conseil", got.Result.EnrichmentData["2"].CompanyName)
}
