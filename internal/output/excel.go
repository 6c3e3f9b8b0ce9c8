// Package output writes enriched samples back to spreadsheets and reports.
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/mg-platform/enrich-cli/internal/config"
	"github.com/mg-platform/enrich-cli/internal/dataset"
	"github.com/mg-platform/enrich-cli/internal/model"
	"github.com/mg-platform/enrich-cli/internal/validate"
)

// SheetName is the worksheet holding the enriched sample.
const SheetName = "Données Enrichies"

// DefaultWebsiteHeader is appended when the dataset has no website column.
const DefaultWebsiteHeader = "Site Web établissement"

// Metadata columns appended after the dataset columns.
const (
	ColEnriched         = "IA_Enriched"
	ColConfidenceScore  = "IA_Confidence_Score"
	ColSource           = "IA_Source"
	ColSynthetic        = "IA_Synthetic"
	ColPlausibilityNote = "IA_Plausibility_Note"
	ColDecision         = "IA_Decision"
	ColProcessingDate   = "IA_Processing_Date"
	ColSessionID        = "IA_Session_ID"
)

// MetadataColumns lists the metadata headers in output order.
var MetadataColumns = []string{
	ColEnriched,
	ColConfidenceScore,
	ColSource,
	ColSynthetic,
	ColPlausibilityNote,
	ColDecision,
	ColProcessingDate,
	ColSessionID,
}

// NotProcessed marks sample rows a cancelled run never reached.
const NotProcessed = "NOT_PROCESSED"

// Legend lines written under the data when colorizing.
var Legend = []string{
	"LÉGENDE",
	"Rouge = Données synthétiques (plausibles, non vérifiées)",
	"Vert = Données trouvées sur le web",
	"Bleu = Métadonnées IA",
	"Standard = Données originales",
}

// ExcelWriter writes the annotated sample of a batch.
type ExcelWriter struct {
	dir      string
	colorize bool
	now      func() time.Time
}

// NewExcelWriter creates an ExcelWriter from the output configuration.
func NewExcelWriter(cfg config.OutputConfig) *ExcelWriter {
	return &ExcelWriter{dir: cfg.Dir, colorize: cfg.Colorize, now: time.Now}
}

// FileName returns the spreadsheet name for a session.
func FileName(sessionID string) string {
	return fmt.Sprintf("AI_ENRICHED_Sample_%s.xlsx", sessionID)
}

type styles struct {
	header, text, synthetic, real, meta, legendTitle int
}

// Persist writes one row per sampled record, in sample order, followed by
// the metadata columns. A website is written only for accepted records and
// a declared name only replaces one the dataset did not really have.
func (w *ExcelWriter) Persist(ds *dataset.Dataset, sample []model.CompanyRecord, res *model.BatchResult) (string, error) {
	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return "", eris.Wrap(err, "output: create output dir")
	}

	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return "", eris.Wrap(err, "output: name sheet")
	}

	st, err := newStyles(f)
	if err != nil {
		return "", err
	}

	headers := append([]string(nil), ds.Headers...)
	websiteCol, ok := ds.Mapping[dataset.FieldWebsite]
	if !ok {
		websiteCol = len(headers)
		headers = append(headers, DefaultWebsiteHeader)
	}
	nameCol, hasNameCol := ds.Mapping[dataset.FieldDeclaredName]
	metaStart := len(headers)
	headers = append(headers, MetadataColumns...)

	textCols := identifierColumns(headers[:metaStart])
	idCol, hasIDCol := ds.Mapping[dataset.FieldIdentifier]

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellStr(SheetName, cell, h); err != nil {
			return "", eris.Wrap(err, "output: write header")
		}
		style := st.header
		if w.colorize && i >= metaStart {
			style = st.meta
		}
		if err := f.SetCellStyle(SheetName, cell, cell, style); err != nil {
			return "", eris.Wrap(err, "output: style header")
		}
	}

	processedAt := w.now().Format("2006-01-02 15:04:05")
	for i, rec := range sample {
		pos := i + 1
		excelRow := pos + 1

		values := make([]any, len(headers))
		for c := 0; c < metaStart; c++ {
			values[c] = ""
		}
		if rec.Row >= 0 && rec.Row < len(ds.Rows) {
			for c, v := range ds.Rows[rec.Row] {
				values[c] = v
			}
		}
		if hasIDCol {
			values[idCol] = rec.Identifier
		}

		d, processed := res.Decision(pos)
		data, enriched := res.EnrichmentData[model.PositionKey(pos)]
		enriched = enriched && processed && d.Decision == model.DecisionAccepted

		var fillStyle int
		var styledCols []int
		if enriched {
			fillStyle = st.real
			if d.Synthetic {
				fillStyle = st.synthetic
			}
			if data.Website != "" {
				values[websiteCol] = data.Website
				styledCols = append(styledCols, websiteCol)
			}
			if hasNameCol && !rec.HasDeclaredName() && data.CompanyName != "" {
				values[nameCol] = data.CompanyName
				styledCols = append(styledCols, nameCol)
			}
		}

		decision := NotProcessed
		if processed {
			decision = string(d.Decision)
		}
		score := 0
		if enriched {
			score = d.QualityScore
		}
		meta := []any{
			enriched,
			score,
			string(d.SearchMethod),
			enriched && d.Synthetic,
			d.PlausibilityNote,
			decision,
			processedAt,
			res.SessionID,
		}
		copy(values[metaStart:], meta)

		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, excelRow)
			if textCols[c] {
				v = fixIdentifier(headers[c], fmt.Sprint(v))
			}
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return "", eris.Wrapf(err, "output: write cell %s", cell)
			}
			if textCols[c] {
				if err := f.SetCellStyle(SheetName, cell, cell, st.text); err != nil {
					return "", eris.Wrap(err, "output: style identifier")
				}
			}
		}

		if !w.colorize {
			continue
		}
		for _, c := range styledCols {
			cell, _ := excelize.CoordinatesToCellName(c+1, excelRow)
			if err := f.SetCellStyle(SheetName, cell, cell, fillStyle); err != nil {
				return "", eris.Wrap(err, "output: style enriched cell")
			}
		}
		first, _ := excelize.CoordinatesToCellName(metaStart+1, excelRow)
		last, _ := excelize.CoordinatesToCellName(len(headers), excelRow)
		if err := f.SetCellStyle(SheetName, first, last, st.meta); err != nil {
			return "", eris.Wrap(err, "output: style metadata")
		}
	}

	if w.colorize {
		if err := writeLegend(f, st, len(sample)+3); err != nil {
			return "", err
		}
	}

	for i := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		width := 18.0
		if i == websiteCol || i == metaStart+4 {
			width = 36
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return "", eris.Wrap(err, "output: set column width")
		}
	}

	path := filepath.Join(w.dir, FileName(res.SessionID))
	if err := f.SaveAs(path); err != nil {
		return "", eris.Wrap(err, "output: save workbook")
	}

	zap.L().Info("output: enriched sample written",
		zap.String("path", path),
		zap.Int("rows", len(sample)),
		zap.Int("enriched", res.Enriched),
	)
	return path, nil
}

func newStyles(f *excelize.File) (styles, error) {
	var st styles
	defs := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&st.header, &excelize.Style{
			Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		}},
		{&st.text, &excelize.Style{NumFmt: 49}}, // "@"
		{&st.synthetic, &excelize.Style{
			Font: &excelize.Font{Bold: true, Color: "#CC0000"},
			Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFE6E6"}, Pattern: 1},
		}},
		{&st.real, &excelize.Style{
			Font: &excelize.Font{Bold: true, Color: "#006600"},
			Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6FFE6"}, Pattern: 1},
		}},
		{&st.meta, &excelize.Style{
			Font: &excelize.Font{Italic: true, Color: "#0066CC"},
			Fill: excelize.Fill{Type: "pattern", Color: []string{"#F0F8FF"}, Pattern: 1},
		}},
		{&st.legendTitle, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 12}}},
	}
	for _, d := range defs {
		id, err := f.NewStyle(d.style)
		if err != nil {
			return styles{}, eris.Wrap(err, "output: create style")
		}
		*d.dst = id
	}
	return st, nil
}

func writeLegend(f *excelize.File, st styles, startRow int) error {
	legendStyles := []int{st.legendTitle, st.synthetic, st.real, st.meta, 0}
	for i, line := range Legend {
		cell, _ := excelize.CoordinatesToCellName(2, startRow+i)
		if err := f.SetCellStr(SheetName, cell, line); err != nil {
			return eris.Wrap(err, "output: write legend")
		}
		if legendStyles[i] == 0 {
			continue
		}
		if err := f.SetCellStyle(SheetName, cell, cell, legendStyles[i]); err != nil {
			return eris.Wrap(err, "output: style legend")
		}
	}
	return nil
}

// fixIdentifier undoes numeric coercion in a SIRET cell. SIREN columns only
// lose their float rendering since they are shorter.
func fixIdentifier(header, v string) string {
	if strings.Contains(strings.ToLower(header), "siret") {
		return validate.PadSIRET(v)
	}
	return strings.TrimSuffix(v, ".0")
}

// identifierColumns marks SIRET/SIREN columns, which are written as text so
// leading zeros survive.
func identifierColumns(headers []string) map[int]bool {
	cols := make(map[int]bool)
	for i, h := range headers {
		l := strings.ToLower(h)
		if strings.Contains(l, "siret") || strings.Contains(l, "siren") {
			cols[i] = true
		}
	}
	return cols
}
