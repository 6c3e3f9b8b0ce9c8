package dataset

import (
	"math"
	"strings"

	"github.com/mg-platform/enrich-cli/internal/model"
	"github.com/mg-platform/enrich-cli/internal/validate"
)

// Context summarises what an extract offers for enrichment.
type Context struct {
	TotalCompanies    int               `json:"total_companies"`
	ColumnsCount      int               `json:"columns_count"`
	ColumnMapping     map[string]string `json:"column_mapping"`
	HasSIRET          bool              `json:"has_siret"`
	HasWebsiteColumn  bool              `json:"has_website_column"`
	WebsiteColumn     string            `json:"website_column,omitempty"`
	WebsiteCompletion float64           `json:"website_completion"` // 0..1
	Eligible          int               `json:"eligible"`
	WithDeclaredName  int               `json:"with_declared_name"`
	Withheld          int               `json:"withheld_name"`
	ValidSIRET        int               `json:"valid_siret"`
	ChecksumSIRET     int               `json:"checksum_siret"`
	EmailColumn       string            `json:"email_column,omitempty"`
	ValidEmails       int               `json:"valid_emails"`
}

// AnalyzeContext inspects the mapped columns of ds.
func AnalyzeContext(ds *Dataset) Context {
	c := Context{
		TotalCompanies: len(ds.Records),
		ColumnsCount:   len(ds.Headers),
		ColumnMapping:  make(map[string]string, len(ds.Mapping)),
	}
	for field, i := range ds.Mapping {
		c.ColumnMapping[field] = ds.Headers[i]
	}
	_, c.HasSIRET = ds.Mapping[FieldIdentifier]
	c.WebsiteColumn, c.HasWebsiteColumn = ds.Column(FieldWebsite)

	websites := 0
	for _, r := range ds.Records {
		if r.Website != "" {
			websites++
		}
		if r.Eligible() {
			c.Eligible++
		}
		switch {
		case r.HasDeclaredName():
			c.WithDeclaredName++
		case strings.EqualFold(r.DeclaredName, model.SentinelName):
			c.Withheld++
		}
		if validate.SIRET(r.Identifier) {
			c.ValidSIRET++
			if validate.SIRETChecksum(r.Identifier) {
				c.ChecksumSIRET++
			}
		}
	}
	if col, ok := emailColumn(ds.Headers); ok {
		c.EmailColumn = ds.Headers[col]
		for _, row := range ds.Rows {
			if col < len(row) && validate.Email(row[col]) {
				c.ValidEmails++
			}
		}
	}
	if c.HasWebsiteColumn && c.TotalCompanies > 0 {
		c.WebsiteCompletion = float64(websites) / float64(c.TotalCompanies)
	}
	return c
}

// emailColumn finds a contact address column. Extracts only carry one when
// the registry export was enriched upstream.
func emailColumn(headers []string) (int, bool) {
	for i, h := range headers {
		l := strings.ToLower(h)
		if strings.Contains(l, "mail") || strings.Contains(l, "courriel") {
			return i, true
		}
	}
	return 0, false
}

// ColumnStat describes the fill rate of one column.
type ColumnStat struct {
	Column         string   `json:"column"`
	Total          int      `json:"total_values"`
	Present        int      `json:"present_count"`
	Missing        int      `json:"missing_count"`
	CompletionRate float64  `json:"completion_rate"` // percent, one decimal
	Unique         int      `json:"unique_values"`
	Samples        []string `json:"sample_values"`
}

// Missing reports whether a cell holds no usable value.
func Missing(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "nan", "NaN", model.SentinelName:
		return true
	}
	return false
}

// ColumnStats returns one entry per header, in header order.
func ColumnStats(ds *Dataset) []ColumnStat {
	stats := make([]ColumnStat, len(ds.Headers))
	for col, h := range ds.Headers {
		s := ColumnStat{Column: h, Total: len(ds.Rows), Samples: []string{}}
		seen := make(map[string]struct{})
		for _, row := range ds.Rows {
			v := row[col]
			if Missing(v) {
				s.Missing++
				continue
			}
			s.Present++
			seen[v] = struct{}{}
			if len(s.Samples) < 3 {
				s.Samples = append(s.Samples, v)
			}
		}
		s.Unique = len(seen)
		if s.Total > 0 {
			s.CompletionRate = math.Round(float64(s.Present)/float64(s.Total)*1000) / 10
		}
		stats[col] = s
	}
	return stats
}
