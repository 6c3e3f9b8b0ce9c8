// Package dataset loads registry extracts (xlsx or csv) into company records.
package dataset

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/mg-platform/enrich-cli/internal/model"
	"github.com/mg-platform/enrich-cli/internal/validate"
)

// Logical fields a header can be mapped to.
const (
	FieldDeclaredName  = "declared_name"
	FieldIdentifier    = "identifier"
	FieldLocality      = "locality"
	FieldActivityCode  = "activity_code"
	FieldActivityLabel = "activity_label"
	FieldWebsite       = "website"
)

// Fields lists the logical fields in mapping order.
var Fields = []string{
	FieldDeclaredName,
	FieldIdentifier,
	FieldLocality,
	FieldActivityCode,
	FieldActivityLabel,
	FieldWebsite,
}

// DefaultAliases are the registry extract headers recognised for each field.
// Earlier aliases win.
var DefaultAliases = map[string][]string{
	FieldDeclaredName:  {"Nom courant/Dénomination", "Dénomination", "Raison sociale", "Nom"},
	FieldIdentifier:    {"SIRET", "Siret"},
	FieldLocality:      {"Commune", "Ville"},
	FieldActivityCode:  {"Code NAF", "APE", "Activité principale"},
	FieldActivityLabel: {"Libellé NAF", "Libellé activité", "Secteur"},
	FieldWebsite:       {"Site Web établissement", "Site web", "Website"},
}

// ErrNoEligibleRecords is returned when no row has both an identifier and a locality.
var ErrNoEligibleRecords = eris.New("dataset: no eligible records (identifier and locality required)")

// Options configures Load.
type Options struct {
	Sheet   string              // xlsx sheet name; first sheet when empty
	Aliases map[string][]string // per-field overrides of DefaultAliases
}

// Dataset is a loaded extract. Rows hold the trimmed cells of every data row,
// padded to the header width; Records[i] is derived from Rows[i].
type Dataset struct {
	Path    string
	Headers []string
	Rows    [][]string
	Records []model.CompanyRecord
	Mapping map[string]int // field -> column index
}

// Load reads path and maps its header row onto company records. The format
// is chosen by extension.
func Load(path string, opts Options) (*Dataset, error) {
	var (
		raw [][]string
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		raw, err = readXLSX(path, opts.Sheet)
	case ".csv":
		raw, err = readCSV(path)
	default:
		return nil, eris.Errorf("dataset: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, eris.Errorf("dataset: %s is empty", path)
	}
	return build(path, raw, opts.Aliases)
}

func build(path string, raw [][]string, overrides map[string][]string) (*Dataset, error) {
	headers := trimAll(raw[0])
	mapping := MapColumns(headers, mergeAliases(overrides))
	for _, f := range []string{FieldIdentifier, FieldLocality} {
		if _, ok := mapping[f]; !ok {
			return nil, eris.Errorf("dataset: missing required column for %s", f)
		}
	}

	ds := &Dataset{
		Path:    path,
		Headers: headers,
		Mapping: mapping,
	}
	for _, r := range raw[1:] {
		cells := trimAll(r)
		if blank(cells) {
			continue
		}
		row := make([]string, len(headers))
		copy(row, cells)
		idx := len(ds.Rows)
		ds.Rows = append(ds.Rows, row)
		ds.Records = append(ds.Records, ds.record(row, idx))
	}
	return ds, nil
}

func (ds *Dataset) record(row []string, idx int) model.CompanyRecord {
	get := func(field string) string {
		if i, ok := ds.Mapping[field]; ok && i < len(row) {
			return row[i]
		}
		return ""
	}
	return model.CompanyRecord{
		Identifier:    validate.PadSIRET(get(FieldIdentifier)),
		DeclaredName:  get(FieldDeclaredName),
		Locality:      get(FieldLocality),
		ActivityCode:  get(FieldActivityCode),
		ActivityLabel: get(FieldActivityLabel),
		Website:       get(FieldWebsite),
		Row:           idx,
	}
}

// Column returns the header of the column mapped to field, if any.
func (ds *Dataset) Column(field string) (string, bool) {
	i, ok := ds.Mapping[field]
	if !ok {
		return "", false
	}
	return ds.Headers[i], true
}

// CheckEligible returns ErrNoEligibleRecords when no record can be sampled.
func (ds *Dataset) CheckEligible() error {
	for _, r := range ds.Records {
		if r.Eligible() {
			return nil
		}
	}
	return eris.Wrapf(ErrNoEligibleRecords, "dataset: %s", ds.Path)
}

// MapColumns maps each field to the first header matching one of its
// aliases. Exact (case-insensitive) matches are preferred over substring
// matches, and a column is never mapped twice.
func MapColumns(headers []string, aliases map[string][]string) map[string]int {
	mapping := make(map[string]int)
	used := make(map[int]bool)

	match := func(field string, fn func(h, alias string) bool) {
		if _, done := mapping[field]; done {
			return
		}
		for _, alias := range aliases[field] {
			for i, h := range headers {
				if !used[i] && fn(strings.ToLower(h), strings.ToLower(alias)) {
					mapping[field] = i
					used[i] = true
					return
				}
			}
		}
	}

	for _, f := range Fields {
		match(f, func(h, a string) bool { return h == a })
	}
	for _, f := range Fields {
		match(f, strings.Contains)
	}
	return mapping
}

func mergeAliases(overrides map[string][]string) map[string][]string {
	out := make(map[string][]string, len(DefaultAliases))
	for k, v := range DefaultAliases {
		out[k] = v
	}
	for k, v := range overrides {
		if len(v) > 0 {
			out[k] = v
		}
	}
	return out
}

func trimAll(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
