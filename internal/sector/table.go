// Package sector maps activity codes and labels to business sectors and
// synthesizes plausible company names and website addresses.
package sector

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// CodeEntry describes the sector attached to an exact activity code.
type CodeEntry struct {
	Activity string   `yaml:"activity"`
	Type     string   `yaml:"type"`
	Keywords []string `yaml:"keywords"`
}

// KeywordEntry maps a label keyword to a sector. Order matters: the first
// keyword found in a label wins.
type KeywordEntry struct {
	Keyword    string `yaml:"keyword"`
	Activity   string `yaml:"activity"`
	Type       string `yaml:"type"`
	Confidence int    `yaml:"confidence"`
}

// Table holds the classification data used by a Classifier.
type Table struct {
	Codes        map[string]CodeEntry `yaml:"codes"`
	Keywords     []KeywordEntry       `yaml:"keywords"`
	NamePatterns map[string][]string  `yaml:"name_patterns"`
}

// DefaultTable returns the built-in classification table.
func DefaultTable() *Table {
	return &Table{
		Codes: map[string]CodeEntry{
			"6201Z": {Activity: "Programmation informatique", Type: "service", Keywords: []string{"développement", "logiciel", "informatique"}},
			"6202A": {Activity: "Conseil en systèmes informatiques", Type: "conseil", Keywords: []string{"conseil", "informatique", "IT"}},
			"6202B": {Activity: "Tierce maintenance informatique", Type: "service", Keywords: []string{"maintenance", "support", "informatique"}},
			"4120A": {Activity: "Construction maisons individuelles", Type: "construction", Keywords: []string{"construction", "bâtiment", "maison"}},
			"4332A": {Activity: "Travaux de menuiserie", Type: "artisanat", Keywords: []string{"menuiserie", "bois", "artisan"}},
			"4399C": {Activity: "Travaux spécialisés construction", Type: "construction", Keywords: []string{"travaux", "spécialisé", "BTP"}},
			"4711D": {Activity: "Commerce alimentaire", Type: "commerce", Keywords: []string{"magasin", "alimentaire", "commerce"}},
			"4771Z": {Activity: "Commerce habillement", Type: "commerce", Keywords: []string{"vêtements", "boutique", "mode"}},
			"6920Z": {Activity: "Activités comptables", Type: "service", Keywords: []string{"comptabilité", "expert", "comptable"}},
			"7022Z": {Activity: "Conseil en gestion", Type: "conseil", Keywords: []string{"conseil", "gestion", "management"}},
			"4941A": {Activity: "Transport de voyageurs", Type: "transport", Keywords: []string{"transport", "voyageurs", "déplacement"}},
			"8690A": {Activity: "Activités de santé", Type: "santé", Keywords: []string{"santé", "médical", "soins"}},
		},
		Keywords: []KeywordEntry{
			{Keyword: "informatique", Activity: "Services informatiques", Type: "service", Confidence: 80},
			{Keyword: "logiciel", Activity: "Développement logiciel", Type: "service", Confidence: 85},
			{Keyword: "conseil", Activity: "Conseil et expertise", Type: "conseil", Confidence: 75},
			{Keyword: "construction", Activity: "Construction et BTP", Type: "construction", Confidence: 80},
			{Keyword: "bâtiment", Activity: "Construction et BTP", Type: "construction", Confidence: 80},
			{Keyword: "commerce", Activity: "Commerce et distribution", Type: "commerce", Confidence: 75},
			{Keyword: "transport", Activity: "Transport et logistique", Type: "transport", Confidence: 75},
			{Keyword: "santé", Activity: "Services de santé", Type: "santé", Confidence: 80},
		},
		NamePatterns: map[string][]string{
			"informatique": {"{commune} Digital", "{commune} Solutions", "IT {commune}", "{commune} Tech"},
			"construction": {"Entreprise {commune}", "{commune} Bâtiment", "Construction {commune}", "{commune} Travaux"},
			"conseil":      {"{commune} Conseil", "Expertise {commune}", "{commune} Consulting", "Cabinet {commune}"},
			"commerce":     {"Commerce {commune}", "{commune} Distribution", "Magasin {commune}", "{commune} Services"},
			"transport":    {"Transport {commune}", "{commune} Logistique", "Déplacements {commune}"},
			"santé":        {"Centre {commune}", "{commune} Santé", "Cabinet Médical {commune}"},
		},
	}
}

// genericPatterns are used when no sector-specific pattern applies.
var genericPatterns = []string{"{commune} Services", "Société {commune}", "Entreprise {commune}", "{commune} Solutions"}

// LoadTable reads a YAML table and merges it over the built-in one. Codes and
// name patterns override by key; keywords listed in the file are tried first.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "sector: read table %s", path)
	}

	var wrapper struct {
		Sectors Table `yaml:"sectors"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "sector: parse table")
	}

	t := DefaultTable()
	for code, entry := range wrapper.Sectors.Codes {
		t.Codes[code] = entry
	}
	for typ, patterns := range wrapper.Sectors.NamePatterns {
		t.NamePatterns[typ] = patterns
	}
	if len(wrapper.Sectors.Keywords) > 0 {
		for _, kw := range wrapper.Sectors.Keywords {
			if kw.Keyword == "" || kw.Activity == "" {
				return nil, eris.New("sector: keyword entry requires keyword and activity")
			}
		}
		t.Keywords = append(append([]KeywordEntry{}, wrapper.Sectors.Keywords...), t.Keywords...)
	}
	return t, nil
}
