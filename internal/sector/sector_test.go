package sector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)

	tests := []struct {
		name       string
		code       string
		label      string
		wantAct    string
		wantType   string
		wantMethod string
		wantConf   int
	}{
		{"exact code", "62.01Z", "", "Programmation informatique", "service", MethodCode, 90},
		{"code lower", "7022z", "whatever", "Conseil en gestion", "conseil", MethodCode, 90},
		{"keyword", "", "Conseil en gestion", "Conseil et expertise", "conseil", MethodKeyword, 75},
		{"keyword order", "", "Commerce de logiciel", "Développement logiciel", "service", MethodKeyword, 85},
		{"accented keyword", "", "Travaux du BÂTIMENT", "Construction et BTP", "construction", MethodKeyword, 80},
		{"fallback", "", "Location de skis", "Services professionnels", "service", MethodFallback, 50},
		{"empty", "", "", "Services professionnels", "service", MethodFallback, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := c.Analyze(tt.code, tt.label)
			assert.Equal(t, tt.wantAct, a.MainActivity)
			assert.Equal(t, tt.wantType, a.BusinessType)
			assert.Equal(t, tt.wantMethod, a.Method)
			assert.Equal(t, tt.wantConf, a.Confidence)
		})
	}
}

func TestPatterns(t *testing.T) {
	t.Parallel()

	c := NewClassifier(nil)

	conseil := c.Patterns(Analysis{BusinessType: "conseil"})
	assert.Contains(t, conseil, "{commune} Conseil")

	// "service" has no templates; the first keyword selects informatique.
	info := c.Patterns(Analysis{BusinessType: "service", Keywords: []string{"informatique"}})
	assert.Contains(t, info, "{commune} Digital")

	generic := c.Patterns(Analysis{BusinessType: "service", Keywords: []string{"services"}})
	assert.Equal(t, genericPatterns, generic)
}

func TestExtractKeywords(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"conseil", "management"}, ExtractKeywords("Conseil en management"))
	assert.Nil(t, ExtractKeywords(""))
	assert.Empty(t, ExtractKeywords("Boulangerie"))
}

func TestInferCompanyType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Entreprise de conseil", InferCompanyType("Acme Consulting", ""))
	assert.Equal(t, "Entreprise de construction", InferCompanyType("Dupont", "Travaux de maçonnerie"))
	assert.Equal(t, "Entreprise de services", InferCompanyType("Dupont", "Boulangerie"))
}

func TestEstimateSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Micro-entreprise (1-9 salariés)", EstimateSize("12345678900012"))
	assert.Equal(t, "PME (10-49 salariés)", EstimateSize("12345678905555"))
	assert.Equal(t, "Moyenne entreprise (50-249 salariés)", EstimateSize("12345678909999"))
	assert.Equal(t, "Petite structure locale", EstimateSize("123"))
	assert.Equal(t, "Petite structure locale", EstimateSize("1234567890ABCD"))
}

func TestURLSlug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Acme Conseil", "acme-conseil"},
		{"Meaux Bâtiment", "meaux-batiment"},
		{"Lagny-sur-Marne Conseil Patrimoine", "lagny-sur-marne"},
		{"Lagny-sur-Marne Conseil", "lagny-sur-marne-conseil"},
		{"L'Atelier  du   Bois", "latelier-du-bois"},
		{"", DefaultSlug},
		{"!!!", DefaultSlug},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, URLSlug(tt.in))
		})
	}
}

func TestCleanCommune(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Lagny Sur", CleanCommune("LAGNY-SUR-MARNE"))
	assert.Equal(t, "Meaux", CleanCommune("meaux"))
	assert.Equal(t, "Local", CleanCommune(""))
	assert.Equal(t, "Thorigny Sur Conseil", ExpandPattern("{commune} Conseil", "Thorigny-sur-Marne"))
}

func TestWebsitePatterns(t *testing.T) {
	t.Parallel()

	p := WebsitePatterns("Acme Conseil", "Lagny-sur-Marne")
	assert.Equal(t, []string{
		"https://www.acme-conseil.fr",
		"https://acme-conseil.wixsite.com/acme-conseil",
		"https://acme-conseil.business.site",
		"https://sites.google.com/view/acme-conseil",
		"https://www.acme-conseil-lagnysurmarne.fr",
	}, p)

	assert.Len(t, WebsitePatterns("Acme", ""), 4)
}

func TestAlternativeSearchName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Meaux conseil affaires", AlternativeSearchName("Meaux", "Conseil pour les affaires et autres conseils de gestion"))
	assert.Equal(t, "Meaux", AlternativeSearchName("Meaux", ""))
	assert.Equal(t, "Meaux travaux", AlternativeSearchName("Meaux", "Autres services travaux"))
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sectors.yaml")
	content := `
sectors:
  codes:
    "1071C":
      activity: Boulangerie et pâtisserie
      type: commerce
      keywords: [boulangerie]
  keywords:
    - keyword: boulangerie
      activity: Boulangerie artisanale
      type: commerce
      confidence: 80
  name_patterns:
    commerce: ["Boulangerie {commune}"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)

	c := NewClassifier(table)
	a := c.Analyze("1071C", "")
	assert.Equal(t, "Boulangerie et pâtisserie", a.MainActivity)

	a = c.Analyze("", "Boulangerie")
	assert.Equal(t, "Boulangerie artisanale", a.MainActivity)
	assert.Equal(t, MethodKeyword, a.Method)

	// Built-in entries survive the merge.
	a = c.Analyze("6201Z", "")
	assert.Equal(t, "Programmation informatique", a.MainActivity)
	assert.Equal(t, []string{"Boulangerie {commune}"}, c.Patterns(Analysis{BusinessType: "commerce"}))
}

func TestLoadTable_Errors(t *testing.T) {
	_, err := LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sector: read table")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sectors:\n  keywords:\n    - type: x\n"), 0o644))
	_, err = LoadTable(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires keyword")
}
