package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/mg-platform/enrich-cli/internal/model"
)

var registryHeader = []string{"SIRET", "Nom courant/Dénomination", "Commune", "Code NAF", "Libellé NAF", "Site Web établissement"}

func createTestXLSX(t *testing.T, sheet string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	s, err := f.AddSheet(sheet)
	require.NoError(t, err)
	for _, rowData := range rows {
		row := s.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "extract.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_XLSX(t *testing.T) {
	path := createTestXLSX(t, "Sheet1", [][]string{
		registryHeader,
		{" 78912345600012 ", "Boulangerie Martin", "Meaux", "10.71C", "Boulangerie", ""},
		{"", "", "", "", "", ""},
		{"12345678900001", model.SentinelName, "Thorigny-sur-Marne", "70.22Z", "Conseil", "https://www.x.fr"},
	})

	ds, err := Load(path, Options{})
	require.NoError(t, err)

	assert.Equal(t, registryHeader, ds.Headers)
	require.Len(t, ds.Records, 2)
	require.Len(t, ds.Rows, 2)

	r := ds.Records[0]
	assert.Equal(t, "78912345600012", r.Identifier)
	assert.Equal(t, "Boulangerie Martin", r.DeclaredName)
	assert.Equal(t, "Meaux", r.Locality)
	assert.Equal(t, "10.71C", r.ActivityCode)
	assert.Equal(t, 0, r.Row)

	r = ds.Records[1]
	assert.Equal(t, 1, r.Row)
	assert.Equal(t, model.StrategyAlternative, r.Strategy())
	assert.Equal(t, "https://www.x.fr", r.Website)
}

func TestLoad_XLSXNumericIdentifier(t *testing.T) {
	f := xlsx.NewFile()
	s, err := f.AddSheet("Data")
	require.NoError(t, err)
	hdr := s.AddRow()
	for _, h := range []string{"SIRET", "Commune"} {
		hdr.AddCell().SetString(h)
	}
	row := s.AddRow()
	row.AddCell().SetInt(12345678901)
	row.AddCell().SetString("Meaux")
	path := filepath.Join(t.TempDir(), "numeric.xlsx")
	require.NoError(t, f.Save(path))

	ds, err := Load(path, Options{Sheet: "Data"})
	require.NoError(t, err)
	require.Len(t, ds.Records, 1)
	assert.Equal(t, "00012345678901", ds.Records[0].Identifier)
}

func TestLoad_XLSXSheetNotFound(t *testing.T) {
	path := createTestXLSX(t, "Sheet1", [][]string{registryHeader})
	_, err := Load(path, Options{Sheet: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `sheet "Missing" not found`)
}

func TestLoad_CSVSemicolonWithBOM(t *testing.T) {
	content := "\ufeffSIRET;Dénomination;Commune;Libellé NAF\n" +
		"78912345600012;\"Martin; Fils\";Meaux;Travaux de construction\n" +
		"  ;Orphan;Meaux;\n"
	ds, err := Load(writeFile(t, "extract.csv", content), Options{})
	require.NoError(t, err)

	assert.Equal(t, "SIRET", ds.Headers[0])
	require.Len(t, ds.Records, 2)
	assert.Equal(t, "Martin; Fils", ds.Records[0].DeclaredName)
	assert.Equal(t, "Travaux de construction", ds.Records[0].ActivityLabel)
	assert.False(t, ds.Records[1].Eligible())
}

func TestLoad_CSVComma(t *testing.T) {
	content := "Siret,Ville,Nom\n1234,Lyon,Acme\n"
	ds, err := Load(writeFile(t, "extract.csv", content), Options{})
	require.NoError(t, err)

	require.Len(t, ds.Records, 1)
	assert.Equal(t, "00000000001234", ds.Records[0].Identifier)
	assert.Equal(t, "Lyon", ds.Records[0].Locality)
	assert.Equal(t, "Acme", ds.Records[0].DeclaredName)
}

func TestLoad_ShortRowsArePadded(t *testing.T) {
	content := "SIRET,Commune,Code NAF\n78912345600012,Meaux\n"
	ds, err := Load(writeFile(t, "short.csv", content), Options{})
	require.NoError(t, err)
	require.Len(t, ds.Rows, 1)
	assert.Len(t, ds.Rows[0], 3)
	assert.Empty(t, ds.Records[0].ActivityCode)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"unsupported", "extract.txt", "x", "unsupported file type"},
		{"empty", "empty.csv", "", "is empty"},
		{"missing locality", "nolocality.csv", "SIRET,Nom\n1,Acme\n", "missing required column for locality"},
		{"missing identifier", "noid.csv", "Commune,Nom\nMeaux,Acme\n", "missing required column for identifier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content), Options{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.xlsx"), Options{})
	assert.Error(t, err)
}

func TestLoad_AliasOverride(t *testing.T) {
	content := "numero,town\n78912345600012,Meaux\n"
	ds, err := Load(writeFile(t, "custom.csv", content), Options{Aliases: map[string][]string{
		FieldIdentifier: {"numero"},
		FieldLocality:   {"town"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "Meaux", ds.Records[0].Locality)
	col, ok := ds.Column(FieldIdentifier)
	assert.True(t, ok)
	assert.Equal(t, "numero", col)
}

func TestMapColumns(t *testing.T) {
	t.Parallel()

	headers := []string{"Nom du dirigeant", "Dénomination", "SIRET siège", "SIRET", "Commune", "Code NAF"}
	m := MapColumns(headers, DefaultAliases)

	assert.Equal(t, 1, m[FieldDeclaredName], "exact alias beats substring")
	assert.Equal(t, 3, m[FieldIdentifier])
	assert.Equal(t, 4, m[FieldLocality])
	assert.Equal(t, 5, m[FieldActivityCode])
	_, ok := m[FieldWebsite]
	assert.False(t, ok)
}

func TestMapColumns_SubstringFallback(t *testing.T) {
	t.Parallel()

	m := MapColumns([]string{"N° SIRET", "commune d'implantation"}, DefaultAliases)
	assert.Equal(t, 0, m[FieldIdentifier])
	assert.Equal(t, 1, m[FieldLocality])
}

func TestCheckEligible(t *testing.T) {
	content := "SIRET,Commune\n,Meaux\n123,nan\n"
	ds, err := Load(writeFile(t, "none.csv", content), Options{})
	require.NoError(t, err)

	err = ds.CheckEligible()
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoEligibleRecords))

	ds.Records[0].Identifier = "78912345600012"
	assert.NoError(t, ds.CheckEligible())
}
