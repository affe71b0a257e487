package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "JSS1 A - First Term",
		Headers: []string{"Position", "Student", "Total"},
		Rows: []map[string]string{
			{"Position": "1st", "Student": "Ada Obi", "Total": "180.50"},
			{"Position": "2nd", "Student": "Bola Ade", "Total": "170.00"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Position,Student,Total", lines[0])
	assert.Equal(t, "1st,Ada Obi,180.50", lines[1])
}

func TestXLSXExporterRender(t *testing.T) {
	out, err := NewXLSXExporter().Render(sampleDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue(defaultSheet, "B3")
	require.NoError(t, err)
	assert.Equal(t, "Bola Ade", v)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestRendererRequiresHeaders(t *testing.T) {
	for _, f := range []Format{FormatCSV, FormatPDF, FormatXLSX} {
		_, err := NewRenderer(f).Render(Dataset{})
		assert.Error(t, err, f)
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	assert.Equal(t, ".xlsx", FormatXLSX.Extension())
	_, err = ParseFormat("docx")
	assert.Error(t, err)
}

func TestCSVExporterNeutralizesFormulas(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"Student", "Score"},
		Rows: []map[string]string{
			{"Student": "=HYPERLINK(\"x\")", "Score": "-5"},
			{"Student": "-cmd", "Score": "12.50"},
		},
	})
	require.NoError(t, err)
	body := string(out)
	assert.Contains(t, body, `"'=HYPERLINK(""x"")",-5`)
	assert.Contains(t, body, "'-cmd,12.50")
}
