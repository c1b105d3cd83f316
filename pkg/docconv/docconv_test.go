package docconv

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestContentHashStableAndContentSensitive(t *testing.T) {
	a := contentHash([]byte("same bytes"))
	b := contentHash([]byte("different bytes"))
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, contentHash([]byte("same bytes")))
}

func TestRenderTextPDFProducesValidHeaderAndTrailer(t *testing.T) {
	out := renderTextPDF([][]string{{"hello", "world"}})
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-1.4\n")))
	assert.Contains(t, string(out), "startxref")
	assert.Contains(t, string(out), "%%EOF")
}

func TestRenderTextPDFSplitsLongPages(t *testing.T) {
	lines := make([]string, pdfLinesPerPage*2+5)
	for i := range lines {
		lines[i] = "row"
	}
	out := renderTextPDF([][]string{lines})
	// 3 content streams implies 3 page objects were emitted.
	assert.Equal(t, 3, bytes.Count(out, []byte("/Type /Page ")))
}

func TestConvertSpreadsheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Name"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Score"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Ada"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 42))

	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	out, err := convertSpreadsheet(buf.Bytes())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-1.4\n")))
}

func TestEscapePDFText(t *testing.T) {
	assert.Equal(t, `a \(b\) \\ c`, escapePDFText(`a (b) \ c`))
}
