package docconv

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// convertSpreadsheet renders a workbook to PDF by flattening each sheet's
// rows onto its own page. excelize has no native PDF export path, so this
// is the one format the module can convert without shelling out to an
// external converter: every other format goes through convertViaSoffice.
func convertSpreadsheet(data []byte) ([]byte, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var pages [][]string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		lines := make([]string, 0, len(rows)+1)
		lines = append(lines, sheet)
		for _, row := range rows {
			lines = append(lines, strings.Join(row, "  |  "))
		}
		pages = append(pages, lines)
	}
	if len(pages) == 0 {
		pages = [][]string{{"(empty workbook)"}}
	}
	return renderTextPDF(pages), nil
}
