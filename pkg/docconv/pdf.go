package docconv

import (
	"bytes"
	"fmt"
	"strings"
)

const (
	pdfLineHeight  = 14
	pdfPageTop     = 780
	pdfLinesPerPage = 50
)

// renderTextPDF writes a minimal single-font PDF with one page per input
// slice, each line placed top-to-bottom in Helvetica 10pt. Long pages are
// split further so no page holds more than pdfLinesPerPage lines.
func renderTextPDF(pages [][]string) []byte {
	var flat [][]string
	for _, lines := range pages {
		for i := 0; i < len(lines); i += pdfLinesPerPage {
			end := i + pdfLinesPerPage
			if end > len(lines) {
				end = len(lines)
			}
			flat = append(flat, lines[i:end])
		}
	}
	if len(flat) == 0 {
		flat = [][]string{{""}}
	}

	var buf bytes.Buffer
	offsets := []int{0}
	write := func(s string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(s)
	}

	buf.WriteString("%PDF-1.4\n")
	offsets[0] = 0

	fontObj := 2
	pagesObj := 1
	firstPageObj := 3
	numPages := len(flat)
	contentObjs := make([]int, numPages)
	pageObjs := make([]int, numPages)
	nextObj := firstPageObj
	for i := 0; i < numPages; i++ {
		pageObjs[i] = nextObj
		nextObj++
	}
	for i := 0; i < numPages; i++ {
		contentObjs[i] = nextObj
		nextObj++
	}

	objOffsets := make(map[int]int)

	objOffsets[pagesObj] = buf.Len()
	kids := make([]string, numPages)
	for i, obj := range pageObjs {
		kids[i] = fmt.Sprintf("%d 0 R", obj)
	}
	write(fmt.Sprintf("%d 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n", pagesObj, strings.Join(kids, " "), numPages))

	objOffsets[fontObj] = buf.Len()
	write(fmt.Sprintf("%d 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n", fontObj))

	for i, lines := range flat {
		objOffsets[pageObjs[i]] = buf.Len()
		write(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent %d 0 R /Resources << /Font << /F1 %d 0 R >> >> /MediaBox [0 0 612 792] /Contents %d 0 R >>\nendobj\n",
			pageObjs[i], pagesObj, fontObj, contentObjs[i]))

		content := buildPageContent(lines)
		objOffsets[contentObjs[i]] = buf.Len()
		write(fmt.Sprintf("%d 0 obj\n<< /Length %d >>\nstream\n%sendstream\nendobj\n", contentObjs[i], len(content), content))
	}

	catalogObj := nextObj
	objOffsets[catalogObj] = buf.Len()
	write(fmt.Sprintf("%d 0 obj\n<< /Type /Catalog /Pages %d 0 R >>\nendobj\n", catalogObj, pagesObj))

	xrefStart := buf.Len()
	maxObj := catalogObj
	buf.WriteString(fmt.Sprintf("xref\n0 %d\n", maxObj+1))
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= maxObj; i++ {
		off, ok := objOffsets[i]
		if !ok {
			buf.WriteString("0000000000 00000 f \n")
			continue
		}
		buf.WriteString(fmt.Sprintf("%010d 00000 n \n", off))
	}
	buf.WriteString(fmt.Sprintf("trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", maxObj+1, catalogObj, xrefStart))

	return buf.Bytes()
}

func buildPageContent(lines []string) string {
	var sb strings.Builder
	sb.WriteString("BT\n/F1 10 Tf\n")
	y := pdfPageTop
	for _, line := range lines {
		sb.WriteString(fmt.Sprintf("1 0 0 1 40 %d Tm\n(%s) Tj\n", y, escapePDFText(line)))
		y -= pdfLineHeight
	}
	sb.WriteString("ET\n")
	return sb.String()
}

func escapePDFText(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)
	return r.Replace(s)
}
