package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfTableWidth = 190.0
	pdfHeaderH    = 8.0
	pdfRowH       = 7.0
)

// PDFExporter renders a Dataset as a single-table A4 PDF.
type PDFExporter struct{}

// NewPDFExporter builds a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render lays out the title and table. The header row repeats after
// each page break.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf export needs headers")
	}
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetMargins(10, 15, 10)
	colW := pdfTableWidth / float64(len(data.Headers))

	writeHeader := func() {
		doc.SetFont("Arial", "B", 10)
		doc.SetFillColor(235, 235, 235)
		for _, h := range data.Headers {
			doc.CellFormat(colW, pdfHeaderH, h, "1", 0, "C", true, 0, "")
		}
		doc.Ln(-1)
		doc.SetFont("Arial", "", 9)
	}
	doc.SetHeaderFunc(func() {
		if doc.PageNo() > 1 {
			writeHeader()
		}
	})

	doc.AddPage()
	if title != "" {
		doc.SetFont("Arial", "B", 14)
		doc.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
		doc.Ln(4)
	}
	writeHeader()

	for _, row := range data.Rows {
		for _, cell := range data.record(row) {
			doc.CellFormat(colW, pdfRowH, cell, "1", 0, "", false, 0, "")
		}
		doc.Ln(-1)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
