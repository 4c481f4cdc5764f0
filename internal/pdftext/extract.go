// Package pdftext extracts plain text from PDF files page by page.
package pdftext

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extract returns the concatenated text of every page, each prefixed with a
// page delimiter marker. Extraction is order-preserving and deterministic:
// repeated calls on the same file yield identical output. Pages whose text
// cannot be decoded are skipped.
func Extract(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	var builder strings.Builder
	totalPages := reader.NumPage()
	for i := 1; i <= totalPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(fmt.Sprintf("\n--- Page %d ---\n", i))
		builder.WriteString(text)
	}
	return builder.String(), nil
}
