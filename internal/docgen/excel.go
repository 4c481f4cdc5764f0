// Package docgen writes spreadsheet and word-processing artifacts into the
// scratch directory.
package docgen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// Sheet describes one worksheet of a generated workbook.
type Sheet struct {
	Name         string     `json:"name"`
	Headers      []string   `json:"headers,omitempty"`
	Rows         [][]string `json:"rows"`
	ColumnWidths []float64  `json:"column_widths,omitempty"`
}

// WriteExcel creates an .xlsx workbook in dir and returns its path. The
// requested file name is sanitized and suffixed with a short unique id so
// repeated generations never clobber each other.
func WriteExcel(dir, fileName string, sheets []Sheet) (string, error) {
	if len(sheets) == 0 {
		return "", fmt.Errorf("at least one sheet is required")
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		name := sheet.Name
		if name == "" {
			name = fmt.Sprintf("Sheet%d", i+1)
		}
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return "", fmt.Errorf("rename sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(name); err != nil {
				return "", fmt.Errorf("create sheet %s: %w", name, err)
			}
		}

		rowIdx := 1
		if len(sheet.Headers) > 0 {
			cell, err := excelize.CoordinatesToCellName(1, rowIdx)
			if err != nil {
				return "", fmt.Errorf("header cell: %w", err)
			}
			headers := make([]interface{}, len(sheet.Headers))
			for j, h := range sheet.Headers {
				headers[j] = h
			}
			if err := f.SetSheetRow(name, cell, &headers); err != nil {
				return "", fmt.Errorf("write headers: %w", err)
			}
			rowIdx++
		}
		for _, row := range sheet.Rows {
			cell, err := excelize.CoordinatesToCellName(1, rowIdx)
			if err != nil {
				return "", fmt.Errorf("row cell: %w", err)
			}
			values := make([]interface{}, len(row))
			for j, v := range row {
				values[j] = v
			}
			if err := f.SetSheetRow(name, cell, &values); err != nil {
				return "", fmt.Errorf("write row %d: %w", rowIdx, err)
			}
			rowIdx++
		}
		for j, width := range sheet.ColumnWidths {
			if width <= 0 {
				continue
			}
			col, err := excelize.ColumnNumberToName(j + 1)
			if err != nil {
				continue
			}
			if err := f.SetColWidth(name, col, col, width); err != nil {
				return "", fmt.Errorf("set column width: %w", err)
			}
		}
	}

	// the visitor's scratch subdir may not exist yet on a no-upload turn
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, UniqueName(fileName, ".xlsx"))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	return path, nil
}

// UniqueName sanitizes a requested artifact name and appends a short uuid
// fragment before the extension.
func UniqueName(fileName, ext string) string {
	base := strings.TrimSuffix(filepath.Base(fileName), ext)
	base = strings.TrimSpace(base)
	if base == "" || base == "." {
		base = "document"
	}
	// keep filesystem-hostile characters out of artifact names
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	base = replacer.Replace(base)
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("%s-%s%s", base, suffix, ext)
}
