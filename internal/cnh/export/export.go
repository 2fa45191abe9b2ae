// Package export renders extraction results as tables: one header row with
// the field keys in AllFields order and one row per result.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
)

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// SheetName is the worksheet holding the results in XLSX exports
const SheetName = "CNH"

// ParseFormat validates a format name. Empty selects CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Header returns the field keys in export order
func Header() []string {
	out := make([]string, len(domain.AllFields))
	for i, f := range domain.AllFields {
		out[i] = string(f)
	}
	return out
}

// Row returns the values of res in export order, with the not-found marker
// for missing fields
func Row(res *domain.ExtractionResult) []string {
	out := make([]string, len(domain.AllFields))
	for i, f := range domain.AllFields {
		out[i] = res.Get(f).String()
	}
	return out
}

// WriteCSV writes the results as CSV. Values holding the separator, quotes
// or line breaks are quoted.
func WriteCSV(w io.Writer, sep rune, results ...*domain.ExtractionResult) error {
	cw := csv.NewWriter(w)
	if sep != 0 {
		cw.Comma = sep
	}

	if err := cw.Write(Header()); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	for _, res := range results {
		if err := cw.Write(Row(res)); err != nil {
			return fmt.Errorf("csv write: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	return nil
}

var columnWidths = []struct {
	from, to string
	width    float64
}{
	{"A", "A", 36}, // name
	{"B", "D", 14}, // cpf, dates
	{"E", "E", 48}, // parentage
	{"F", "G", 14},
}

func writeRow(f *excelize.File, row int, values []string) error {
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return fmt.Errorf("xlsx write: %w", err)
		}
		if err := f.SetCellValue(SheetName, cell, v); err != nil {
			return fmt.Errorf("xlsx write: %w", err)
		}
	}
	return nil
}

// XLSX renders the results as a workbook
func XLSX(results ...*domain.ExtractionResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	if err := writeRow(f, 1, Header()); err != nil {
		return nil, err
	}
	for i, res := range results {
		if err := writeRow(f, i+2, Row(res)); err != nil {
			return nil, err
		}
	}

	for _, w := range columnWidths {
		if err := f.SetColWidth(SheetName, w.from, w.to, w.width); err != nil {
			return nil, fmt.Errorf("xlsx write: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// Write renders results in the given format
func Write(w io.Writer, format Format, sep rune, results ...*domain.ExtractionResult) error {
	switch format {
	case FormatXLSX:
		data, err := XLSX(results...)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		return WriteCSV(w, sep, results...)
	}
}
