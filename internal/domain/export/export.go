// Package export shapes report rows into downloadable tables.
package export

import (
	"errors"
	"strconv"
	"strings"

	"restart/internal/domain/hours"
)

// Format constants for report downloads.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// ErrUnknownFormat is returned for an unsupported format name.
var ErrUnknownFormat = errors.New("format must be json, csv or xlsx")

// ParseFormat normalises a format name; empty means JSON.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", ErrUnknownFormat
}

// ContentType returns the MIME type of a download format.
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/json"
}

// Filename builds "report_2025-10-01_2025-10-31.csv".
func Filename(start, end, format string) string {
	return "report_" + start + "_" + end + "." + format
}

// Table is a header plus string rows, ready for any tabular writer.
// Numeric holds the indexes of columns that carry numbers.
type Table struct {
	Header  []string
	Rows    [][]string
	Numeric map[int]bool
}

// ReportTable lays out collapsed report rows with the backend's column names.
// INVARIANT: a nil room is rendered as an empty cell
func ReportTable(rows []hours.ReportRow) Table {
	t := Table{
		Header:  []string{"istruttore", "sala", "totale_ore"},
		Rows:    make([][]string, 0, len(rows)),
		Numeric: map[int]bool{2: true},
	}
	for _, r := range rows {
		room := ""
		if r.Room != nil {
			room = *r.Room
		}
		t.Rows = append(t.Rows, []string{r.Instructor, room, strconv.FormatFloat(r.TotalHours, 'f', -1, 64)})
	}
	return t
}
