// Package export writes report tables as CSV or XLSX downloads.
package export

import (
	"bufio"
	"io"
	"strings"

	domain "restart/internal/domain/export"
)

// WriteCSV writes the table with every data field quoted and rows separated
// by "\n". The header row is written bare.
func WriteCSV(w io.Writer, t domain.Table) error {
	bw := bufio.NewWriter(w)
	writeRow := func(fields []string) {
		for i, f := range fields {
			if i > 0 {
				bw.WriteByte(',')
			}
			bw.WriteByte('"')
			bw.WriteString(strings.ReplaceAll(f, `"`, `""`))
			bw.WriteByte('"')
		}
	}
	bw.WriteString(strings.Join(t.Header, ","))
	for _, row := range t.Rows {
		bw.WriteByte('\n')
		writeRow(row)
	}
	return bw.Flush()
}
