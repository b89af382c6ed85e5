package export

import (
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	domain "restart/internal/domain/export"
)

// SheetName is the single worksheet of an XLSX report.
const SheetName = "Report"

// WriteXLSX writes the table as a one-sheet workbook with a bold header.
// Numeric columns are stored as numbers so totals can be summed in place.
func WriteXLSX(w io.Writer, t domain.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	for col, name := range t.Header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(SheetName, cell, name); err != nil {
			return err
		}
	}
	if len(t.Header) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(t.Header), 1)
		if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
			return err
		}
		lastCol, _ := excelize.ColumnNumberToName(len(t.Header))
		if err := f.SetColWidth(SheetName, "A", lastCol, 24); err != nil {
			return err
		}
	}

	for r, row := range t.Rows {
		for col, v := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, r+2)
			if err != nil {
				return err
			}
			var value any = v
			if t.Numeric[col] {
				if n, err := strconv.ParseFloat(v, 64); err == nil {
					value = n
				}
			}
			if err := f.SetCellValue(SheetName, cell, value); err != nil {
				return err
			}
		}
	}

	_, err = f.WriteTo(w)
	return err
}
