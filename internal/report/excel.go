package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// sheetWriter appends rows to consecutive sheets of one workbook.
type sheetWriter struct {
	file  *excelize.File
	sheet string
	row   int
}

func newSheetWriter() *sheetWriter {
	return &sheetWriter{file: excelize.NewFile()}
}

// addSheet starts a new sheet. The first call renames the default sheet.
func (w *sheetWriter) addSheet(name string) error {
	if len(name) > 31 {
		name = name[:31]
	}
	if w.sheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.sheet = name
	w.row = 1
	return nil
}

func (w *sheetWriter) writeHeader(columns []string) error {
	row := make([]any, len(columns))
	for i, c := range columns {
		row[i] = c
	}
	if err := w.writeRow(row); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil
	}
	start, _ := excelize.CoordinatesToCellName(1, 1)
	end, _ := excelize.CoordinatesToCellName(len(columns), 1)
	_ = w.file.SetCellStyle(w.sheet, start, end, style)
	_ = w.file.SetPanes(w.sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	return nil
}

func (w *sheetWriter) writeRow(values []any) error {
	if w.sheet == "" {
		return fmt.Errorf("no active sheet")
	}
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d of %s: %w", w.row, w.sheet, err)
	}
	w.row++
	return nil
}

func (w *sheetWriter) save(out io.Writer) error {
	_, err := w.file.WriteTo(out)
	return err
}

func (w *sheetWriter) close() error {
	return w.file.Close()
}
