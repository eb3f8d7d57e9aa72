package utils

import (
	"fmt"
	"slices"

	"github.com/xuri/excelize/v2"
)

// ReadSheetRows returns every row of the named sheet as strings. An empty
// sheet name reads the first sheet. Trailing empty cells are trimmed by
// excelize, so rows may be ragged.
func ReadSheetRows(path string, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if !slices.Contains(f.GetSheetList(), sheet) {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("sheet %q not found", sheet)}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	L().Debug("read spreadsheet", "path", path, "sheet", sheet, "rows", len(rows))
	return rows, nil
}
