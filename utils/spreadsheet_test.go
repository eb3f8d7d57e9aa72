package utils

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"
)

// writeWorkbook saves rows to a new workbook under the given sheet name.
func writeWorkbook(t *testing.T, sheet string, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if sheet != "Sheet1" {
		if _, err := f.NewSheet(sheet); err != nil {
			t.Fatal(err)
		}
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(t.TempDir(), "issues.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadSheetRows(t *testing.T) {
	path := writeWorkbook(t, "Issues", [][]interface{}{
		{"Exported 2024-01-01"},
		{"", "Issue ID", "Latitude & Longitude"},
		{"", "ID-1", "51.5, -0.12"},
	})

	rows, err := ReadSheetRows(path, "Issues")
	if err != nil {
		t.Fatalf("ReadSheetRows() error = %v", err)
	}
	want := [][]string{
		{"Exported 2024-01-01"},
		{"", "Issue ID", "Latitude & Longitude"},
		{"", "ID-1", "51.5, -0.12"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %q, want %q", rows, want)
	}
}

func TestReadSheetRowsDefaultsToFirstSheet(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]interface{}{{"a", "b"}})
	rows, err := ReadSheetRows(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || len(rows[0]) != 2 {
		t.Errorf("rows = %q", rows)
	}
}

func TestReadSheetRowsErrors(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]interface{}{{"a"}})
	tests := []struct {
		name  string
		path  string
		sheet string
	}{
		{"missing sheet", path, "Issues"},
		{"missing file", filepath.Join(t.TempDir(), "nope.xlsx"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadSheetRows(tt.path, tt.sheet)
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("error = %v, want *ParseError", err)
			}
		})
	}
}
