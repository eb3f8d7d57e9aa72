package handlers

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/bsaid97/go-boundary-fixer/utils"
	"github.com/twpayne/go-geom"
)

const (
	IssueIDColumn          = "Issue ID"
	IssueCoordinatesColumn = "Latitude & Longitude"
)

type IssueOptions struct {
	// HeaderRow is the zero-based row holding column names. Data starts on
	// the row after it.
	HeaderRow int
	// ColumnOffset leading columns are ignored in the header and in every
	// data row.
	ColumnOffset      int
	IDColumn          string
	CoordinatesColumn string
	// DropColumns are removed from the output properties.
	DropColumns []string
}

func DefaultIssueOptions() IssueOptions {
	return IssueOptions{
		HeaderRow:         1,
		ColumnOffset:      1,
		IDColumn:          IssueIDColumn,
		CoordinatesColumn: IssueCoordinatesColumn,
		DropColumns:       []string{IssueCoordinatesColumn, "Google Maps", "Cumul. Type", "Proposed ID"},
	}
}

// ConvertIssues turns spreadsheet rows into point regions. Rows without an
// ID are skipped silently, rows without coordinates are skipped with a
// warning. Coordinates are read as "lat, lon" and written as [lon, lat].
func ConvertIssues(rows [][]string, opts IssueOptions) (*utils.FeatureCollection, []utils.MissingDataWarning, error) {
	if len(rows) <= opts.HeaderRow {
		return nil, nil, fmt.Errorf("no header row: sheet has %d rows", len(rows))
	}
	header := cellsFrom(rows[opts.HeaderRow], opts.ColumnOffset)
	for _, required := range []string{opts.IDColumn, opts.CoordinatesColumn} {
		if !slices.Contains(header, required) {
			return nil, nil, fmt.Errorf("missing required column %q", required)
		}
	}

	fc := utils.NewFeatureCollection(opts.IDColumn, make([]*utils.Region, 0))
	var warnings []utils.MissingDataWarning
	for r := opts.HeaderRow + 1; r < len(rows); r++ {
		cells := cellsFrom(rows[r], opts.ColumnOffset)
		record := make(map[string]interface{}, len(header))
		for i, key := range header {
			if key == "" {
				continue
			}
			if i < len(cells) && cells[i] != "" {
				record[key] = cells[i]
			} else {
				record[key] = nil
			}
		}

		id, _ := record[opts.IDColumn].(string)
		if id == "" {
			continue
		}

		latLon, _ := record[opts.CoordinatesColumn].(string)
		if strings.TrimSpace(latLon) == "" || strings.TrimSpace(latLon) == "0" {
			warning := utils.MissingDataWarning{Row: r, Column: opts.CoordinatesColumn, Record: record}
			warnings = append(warnings, warning)
			utils.L().Warn("no coordinates, skipping entry", "row", r, "record", fmt.Sprintf("%v", record))
			continue
		}
		point, err := parseLatLon(latLon)
		if err != nil {
			return nil, warnings, fmt.Errorf("row %d (%s): %w", r, id, err)
		}

		for _, column := range opts.DropColumns {
			delete(record, column)
		}
		fc.Regions = append(fc.Regions, &utils.Region{
			ID:         strconv.Itoa(len(fc.Regions) + 1),
			Name:       id,
			Geometry:   point,
			Properties: record,
		})
	}

	utils.L().Info("converted issues", "rows", len(rows)-opts.HeaderRow-1, "features", len(fc.Regions), "skipped", len(warnings))
	return fc, warnings, nil
}

func cellsFrom(row []string, offset int) []string {
	if offset >= len(row) {
		return nil
	}
	return row[offset:]
}

func parseLatLon(s string) (*geom.Point, error) {
	parts := strings.Split(s, ", ")
	if len(parts) != 2 {
		return nil, fmt.Errorf("coordinates %q are not \"lat, lon\"", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", parts[0], err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", parts[1], err)
	}
	return geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{lon, lat}), nil
}

// ImportIssues reads the sheet at path and writes the point collection to
// output, gzipping it when requested. It returns the path written.
func ImportIssues(path, sheet, output string, gzip bool, opts IssueOptions) (string, []utils.MissingDataWarning, error) {
	rows, err := utils.ReadSheetRows(path, sheet)
	if err != nil {
		return "", nil, err
	}
	fc, warnings, err := ConvertIssues(rows, opts)
	if err != nil {
		return "", warnings, &utils.ParseError{Path: path, Err: err}
	}
	if err := utils.WriteFeatureCollection(output, fc); err != nil {
		return "", warnings, err
	}
	if !gzip {
		return output, warnings, nil
	}
	compressed, err := utils.GzipFile(output)
	if err != nil {
		return "", warnings, err
	}
	return compressed, warnings, nil
}
