package utils

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
)

const maxDBFFieldName = 10

// GenerateShapefileZip creates a zip holding the GeoJSON document and a
// shapefile (.shp, .shx, .dbf) of the same regions, all named baseName.
func GenerateShapefileZip(jsonData []byte, fc *FeatureCollection, baseName string) ([]byte, error) {
	var zipBuffer bytes.Buffer
	zipWriter := zip.NewWriter(&zipBuffer)

	jsonFile, err := zipWriter.Create(baseName + ".geojson")
	if err != nil {
		return nil, fmt.Errorf("failed to create JSON file in zip: %w", err)
	}
	if _, err := jsonFile.Write(jsonData); err != nil {
		return nil, fmt.Errorf("failed to write JSON data to zip: %w", err)
	}

	if err := addShapefileToZip(zipWriter, fc, baseName); err != nil {
		return nil, fmt.Errorf("failed to add shapefile to zip: %w", err)
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close zip writer: %w", err)
	}
	return zipBuffer.Bytes(), nil
}

// WriteShapefileZip writes the GeoJSON plus shapefile bundle for fc next to
// geojsonPath, replacing its extension with .zip.
func WriteShapefileZip(geojsonPath string, fc *FeatureCollection) (string, error) {
	jsonData, err := fc.MarshalJSON()
	if err != nil {
		return "", &WriteError{Path: geojsonPath, Err: err}
	}
	baseName := strings.TrimSuffix(filepath.Base(geojsonPath), filepath.Ext(geojsonPath))
	zipData, err := GenerateShapefileZip(jsonData, fc, baseName)
	if err != nil {
		return "", &WriteError{Path: geojsonPath, Err: err}
	}
	zipPath := strings.TrimSuffix(geojsonPath, filepath.Ext(geojsonPath)) + ".zip"
	if err := writeFile(zipPath, zipData); err != nil {
		return "", err
	}
	return zipPath, nil
}

func addShapefileToZip(zipWriter *zip.Writer, fc *FeatureCollection, baseName string) error {
	tempDir, err := os.MkdirTemp("", "shapefile_")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	shapefilePath := filepath.Join(tempDir, baseName+".shp")
	if err := generateShapefile(shapefilePath, fc); err != nil {
		return fmt.Errorf("failed to generate shapefile: %w", err)
	}

	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		filePath := strings.TrimSuffix(shapefilePath, ".shp") + ext
		fileContent, err := os.ReadFile(filePath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read shapefile component %s: %w", ext, err)
		}
		zipFile, err := zipWriter.Create(baseName + ext)
		if err != nil {
			return fmt.Errorf("failed to create %s file in zip: %w", ext, err)
		}
		if _, err := zipFile.Write(fileContent); err != nil {
			return fmt.Errorf("failed to write %s data to zip: %w", ext, err)
		}
	}
	return nil
}

func generateShapefile(shapefilePath string, fc *FeatureCollection) error {
	if len(fc.Regions) == 0 {
		return fmt.Errorf("no features to write to shapefile")
	}

	shapeType, err := shapeTypeFor(fc.Regions)
	if err != nil {
		return err
	}

	shape, err := shp.Create(shapefilePath, shapeType)
	if err != nil {
		return fmt.Errorf("failed to create shapefile: %w", err)
	}
	defer shape.Close()

	keys, fields := createFieldsFromRegions(fc.Regions)
	if err := shape.SetFields(fields); err != nil {
		return fmt.Errorf("failed to set shapefile fields: %w", err)
	}

	for i, region := range fc.Regions {
		row := shape.Write(toShape(region.Geometry, shapeType))
		if err := writeAttributes(shape, int(row), region.Properties, keys, fields); err != nil {
			L().Warn("failed to write shapefile attributes", "feature", i, "err", err)
		}
	}
	return nil
}

func shapeTypeFor(regions []*Region) (shp.ShapeType, error) {
	for _, region := range regions {
		switch region.Geometry.(type) {
		case nil:
			continue
		case *geom.Point, *geom.MultiPoint:
			return shp.POINT, nil
		case *geom.LineString, *geom.MultiLineString:
			return shp.POLYLINE, nil
		case *geom.Polygon, *geom.MultiPolygon:
			return shp.POLYGON, nil
		default:
			return shp.NULL, fmt.Errorf("unsupported geometry type: %T", region.Geometry)
		}
	}
	return shp.NULL, fmt.Errorf("no geometries to write to shapefile")
}

// toShape converts g to the shapefile's single geometry type. Geometries that
// do not fit become Null shapes so the DBF rows stay aligned.
func toShape(g geom.T, shapeType shp.ShapeType) shp.Shape {
	switch g := g.(type) {
	case *geom.Point:
		if shapeType == shp.POINT && !g.Empty() {
			return &shp.Point{X: g.X(), Y: g.Y()}
		}
	case *geom.MultiPoint:
		if shapeType == shp.POINT && g.NumPoints() > 0 {
			return &shp.Point{X: g.Point(0).X(), Y: g.Point(0).Y()}
		}
	case *geom.LineString:
		if shapeType == shp.POLYLINE && g.NumCoords() > 0 {
			return shp.NewPolyLine([][]shp.Point{toPoints(g.Coords())})
		}
	case *geom.MultiLineString:
		if shapeType == shp.POLYLINE && g.NumLineStrings() > 0 {
			var parts [][]shp.Point
			for i := range g.NumLineStrings() {
				parts = append(parts, toPoints(g.LineString(i).Coords()))
			}
			return shp.NewPolyLine(parts)
		}
	case *geom.Polygon, *geom.MultiPolygon:
		if shapeType != shp.POLYGON {
			break
		}
		var parts [][]shp.Point
		for _, polygon := range Polygons(g) {
			for _, ring := range polygon.Coords() {
				if len(ring) > 0 {
					parts = append(parts, toPoints(ring))
				}
			}
		}
		if len(parts) > 0 {
			return (*shp.Polygon)(shp.NewPolyLine(parts))
		}
	}
	return &shp.Null{}
}

func toPoints(coords []geom.Coord) []shp.Point {
	points := make([]shp.Point, 0, len(coords))
	for _, coord := range coords {
		if len(coord) >= 2 {
			points = append(points, shp.Point{X: coord[0], Y: coord[1]})
		}
	}
	return points
}

// createFieldsFromRegions derives DBF fields from the union of all property
// keys, in sorted order. Keys are truncated to the DBF name limit; the first
// key wins when two truncate to the same name.
func createFieldsFromRegions(regions []*Region) ([]string, []shp.Field) {
	kinds := make(map[string]byte)
	lengths := make(map[string]int)
	for _, region := range regions {
		for key, value := range region.Properties {
			kind, length := fieldKind(value)
			if prev, ok := kinds[key]; ok && prev != kind {
				kind = 'C'
			}
			kinds[key] = kind
			lengths[key] = max(lengths[key], length)
		}
	}

	keys := make([]string, 0, len(kinds))
	for key := range kinds {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	seen := make(map[string]bool)
	usedKeys := make([]string, 0, len(keys))
	fields := make([]shp.Field, 0, len(keys))
	for _, key := range keys {
		fieldName := key
		if len(fieldName) > maxDBFFieldName {
			fieldName = fieldName[:maxDBFFieldName]
		}
		if seen[fieldName] {
			continue
		}
		seen[fieldName] = true
		usedKeys = append(usedKeys, key)

		switch kinds[key] {
		case 'F':
			fields = append(fields, shp.FloatField(fieldName, 24, 8))
		default:
			fields = append(fields, shp.StringField(fieldName, uint8(min(max(lengths[key], 50), 254))))
		}
	}

	if len(fields) == 0 {
		fields = append(fields, shp.NumberField("ID", 10))
	}
	return usedKeys, fields
}

func fieldKind(value interface{}) (byte, int) {
	switch v := value.(type) {
	case float64:
		return 'F', 0
	case string:
		return 'C', len(v)
	default:
		return 'C', len(formatAttribute(v))
	}
}

func writeAttributes(shape *shp.Writer, row int, properties map[string]interface{}, keys []string, fields []shp.Field) error {
	if len(keys) == 0 {
		return shape.WriteAttribute(row, 0, row+1)
	}
	for i, key := range keys {
		value, ok := properties[key]
		if !ok || value == nil {
			continue
		}
		if fields[i].Fieldtype == 'F' {
			if f, ok := value.(float64); ok {
				if err := shape.WriteAttribute(row, i, f); err != nil {
					return err
				}
				continue
			}
		}
		s := formatAttribute(value)
		if len(s) > int(fields[i].Size) {
			s = s[:fields[i].Size]
		}
		if err := shape.WriteAttribute(row, i, s); err != nil {
			return err
		}
	}
	return nil
}

func formatAttribute(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, formatAttribute(item))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(v, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}
