package utils

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
)

func shapefileFixture() *FeatureCollection {
	return NewFeatureCollection("name", []*Region{
		{Name: "West Yorkshire", Geometry: square(0, 0, 1), Properties: map[string]interface{}{"name": "West Yorkshire", "population": 2.3e6}},
		{Name: "Merseyside", Geometry: square(1, 0, 1), Properties: map[string]interface{}{"name": "Merseyside", "localAuthorities": []interface{}{"Liverpool", "Wirral"}}},
	})
}

func TestGenerateShapefileZip(t *testing.T) {
	fc := shapefileFixture()
	jsonData, err := fc.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	zipData, err := GenerateShapefileZip(jsonData, fc, "authorities")
	if err != nil {
		t.Fatalf("GenerateShapefileZip() error = %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, f.Name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	sort.Strings(names)
	want := []string{"authorities.dbf", "authorities.geojson", "authorities.shp", "authorities.shx"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Fatalf("zip entries = %v, want %v", names, want)
	}

	reader, err := shp.Open(filepath.Join(dir, "authorities.shp"))
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	fields := reader.Fields()
	if len(fields) != 3 {
		t.Fatalf("got %d fields, want 3", len(fields))
	}
	// localAuthorities is cut to the ten character DBF limit.
	if got := fields[0].String(); got != "localAutho" {
		t.Errorf("first field = %q, want localAutho", got)
	}

	shapes := 0
	for reader.Next() {
		n, shape := reader.Shape()
		if _, ok := shape.(*shp.Polygon); !ok {
			t.Errorf("shape %d is %T, want *shp.Polygon", n, shape)
		}
		shapes++
	}
	if shapes != 2 {
		t.Errorf("got %d shapes, want 2", shapes)
	}
	if got := reader.ReadAttribute(1, 0); got != "Liverpool, Wirral" {
		t.Errorf("list attribute = %q", got)
	}
	if got := reader.ReadAttribute(0, 1); got != "West Yorkshire" {
		t.Errorf("name attribute = %q", got)
	}
}

func TestWriteShapefileZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.geojson")
	zipPath, err := WriteShapefileZip(path, shapefileFixture())
	if err != nil {
		t.Fatalf("WriteShapefileZip() error = %v", err)
	}
	if want := strings.TrimSuffix(path, ".geojson") + ".zip"; zipPath != want {
		t.Errorf("zip path = %q, want %q", zipPath, want)
	}
	if _, err := os.Stat(zipPath); err != nil {
		t.Errorf("zip not written: %v", err)
	}
}

func TestToShapeMismatchIsNull(t *testing.T) {
	point := geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{1, 2})
	if _, ok := toShape(point, shp.POLYGON).(*shp.Null); !ok {
		t.Error("a point in a polygon shapefile should become a Null shape")
	}
	if _, ok := toShape(EmptyPolygon(), shp.POLYGON).(*shp.Null); !ok {
		t.Error("an empty polygon should become a Null shape")
	}
}
