package handlers

import (
	"math"
	"testing"

	"github.com/bsaid97/go-boundary-fixer/utils"
	"github.com/twpayne/go-geom"
)

func square(x, y, size float64) *geom.Polygon {
	return rect(x, y, x+size, y+size)
}

func rect(minX, minY, maxX, maxY float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}})
}

func multi(polygons ...*geom.Polygon) *geom.MultiPolygon {
	coords := make([][][]geom.Coord, 0, len(polygons))
	for _, p := range polygons {
		coords = append(coords, p.Coords())
	}
	return geom.NewMultiPolygon(geom.XY).MustSetCoords(coords)
}

func region(name string, g geom.T, properties map[string]interface{}) *utils.Region {
	if properties == nil {
		properties = make(map[string]interface{})
	}
	return &utils.Region{Name: name, Geometry: g, Properties: properties}
}

func TestRepairGeometry(t *testing.T) {
	collinear := geom.NewMultiPolygon(geom.XY).MustSetCoords([][][]geom.Coord{{{
		{0, 0}, {1, 0}, {2, 0}, {0, 0},
	}}})

	tests := []struct {
		name       string
		input      geom.T
		wantArea   float64
		degenerate bool
	}{
		{"two parts", multi(square(0, 0, 1), square(2, 2, 1)), 5, false},
		{"single part", multi(square(0, 0, 2)), 4, false},
		{"no parts", geom.NewMultiPolygon(geom.XY), 0, true},
		{"collinear", collinear, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, degenerate, err := RepairGeometry(tt.input)
			if err != nil {
				t.Fatalf("RepairGeometry() error = %v", err)
			}
			polygon, ok := got.(*geom.Polygon)
			if !ok {
				t.Fatalf("result is %T, want *geom.Polygon", got)
			}
			if degenerate != tt.degenerate {
				t.Errorf("degenerate = %v, want %v", degenerate, tt.degenerate)
			}
			if math.Abs(area(polygon)-tt.wantArea) > 1e-9 {
				t.Errorf("area = %v, want %v", area(polygon), tt.wantArea)
			}
			if tt.degenerate && !polygon.Empty() {
				t.Errorf("degenerate hull should be empty, got %v", polygon.FlatCoords())
			}
		})
	}
}

func TestRepairRegions(t *testing.T) {
	untouched := square(5, 5, 1)
	point := geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{1, 1})
	regions := []*utils.Region{
		region("islands", multi(square(0, 0, 1), square(2, 2, 1)), nil),
		region("plain", untouched, nil),
		region("empty", geom.NewMultiPolygon(geom.XY), nil),
		region("marker", point, nil),
	}

	report, err := RepairRegions(regions)
	if err != nil {
		t.Fatalf("RepairRegions() error = %v", err)
	}
	if len(regions) != 4 || report.Total != 4 {
		t.Fatalf("region count changed: %d, report %+v", len(regions), report)
	}
	if report.Repaired != 2 || report.Degenerate != 1 {
		t.Errorf("report = %+v, want 2 repaired, 1 degenerate", report)
	}
	for _, r := range regions {
		if _, ok := r.Geometry.(*geom.MultiPolygon); ok {
			t.Errorf("%s still has a MultiPolygon", r.Name)
		}
	}
	if regions[1].Geometry != untouched {
		t.Error("a Polygon must pass through unchanged")
	}
	if regions[3].Geometry != point {
		t.Error("a Point must pass through unchanged")
	}
}
