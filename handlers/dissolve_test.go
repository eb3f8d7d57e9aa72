package handlers

import (
	"math"
	"reflect"
	"testing"

	"github.com/bsaid97/go-boundary-fixer/utils"
	"github.com/twpayne/go-geom"
)

// area is the unsigned planar area of a Polygon or MultiPolygon, whatever
// the ring orientation.
func area(g geom.T) float64 {
	var total float64
	for _, polygon := range utils.Polygons(g) {
		for i, ring := range polygon.Coords() {
			if i == 0 {
				total += planarRingArea(ring)
			} else {
				total -= planarRingArea(ring)
			}
		}
	}
	return total
}

func owned(name, owner string, g geom.T) *utils.Region {
	return region(name, g, map[string]interface{}{"authority": owner, "LAD23NM": name})
}

func TestDissolve(t *testing.T) {
	regions := []*utils.Region{
		owned("Leeds", "West Yorkshire", square(0, 0, 1)),
		owned("Sheffield", "South Yorkshire", square(5, 5, 1)),
		owned("Bradford", "West Yorkshire", square(1, 0, 1)),
		region("Orphan", square(9, 9, 1), map[string]interface{}{"LAD23NM": "Orphan"}),
	}

	out, report, err := Dissolve(regions, DissolveOptions{Fields: []string{"authority"}, AllowOverlaps: true})
	if err != nil {
		t.Fatalf("Dissolve() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d groups, want 2", len(out))
	}
	if report.Skipped != 1 || report.Groups != 2 || report.Inputs != 4 {
		t.Errorf("report = %+v", report)
	}

	west := out[0]
	if west.Name != "West Yorkshire" || out[1].Name != "South Yorkshire" {
		t.Errorf("group order = %q, %q", west.Name, out[1].Name)
	}
	if !reflect.DeepEqual(west.Properties, map[string]interface{}{"authority": "West Yorkshire"}) {
		t.Errorf("properties = %v, want only the dissolve field", west.Properties)
	}
	if _, ok := west.Geometry.(*geom.Polygon); !ok {
		t.Errorf("adjacent squares should merge into one Polygon, got %T", west.Geometry)
	}
	if math.Abs(area(west.Geometry)-2) > 1e-9 {
		t.Errorf("merged area = %v, want 2", area(west.Geometry))
	}
}

func TestDissolveOverlaps(t *testing.T) {
	build := func() []*utils.Region {
		return []*utils.Region{
			owned("a", "A", rect(0, 0, 2, 2)),
			owned("b", "B", rect(1, 0, 3, 2)),
		}
	}
	tests := []struct {
		name          string
		allowOverlaps bool
		wantSecond    float64
	}{
		{"overlaps allowed", true, 4},
		{"mutually exclusive", false, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := Dissolve(build(), DissolveOptions{Fields: []string{"authority"}, AllowOverlaps: tt.allowOverlaps})
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(area(out[0].Geometry)-4) > 1e-9 {
				t.Errorf("first group area = %v, want 4", area(out[0].Geometry))
			}
			if math.Abs(area(out[1].Geometry)-tt.wantSecond) > 1e-9 {
				t.Errorf("second group area = %v, want %v", area(out[1].Geometry), tt.wantSecond)
			}
		})
	}
}

func TestDissolveDropsCoveredGroup(t *testing.T) {
	regions := []*utils.Region{
		owned("a", "A", rect(0, 0, 4, 4)),
		owned("b", "B", rect(1, 1, 2, 2)),
		owned("c", "C", rect(4, 0, 5, 4)),
	}
	out, report, err := Dissolve(regions, DissolveOptions{Fields: []string{"authority"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0].Name != "A" || out[1].Name != "C" {
		t.Fatalf("got %d regions, want A and C", len(out))
	}
	if report.Groups != 2 || report.Covered != 1 {
		t.Errorf("report = %+v, want 2 groups and 1 covered", report)
	}
	for _, region := range out {
		if region.Geometry.Empty() {
			t.Errorf("region %s is empty", region.Name)
		}
	}
}

// A ring of four blocks around a courtyard: the courtyard becomes a hole in
// the union and is filled when it is small enough.
func TestDissolveFillsGaps(t *testing.T) {
	const km = 1000.0
	blocks := func() []*utils.Region {
		return []*utils.Region{
			owned("south", "P", rect(0, 0, 3*km, km)),
			owned("north", "P", rect(0, 2*km, 3*km, 3*km)),
			owned("west", "P", rect(0, km, km, 2*km)),
			owned("east", "P", rect(2*km, km, 3*km, 2*km)),
		}
	}

	tests := []struct {
		name      string
		threshold float64
		wantArea  float64
		wantHoles int
	}{
		{"hole kept without gap fill", 0, 8 * km * km, 0},
		{"hole below threshold filled", 5, 9 * km * km, 1},
		{"hole above threshold kept", 0.5, 8 * km * km, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, report, err := Dissolve(blocks(), DissolveOptions{Fields: []string{"authority"}, GapFillAreaKm2: tt.threshold, AllowOverlaps: true})
			if err != nil {
				t.Fatal(err)
			}
			if len(out) != 1 {
				t.Fatalf("got %d groups, want 1", len(out))
			}
			if math.Abs(area(out[0].Geometry)-tt.wantArea) > 1e-3 {
				t.Errorf("area = %v, want %v", area(out[0].Geometry), tt.wantArea)
			}
			if report.FilledHoles != tt.wantHoles {
				t.Errorf("filled holes = %d, want %d", report.FilledHoles, tt.wantHoles)
			}
		})
	}
}

func TestDissolveNeedsFields(t *testing.T) {
	if _, _, err := Dissolve(nil, DissolveOptions{}); err == nil {
		t.Fatal("expected an error without fields")
	}
}

func TestFillGaps(t *testing.T) {
	withHoles := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		rect(0, 0, 10000, 10000).Coords()[0],
		rect(1000, 1000, 2000, 2000).Coords()[0], // 1 km²
		rect(4000, 4000, 7000, 7000).Coords()[0], // 9 km²
	})
	mp := multi(withHoles, square(20000, 20000, 10))

	filled, n := FillGaps(mp, 5, false)
	if n != 1 {
		t.Fatalf("filled %d holes, want 1", n)
	}
	got := filled.(*geom.MultiPolygon)
	if rings := got.Polygon(0).NumLinearRings(); rings != 2 {
		t.Errorf("first polygon has %d rings, want 2", rings)
	}
	if got.NumPolygons() != 2 {
		t.Errorf("polygon count changed to %d", got.NumPolygons())
	}

	if same, n := FillGaps(withHoles, 0, false); n != 0 || same != geom.T(withHoles) {
		t.Error("a zero threshold must leave the geometry alone")
	}
}
