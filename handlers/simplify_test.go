package handlers

import (
	"math"
	"reflect"
	"testing"

	"github.com/bsaid97/go-boundary-fixer/utils"
	"github.com/twpayne/go-geom"
)

// wobbly returns a closed ring of n points around (cx, cy) whose radius
// alternates slightly, so every vertex carries a little detail.
func wobbly(cx, cy, radius float64, n int) *geom.Polygon {
	ring := make([]geom.Coord, 0, n+1)
	for i := range n {
		angle := 2 * math.Pi * float64(i) / float64(n)
		r := radius
		if i%2 == 1 {
			r += radius * 0.01
		}
		ring = append(ring, geom.Coord{cx + r*math.Cos(angle), cy + r*math.Sin(angle)})
	}
	ring = append(ring, ring[0])
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{ring})
}

func vertices(regions []*utils.Region) int {
	n := 0
	for _, r := range regions {
		n += utils.CountVertices(r.Geometry)
	}
	return n
}

func TestSimplifyPercentage(t *testing.T) {
	for _, method := range []string{MethodDP, MethodVisvalingam} {
		t.Run(method, func(t *testing.T) {
			regions := []*utils.Region{
				region("a", wobbly(0, 0, 100, 400), nil),
				region("b", wobbly(300, 0, 100, 400), nil),
			}
			before := vertices(regions)

			report, err := Simplify(regions, SimplifyOptions{Percentage: 0.1, Method: method})
			if err != nil {
				t.Fatalf("Simplify() error = %v", err)
			}
			after := vertices(regions)
			if report.Before != before || report.After != after {
				t.Errorf("report = %+v, counted %d -> %d", report, before, after)
			}
			if after >= before/2 {
				t.Errorf("vertices %d -> %d, expected a large reduction", before, after)
			}
			if report.Tolerance <= 0 {
				t.Errorf("resolved tolerance = %v", report.Tolerance)
			}
			for _, r := range regions {
				p, ok := r.Geometry.(*geom.Polygon)
				if !ok {
					t.Fatalf("%s is %T, want *geom.Polygon", r.Name, r.Geometry)
				}
				if p.NumCoords() < 4 {
					t.Errorf("%s collapsed to %d points", r.Name, p.NumCoords())
				}
			}
		})
	}
}

func TestSimplifyIsNearFixedPoint(t *testing.T) {
	tests := []struct {
		method    string
		tolerance float64
	}{
		{MethodDP, 2},
		{MethodVisvalingam, 20},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			regions := []*utils.Region{region("a", wobbly(0, 0, 100, 400), nil)}
			opts := SimplifyOptions{Tolerance: tt.tolerance, Method: tt.method}

			if _, err := Simplify(regions, opts); err != nil {
				t.Fatal(err)
			}
			once := vertices(regions)
			if _, err := Simplify(regions, opts); err != nil {
				t.Fatal(err)
			}
			twice := vertices(regions)
			if twice > once || once-twice > 2 {
				t.Errorf("second pass changed vertex count %d -> %d", once, twice)
			}
		})
	}
}

func TestSimplifyLeavesEmptyAndNonPolygons(t *testing.T) {
	point := geom.NewPoint(geom.XY).MustSetCoords(geom.Coord{1, 1})
	regions := []*utils.Region{
		region("empty", utils.EmptyPolygon(), nil),
		region("point", point, nil),
	}
	report, err := Simplify(regions, SimplifyOptions{Percentage: 0.015})
	if err != nil {
		t.Fatal(err)
	}
	if !regions[0].Geometry.Empty() {
		t.Error("an empty polygon must stay empty")
	}
	if regions[1].Geometry != point {
		t.Error("a point must pass through")
	}
	if report.Before != 0 || report.After != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestSimplifyErrors(t *testing.T) {
	tests := []struct {
		name string
		opts SimplifyOptions
	}{
		{"unknown method", SimplifyOptions{Percentage: 0.5, Method: "magic"}},
		{"no percentage", SimplifyOptions{Method: MethodVisvalingam}},
		{"percentage above one", SimplifyOptions{Percentage: 1.5, Method: MethodVisvalingam}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			regions := []*utils.Region{region("a", wobbly(0, 0, 10, 40), nil)}
			if _, err := Simplify(regions, tt.opts); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestSimplifyFullPercentageKeepsEverything(t *testing.T) {
	regions := []*utils.Region{region("a", wobbly(0, 0, 10, 40), nil)}
	before := vertices(regions)
	report, err := Simplify(regions, SimplifyOptions{Percentage: 1, Method: MethodVisvalingam})
	if err != nil {
		t.Fatal(err)
	}
	if report.Tolerance != 0 || vertices(regions) != before {
		t.Errorf("report = %+v, vertices %d -> %d", report, before, vertices(regions))
	}
}

// linearSimplifier removes one vertex per unit of tolerance down to a floor.
type linearSimplifier struct {
	total, floor int
}

func (s linearSimplifier) maxTolerance() float64 { return float64(s.total) }

func (s linearSimplifier) count(tolerance float64) (int, error) {
	return max(s.total-int(tolerance), s.floor), nil
}

func (s linearSimplifier) apply(float64) ([]geom.T, bool, error) { return nil, false, nil }

func TestResolveTolerance(t *testing.T) {
	s := linearSimplifier{total: 100, floor: 10}
	tests := []struct {
		percentage float64
		want       float64
	}{
		// 90 removable vertices: keep half of them, 55 in total.
		{0.5, 45},
		{0.1, 81},
		{1, 0},
	}
	for _, tt := range tests {
		got, err := resolveTolerance(s, s.total, tt.percentage)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("resolveTolerance(%v) = %v, want %v", tt.percentage, got, tt.want)
		}
	}
}

// fallbackSimplifier only falls back above limit.
type fallbackSimplifier struct {
	linearSimplifier
	limit      float64
	geometries []geom.T
}

func (s fallbackSimplifier) apply(tolerance float64) ([]geom.T, bool, error) {
	return s.geometries, tolerance > s.limit, nil
}

func TestSimplifyFallbackReflectsFinalRun(t *testing.T) {
	tests := []struct {
		name  string
		limit float64
		want  bool
	}{
		// Bisection tries tolerances up to 100; only the resolved 45 counts.
		{"final run whole", 50, false},
		{"final run fell back", 40, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			targets := []*utils.Region{region("a", square(0, 0, 1), nil)}
			s := fallbackSimplifier{
				linearSimplifier: linearSimplifier{total: 100, floor: 10},
				limit:            tt.limit,
				geometries:       []geom.T{square(0, 0, 1)},
			}
			report, err := runSimplifier(s, targets, SimplifyOptions{Percentage: 0.5}, SimplifyReport{Before: 100})
			if err != nil {
				t.Fatal(err)
			}
			if report.Fallback != tt.want {
				t.Errorf("Fallback = %v, want %v (tolerance %v)", report.Fallback, tt.want, report.Tolerance)
			}
		})
	}
}

// sharedBorder returns two regions tiling the rectangle (0,0)-(20,10). They
// meet along a finely wiggled border near x=10.
func sharedBorder() []*utils.Region {
	border := make([]geom.Coord, 0, 201)
	for i := 0; i <= 200; i++ {
		y := float64(i) * 0.05
		border = append(border, geom.Coord{10 + 0.3*math.Sin(2*y) + 0.02*float64(i%2), y})
	}

	left := []geom.Coord{{0, 0}}
	left = append(left, border...)
	left = append(left, geom.Coord{0, 10}, geom.Coord{0, 0})

	right := []geom.Coord{border[0], {20, 0}, {20, 10}}
	for i := len(border) - 1; i >= 0; i-- {
		right = append(right, border[i])
	}

	return []*utils.Region{
		region("left", geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{left}), nil),
		region("right", geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{right}), nil),
	}
}

func TestArcTopologySharesBorders(t *testing.T) {
	regions := sharedBorder()
	topology := newArcTopology(regionGeometries(regions))

	// Two halves of the shared border plus three outer arcs.
	if len(topology.arcs) != 5 {
		t.Errorf("got %d arcs, want 5", len(topology.arcs))
	}
	if got, want := topology.countVertices(topology.arcs), vertices(regions); got != want {
		t.Errorf("countVertices = %d, want %d", got, want)
	}
	for i, g := range topology.rebuild(topology.arcs) {
		if !reflect.DeepEqual(g.FlatCoords(), regions[i].Geometry.FlatCoords()) {
			t.Errorf("%s did not survive a rebuild unchanged", regions[i].Name)
		}
	}
}

func TestSimplifyKeepsSharedBordersTogether(t *testing.T) {
	for _, method := range []string{MethodDP, MethodVisvalingam} {
		t.Run(method, func(t *testing.T) {
			regions := sharedBorder()
			before := vertices(regions)
			if _, err := Simplify(regions, SimplifyOptions{Percentage: 0.05, Method: method}); err != nil {
				t.Fatal(err)
			}
			if after := vertices(regions); after >= before/2 {
				t.Errorf("vertices %d -> %d, expected a large reduction", before, after)
			}

			left, err := utils.ToGEOS(regions[0].Geometry)
			if err != nil {
				t.Fatal(err)
			}
			right, err := utils.ToGEOS(regions[1].Geometry)
			if err != nil {
				t.Fatal(err)
			}
			if overlap := left.Intersection(right).Area(); overlap > 1e-9 {
				t.Errorf("simplified regions overlap by %v", overlap)
			}
			union := left.Union(right)
			if math.Abs(union.Area()-200) > 1e-9 {
				t.Errorf("union area = %v, want 200 with no slivers", union.Area())
			}
			if union.NumGeometries() != 1 || union.NumInteriorRings() != 0 {
				t.Errorf("union has %d parts and %d holes, want one solid polygon", union.NumGeometries(), union.NumInteriorRings())
			}
		})
	}
}
