package handlers

import (
	"fmt"
	"math"

	"github.com/bsaid97/go-boundary-fixer/utils"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"
)

const (
	MethodDP          = "dp"
	MethodVisvalingam = "visvalingam"

	DefaultSimplifyPercentage = 0.015

	bisectionSteps = 40
)

type SimplifyOptions struct {
	// Percentage is the fraction of removable vertices to keep, in (0, 1].
	Percentage float64
	// Tolerance is used as is when positive and overrides Percentage. Units
	// are the data's: a distance for dp, an area for visvalingam.
	Tolerance float64
	Method    string
}

type SimplifyReport struct {
	Method    string
	Tolerance float64
	Before    int
	After     int
	// Fallback is set when the collection could not be simplified as a
	// whole and each region was simplified on its own.
	Fallback bool
}

// simplifier runs one simplification method over a fixed set of polygonal
// geometries. apply reports whether it had to fall back to a weaker mode.
type simplifier interface {
	maxTolerance() float64
	count(tolerance float64) (int, error)
	apply(tolerance float64) ([]geom.T, bool, error)
}

// Simplify reduces the vertex count of every polygonal region in place.
// Borders shared by several regions are simplified once, so neighbours stay
// edge to edge. Regions without vertices, and non-polygonal regions, are left
// untouched.
func Simplify(regions []*utils.Region, opts SimplifyOptions) (SimplifyReport, error) {
	if opts.Method == "" {
		opts.Method = MethodDP
	}
	report := SimplifyReport{Method: opts.Method}

	targets := make([]*utils.Region, 0, len(regions))
	for _, region := range regions {
		if len(utils.Polygons(region.Geometry)) == 0 || utils.CountVertices(region.Geometry) == 0 {
			continue
		}
		targets = append(targets, region)
		report.Before += utils.CountVertices(region.Geometry)
	}
	if len(targets) == 0 {
		return report, nil
	}

	var s simplifier
	switch opts.Method {
	case MethodDP:
		dp, err := newTopologySimplifier(targets)
		if err != nil {
			return report, err
		}
		defer dp.destroy()
		s = dp
	case MethodVisvalingam:
		s = newVisvalingamSimplifier(targets)
	default:
		return report, fmt.Errorf("unknown simplification method %q", opts.Method)
	}
	return runSimplifier(s, targets, opts, report)
}

func runSimplifier(s simplifier, targets []*utils.Region, opts SimplifyOptions, report SimplifyReport) (SimplifyReport, error) {
	tolerance := opts.Tolerance
	if tolerance <= 0 {
		var err error
		tolerance, err = resolveTolerance(s, report.Before, opts.Percentage)
		if err != nil {
			return report, err
		}
	}
	report.Tolerance = tolerance
	if tolerance == 0 {
		report.After = report.Before
		return report, nil
	}

	simplified, fellBack, err := s.apply(tolerance)
	if err != nil {
		return report, err
	}
	if fellBack {
		utils.L().Warn("simplifying the shared borders together failed, simplified each border on its own")
	}
	report.Fallback = fellBack
	for i, region := range targets {
		region.Geometry = simplified[i]
		report.After += utils.CountVertices(simplified[i])
	}

	utils.L().Info("simplify finished",
		"method", report.Method,
		"tolerance", report.Tolerance,
		"vertices_before", report.Before,
		"vertices_after", report.After)
	return report, nil
}

// resolveTolerance finds the smallest tolerance that brings the vertex count
// down to the target implied by percentage. Vertex counts fall as the
// tolerance grows, which is all the bisection relies on.
func resolveTolerance(s simplifier, total int, percentage float64) (float64, error) {
	if percentage <= 0 || percentage > 1 {
		return 0, fmt.Errorf("simplify percentage must be in (0, 1], got %v", percentage)
	}
	if percentage == 1 {
		return 0, nil
	}

	hi := s.maxTolerance()
	if hi <= 0 {
		return 0, nil
	}
	floor, err := s.count(hi)
	if err != nil {
		return 0, err
	}
	removable := total - floor
	if removable <= 0 {
		return 0, nil
	}
	target := floor + int(math.Ceil(percentage*float64(removable)))

	lo := 0.0
	for range bisectionSteps {
		mid := (lo + hi) / 2
		n, err := s.count(mid)
		if err != nil {
			return 0, err
		}
		if n <= target {
			hi = mid
		} else {
			lo = mid
		}
	}
	utils.L().Debug("resolved simplify tolerance", "percentage", percentage, "target_vertices", target, "tolerance", hi)
	return hi, nil
}

func collectionBounds(regions []*utils.Region) *geom.Bounds {
	bounds := geom.NewBounds(geom.XY)
	for _, region := range regions {
		bounds.Extend(region.Geometry)
	}
	return bounds
}

func regionGeometries(regions []*utils.Region) []geom.T {
	geometries := make([]geom.T, 0, len(regions))
	for _, region := range regions {
		geometries = append(geometries, region.Geometry)
	}
	return geometries
}

// topologySimplifier runs GEOS' topology-preserving Douglas-Peucker over the
// arc network. Arc ends stay put and arcs are kept from crossing each other.
type topologySimplifier struct {
	topology *arcTopology
	lines    *geos.Geom
	diagonal float64
}

func newTopologySimplifier(regions []*utils.Region) (*topologySimplifier, error) {
	s := &topologySimplifier{topology: newArcTopology(regionGeometries(regions))}
	lines, err := utils.ToGEOS(arcLines(s.topology.arcs))
	if err != nil {
		return nil, fmt.Errorf("failed to load borders into GEOS: %w", err)
	}
	s.lines = lines

	b := collectionBounds(regions)
	s.diagonal = math.Hypot(b.Max(0)-b.Min(0), b.Max(1)-b.Min(1))
	return s, nil
}

func (s *topologySimplifier) maxTolerance() float64 {
	return s.diagonal
}

func (s *topologySimplifier) count(tolerance float64) (int, error) {
	arcs, _, err := s.simplifyArcs(tolerance)
	if err != nil {
		return 0, err
	}
	return s.topology.countVertices(arcs), nil
}

func (s *topologySimplifier) apply(tolerance float64) ([]geom.T, bool, error) {
	arcs, fellBack, err := s.simplifyArcs(tolerance)
	if err != nil {
		return nil, false, err
	}
	return s.topology.rebuild(arcs), fellBack, nil
}

// simplifyArcs simplifies the whole network in one call. If GEOS hands back
// a different number of lines each arc is simplified on its own instead.
func (s *topologySimplifier) simplifyArcs(tolerance float64) ([][]vertex, bool, error) {
	result := s.lines.TopologyPreserveSimplify(tolerance)
	if result != nil {
		defer result.Destroy()
		g, err := utils.FromGEOS(result)
		if err != nil {
			return nil, false, err
		}
		if arcs := lineVertices(g); len(arcs) == len(s.topology.arcs) {
			return arcs, false, nil
		}
	}

	arcs := make([][]vertex, 0, len(s.topology.arcs))
	for _, arc := range s.topology.arcs {
		gg, err := utils.ToGEOS(arcLines([][]vertex{arc}))
		if err != nil {
			return nil, true, err
		}
		simplified := gg.TopologyPreserveSimplify(tolerance)
		gg.Destroy()
		var lines [][]vertex
		if simplified != nil {
			g, err := utils.FromGEOS(simplified)
			simplified.Destroy()
			if err != nil {
				return nil, true, err
			}
			lines = lineVertices(g)
		}
		if len(lines) != 1 {
			lines = [][]vertex{arc}
		}
		arcs = append(arcs, lines[0])
	}
	return arcs, true, nil
}

func (s *topologySimplifier) destroy() {
	s.lines.Destroy()
}

func arcLines(arcs [][]vertex) *geom.MultiLineString {
	coords := make([][]geom.Coord, 0, len(arcs))
	for _, arc := range arcs {
		line := make([]geom.Coord, 0, len(arc))
		for _, v := range arc {
			line = append(line, geom.Coord{v[0], v[1]})
		}
		coords = append(coords, line)
	}
	return geom.NewMultiLineString(geom.XY).MustSetCoords(coords)
}

func lineVertices(g geom.T) [][]vertex {
	var lines [][]geom.Coord
	switch g := g.(type) {
	case *geom.MultiLineString:
		lines = g.Coords()
	case *geom.LineString:
		lines = [][]geom.Coord{g.Coords()}
	}
	out := make([][]vertex, 0, len(lines))
	for _, line := range lines {
		vertices := make([]vertex, 0, len(line))
		for _, c := range line {
			vertices = append(vertices, vertex{c[0], c[1]})
		}
		out = append(out, vertices)
	}
	return out
}

// visvalingamSimplifier removes the vertices with the smallest effective
// area first, one arc at a time. Arc ends are never removed.
type visvalingamSimplifier struct {
	topology *arcTopology
	area     float64
}

func newVisvalingamSimplifier(regions []*utils.Region) *visvalingamSimplifier {
	s := &visvalingamSimplifier{topology: newArcTopology(regionGeometries(regions))}
	b := collectionBounds(regions)
	s.area = (b.Max(0) - b.Min(0)) * (b.Max(1) - b.Min(1))
	return s
}

func (s *visvalingamSimplifier) maxTolerance() float64 {
	return s.area
}

func (s *visvalingamSimplifier) count(tolerance float64) (int, error) {
	return s.topology.countVertices(s.simplifyArcs(tolerance)), nil
}

func (s *visvalingamSimplifier) apply(tolerance float64) ([]geom.T, bool, error) {
	return s.topology.rebuild(s.simplifyArcs(tolerance)), false, nil
}

func (s *visvalingamSimplifier) simplifyArcs(tolerance float64) [][]vertex {
	simplifier := simplify.VisvalingamThreshold(tolerance)
	arcs := make([][]vertex, 0, len(s.topology.arcs))
	for _, arc := range s.topology.arcs {
		// The simplifier works in place, so it gets a copy.
		line := make(orb.LineString, 0, len(arc))
		for _, v := range arc {
			line = append(line, orb.Point{v[0], v[1]})
		}
		line = simplifier.LineString(line)
		simplified := make([]vertex, 0, len(line))
		for _, p := range line {
			simplified = append(simplified, vertex{p[0], p[1]})
		}
		arcs = append(arcs, simplified)
	}
	return arcs
}
