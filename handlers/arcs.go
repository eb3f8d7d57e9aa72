package handlers

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/bsaid97/go-boundary-fixer/utils"
	"github.com/twpayne/go-geom"
)

type vertex [2]float64

func compareVertices(a, b vertex) int {
	return cmp.Or(cmp.Compare(a[0], b[0]), cmp.Compare(a[1], b[1]))
}

// arcRef is one arc of a ring, walked backwards when reversed is set.
type arcRef struct {
	arc      int
	reversed bool
}

// topoRing is a ring as a sequence of arcs. Rings too small to split keep
// their raw coordinates.
type topoRing struct {
	arcs []arcRef
	raw  []geom.Coord
}

type topoGeometry struct {
	multi    bool
	polygons [][]topoRing
}

// arcTopology splits polygon rings into arcs at the vertices where borders
// meet. A border shared by two regions becomes a single arc, so simplifying
// each arc once keeps both sides identical.
type arcTopology struct {
	arcs       [][]vertex
	geometries []topoGeometry
}

type ringInput struct {
	open []vertex
}

func newArcTopology(geometries []geom.T) *arcTopology {
	inputs := make([][][]ringInput, len(geometries))
	neighbours := make(map[vertex]map[vertex]struct{})
	link := func(a, b vertex) {
		if a == b {
			return
		}
		if neighbours[a] == nil {
			neighbours[a] = make(map[vertex]struct{}, 2)
		}
		neighbours[a][b] = struct{}{}
	}
	for i, g := range geometries {
		for _, polygon := range utils.Polygons(g) {
			rings := make([]ringInput, 0, polygon.NumLinearRings())
			for _, ring := range polygon.Coords() {
				open := openRing(ring)
				if len(open) >= 3 {
					for j := range open {
						next := open[(j+1)%len(open)]
						link(open[j], next)
						link(next, open[j])
					}
				}
				rings = append(rings, ringInput{open: open})
			}
			inputs[i] = append(inputs[i], rings)
		}
	}

	// Anything other than a plain pass-through vertex is a node: junctions
	// of three or more regions and the ends of shared borders.
	nodes := make(map[vertex]bool)
	for v, n := range neighbours {
		if len(n) != 2 {
			nodes[v] = true
		}
	}
	splittable := make(map[*ringInput]bool)
	for i := range inputs {
		for p := range inputs[i] {
			for r := range inputs[i][p] {
				ring := &inputs[i][p][r]
				if len(ring.open) >= 3 && pinRing(ring.open, nodes) {
					splittable[ring] = true
				}
			}
		}
	}

	t := &arcTopology{geometries: make([]topoGeometry, len(geometries))}
	index := make(map[string]int)
	for i, g := range geometries {
		_, multi := g.(*geom.MultiPolygon)
		tg := topoGeometry{multi: multi, polygons: make([][]topoRing, 0, len(inputs[i]))}
		for p := range inputs[i] {
			rings := make([]topoRing, 0, len(inputs[i][p]))
			for r := range inputs[i][p] {
				ring := &inputs[i][p][r]
				if len(ring.open) == 0 {
					continue
				}
				if !splittable[ring] {
					rings = append(rings, topoRing{raw: closedCoords(ring.open)})
					continue
				}
				rings = append(rings, topoRing{arcs: t.splitRing(ring.open, nodes, index)})
			}
			tg.polygons = append(tg.polygons, rings)
		}
		t.geometries[i] = tg
	}
	return t
}

// pinRing makes sure a ring holds at least three distinct nodes so it cannot
// collapse. Extreme vertices go first: they survive simplification, so a
// second pass over the output splits at the same places.
func pinRing(ring []vertex, nodes map[vertex]bool) bool {
	seen := make(map[vertex]struct{})
	for _, v := range ring {
		if nodes[v] {
			seen[v] = struct{}{}
		}
	}
	byY := func(a, b vertex) int {
		return cmp.Or(cmp.Compare(a[1], b[1]), cmp.Compare(a[0], b[0]))
	}
	candidates := []vertex{
		slices.MinFunc(ring, compareVertices),
		slices.MaxFunc(ring, compareVertices),
		slices.MinFunc(ring, byY),
		slices.MaxFunc(ring, byY),
	}
	candidates = append(candidates, ring...)
	for _, v := range candidates {
		if len(seen) >= 3 {
			break
		}
		nodes[v] = true
		seen[v] = struct{}{}
	}
	return len(seen) >= 3
}

func (t *arcTopology) splitRing(ring []vertex, nodes map[vertex]bool, index map[string]int) []arcRef {
	start := slices.IndexFunc(ring, func(v vertex) bool { return nodes[v] })
	refs := make([]arcRef, 0)
	arc := []vertex{ring[start]}
	for k := 1; k <= len(ring); k++ {
		v := ring[(start+k)%len(ring)]
		arc = append(arc, v)
		if nodes[v] {
			refs = append(refs, t.addArc(arc, index))
			arc = []vertex{v}
		}
	}
	return refs
}

// addArc stores arc in a canonical direction, reusing an identical arc that
// another ring already added.
func (t *arcTopology) addArc(arc []vertex, index map[string]int) arcRef {
	ref := arcRef{}
	reversed := slices.Clone(arc)
	slices.Reverse(reversed)
	if slices.CompareFunc(reversed, arc, compareVertices) < 0 {
		arc, ref.reversed = reversed, true
	}
	key := fmt.Sprint(arc)
	id, ok := index[key]
	if !ok {
		id = len(t.arcs)
		t.arcs = append(t.arcs, arc)
		index[key] = id
	}
	ref.arc = id
	return ref
}

// countVertices counts what rebuild would produce, closing points included.
func (t *arcTopology) countVertices(arcs [][]vertex) int {
	n := 0
	for _, tg := range t.geometries {
		for _, polygon := range tg.polygons {
			for _, ring := range polygon {
				if ring.arcs == nil {
					n += len(ring.raw)
					continue
				}
				n++
				for _, ref := range ring.arcs {
					n += len(arcs[ref.arc]) - 1
				}
			}
		}
	}
	return n
}

// rebuild assembles every geometry from arcs, which are indexed like t.arcs.
func (t *arcTopology) rebuild(arcs [][]vertex) []geom.T {
	out := make([]geom.T, 0, len(t.geometries))
	for _, tg := range t.geometries {
		polygons := make([][][]geom.Coord, 0, len(tg.polygons))
		for _, polygon := range tg.polygons {
			rings := make([][]geom.Coord, 0, len(polygon))
			for _, ring := range polygon {
				rings = append(rings, ring.coords(arcs))
			}
			if len(rings) > 0 {
				polygons = append(polygons, rings)
			}
		}
		switch {
		case tg.multi:
			out = append(out, geom.NewMultiPolygon(geom.XY).MustSetCoords(polygons))
		case len(polygons) == 1:
			out = append(out, geom.NewPolygon(geom.XY).MustSetCoords(polygons[0]))
		default:
			out = append(out, utils.EmptyPolygon())
		}
	}
	return out
}

func (r topoRing) coords(arcs [][]vertex) []geom.Coord {
	if r.arcs == nil {
		return r.raw
	}
	coords := make([]geom.Coord, 0)
	for _, ref := range r.arcs {
		arc := arcs[ref.arc]
		for k := range arc {
			if k == 0 && len(coords) > 0 {
				continue
			}
			v := arc[k]
			if ref.reversed {
				v = arc[len(arc)-1-k]
			}
			coords = append(coords, geom.Coord{v[0], v[1]})
		}
	}
	return coords
}

// openRing drops the closing point and any dimensions past XY.
func openRing(ring []geom.Coord) []vertex {
	open := make([]vertex, 0, len(ring))
	for _, c := range ring {
		open = append(open, vertex{c[0], c[1]})
	}
	if len(open) > 1 && open[0] == open[len(open)-1] {
		open = open[:len(open)-1]
	}
	return open
}

func closedCoords(open []vertex) []geom.Coord {
	coords := make([]geom.Coord, 0, len(open)+1)
	for _, v := range open {
		coords = append(coords, geom.Coord{v[0], v[1]})
	}
	return append(coords, geom.Coord{open[0][0], open[0][1]})
}
