package utils

import (
	"fmt"
	"math"
	"sort"

	"github.com/twpayne/go-geom"
)

// SpatialIndex is a uniform grid over region bounding boxes. It answers
// "which regions might be near this box" and leaves exact tests to GEOS.
type SpatialIndex struct {
	geometries []*IndexedGeometry
	cellSize   float64
	grid       map[string][]*IndexedGeometry
}

type IndexedGeometry struct {
	Region *Region
	Bounds *geom.Bounds
	Index  int
}

func NewSpatialIndex(cellSize float64) *SpatialIndex {
	return &SpatialIndex{
		geometries: make([]*IndexedGeometry, 0),
		cellSize:   cellSize,
		grid:       make(map[string][]*IndexedGeometry),
	}
}

// NewSpatialIndexForRegions sizes the grid so that an average region spans
// a handful of cells.
func NewSpatialIndexForRegions(regions []*Region) *SpatialIndex {
	var total float64
	var n int
	for _, region := range regions {
		if region.Geometry == nil || region.Geometry.Empty() {
			continue
		}
		b := region.Geometry.Bounds()
		total += math.Max(b.Max(0)-b.Min(0), b.Max(1)-b.Min(1))
		n++
	}
	cellSize := 1.0
	if n > 0 && total > 0 {
		cellSize = total / float64(n)
	}
	si := NewSpatialIndex(cellSize)
	for i, region := range regions {
		si.AddRegion(region, i)
	}
	return si
}

func (si *SpatialIndex) AddRegion(region *Region, index int) {
	if region == nil || region.Geometry == nil || region.Geometry.Empty() {
		L().Debug("skipping empty geometry in spatial index", "index", index)
		return
	}

	indexedGeom := &IndexedGeometry{
		Region: region,
		Bounds: region.Geometry.Bounds(),
		Index:  index,
	}

	si.geometries = append(si.geometries, indexedGeom)
	si.addToGrid(indexedGeom)
}

func (si *SpatialIndex) Len() int {
	return len(si.geometries)
}

func (si *SpatialIndex) addToGrid(indexedGeom *IndexedGeometry) {
	minCellX, minCellY, maxCellX, maxCellY := si.cellRange(indexedGeom.Bounds, 0)
	for x := minCellX; x <= maxCellX; x++ {
		for y := minCellY; y <= maxCellY; y++ {
			cellKey := getCellKey(x, y)
			si.grid[cellKey] = append(si.grid[cellKey], indexedGeom)
		}
	}
}

func (si *SpatialIndex) cellRange(b *geom.Bounds, distance float64) (int, int, int, int) {
	minCellX := int(math.Floor((b.Min(0) - distance) / si.cellSize))
	minCellY := int(math.Floor((b.Min(1) - distance) / si.cellSize))
	maxCellX := int(math.Floor((b.Max(0) + distance) / si.cellSize))
	maxCellY := int(math.Floor((b.Max(1) + distance) / si.cellSize))
	return minCellX, minCellY, maxCellX, maxCellY
}

// FindNeighbors returns indexed regions, other than the one at index,
// whose bounding boxes come within distance of b. Results are ordered by
// index.
func (si *SpatialIndex) FindNeighbors(b *geom.Bounds, index int, distance float64) []*IndexedGeometry {
	if b == nil || b.IsEmpty() {
		return []*IndexedGeometry{}
	}
	minCellX, minCellY, maxCellX, maxCellY := si.cellRange(b, distance)

	candidates := make(map[int]*IndexedGeometry)
	for x := minCellX; x <= maxCellX; x++ {
		for y := minCellY; y <= maxCellY; y++ {
			for _, candidate := range si.grid[getCellKey(x, y)] {
				if candidate.Index != index {
					candidates[candidate.Index] = candidate
				}
			}
		}
	}

	neighbors := make([]*IndexedGeometry, 0, len(candidates))
	for _, candidate := range candidates {
		if boundsDistance(b, candidate.Bounds) <= distance {
			neighbors = append(neighbors, candidate)
		}
	}
	sort.Slice(neighbors, func(i, j int) bool {
		return neighbors[i].Index < neighbors[j].Index
	})
	return neighbors
}

func boundsDistance(a, b *geom.Bounds) float64 {
	dx := math.Max(0, math.Max(a.Min(0)-b.Max(0), b.Min(0)-a.Max(0)))
	dy := math.Max(0, math.Max(a.Min(1)-b.Max(1), b.Min(1)-a.Max(1)))
	return math.Hypot(dx, dy)
}

func getCellKey(x, y int) string {
	return fmt.Sprintf("%d,%d", x, y)
}

// CalculateWGS84ToleranceFromMeters converts meters to WGS84 degrees
// For WGS84, 1 degree ≈ 111,000 meters at the equator
func CalculateWGS84ToleranceFromMeters(meters float64) float64 {
	const metersPerDegree = 111000.0
	return meters / metersPerDegree
}
