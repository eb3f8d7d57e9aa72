package utils

import (
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geos"
)

// DefaultPrecision is the number of decimals kept when trimming WGS84
// coordinates, roughly 10cm on the ground.
const DefaultPrecision = 6

// ToGEOS hands a geometry to the GEOS engine.
func ToGEOS(g geom.T) (*geos.Geom, error) {
	if g == nil {
		return nil, fmt.Errorf(`geometry is nil`)
	}
	data, err := geojson.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to encode geometry: %w", err)
	}
	gg, err := geos.NewGeomFromGeoJSON(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to load geometry into GEOS: %w", err)
	}
	return gg, nil
}

// FromGEOS converts an engine result back into the Region geometry model.
func FromGEOS(g *geos.Geom) (geom.T, error) {
	if g == nil {
		return nil, fmt.Errorf(`geometry is nil`)
	}
	var t geom.T
	if err := geojson.Unmarshal([]byte(g.ToGeoJSON(-1)), &t); err != nil {
		return nil, fmt.Errorf("failed to decode GEOS geometry: %w", err)
	}
	return t, nil
}

// EmptyPolygon is the stand-in for geometries that degenerate to nothing.
func EmptyPolygon() *geom.Polygon {
	return geom.NewPolygon(geom.XY)
}

// CountVertices returns the number of coordinates in g, counting ring
// closing points.
func CountVertices(g geom.T) int {
	if g == nil {
		return 0
	}
	if gc, ok := g.(*geom.GeometryCollection); ok {
		n := 0
		for _, child := range gc.Geoms() {
			n += CountVertices(child)
		}
		return n
	}
	if g.Stride() == 0 {
		return 0
	}
	return len(g.FlatCoords()) / g.Stride()
}

// Polygons flattens a Polygon or MultiPolygon into its parts. Other types
// yield nothing.
func Polygons(g geom.T) []*geom.Polygon {
	switch g := g.(type) {
	case *geom.Polygon:
		return []*geom.Polygon{g}
	case *geom.MultiPolygon:
		polygons := make([]*geom.Polygon, 0, g.NumPolygons())
		for i := range g.NumPolygons() {
			polygons = append(polygons, g.Polygon(i))
		}
		return polygons
	}
	return nil
}

// DecimalsForPrecision turns a mapshaper-style precision (0.000001) into a
// decimal count (6).
func DecimalsForPrecision(precision float64) int {
	if precision <= 0 || precision >= 1 {
		return 0
	}
	return int(math.Round(-math.Log10(precision)))
}

// TruncateGeometry rounds every coordinate of g to the given number of
// decimals in place.
func TruncateGeometry(g geom.T, decimals int) geom.T {
	if g == nil {
		return nil
	}
	if gc, ok := g.(*geom.GeometryCollection); ok {
		for _, child := range gc.Geoms() {
			TruncateGeometry(child, decimals)
		}
		return g
	}
	flat := g.FlatCoords()
	for i := range flat {
		flat[i] = roundFloat(flat[i], uint(decimals))
	}
	return g
}

// TruncateCollection trims the coordinate precision of every region.
func TruncateCollection(fc *FeatureCollection, decimals int) {
	for _, region := range fc.Regions {
		region.Geometry = TruncateGeometry(region.Geometry, decimals)
	}
}

func roundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
