package handlers

import (
	"math"

	"github.com/bsaid97/go-boundary-fixer/utils"
	"github.com/golang/geo/s2"
	"github.com/twpayne/go-geom"
)

// Mean earth radius (IUGG).
const earthRadiusKm = 6371.0088

// RingAreaKm2 returns the unsigned area enclosed by ring. Geographic rings
// are measured on the sphere; projected rings are assumed to be in metres.
func RingAreaKm2(ring []geom.Coord, geographic bool) float64 {
	if geographic {
		return sphericalRingArea(ring)
	}
	return planarRingArea(ring) / 1e6
}

func sphericalRingArea(ring []geom.Coord) float64 {
	points := make([]s2.Point, 0, len(ring))
	for i, coord := range ring {
		if len(coord) < 2 {
			continue
		}
		if i > 0 && coord[0] == ring[i-1][0] && coord[1] == ring[i-1][1] {
			continue
		}
		points = append(points, s2.PointFromLatLng(s2.LatLngFromDegrees(coord[1], coord[0])))
	}
	if len(points) > 1 && points[0] == points[len(points)-1] {
		points = points[:len(points)-1]
	}
	if len(points) < 3 {
		return 0
	}

	// s2 loops are counter-clockwise; a clockwise ring comes back as the
	// rest of the sphere.
	area := s2.LoopFromPoints(points).Area()
	if area > 2*math.Pi {
		area = 4*math.Pi - area
	}
	return area * earthRadiusKm * earthRadiusKm
}

func planarRingArea(ring []geom.Coord) float64 {
	var sum float64
	for i := 0; i+1 < len(ring); i++ {
		sum += ring[i][0]*ring[i+1][1] - ring[i+1][0]*ring[i][1]
	}
	return math.Abs(sum) / 2
}

// IsGeographic reports whether every geometry fits inside lon/lat bounds.
func IsGeographic(regions []*utils.Region) bool {
	for _, region := range regions {
		if region.Geometry == nil || region.Geometry.Empty() {
			continue
		}
		b := region.Geometry.Bounds()
		if b.Min(0) < -180 || b.Max(0) > 180 || b.Min(1) < -90 || b.Max(1) > 90 {
			return false
		}
	}
	return true
}
