package handlers

import (
	"fmt"

	"github.com/bsaid97/go-boundary-fixer/utils"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"
)

type RepairReport struct {
	Total      int
	Repaired   int
	Degenerate int
}

// RepairRegions replaces every MultiPolygon with the convex hull of all of
// its points. Other geometries are left alone and no region is ever dropped:
// a hull that collapses to nothing becomes an empty Polygon.
func RepairRegions(regions []*utils.Region) (RepairReport, error) {
	report := RepairReport{Total: len(regions)}
	tracker := utils.NewProgressTracker(int64(len(regions)), "repair")

	for i, region := range regions {
		if _, ok := region.Geometry.(*geom.MultiPolygon); ok {
			repaired, degenerate, err := RepairGeometry(region.Geometry)
			if err != nil {
				return report, fmt.Errorf("failed to repair region %d (%s): %w", i, region.Name, err)
			}
			region.Geometry = repaired
			report.Repaired++
			if degenerate {
				report.Degenerate++
				utils.L().Warn("convex hull is degenerate, keeping empty polygon", "index", i, "name", region.Name)
			}
		}
		tracker.Increment()
	}
	return report, nil
}

// RepairGeometry returns the convex hull of a MultiPolygon as a single
// Polygon. The boolean reports whether the hull degenerated (no parts,
// or all points collinear).
func RepairGeometry(g geom.T) (geom.T, bool, error) {
	mp, ok := g.(*geom.MultiPolygon)
	if !ok {
		return g, false, nil
	}
	if mp.Empty() || utils.CountVertices(mp) == 0 {
		return utils.EmptyPolygon(), true, nil
	}

	gg, err := utils.ToGEOS(mp)
	if err != nil {
		return nil, false, err
	}
	hull := gg.ConvexHull()
	if hull == nil || hull.IsEmpty() || hull.TypeID() != geos.TypeIDPolygon {
		return utils.EmptyPolygon(), true, nil
	}

	repaired, err := utils.FromGEOS(hull)
	if err != nil {
		return nil, false, err
	}
	return repaired, false, nil
}
