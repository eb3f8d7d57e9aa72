package handlers

import (
	"fmt"

	"github.com/bsaid97/go-boundary-fixer/utils"
	"github.com/twpayne/go-geos"
)

type Overlap struct {
	I, J  int
	NameI string
	NameJ string
	Area  float64
}

type CoverageReport struct {
	Regions      int
	Pairs        int
	OverlapCount int
	OverlapArea  float64
	// GapCount is the number of regions whose boundary sits within ten
	// tolerances of a neighbour without touching it.
	GapCount int
	Overlaps []Overlap
}

// ValidateCoverage looks for overlaps and near-miss gaps between regions.
// Candidate pairs come from a grid index over bounding boxes; areas are in
// the data's units.
func ValidateCoverage(regions []*utils.Region, tolerance float64) (CoverageReport, error) {
	report := CoverageReport{Regions: len(regions)}

	geometries := make([]*geos.Geom, len(regions))
	defer func() {
		for _, g := range geometries {
			if g != nil {
				g.Destroy()
			}
		}
	}()
	for i, region := range regions {
		if region.Geometry == nil || region.Geometry.Empty() {
			continue
		}
		g, err := utils.ToGEOS(region.Geometry)
		if err != nil {
			return report, fmt.Errorf("region %d (%s): %w", i, region.Name, err)
		}
		if !g.IsValid() {
			valid := g.MakeValid()
			g.Destroy()
			g = valid
		}
		geometries[i] = g
	}

	index := utils.NewSpatialIndexForRegions(regions)
	gapRegions := make(map[int]bool)
	for i, region := range regions {
		if geometries[i] == nil {
			continue
		}
		for _, neighbor := range index.FindNeighbors(region.Geometry.Bounds(), i, tolerance*10) {
			j := neighbor.Index
			if j <= i {
				continue
			}
			report.Pairs++
			gi, gj := geometries[i], geometries[j]

			// Intersects rather than Overlaps so a region inside another
			// is caught too.
			if gi.Intersects(gj) {
				intersection := gi.Intersection(gj)
				if intersection != nil {
					if area := intersection.Area(); area > tolerance*tolerance {
						report.OverlapCount++
						report.OverlapArea += area
						report.Overlaps = append(report.Overlaps, Overlap{I: i, J: j, NameI: region.Name, NameJ: regions[j].Name, Area: area})
						utils.L().Info("overlap detected", "a", region.Name, "b", regions[j].Name, "area", area)
					}
					intersection.Destroy()
				}
				continue
			}

			if distance := gi.Distance(gj); distance > tolerance && distance < tolerance*10 {
				gapRegions[i] = true
				gapRegions[j] = true
			}
		}
	}
	report.GapCount = len(gapRegions)

	utils.L().Info("coverage validation finished",
		"regions", report.Regions,
		"pairs", report.Pairs,
		"overlaps", report.OverlapCount,
		"overlap_area", report.OverlapArea,
		"gaps", report.GapCount)
	return report, nil
}
