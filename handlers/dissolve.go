package handlers

import (
	"fmt"
	"strings"

	"github.com/bsaid97/go-boundary-fixer/utils"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"
)

type DissolveOptions struct {
	// Fields are the properties regions are grouped by. The first one names
	// the output region.
	Fields []string
	// GapFillAreaKm2 is the area below which holes in a dissolved polygon
	// are filled. Zero keeps every hole.
	GapFillAreaKm2 float64
	// AllowOverlaps lets dissolved groups overlap each other. When false a
	// group loses any area already claimed by an earlier group.
	AllowOverlaps bool
}

type DissolveReport struct {
	Inputs  int
	Groups  int
	Skipped int
	// Covered counts groups left empty once earlier groups' area was
	// removed. They produce no region.
	Covered     int
	FilledHoles int
}

type dissolveGroup struct {
	key     string
	values  map[string]interface{}
	regions []*utils.Region
}

// Dissolve merges regions that share the same values for opts.Fields into one
// region per group, in order of each group's first appearance. Regions with
// no value for any field are skipped.
func Dissolve(regions []*utils.Region, opts DissolveOptions) ([]*utils.Region, DissolveReport, error) {
	report := DissolveReport{Inputs: len(regions)}
	if len(opts.Fields) == 0 {
		return nil, report, fmt.Errorf("dissolve needs at least one field")
	}

	groups := groupRegions(regions, opts.Fields, &report)
	geographic := IsGeographic(regions)

	var claimed *geos.Geom
	output := make([]*utils.Region, 0, len(groups))
	for _, group := range groups {
		union, err := unionGroup(group)
		if err != nil {
			return nil, report, fmt.Errorf("failed to dissolve %q: %w", group.key, err)
		}
		if union == nil {
			continue
		}

		if !opts.AllowOverlaps {
			if claimed != nil {
				remaining := union.Difference(claimed)
				claimed = claimed.Union(union)
				union = remaining
			} else {
				claimed = union.Clone()
			}
			if union.IsEmpty() {
				report.Covered++
				utils.L().Warn("group lies inside earlier groups, dropping it", "group", group.key)
				continue
			}
		}

		dissolved, err := utils.FromGEOS(union)
		if err != nil {
			return nil, report, fmt.Errorf("failed to dissolve %q: %w", group.key, err)
		}
		dissolved, filled := FillGaps(dissolved, opts.GapFillAreaKm2, geographic)
		report.FilledHoles += filled

		output = append(output, &utils.Region{
			Name:       utils.FormatProperty(group.values[opts.Fields[0]]),
			Geometry:   dissolved,
			Properties: group.values,
		})
	}

	report.Groups = len(output)
	utils.L().Info("dissolve finished",
		"inputs", report.Inputs,
		"groups", report.Groups,
		"skipped", report.Skipped,
		"covered", report.Covered,
		"filled_holes", report.FilledHoles)
	return output, report, nil
}

func groupRegions(regions []*utils.Region, fields []string, report *DissolveReport) []*dissolveGroup {
	index := make(map[string]*dissolveGroup)
	groups := make([]*dissolveGroup, 0)
	for _, region := range regions {
		values := make(map[string]interface{}, len(fields))
		parts := make([]string, 0, len(fields))
		present := false
		for _, field := range fields {
			value := region.Properties[field]
			if value != nil {
				present = true
			}
			values[field] = value
			parts = append(parts, utils.FormatProperty(value))
		}
		if !present {
			report.Skipped++
			utils.L().Warn("region has no dissolve field, skipping", "name", region.Name, "fields", strings.Join(fields, ","))
			continue
		}

		key := strings.Join(parts, "\x00")
		group, ok := index[key]
		if !ok {
			group = &dissolveGroup{key: strings.Join(parts, ", "), values: values}
			index[key] = group
			groups = append(groups, group)
		}
		group.regions = append(group.regions, region)
	}
	return groups
}

func unionGroup(group *dissolveGroup) (*geos.Geom, error) {
	geometries := make([]*geos.Geom, 0, len(group.regions))
	for _, region := range group.regions {
		if region.Geometry == nil || region.Geometry.Empty() {
			continue
		}
		gg, err := utils.ToGEOS(region.Geometry)
		if err != nil {
			return nil, fmt.Errorf("region %s: %w", region.Name, err)
		}
		if !gg.IsValid() {
			utils.L().Debug("repairing invalid geometry before union", "name", region.Name, "reason", gg.IsValidReason())
			valid := gg.MakeValid()
			gg.Destroy()
			gg = valid
		}
		buffered := gg.Buffer(0, 0)
		gg.Destroy()
		geometries = append(geometries, buffered)
	}
	if len(geometries) == 0 {
		return nil, nil
	}
	return CascadedUnion(geometries)
}

// CascadedUnion unions geometries pairwise, halving the input each round.
// The inputs are consumed.
func CascadedUnion(geometries []*geos.Geom) (*geos.Geom, error) {
	if len(geometries) == 0 {
		return nil, fmt.Errorf("nothing to union")
	}
	if len(geometries) == 1 {
		return geometries[0], nil
	}

	mid := len(geometries) / 2
	left, err := CascadedUnion(geometries[:mid])
	if err != nil {
		return nil, err
	}
	right, err := CascadedUnion(geometries[mid:])
	if err != nil {
		return nil, err
	}

	result := left.Union(right)
	if result == nil {
		return nil, fmt.Errorf("union failed")
	}

	left.Destroy()
	right.Destroy()

	return result, nil
}

// FillGaps drops interior rings smaller than thresholdKm2 from every polygon
// in g and returns the number of rings removed.
func FillGaps(g geom.T, thresholdKm2 float64, geographic bool) (geom.T, int) {
	if thresholdKm2 <= 0 {
		return g, 0
	}
	switch g := g.(type) {
	case *geom.Polygon:
		filled, n := fillPolygon(g, thresholdKm2, geographic)
		return filled, n
	case *geom.MultiPolygon:
		coords := make([][][]geom.Coord, 0, g.NumPolygons())
		total := 0
		for i := range g.NumPolygons() {
			filled, n := fillPolygon(g.Polygon(i), thresholdKm2, geographic)
			coords = append(coords, filled.Coords())
			total += n
		}
		if total == 0 {
			return g, 0
		}
		return geom.NewMultiPolygon(g.Layout()).MustSetCoords(coords), total
	}
	return g, 0
}

func fillPolygon(p *geom.Polygon, thresholdKm2 float64, geographic bool) (*geom.Polygon, int) {
	rings := p.Coords()
	if len(rings) <= 1 {
		return p, 0
	}
	kept := [][]geom.Coord{rings[0]}
	for _, hole := range rings[1:] {
		if RingAreaKm2(hole, geographic) >= thresholdKm2 {
			kept = append(kept, hole)
		}
	}
	removed := len(rings) - len(kept)
	if removed == 0 {
		return p, 0
	}
	return geom.NewPolygon(p.Layout()).MustSetCoords(kept), removed
}
