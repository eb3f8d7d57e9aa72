package utils

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Region is a named area read from a GeoJSON feature. Only the name is lifted
// out of the properties; everything else is carried through untouched.
type Region struct {
	ID         string
	Name       string
	Geometry   geom.T
	Properties map[string]interface{}

	// numericID is set when the source feature carried a JSON number id.
	numericID bool
}

// FeatureCollection is the unit of file input and output.
type FeatureCollection struct {
	// NameProperty is the feature property Region.Name is read from and
	// written back to.
	NameProperty string
	Regions      []*Region
}

func NewFeatureCollection(nameProperty string, regions []*Region) *FeatureCollection {
	return &FeatureCollection{NameProperty: nameProperty, Regions: regions}
}

// DecodeFeatureCollection parses a GeoJSON FeatureCollection. Any non-numeric
// coordinate or unknown geometry type fails the whole document.
func DecodeFeatureCollection(data []byte, nameProperty string) (*FeatureCollection, error) {
	var gfc geojson.FeatureCollection
	if err := json.Unmarshal(data, &gfc); err != nil {
		return nil, err
	}

	// go-geom turns every id into a string, so the id types are read
	// separately to write numbers back as numbers.
	var ids struct {
		Features []struct {
			ID interface{} `json:"id"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}

	fc := &FeatureCollection{
		NameProperty: nameProperty,
		Regions:      make([]*Region, 0, len(gfc.Features)),
	}
	for i, feature := range gfc.Features {
		if feature == nil {
			return nil, fmt.Errorf("feature %d is null", i)
		}
		_, numeric := ids.Features[i].ID.(float64)
		fc.Regions = append(fc.Regions, &Region{
			ID:         feature.ID,
			Name:       propertyString(feature.Properties, nameProperty),
			Geometry:   feature.Geometry,
			Properties: feature.Properties,
			numericID:  numeric,
		})
	}
	return fc, nil
}

type featureJSON struct {
	Type       string                 `json:"type"`
	ID         interface{}            `json:"id,omitempty"`
	Geometry   *geojson.Geometry      `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type featureCollectionJSON struct {
	Type     string         `json:"type"`
	Features []*featureJSON `json:"features"`
}

// ReadFeatureCollection loads a GeoJSON file. Failures are reported as
// *ParseError.
func ReadFeatureCollection(path string, nameProperty string) (*FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	fc, err := DecodeFeatureCollection(data, nameProperty)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	L().Debug("read feature collection", "path", path, "features", len(fc.Regions))
	return fc, nil
}

// MarshalJSON writes the collection as single-line GeoJSON. A region's name
// is written to NameProperty only when it no longer matches the property, so
// untouched features keep their property types.
func (fc *FeatureCollection) MarshalJSON() ([]byte, error) {
	out := &featureCollectionJSON{
		Type:     "FeatureCollection",
		Features: make([]*featureJSON, 0, len(fc.Regions)),
	}
	for i, region := range fc.Regions {
		geometry, err := geojson.Encode(region.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		out.Features = append(out.Features, &featureJSON{
			Type:       "Feature",
			ID:         region.jsonID(),
			Geometry:   geometry,
			Properties: fc.properties(region),
		})
	}
	return json.Marshal(out)
}

func (fc *FeatureCollection) properties(region *Region) map[string]interface{} {
	if fc.NameProperty == "" || region.Name == "" {
		return region.Properties
	}
	if current, ok := region.Properties[fc.NameProperty]; ok && FormatProperty(current) == region.Name {
		return region.Properties
	}
	properties := maps.Clone(region.Properties)
	if properties == nil {
		properties = make(map[string]interface{}, 1)
	}
	properties[fc.NameProperty] = region.Name
	return properties
}

func (r *Region) jsonID() interface{} {
	switch {
	case r.ID == "":
		return nil
	case r.numericID && isNumber(r.ID):
		return json.Number(r.ID)
	default:
		return r.ID
	}
}

// WriteFeatureCollection serialises fc to path, creating parent directories.
// Failures are reported as *WriteError.
func WriteFeatureCollection(path string, fc *FeatureCollection) error {
	data, err := json.Marshal(fc)
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if err := writeFile(path, data); err != nil {
		return err
	}
	L().Debug("wrote feature collection", "path", path, "features", len(fc.Regions), "bytes", len(data))
	return nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &WriteError{Path: path, Err: err}
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// isNumber reports whether s can be written as a JSON number literal.
func isNumber(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil && json.Valid([]byte(s))
}

func propertyString(properties map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	return FormatProperty(properties[key])
}

// FormatProperty renders a property value as a name. Missing values are
// empty.
func FormatProperty(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
