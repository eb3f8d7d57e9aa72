package utils

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// LayerConfig points at one GeoJSON input and names the property that holds
// each feature's name.
type LayerConfig struct {
	Path             string `yaml:"path"`
	NameProperty     string `yaml:"name_property"`
	ChildrenProperty string `yaml:"children_property,omitempty"`
}

type AssociationConfig struct {
	Delimiter       string   `yaml:"delimiter"`
	ParentField     string   `yaml:"parent_field"`
	ChildNamesField string   `yaml:"child_names_field"`
	CopyProperties  []string `yaml:"copy_properties"`
}

type DissolveConfig struct {
	GapFillArea   string `yaml:"gap_fill_area"`
	AllowOverlaps bool   `yaml:"allow_overlaps"`
}

type SimplifyConfig struct {
	Percentage string `yaml:"percentage"`
	Method     string `yaml:"method"`
}

// CleanupConfig trims a published layer: keep the features whose code has
// one of the prefixes, rename fields (new=old) and keep only the listed ones.
type CleanupConfig struct {
	FilterField    string   `yaml:"filter_field"`
	FilterPrefixes []string `yaml:"filter_prefixes"`
	RenameFields   []string `yaml:"rename_fields"`
	KeepFields     []string `yaml:"keep_fields"`
}

type OutputConfig struct {
	Path            string        `yaml:"path"`
	ChildrenPath    string        `yaml:"children_path"`
	ChildrenCleanup CleanupConfig `yaml:"children_cleanup"`
	Precision       float64       `yaml:"precision"`
	Gzip            bool          `yaml:"gzip"`
	Shapefile       bool          `yaml:"shapefile"`
	Coverage        bool          `yaml:"coverage_report"`
}

type IssuesConfig struct {
	Sheet        string `yaml:"sheet"`
	ColumnOffset int    `yaml:"column_offset"`
	Output       string `yaml:"output"`
	Gzip         bool   `yaml:"gzip"`
}

// Config drives the consolidation pipeline and the issue import. Zero values
// are replaced by DefaultConfig.
type Config struct {
	WorkDir     string            `yaml:"work_dir"`
	Repair      bool              `yaml:"repair"`
	Parents     LayerConfig       `yaml:"parents"`
	Children    LayerConfig       `yaml:"children"`
	Association AssociationConfig `yaml:"association"`
	Dissolve    DissolveConfig    `yaml:"dissolve"`
	Simplify    SimplifyConfig    `yaml:"simplify"`
	Output      OutputConfig      `yaml:"output"`
	Issues      IssuesConfig      `yaml:"issues"`
}

// DefaultConfig mirrors the transport authority extent-of-realm build.
func DefaultConfig() Config {
	return Config{
		WorkDir: "tmp",
		Repair:  true,
		Parents: LayerConfig{
			Path:             "input/transport_authorities.geojson",
			NameProperty:     "atf4_authority_name",
			ChildrenProperty: "lad_names",
		},
		Children: LayerConfig{
			Path:         "input/local_authority_districts.geojson",
			NameProperty: "LAD23NM",
		},
		Association: AssociationConfig{
			Delimiter:       ", ",
			ParentField:     "transport_authority_name",
			ChildNamesField: "localAuthorities",
		},
		Dissolve: DissolveConfig{
			GapFillArea:   "5km2",
			AllowOverlaps: true,
		},
		Simplify: SimplifyConfig{
			Percentage: "1.5%",
			Method:     "dp",
		},
		Output: OutputConfig{
			Path: "output/transportAuthoritiesExtentOfRealm.geojson",
		},
		Issues: IssuesConfig{
			Sheet:        "Issues",
			ColumnOffset: 1,
			Output:       "problems.geojson",
			Gzip:         true,
		},
	}
}

// LoadConfig reads a YAML config on top of DefaultConfig. An empty path
// returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, &ParseError{Path: path, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, &ParseError{Path: path, Err: err}
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.Parents.NameProperty == "":
		return fmt.Errorf("parents.name_property is required")
	case c.Parents.ChildrenProperty == "":
		return fmt.Errorf("parents.children_property is required")
	case c.Children.NameProperty == "":
		return fmt.Errorf("children.name_property is required")
	case c.Association.ParentField == "":
		return fmt.Errorf("association.parent_field is required")
	case c.Association.Delimiter == "":
		return fmt.Errorf("association.delimiter is required")
	case c.Simplify.Percentage == "":
		return fmt.Errorf("simplify.percentage is required")
	case c.Output.Path == "":
		return fmt.Errorf("output.path is required")
	case (c.Output.ChildrenCleanup.FilterField == "") != (len(c.Output.ChildrenCleanup.FilterPrefixes) == 0):
		return fmt.Errorf("output.children_cleanup needs both filter_field and filter_prefixes")
	case c.Issues.ColumnOffset < 0:
		return fmt.Errorf("issues.column_offset must not be negative")
	}
	return nil
}
