package handlers

import (
	"strings"

	"github.com/bsaid97/go-boundary-fixer/utils"
)

// FieldRename moves the value of property From to property To.
type FieldRename struct {
	From string
	To   string
}

// FilterFields keeps only the named properties on every region. Fields a
// region does not have are not added.
func FilterFields(regions []*utils.Region, fields []string) {
	for _, region := range regions {
		kept := make(map[string]interface{}, len(fields))
		for _, field := range fields {
			if value, ok := region.Properties[field]; ok {
				kept[field] = value
			}
		}
		region.Properties = kept
	}
}

// RenameFields applies every rename at once, so two fields can swap names.
// A rename whose source is missing is ignored for that region.
func RenameFields(regions []*utils.Region, renames []FieldRename) {
	for _, region := range regions {
		if len(region.Properties) == 0 {
			continue
		}
		moved := make(map[string]bool, len(renames))
		for _, rename := range renames {
			if _, ok := region.Properties[rename.From]; ok {
				moved[rename.From] = true
			}
		}
		renamed := make(map[string]interface{}, len(region.Properties))
		for key, value := range region.Properties {
			if !moved[key] {
				renamed[key] = value
			}
		}
		for _, rename := range renames {
			if value, ok := region.Properties[rename.From]; ok {
				renamed[rename.To] = value
			}
		}
		region.Properties = renamed
	}
}

// FilterByPrefix keeps the regions whose field starts with one of prefixes,
// such as "E" for English area codes. Regions without the field are dropped.
func FilterByPrefix(regions []*utils.Region, field string, prefixes []string) ([]*utils.Region, int) {
	kept := make([]*utils.Region, 0, len(regions))
	for _, region := range regions {
		value, ok := region.Properties[field]
		if ok && hasAnyPrefix(utils.FormatProperty(value), prefixes) {
			kept = append(kept, region)
		}
	}
	dropped := len(regions) - len(kept)
	if dropped > 0 {
		utils.L().Info("filtered regions by prefix", "field", field, "prefixes", strings.Join(prefixes, ","), "kept", len(kept), "dropped", dropped)
	}
	return kept, dropped
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
