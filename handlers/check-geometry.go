package handlers

import (
	"github.com/bsaid97/go-boundary-fixer/utils"
)

type GeometryError struct {
	Ref          int    `json:"ref"`
	Name         string `json:"name"`
	ErrorMessage string `json:"errorMessage"`
}

// CheckGeometry reports every region GEOS considers invalid, with the reason
// it gives. Missing geometries are reported too; empty ones are valid.
func CheckGeometry(regions []*utils.Region) []GeometryError {
	var errors []GeometryError

	utils.L().Info("checking geometries", "count", len(regions))
	for i, region := range regions {
		if region.Geometry == nil {
			errors = append(errors, GeometryError{Ref: i, Name: region.Name, ErrorMessage: "missing geometry"})
			continue
		}
		shape, err := utils.ToGEOS(region.Geometry)
		if err != nil {
			errors = append(errors, GeometryError{Ref: i, Name: region.Name, ErrorMessage: err.Error()})
			continue
		}

		if !shape.IsValid() {
			errors = append(errors, GeometryError{Ref: i, Name: region.Name, ErrorMessage: shape.IsValidReason()})
		}
		shape.Destroy()
	}
	return errors
}
