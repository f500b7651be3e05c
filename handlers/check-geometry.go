package handlers

import (
	"context"

	"github.com/bsaid97/go-geojson-cleaner/geometry"
	"github.com/bsaid97/go-geojson-cleaner/utils"
	"github.com/twpayne/go-geos"
)

// Verdict is the outcome of a validity test. Issue is set exactly when Valid
// is false.
type Verdict struct {
	Valid bool   `json:"valid"`
	Issue string `json:"issue,omitempty"`
}

// GeometryValidator tests one geometry. An error means the geometry could not
// be tested at all, which is different from an invalid verdict.
type GeometryValidator interface {
	Validate(g geometry.Geometry) (Verdict, error)
}

const (
	// fallbackIssue is used if GEOS declares a geometry invalid without a reason.
	fallbackIssue = "Invalid Geometry"
	// issueEmpty marks a geometry with no coordinates. GEOS calls these valid
	// but they carry nothing to keep.
	issueEmpty = "Empty geometry"
)

// Validator applies the OGC simple-features validity rules through GEOS. It
// is safe for concurrent use.
type Validator struct {
	contexts *contextPool
}

func NewValidator() *Validator {
	return &Validator{contexts: newContextPool()}
}

// Validate returns GEOS's verdict and, for invalid geometries, its description
// of the first violation found. Empty geometries are invalid.
func (v *Validator) Validate(g geometry.Geometry) (Verdict, error) {
	if !g.IsZero() && g.IsEmpty() {
		return Verdict{Valid: false, Issue: issueEmpty}, nil
	}
	var verdict Verdict
	err := v.contexts.with(g, func(shape *geos.Geom) error {
		verdict = verdictOf(shape)
		return nil
	})
	if err != nil {
		return Verdict{}, err
	}
	return verdict, nil
}

func verdictOf(shape *geos.Geom) Verdict {
	if shape.IsEmpty() {
		return Verdict{Valid: false, Issue: issueEmpty}
	}
	if shape.IsValid() {
		return Verdict{Valid: true}
	}
	reason := shape.IsValidReason()
	if reason == "" {
		reason = fallbackIssue
	}
	return Verdict{Valid: false, Issue: reason}
}

type Error struct {
	Ref          int    `json:"ref"`
	ErrorMessage string `json:"errorMessage"`
}

// CheckGeometry validates every feature and lists the invalid ones. It does no
// repair.
func CheckGeometry(ctx context.Context, pool *utils.WorkerPool, validator GeometryValidator, features []geometry.Feature) ([]Error, error) {
	geometries := make([]geometry.Geometry, len(features))
	for i, f := range features {
		geometries[i] = f.Geometry
	}

	verdicts, err := ValidateAll(ctx, pool, validator, geometries)
	if err != nil {
		return nil, err
	}

	errors := make([]Error, 0)
	for i, verdict := range verdicts {
		if !verdict.Valid {
			errors = append(errors, Error{Ref: i, ErrorMessage: verdict.Issue})
		}
	}
	return errors, nil
}
