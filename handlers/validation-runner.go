package handlers

import (
	"context"

	"github.com/bsaid97/go-geojson-cleaner/geometry"
	"github.com/bsaid97/go-geojson-cleaner/utils"
)

const stageValidation = "validation"

// ValidateAll validates geometries on the pool. verdicts[i] belongs to
// geometries[i]. The first geometry that cannot be tested aborts the batch
// with a *GeometryProcessingError.
func ValidateAll(ctx context.Context, pool *utils.WorkerPool, validator GeometryValidator, geometries []geometry.Geometry) ([]Verdict, error) {
	return utils.ProcessBatch(ctx, pool, geometries, "Validating geometries",
		func(_ context.Context, i int, g geometry.Geometry) (Verdict, error) {
			verdict, err := validator.Validate(g)
			if err != nil {
				return Verdict{}, &GeometryProcessingError{Index: i, Stage: stageValidation, Err: err}
			}
			return verdict, nil
		})
}
