package handlers

import (
	"context"
	"fmt"

	"github.com/bsaid97/go-geojson-cleaner/geometry"
	"github.com/bsaid97/go-geojson-cleaner/utils"
	"github.com/twpayne/go-geos"
)

// RepairTrigger decides which records the repair pass touches.
type RepairTrigger string

const (
	// RepairBatchWide repairs every record in the batch as soon as any record
	// is invalid, valid ones included.
	RepairBatchWide RepairTrigger = "batchWide"
	// RepairPerRecord repairs only the records that failed validation.
	RepairPerRecord RepairTrigger = "perRecord"
)

func ParseRepairTrigger(s string) (RepairTrigger, error) {
	switch RepairTrigger(s) {
	case RepairBatchWide, RepairPerRecord:
		return RepairTrigger(s), nil
	case "":
		return RepairBatchWide, nil
	}
	return "", fmt.Errorf("unknown repair trigger %q", s)
}

const (
	stageRepair = "repair"

	issueCollapsed = "Repair collapsed geometry to empty"
)

// Repair is the outcome of one repair attempt.
type Repair struct {
	Geometry geometry.Geometry
	Valid    bool
	Issue    string
}

type GeometryRepairer interface {
	Repair(g geometry.Geometry) (Repair, error)
}

// Repairer fixes polygons with a zero-width buffer and re-validates the
// result. Other geometry types pass through unchanged and are re-validated
// as they are, since a buffer would turn them into empty polygons.
type Repairer struct {
	contexts *contextPool
	quadSegs int
}

func NewRepairer(quadSegs int) *Repairer {
	if quadSegs <= 0 {
		quadSegs = 8
	}
	return &Repairer{contexts: newContextPool(), quadSegs: quadSegs}
}

func (r *Repairer) Repair(g geometry.Geometry) (Repair, error) {
	if !g.IsZero() && g.IsEmpty() {
		return Repair{Geometry: g, Valid: false, Issue: issueEmpty}, nil
	}
	var result Repair
	err := r.contexts.with(g, func(shape *geos.Geom) error {
		if !g.IsPolygonal() {
			v := verdictOf(shape)
			result = Repair{Geometry: g, Valid: v.Valid, Issue: v.Issue}
			return nil
		}

		buffered := shape.Buffer(0, r.quadSegs)
		defer buffered.Destroy()

		out, err := toGeometry(buffered)
		if err != nil {
			return err
		}

		if buffered.IsEmpty() && !shape.IsEmpty() {
			result = Repair{Geometry: out, Valid: false, Issue: issueCollapsed}
			return nil
		}

		v := verdictOf(buffered)
		if v.Valid && shape.IsValid() && buffered.Equals(shape) {
			// Same point set: keep the caller's coordinates and ring order.
			result = Repair{Geometry: g, Valid: true}
			return nil
		}
		result = Repair{Geometry: out, Valid: v.Valid, Issue: v.Issue}
		return nil
	})
	if err != nil {
		return Repair{}, err
	}
	return result, nil
}

// RepairAll repairs the given records on the pool. repairs[i] belongs to
// records[i]. Records are not modified.
func RepairAll(ctx context.Context, pool *utils.WorkerPool, repairer GeometryRepairer, records []*geometry.Record) ([]Repair, error) {
	return utils.ProcessBatch(ctx, pool, records, "Repairing geometries",
		func(_ context.Context, _ int, rec *geometry.Record) (Repair, error) {
			repair, err := repairer.Repair(rec.Geometry)
			if err != nil {
				return Repair{}, &GeometryProcessingError{Index: rec.Index(), Stage: stageRepair, Err: err}
			}
			return repair, nil
		})
}

// selectForRepair returns the records the trigger asks to repair, or nil when
// nothing in the batch was invalid.
func selectForRepair(trigger RepairTrigger, store *geometry.Store) []*geometry.Record {
	invalid := store.Invalid()
	if len(invalid) == 0 {
		return nil
	}
	if trigger == RepairPerRecord {
		return invalid
	}
	return store.Records()
}
