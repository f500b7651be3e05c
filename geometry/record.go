package geometry

import (
	"encoding/json"
	"fmt"
)

// Record is one feature plus everything the pipeline learns about it. The
// original geometry is never replaced; validation and repair only add fields.
type Record struct {
	index int

	ID         json.RawMessage
	Geometry   Geometry
	Properties map[string]interface{}

	classified bool
	Valid      bool
	Issue      string

	Repaired         *Geometry
	ValidAfterRepair *bool
	RepairIssue      string
}

// Index is the record's position in the original input.
func (r *Record) Index() int { return r.index }

// Classified reports whether a verdict has been recorded.
func (r *Record) Classified() bool { return r.classified }

// SetVerdict records the initial validity classification. An invalid record
// must carry an issue and a valid one must not.
func (r *Record) SetVerdict(valid bool, issue string) error {
	if r.classified {
		return fmt.Errorf("record %d already classified", r.index)
	}
	if valid && issue != "" {
		return fmt.Errorf("record %d: valid verdict with issue %q", r.index, issue)
	}
	if !valid && issue == "" {
		return fmt.Errorf("record %d: invalid verdict without issue", r.index)
	}
	r.classified = true
	r.Valid = valid
	r.Issue = issue
	return nil
}

// SetRepair records a repair attempt. A failed repair must carry an issue.
func (r *Record) SetRepair(repaired Geometry, valid bool, issue string) error {
	if r.Repaired != nil {
		return fmt.Errorf("record %d already repaired", r.index)
	}
	if !valid && issue == "" {
		return fmt.Errorf("record %d: failed repair without issue", r.index)
	}
	r.Repaired = &repaired
	r.ValidAfterRepair = &valid
	if !valid {
		r.RepairIssue = issue
	}
	return nil
}

// RepairAttempted reports whether SetRepair was called.
func (r *Record) RepairAttempted() bool { return r.Repaired != nil }

// FinalGeometry is the geometry used downstream. A repaired record is kept
// exactly when ValidAfterRepair is true; an unrepaired one when it was valid.
func (r *Record) FinalGeometry() (g Geometry, ok bool) {
	if r.Repaired != nil {
		if *r.ValidAfterRepair {
			return *r.Repaired, true
		}
		return Geometry{}, false
	}
	if r.classified && r.Valid {
		return r.Geometry, true
	}
	return Geometry{}, false
}

// Excluded reports whether the record is dropped from the kept set.
func (r *Record) Excluded() bool {
	_, ok := r.FinalGeometry()
	return !ok
}

type recordJSON struct {
	Index            int                    `json:"index"`
	ID               json.RawMessage        `json:"id,omitempty"`
	Geometry         Geometry               `json:"geometry"`
	Properties       map[string]interface{} `json:"properties,omitempty"`
	Valid            bool                   `json:"valid"`
	Issue            string                 `json:"issue,omitempty"`
	Repaired         *Geometry              `json:"repairedGeometry,omitempty"`
	ValidAfterRepair *bool                  `json:"validAfterRepair,omitempty"`
	RepairIssue      string                 `json:"repairIssue,omitempty"`
	Final            *Geometry              `json:"finalGeometry,omitempty"`
}

func (r *Record) MarshalJSON() ([]byte, error) {
	out := recordJSON{
		Index:            r.index,
		ID:               r.ID,
		Geometry:         r.Geometry,
		Properties:       r.Properties,
		Valid:            r.Valid,
		Issue:            r.Issue,
		Repaired:         r.Repaired,
		ValidAfterRepair: r.ValidAfterRepair,
		RepairIssue:      r.RepairIssue,
	}
	if final, ok := r.FinalGeometry(); ok {
		out.Final = &final
	}
	return json.Marshal(out)
}
