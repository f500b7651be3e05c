package geometry

// Store holds the ordered records of one pipeline run.
type Store struct {
	records []*Record
}

// NewStore creates one record per feature, indexed by input position.
func NewStore(features []Feature) *Store {
	records := make([]*Record, len(features))
	for i, f := range features {
		records[i] = &Record{
			index:      i,
			ID:         f.ID,
			Geometry:   f.Geometry,
			Properties: f.Properties,
		}
	}
	return &Store{records: records}
}

func (s *Store) Len() int { return len(s.records) }

// Records returns all records in input order.
func (s *Store) Records() []*Record { return s.records }

// Record returns the record at input position i.
func (s *Store) Record(i int) *Record { return s.records[i] }

// Geometries returns the original geometries in input order.
func (s *Store) Geometries() []Geometry {
	out := make([]Geometry, len(s.records))
	for i, r := range s.records {
		out[i] = r.Geometry
	}
	return out
}

// Invalid returns records whose initial verdict was invalid.
func (s *Store) Invalid() []*Record {
	return s.filter(func(r *Record) bool { return r.classified && !r.Valid })
}

// Kept returns records with a final geometry, in input order.
func (s *Store) Kept() []*Record {
	return s.filter(func(r *Record) bool { return !r.Excluded() })
}

// Unrepairable returns records whose repair was attempted and failed.
func (s *Store) Unrepairable() []*Record {
	return s.filter(func(r *Record) bool {
		return r.ValidAfterRepair != nil && !*r.ValidAfterRepair
	})
}

func (s *Store) filter(keep func(*Record) bool) []*Record {
	out := make([]*Record, 0)
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
