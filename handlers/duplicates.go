package handlers

import "github.com/bsaid97/go-geojson-cleaner/geometry"

// DuplicateGroup lists records whose final geometries are structurally
// identical. Indexes are original record indexes in input order.
type DuplicateGroup struct {
	Kind    string `json:"kind"`
	Indexes []int  `json:"indexes"`
}

// FindDuplicates groups records by exact final geometry and returns every
// group with two or more members, ordered by first member. Records without a
// final geometry are ignored.
func FindDuplicates(records []*geometry.Record) []DuplicateGroup {
	byKey := make(map[string]int)
	groups := make([]DuplicateGroup, 0)

	for _, rec := range records {
		final, ok := rec.FinalGeometry()
		if !ok {
			continue
		}
		key := final.Key()
		if gi, seen := byKey[key]; seen {
			groups[gi].Indexes = append(groups[gi].Indexes, rec.Index())
			continue
		}
		byKey[key] = len(groups)
		groups = append(groups, DuplicateGroup{Kind: final.Kind(), Indexes: []int{rec.Index()}})
	}

	dups := make([]DuplicateGroup, 0)
	for _, g := range groups {
		if len(g.Indexes) > 1 {
			dups = append(dups, g)
		}
	}
	return dups
}

// DuplicateIndexes flattens groups into the set of flagged indexes, first
// occurrences included.
func DuplicateIndexes(groups []DuplicateGroup) map[int]int {
	flagged := make(map[int]int)
	for gi, g := range groups {
		for _, idx := range g.Indexes {
			flagged[idx] = gi
		}
	}
	return flagged
}
