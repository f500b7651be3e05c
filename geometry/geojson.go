package geometry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Feature is one input record: a geometry plus optional attributes.
type Feature struct {
	ID         json.RawMessage
	Geometry   Geometry
	Properties map[string]interface{}
}

// FeatureError reports a feature that could not be read. Index is -1 when the
// document itself is malformed.
type FeatureError struct {
	Index int
	Err   error
}

func (e *FeatureError) Error() string {
	if e.Index < 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("feature %d: %v", e.Index, e.Err)
}

func (e *FeatureError) Unwrap() error { return e.Err }

type rawFeature struct {
	Type       string                 `json:"type"`
	ID         json.RawMessage        `json:"id,omitempty"`
	Geometry   json.RawMessage        `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

type rawDocument struct {
	Type     string       `json:"type"`
	Features []rawFeature `json:"features"`
}

// DecodeFeatureCollection reads a GeoJSON FeatureCollection, or a single
// Feature, and returns its features in document order.
func DecodeFeatureCollection(r io.Reader) ([]Feature, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, &FeatureError{Index: -1, Err: fmt.Errorf("failed to read document: %w", err)}
	}

	var doc rawDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &FeatureError{Index: -1, Err: fmt.Errorf("failed to parse feature collection: %w", err)}
	}

	var raws []rawFeature
	switch doc.Type {
	case "FeatureCollection":
		raws = doc.Features
	case "Feature":
		var single rawFeature
		if err := json.Unmarshal(body, &single); err != nil {
			return nil, &FeatureError{Index: -1, Err: fmt.Errorf("failed to parse feature: %w", err)}
		}
		raws = []rawFeature{single}
	default:
		return nil, &FeatureError{Index: -1, Err: fmt.Errorf("unsupported GeoJSON type %q, want FeatureCollection or Feature", doc.Type)}
	}

	features := make([]Feature, 0, len(raws))
	for i, raw := range raws {
		trimmed := bytes.TrimSpace(raw.Geometry)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			return nil, &FeatureError{Index: i, Err: fmt.Errorf("feature has no geometry")}
		}
		g, err := FromGeoJSON(trimmed)
		if err != nil {
			return nil, &FeatureError{Index: i, Err: err}
		}
		features = append(features, Feature{
			ID:         raw.ID,
			Geometry:   g,
			Properties: raw.Properties,
		})
	}

	return features, nil
}

// FeatureCollection is the GeoJSON document written for kept records.
type FeatureCollection struct {
	Type     string       `json:"type"`
	Features []OutFeature `json:"features"`
}

type OutFeature struct {
	Type       string                 `json:"type"`
	ID         json.RawMessage        `json:"id,omitempty"`
	Geometry   Geometry               `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// IndexProperty is added to every exported feature so rows can be traced back
// to their position in the upload.
const IndexProperty = "_index"

// EncodeFeatureCollection builds the output collection from records that have
// a final geometry. Records without one are skipped.
func EncodeFeatureCollection(records []*Record) FeatureCollection {
	fc := FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]OutFeature, 0, len(records)),
	}
	for _, rec := range records {
		final, ok := rec.FinalGeometry()
		if !ok {
			continue
		}
		props := make(map[string]interface{}, len(rec.Properties)+1)
		for k, v := range rec.Properties {
			props[k] = v
		}
		props[IndexProperty] = rec.Index()
		fc.Features = append(fc.Features, OutFeature{
			Type:       "Feature",
			ID:         rec.ID,
			Geometry:   final,
			Properties: props,
		})
	}
	return fc
}
