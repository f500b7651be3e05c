// Package geometry holds the feature records that flow through the cleaning
// pipeline and the immutable geometry value they carry.
package geometry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// Geometry is an immutable geometric value. It keeps the decoded go-geom value
// alongside its canonical little-endian WKB encoding, which is what GEOS reads
// and what structural equality compares.
type Geometry struct {
	t   geom.T
	wkb []byte
}

// New builds a Geometry from a go-geom value.
func New(t geom.T) (Geometry, error) {
	if t == nil {
		return Geometry{}, fmt.Errorf("geometry is nil")
	}
	data, err := wkb.Marshal(t, wkb.NDR)
	if err != nil {
		return Geometry{}, fmt.Errorf("failed to encode %T as WKB: %w", t, err)
	}
	return Geometry{t: t, wkb: data}, nil
}

// FromWKB decodes WKB produced by any writer (GEOS included) and re-encodes it
// canonically so equal shapes compare equal regardless of origin.
func FromWKB(data []byte) (Geometry, error) {
	t, err := wkb.Unmarshal(data)
	if err != nil {
		return Geometry{}, fmt.Errorf("failed to decode WKB: %w", err)
	}
	return New(t)
}

// FromGeoJSON decodes a single GeoJSON geometry object.
func FromGeoJSON(data []byte) (Geometry, error) {
	var t geom.T
	if err := geojson.Unmarshal(data, &t); err != nil {
		return Geometry{}, fmt.Errorf("failed to decode GeoJSON geometry: %w", err)
	}
	return New(t)
}

// T returns the underlying go-geom value. Callers must not modify it.
func (g Geometry) T() geom.T { return g.t }

// WKB returns the canonical encoding. Callers must not modify the slice.
func (g Geometry) WKB() []byte { return g.wkb }

// IsZero reports whether g was never set.
func (g Geometry) IsZero() bool { return g.t == nil }

// IsEmpty reports whether g has no coordinates.
func (g Geometry) IsEmpty() bool {
	empty := true
	g.Coords(func(float64, float64) { empty = false })
	return empty
}

// Kind is the GeoJSON type name of g.
func (g Geometry) Kind() string {
	switch g.t.(type) {
	case *geom.Point:
		return "Point"
	case *geom.LineString:
		return "LineString"
	case *geom.LinearRing:
		return "LinearRing"
	case *geom.Polygon:
		return "Polygon"
	case *geom.MultiPoint:
		return "MultiPoint"
	case *geom.MultiLineString:
		return "MultiLineString"
	case *geom.MultiPolygon:
		return "MultiPolygon"
	case *geom.GeometryCollection:
		return "GeometryCollection"
	case nil:
		return ""
	default:
		return fmt.Sprintf("%T", g.t)
	}
}

// IsPolygonal reports whether g is a Polygon or MultiPolygon.
func (g Geometry) IsPolygonal() bool {
	switch g.t.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
		return true
	}
	return false
}

// Key identifies g by type and ordered coordinates. Two geometries have the
// same key exactly when Equal reports true.
func (g Geometry) Key() string { return string(g.wkb) }

// Equal is exact structural equality: same type, same coordinates, same order.
func (g Geometry) Equal(other Geometry) bool {
	return bytes.Equal(g.wkb, other.wkb)
}

// Coords calls fn with every x, y pair of g in storage order.
func (g Geometry) Coords(fn func(x, y float64)) {
	if g.t == nil {
		return
	}
	g.walk(g.t, fn)
}

func (g Geometry) walk(t geom.T, fn func(x, y float64)) {
	if gc, ok := t.(*geom.GeometryCollection); ok {
		for _, child := range gc.Geoms() {
			g.walk(child, fn)
		}
		return
	}
	flat := t.FlatCoords()
	stride := t.Stride()
	if stride < 2 {
		return
	}
	for i := 0; i+1 < len(flat); i += stride {
		fn(flat[i], flat[i+1])
	}
}

func (g Geometry) MarshalJSON() ([]byte, error) {
	if g.t == nil {
		return []byte("null"), nil
	}
	return geojson.Marshal(g.t)
}

func (g *Geometry) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*g = Geometry{}
		return nil
	}
	decoded, err := FromGeoJSON(data)
	if err != nil {
		return err
	}
	*g = decoded
	return nil
}

var _ json.Marshaler = Geometry{}
