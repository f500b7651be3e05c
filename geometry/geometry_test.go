package geometry

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func square(t *testing.T, x0, y0, size float64) Geometry {
	t.Helper()
	p := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{x0, y0}, {x0 + size, y0}, {x0 + size, y0 + size}, {x0, y0 + size}, {x0, y0},
	}})
	g, err := New(p)
	require.NoError(t, err)
	return g
}

func TestGeometryEqual(t *testing.T) {
	a := square(t, 0, 0, 1)
	b := square(t, 0, 0, 1)
	c := square(t, 0, 0, 2)

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.False(t, a.Equal(c))
	assert.Equal(t, "Polygon", a.Kind())
	assert.True(t, a.IsPolygonal())
}

func TestGeometryEqualDependsOnTypeAndOrder(t *testing.T) {
	ls, err := New(geom.NewLineString(geom.XY).MustSetCoords([]geom.Coord{{0, 0}, {1, 1}}))
	require.NoError(t, err)
	mp, err := New(geom.NewMultiPoint(geom.XY).MustSetCoords([]geom.Coord{{0, 0}, {1, 1}}))
	require.NoError(t, err)
	rev, err := New(geom.NewLineString(geom.XY).MustSetCoords([]geom.Coord{{1, 1}, {0, 0}}))
	require.NoError(t, err)

	assert.False(t, ls.Equal(mp))
	assert.False(t, ls.Equal(rev))
	assert.False(t, ls.IsPolygonal())
}

func TestFromWKBRoundTripKeepsKey(t *testing.T) {
	a := square(t, 3, 4, 1)
	b, err := FromWKB(a.WKB())
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestGeometryJSON(t *testing.T) {
	a := square(t, 0, 0, 1)
	data, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"Polygon"`)

	var back Geometry
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, a.Equal(back))
}

func TestCoordsAndEmpty(t *testing.T) {
	a := square(t, 0, 0, 1)
	n := 0
	a.Coords(func(x, y float64) { n++ })
	assert.Equal(t, 5, n)
	assert.False(t, a.IsEmpty())

	empty, err := New(geom.NewPolygon(geom.XY))
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
	assert.True(t, Geometry{}.IsZero())
}

const collection = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": 7, "properties": {"name": "a"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
    {"type": "Feature", "properties": {"name": "b"},
     "geometry": {"type": "Point", "coordinates": [5,5]}}
  ]
}`

func TestDecodeFeatureCollection(t *testing.T) {
	features, err := DecodeFeatureCollection(strings.NewReader(collection))
	require.NoError(t, err)
	require.Len(t, features, 2)

	assert.Equal(t, "Polygon", features[0].Geometry.Kind())
	assert.Equal(t, "a", features[0].Properties["name"])
	assert.JSONEq(t, "7", string(features[0].ID))
	assert.Equal(t, "Point", features[1].Geometry.Kind())
}

func TestDecodeSingleFeature(t *testing.T) {
	doc := `{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1,2]}}`
	features, err := DecodeFeatureCollection(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "Point", features[0].Geometry.Kind())
}

func TestDecodeFeatureCollectionErrors(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantIndex int
	}{
		{name: "not json", doc: `{"type":`, wantIndex: -1},
		{name: "wrong type", doc: `{"type":"Topology"}`, wantIndex: -1},
		{
			name:      "null geometry",
			doc:       `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[0,0]}},{"type":"Feature","geometry":null}]}`,
			wantIndex: 1,
		},
		{
			name:      "unknown geometry type",
			doc:       `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Circle","coordinates":[0,0]}}]}`,
			wantIndex: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFeatureCollection(strings.NewReader(tt.doc))
			require.Error(t, err)
			var fe *FeatureError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.wantIndex, fe.Index)
		})
	}
}

func TestEmptyFeatureCollection(t *testing.T) {
	features, err := DecodeFeatureCollection(strings.NewReader(`{"type":"FeatureCollection","features":[]}`))
	require.NoError(t, err)
	assert.Empty(t, features)
}
