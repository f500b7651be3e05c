package handlers

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/bsaid97/go-geojson-cleaner/geometry"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geos"
)

const (
	squareWKT  = "POLYGON ((0 0, 1 0, 1 1, 0 1, 0 0))"
	bowtieWKT  = "POLYGON ((0 0, 2 2, 2 0, 0 2, 0 0))"
	spikeWKT   = "POLYGON ((0 0, 1 1, 2 2, 0 0))"
	badLineWKT = "LINESTRING (1 1, 1 1)"
)

func mustWKT(t *testing.T, wkt string) geometry.Geometry {
	t.Helper()
	g, err := geos.NewGeomFromWKT(wkt)
	require.NoError(t, err)
	defer g.Destroy()
	out, err := toGeometry(g)
	require.NoError(t, err)
	return out
}

func squareAt(t *testing.T, x, y float64) geometry.Geometry {
	t.Helper()
	p := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y},
	}})
	g, err := geometry.New(p)
	require.NoError(t, err)
	return g
}

// unclosedRing builds a polygon GEOS refuses to construct.
func unclosedRing(t *testing.T) geometry.Geometry {
	t.Helper()
	p := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{0, 0}, {1, 0}, {1, 1}, {0, 1},
	}})
	g, err := geometry.New(p)
	require.NoError(t, err)
	return g
}

func emptyPolygon(t *testing.T) geometry.Geometry {
	t.Helper()
	g, err := geometry.FromGeoJSON([]byte(`{"type":"Polygon","coordinates":[]}`))
	require.NoError(t, err)
	require.True(t, g.IsEmpty())
	return g
}

func features(geoms ...geometry.Geometry) []geometry.Feature {
	out := make([]geometry.Feature, len(geoms))
	for i, g := range geoms {
		out[i] = geometry.Feature{Geometry: g, Properties: map[string]interface{}{"n": i}}
	}
	return out
}

func quietLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}
