package handlers

import (
	"fmt"
	"math"

	"github.com/bsaid97/go-geojson-cleaner/geometry"
	"github.com/golang/geo/s2"
	"github.com/twpayne/go-geos"
)

const (
	defaultZoom = 10
	minZoom     = 1
	maxZoom     = 18
)

// MapView is what a map widget needs to frame the kept geometries. Center is
// [lat, lng]; Bounds is [minLng, minLat, maxLng, maxLat].
type MapView struct {
	Center [2]float64 `json:"center"`
	Zoom   int        `json:"zoom"`
	Bounds [4]float64 `json:"bounds"`
}

// BuildMapView centers the view on the centroid of the union of all final
// geometries and picks a zoom from their lat/lng extent. It returns nil when
// no record has a final geometry.
func BuildMapView(records []*geometry.Record) (*MapView, error) {
	finals := make([]geometry.Geometry, 0, len(records))
	for _, rec := range records {
		if g, ok := rec.FinalGeometry(); ok && !g.IsEmpty() {
			finals = append(finals, g)
		}
	}
	if len(finals) == 0 {
		return nil, nil
	}

	rect, inRange := extent(finals)
	view := &MapView{Zoom: defaultZoom}
	if inRange && !rect.IsEmpty() {
		lo, hi := rect.Lo(), rect.Hi()
		view.Bounds = [4]float64{lo.Lng.Degrees(), lo.Lat.Degrees(), hi.Lng.Degrees(), hi.Lat.Degrees()}
		view.Zoom = zoomForSpan(rect.Size())
	}

	lat, lng, err := unionCentroid(finals)
	if err != nil {
		return nil, err
	}
	view.Center = [2]float64{lat, lng}
	return view, nil
}

// extent collects every coordinate into an s2 rectangle, reading x as
// longitude and y as latitude. inRange is false if any coordinate is not a
// valid lat/lng.
func extent(geoms []geometry.Geometry) (s2.Rect, bool) {
	rect := s2.EmptyRect()
	inRange := true
	for _, g := range geoms {
		g.Coords(func(x, y float64) {
			ll := s2.LatLngFromDegrees(y, x)
			if !ll.IsValid() {
				inRange = false
				return
			}
			rect = rect.AddPoint(ll)
		})
	}
	return rect, inRange
}

func zoomForSpan(size s2.LatLng) int {
	span := math.Max(size.Lat.Degrees(), size.Lng.Degrees())
	if span <= 0 || math.IsNaN(span) {
		return defaultZoom
	}
	zoom := int(math.Floor(math.Log2(360 / span)))
	if zoom < minZoom {
		return minZoom
	}
	if zoom > maxZoom {
		return maxZoom
	}
	return zoom
}

func unionCentroid(geoms []geometry.Geometry) (lat, lng float64, err error) {
	gctx := geos.NewContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("geos: %v", r)
		}
	}()

	shapes := make([]*geos.Geom, 0, len(geoms))
	for _, g := range geoms {
		shape, err := gctx.NewGeomFromWKB(g.WKB())
		if err != nil {
			for _, s := range shapes {
				s.Destroy()
			}
			return 0, 0, fmt.Errorf("failed to decode geometry for map view: %w", err)
		}
		shapes = append(shapes, shape)
	}

	union, err := CascadedUnion(shapes)
	if err != nil {
		return 0, 0, err
	}
	defer union.Destroy()

	centroid := union.Centroid()
	defer centroid.Destroy()
	if centroid.IsEmpty() {
		return 0, 0, fmt.Errorf("union has no centroid")
	}
	return centroid.Y(), centroid.X(), nil
}
