package handlers

import (
	"fmt"
	"sync"

	"github.com/bsaid97/go-geojson-cleaner/geometry"
	"github.com/twpayne/go-geos"
)

// A GEOS context serializes every call made through it, so each concurrent
// operation borrows its own context from this pool. Geometries never leave
// the call that created them.
type contextPool struct {
	pool sync.Pool
}

func newContextPool() *contextPool {
	return &contextPool{pool: sync.Pool{New: func() any { return geos.NewContext() }}}
}

// with decodes g into a borrowed context and hands it to fn. GEOS panics are
// turned into errors.
func (cp *contextPool) with(g geometry.Geometry, fn func(*geos.Geom) error) (err error) {
	gctx := cp.pool.Get().(*geos.Context)
	defer cp.pool.Put(gctx)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("geos: %v", r)
		}
	}()

	if g.IsZero() {
		return fmt.Errorf("geometry is nil")
	}
	geom, err := gctx.NewGeomFromWKB(g.WKB())
	if err != nil {
		return err
	}
	defer geom.Destroy()

	return fn(geom)
}

// toGeometry copies a GEOS result back into an immutable Geometry.
func toGeometry(g *geos.Geom) (geometry.Geometry, error) {
	if g == nil {
		return geometry.Geometry{}, fmt.Errorf("geos returned no geometry")
	}
	return geometry.FromWKB(g.ToWKB())
}
