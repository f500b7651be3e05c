package handlers

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/bsaid97/go-geojson-cleaner/geometry"
	"github.com/bsaid97/go-geojson-cleaner/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestValidatorValidGeometries(t *testing.T) {
	v := NewValidator()
	for _, wkt := range []string{
		squareWKT,
		"POINT (1 2)",
		"LINESTRING (0 0, 1 1, 2 0)",
		"MULTIPOLYGON (((0 0, 1 0, 1 1, 0 0)), ((5 5, 6 5, 6 6, 5 5)))",
		"POLYGON ((0 0, 10 0, 10 10, 0 10, 0 0), (2 2, 2 4, 4 4, 4 2, 2 2))",
	} {
		t.Run(wkt, func(t *testing.T) {
			verdict, err := v.Validate(mustWKT(t, wkt))
			require.NoError(t, err)
			assert.True(t, verdict.Valid)
			assert.Empty(t, verdict.Issue)
		})
	}
}

func TestValidatorInvalidGeometries(t *testing.T) {
	v := NewValidator()
	tests := []struct {
		name  string
		wkt   string
		issue string
	}{
		{name: "self-intersecting ring", wkt: bowtieWKT, issue: "Self-intersection"},
		{name: "hole outside shell", wkt: "POLYGON ((0 0, 1 0, 1 1, 0 1, 0 0), (5 5, 5 6, 6 6, 6 5, 5 5))", issue: "Hole lies outside shell"},
		{name: "repeated point line", wkt: badLineWKT, issue: "Too few points"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := v.Validate(mustWKT(t, tt.wkt))
			require.NoError(t, err)
			assert.False(t, verdict.Valid)
			assert.NotEmpty(t, verdict.Issue)
			assert.Contains(t, verdict.Issue, tt.issue)
		})
	}
}

func TestValidatorRejectsEmptyGeometry(t *testing.T) {
	verdict, err := NewValidator().Validate(emptyPolygon(t))
	require.NoError(t, err)
	assert.Equal(t, Verdict{Valid: false, Issue: issueEmpty}, verdict)
}

func TestValidatorIsDeterministic(t *testing.T) {
	v := NewValidator()
	g := mustWKT(t, bowtieWKT)
	first, err := v.Validate(g)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			again, err := v.Validate(g)
			assert.NoError(t, err)
			assert.Equal(t, first, again)
		}()
	}
	wg.Wait()
}

func TestValidatorProcessingError(t *testing.T) {
	v := NewValidator()

	_, err := v.Validate(unclosedRing(t))
	assert.Error(t, err)

	_, err = v.Validate(geometry.Geometry{})
	assert.Error(t, err)
}

// delayedValidator marks points with even x as valid after a random delay.
type delayedValidator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (d *delayedValidator) Validate(g geometry.Geometry) (Verdict, error) {
	d.mu.Lock()
	delay := time.Duration(d.rng.Intn(3000)) * time.Microsecond
	d.mu.Unlock()
	time.Sleep(delay)

	x := int(g.T().FlatCoords()[0])
	if x < 0 {
		return Verdict{}, errors.New("negative x")
	}
	if x%2 == 0 {
		return Verdict{Valid: true}, nil
	}
	return Verdict{Valid: false, Issue: "odd"}, nil
}

func points(t *testing.T, xs ...int) []geometry.Geometry {
	t.Helper()
	out := make([]geometry.Geometry, len(xs))
	for i, x := range xs {
		g, err := geometry.New(geom.NewPointFlat(geom.XY, []float64{float64(x), 0}))
		require.NoError(t, err)
		out[i] = g
	}
	return out
}

func TestValidateAllPreservesOrder(t *testing.T) {
	pool := utils.NewWorkerPool(8)
	for seed := int64(1); seed <= 5; seed++ {
		v := &delayedValidator{rng: rand.New(rand.NewSource(seed))}
		xs := make([]int, 64)
		for i := range xs {
			xs[i] = i
		}
		verdicts, err := ValidateAll(context.Background(), pool, v, points(t, xs...))
		require.NoError(t, err)
		require.Len(t, verdicts, len(xs))
		for i, verdict := range verdicts {
			assert.Equal(t, i%2 == 0, verdict.Valid, "seed %d index %d", seed, i)
		}
	}
}

func TestValidateAllAbortsOnProcessingError(t *testing.T) {
	pool := utils.NewWorkerPool(4)
	v := &delayedValidator{rng: rand.New(rand.NewSource(7))}

	_, err := ValidateAll(context.Background(), pool, v, points(t, 0, 1, -3, 4))
	var gerr *GeometryProcessingError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, 2, gerr.Index)
	assert.Equal(t, stageValidation, gerr.Stage)
}

func TestCheckGeometry(t *testing.T) {
	pool := utils.NewWorkerPool(2)
	errs, err := CheckGeometry(context.Background(), pool, NewValidator(),
		features(mustWKT(t, squareWKT), mustWKT(t, bowtieWKT), mustWKT(t, "POINT (0 0)")))
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, 1, errs[0].Ref)
	assert.Contains(t, errs[0].ErrorMessage, "Self-intersection")
}
