package utils

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/bsaid97/go-geojson-cleaner/logger"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// WorkerPool bounds how many work items run at once. It is built once and
// shared by every batch, so concurrent batches share the same bound.
type WorkerPool struct {
	NumWorkers int
	sem        *semaphore.Weighted
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	return &WorkerPool{
		NumWorkers: numWorkers,
		sem:        semaphore.NewWeighted(int64(numWorkers)),
	}
}

// ProcessBatch runs work over every item on the pool and returns the results
// in input order: result i always belongs to item i, whatever order the
// workers finish in. The first error cancels the remaining items and is
// returned; no partial results are returned with it.
func ProcessBatch[T, R any](ctx context.Context, wp *WorkerPool, items []T, progressName string,
	work func(ctx context.Context, index int, item T) (R, error)) ([]R, error) {

	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}

	tracker := NewProgressTracker(int64(len(items)), progressName)
	g, gctx := errgroup.WithContext(ctx)

	var acquireErr error
	for i, item := range items {
		// Acquire does not fail on a done context while slots are free.
		if err := gctx.Err(); err != nil {
			acquireErr = err
			break
		}
		if err := wp.sem.Acquire(gctx, 1); err != nil {
			acquireErr = err
			break
		}
		g.Go(func() error {
			defer wp.sem.Release(1)
			result, err := work(gctx, i, item)
			if err != nil {
				return err
			}
			results[i] = result
			tracker.Increment()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if acquireErr != nil {
		return nil, fmt.Errorf("%s: %w", progressName, acquireErr)
	}

	logger.L().Debug("batch_complete", "name", progressName, "items", len(items), "elapsed", time.Since(tracker.StartTime))
	return results, nil
}

// ProgressTracker tracks progress of concurrent operations
type ProgressTracker struct {
	Total     int64
	Processed int64
	StartTime time.Time
	Name      string
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(total int64, name string) *ProgressTracker {
	return &ProgressTracker{
		Total:     total,
		StartTime: time.Now(),
		Name:      name,
	}
}

// Increment increments the processed count atomically
func (pt *ProgressTracker) Increment() {
	processed := atomic.AddInt64(&pt.Processed, 1)

	// Report every 100 items or at completion
	if processed%100 == 0 || processed == pt.Total {
		elapsed := time.Since(pt.StartTime)
		rate := float64(processed) / elapsed.Seconds()
		percentage := float64(processed) / float64(pt.Total) * 100

		logger.L().Debug("batch_progress", "name", pt.Name, "processed", processed, "total", pt.Total,
			"percent", fmt.Sprintf("%.1f", percentage), "per_sec", fmt.Sprintf("%.1f", rate))
	}
}

// GetProgress returns the current progress
func (pt *ProgressTracker) GetProgress() (int64, int64, float64) {
	processed := atomic.LoadInt64(&pt.Processed)
	if pt.Total == 0 {
		return processed, pt.Total, 100
	}
	percentage := float64(processed) / float64(pt.Total) * 100
	return processed, pt.Total, percentage
}
