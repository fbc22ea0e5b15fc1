package ecs

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
)

// Batch is a contiguous half-open range of query rows [Start, End).
type Batch struct {
	Index int
	Start int
	End   int
}

func (b Batch) Len() int { return b.End - b.Start }

// Dispatcher splits row ranges into batches and runs them on a fixed worker
// pool. Every Run call returns only after all of its batches have finished.
type Dispatcher struct {
	pool    *workerPool
	workers int
	batches atomic.Uint64
}

// NewDispatcher starts a dispatcher with the given number of workers.
// A count of zero or less uses GOMAXPROCS; a single worker runs batches inline.
func NewDispatcher(workers int) *Dispatcher {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	d := &Dispatcher{workers: workers}
	if workers > 1 {
		d.pool = newWorkerPool(workers)
	}
	return d
}

// Workers returns the size of the worker pool.
func (d *Dispatcher) Workers() int {
	return d.workers
}

// Dispatched returns how many batches have executed since construction.
func (d *Dispatcher) Dispatched() uint64 {
	return d.batches.Load()
}

// Run invokes body once per row in [0, n).
func (d *Dispatcher) Run(ctx context.Context, n, batchSize int, body func(row int)) error {
	return d.RunBatches(ctx, n, batchSize, func(b Batch) error {
		for i := b.Start; i < b.End; i++ {
			body(i)
		}
		return nil
	})
}

// RunBatches partitions [0, n) into batches of at most batchSize rows and runs
// body for each. The first error by batch index is returned once every
// submitted batch has completed.
func (d *Dispatcher) RunBatches(ctx context.Context, n, batchSize int, body func(b Batch) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatchSize, batchSize)
	}
	if n <= 0 {
		return nil
	}

	count := (n + batchSize - 1) / batchSize
	if count == 1 || d.pool == nil {
		for i := 0; i < count; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := d.runBatch(d.batchAt(i, n, batchSize), body); err != nil {
				return err
			}
		}
		return nil
	}

	handles := make([]*jobHandle, 0, count)
	var submitErr error
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			submitErr = err
			break
		}
		b := d.batchAt(i, n, batchSize)
		handles = append(handles, d.pool.Submit(ctx, func(context.Context) jobResult {
			return jobResult{err: d.runBatch(b, body)}
		}))
	}

	var firstErr error
	for _, h := range handles {
		if res := h.Wait(); res.Err() != nil && firstErr == nil {
			firstErr = res.Err()
		}
	}
	if firstErr == nil {
		firstErr = submitErr
	}
	return firstErr
}

// Close stops the worker pool.
func (d *Dispatcher) Close() {
	d.pool.Close()
}

func (d *Dispatcher) batchAt(i, n, batchSize int) Batch {
	start := i * batchSize
	return Batch{Index: i, Start: start, End: min(start+batchSize, n)}
}

func (d *Dispatcher) runBatch(b Batch, body func(Batch) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: batch %d [%d,%d): %v", ErrBatchPanicked, b.Index, b.Start, b.End, r)
		}
	}()
	d.batches.Add(1)
	return body(b)
}
