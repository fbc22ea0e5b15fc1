package ecs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolExecutesEveryJob(t *testing.T) {
	pool := newWorkerPool(2)
	defer pool.Close()

	var count atomic.Int32
	job := func(ctx context.Context) jobResult {
		select {
		case <-time.After(2 * time.Millisecond):
			count.Add(1)
			return jobResult{}
		case <-ctx.Done():
			return jobResult{err: ctx.Err()}
		}
	}

	handles := make([]*jobHandle, 0, 5)
	for i := 0; i < 5; i++ {
		handles = append(handles, pool.Submit(context.Background(), job))
	}
	for i, h := range handles {
		if res := h.Wait(); res.Err() != nil {
			t.Fatalf("job %d failed: %v", i, res.Err())
		}
	}

	if count.Load() != 5 {
		t.Fatalf("expected 5 jobs to run, got %d", count.Load())
	}
	if pool.Executed() != 5 {
		t.Fatalf("expected executed counter 5, got %d", pool.Executed())
	}
}

func TestWorkerPoolClosedRejectsJobs(t *testing.T) {
	pool := newWorkerPool(1)
	pool.Close()

	handle := pool.Submit(context.Background(), func(context.Context) jobResult { return jobResult{} })
	if res := handle.Wait(); !errors.Is(res.Err(), ErrWorkerPoolClosed) {
		t.Fatalf("expected ErrWorkerPoolClosed, got %v", res.Err())
	}
}

func TestWorkerPoolCancelledContextSkipsJob(t *testing.T) {
	pool := newWorkerPool(1)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Bool
	handle := pool.Submit(ctx, func(context.Context) jobResult {
		ran.Store(true)
		return jobResult{}
	})
	if res := handle.Wait(); !errors.Is(res.Err(), context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", res.Err())
	}
	if ran.Load() {
		t.Fatalf("job must not run after cancellation")
	}
}

func TestWorkerPoolNilExecutesInline(t *testing.T) {
	var ran atomic.Bool
	var pool *workerPool
	handle := pool.Submit(context.Background(), func(context.Context) jobResult {
		ran.Store(true)
		return jobResult{}
	})
	if res := handle.Wait(); res.Err() != nil {
		t.Fatalf("expected nil error, got %v", res.Err())
	}
	if !ran.Load() {
		t.Fatalf("expected inline job to run")
	}
	if pool.Size() != 1 {
		t.Fatalf("nil pool should report size 1, got %d", pool.Size())
	}
}
