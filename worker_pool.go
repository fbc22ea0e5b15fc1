package ecs

import (
	"context"
	"sync"
	"sync/atomic"
)

// workerPool runs submitted jobs on a fixed set of goroutines. A nil pool
// executes jobs inline on the caller.
type workerPool struct {
	size     int
	jobs     chan jobRequest
	closed   chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
	executed atomic.Uint64
}

type jobRequest struct {
	ctx    context.Context
	fn     func(context.Context) jobResult
	result chan jobResult
}

type jobResult struct {
	err error
}

func (r jobResult) Err() error { return r.err }

func newWorkerPool(size int) *workerPool {
	if size <= 0 {
		return nil
	}
	p := &workerPool{
		size:   size,
		jobs:   make(chan jobRequest),
		closed: make(chan struct{}),
	}
	p.start()
	return p
}

func (p *workerPool) start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *workerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.execute(job)
		case <-p.closed:
			return
		}
	}
}

func (p *workerPool) execute(job jobRequest) {
	if job.result == nil {
		return
	}
	defer close(job.result)
	if job.fn == nil {
		job.result <- jobResult{}
		return
	}
	select {
	case <-job.ctx.Done():
		job.result <- jobResult{err: job.ctx.Err()}
	default:
		p.executed.Add(1)
		job.result <- job.fn(job.ctx)
	}
}

// Executed returns how many jobs ran on pool workers.
func (p *workerPool) Executed() uint64 {
	if p == nil {
		return 0
	}
	return p.executed.Load()
}

func (p *workerPool) Size() int {
	if p == nil {
		return 1
	}
	return p.size
}

func (p *workerPool) Submit(ctx context.Context, fn func(context.Context) jobResult) *jobHandle {
	if fn == nil {
		return resolvedHandle(jobResult{})
	}
	if p == nil {
		return resolvedHandle(fn(ctx))
	}
	select {
	case <-p.closed:
		return resolvedHandle(jobResult{err: ErrWorkerPoolClosed})
	case <-ctx.Done():
		return resolvedHandle(jobResult{err: ctx.Err()})
	default:
	}
	result := make(chan jobResult, 1)
	if safeSendJob(p.jobs, jobRequest{ctx: ctx, fn: fn, result: result}) {
		return &jobHandle{result: result}
	}
	return resolvedHandle(jobResult{err: ErrWorkerPoolClosed})
}

func (p *workerPool) Close() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		close(p.closed)
		close(p.jobs)
	})
	p.wg.Wait()
}

type jobHandle struct {
	result chan jobResult
}

func resolvedHandle(res jobResult) *jobHandle {
	ch := make(chan jobResult, 1)
	ch <- res
	close(ch)
	return &jobHandle{result: ch}
}

func (h *jobHandle) Wait() jobResult {
	if h == nil || h.result == nil {
		return jobResult{}
	}
	res, ok := <-h.result
	if !ok {
		return jobResult{}
	}
	return res
}

func safeSendJob(ch chan jobRequest, job jobRequest) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	ch <- job
	return true
}
