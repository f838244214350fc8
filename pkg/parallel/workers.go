// Package parallel provides the worker-pool abstraction that runs indexed
// phase tasks. A task is dispatched once per worker index; workers share no
// state beyond what the task itself partitions by index.
package parallel

import (
	"context"
	"runtime"
	"sync"
)

// IndexedTask is a unit of work executed once per worker index. Work must
// touch only state owned by its index; the pool provides no synchronization
// beyond the final join.
type IndexedTask interface {
	Work(ctx context.Context, workerID int)
}

// TaskFunc adapts a plain function to IndexedTask.
type TaskFunc func(ctx context.Context, workerID int)

// Work implements IndexedTask.
func (f TaskFunc) Work(ctx context.Context, workerID int) { f(ctx, workerID) }

// Workers is a fixed-size pool of workers for indexed task dispatch.
type Workers struct {
	maxWorkers int
}

// NewWorkers creates a pool with the given maximum worker count. A count
// below one defaults to the number of processors.
func NewWorkers(maxWorkers int) *Workers {
	if maxWorkers < 1 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}
	return &Workers{maxWorkers: maxWorkers}
}

// MaxWorkers returns the pool's maximum concurrency degree.
func (w *Workers) MaxWorkers() int {
	return w.maxWorkers
}

// Run dispatches degree invocations of task with worker indices
// [0, degree) and waits for all of them. degree is clamped to the pool
// maximum; degree 1 runs inline on the caller.
func (w *Workers) Run(ctx context.Context, task IndexedTask, degree int) {
	if degree > w.maxWorkers {
		degree = w.maxWorkers
	}
	if degree <= 1 {
		task.Work(ctx, 0)
		return
	}

	var wg sync.WaitGroup
	for i := 0; i < degree; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			task.Work(ctx, workerID)
		}(i)
	}
	wg.Wait()
}

// RunFunc is a convenience wrapper around Run for plain functions.
func (w *Workers) RunFunc(ctx context.Context, degree int, fn func(ctx context.Context, workerID int)) {
	w.Run(ctx, TaskFunc(fn), degree)
}
