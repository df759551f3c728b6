// Package parallel provides the two forms of parallelism used by scigam:
// chunked row ranges for basis evaluation and a bounded worker pool with a
// completion barrier for smoothing-parameter candidates.
package parallel

import (
	"context"
	"runtime"
	"sync"
)

// Parallelize splits [0, items) into one contiguous range per CPU core and
// runs fn on each range concurrently. It returns when every range is done.
func Parallelize(items int, fn func(start, end int)) {
	if items <= 0 {
		return
	}

	numWorkers := min(runtime.NumCPU(), items)
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for start := 0; start < items; start += chunkSize {
		end := min(start+chunkSize, items)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelizeWithThreshold runs fn sequentially over the whole range when
// items <= threshold and falls back to Parallelize otherwise.
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// Workers normalises a requested worker count: non-positive means one per
// CPU core, and there are never more workers than tasks.
func Workers(requested, tasks int) int {
	if requested <= 0 {
		requested = runtime.NumCPU()
	}
	return max(1, min(requested, tasks))
}

// ForEach calls fn(ctx, i) for every i in [0, n) on a pool of at most
// workers goroutines and waits for all started calls to finish.
//
// fn must only write to state owned by index i; callers typically preallocate
// one result slot per index. Cancellation is observed between tasks: indices
// not yet started when ctx is done are skipped and ForEach returns ctx.Err().
func ForEach(ctx context.Context, n, workers int, fn func(ctx context.Context, i int)) error {
	if n <= 0 {
		return ctx.Err()
	}
	workers = Workers(workers, n)

	tasks := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range tasks {
				if ctx.Err() != nil {
					continue
				}
				fn(ctx, i)
			}
		}()
	}

feed:
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			break feed
		case tasks <- i:
		}
	}
	close(tasks)
	wg.Wait()

	return ctx.Err()
}
