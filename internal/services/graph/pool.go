package graph

import (
	"context"
	"sync"
)

// runPool runs tasks on at most workers goroutines and returns the first
// error. Tasks not yet started when an error occurs are skipped.
func runPool(ctx context.Context, workers int, tasks []func(context.Context) error) error {
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	semaphore := make(chan struct{}, workers)

	for _, task := range tasks {
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(run func(context.Context) error) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := run(ctx); err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
			}
		}(task)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}
