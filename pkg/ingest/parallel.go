package ingest

import (
	"context"
	"fmt"
	"sync"
)

// ParallelProcess runs fn over items on a bounded worker pool, collecting
// failures instead of stopping at the first one. Directory ingestion uses
// it to fan file parsing out across workers.
func ParallelProcess[T any](ctx context.Context, items []T, fn func(context.Context, T) error, maxWorkers int) error {
	if len(items) == 0 {
		return nil
	}

	workers := maxWorkers
	if workers <= 0 {
		workers = 5
	}
	if len(items) < workers {
		workers = len(items)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs []error

	ch := make(chan T, len(items))

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case item, ok := <-ch:
					if !ok {
						return
					}
					if err := fn(ctx, item); err != nil {
						mu.Lock()
						errs = append(errs, err)
						mu.Unlock()
					}
				}
			}
		}()
	}

	for _, item := range items {
		select {
		case <-ctx.Done():
			close(ch)
			wg.Wait()
			return ctx.Err()
		case ch <- item:
		}
	}
	close(ch)

	wg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("parallel processing had %d errors: %v", len(errs), errs[0])
	}

	return nil
}
