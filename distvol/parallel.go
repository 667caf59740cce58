package distvol

import (
	"context"
	"sync"
)

// forBatches calls fn over [0,n) split into ranges of at most batch items,
// from the given number of worker goroutines fed by a channel. It returns
// once all handed out ranges are done. ctx is checked before each range is
// handed out, so on cancellation some ranges are never processed and
// ctx.Err() is returned. done, if not nil, is called after each range
// with the number of items processed; calls may be concurrent.
func forBatches(ctx context.Context, workers, n, batch int, fn func(lo, hi int), done func(int)) error {
	if n == 0 {
		return ctx.Err()
	}
	workers = max(1, min(workers, (n+batch-1)/batch))
	batches := make(chan [2]int, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for b := range batches {
				if ctx.Err() != nil {
					// Drain without working so the producer never blocks.
					continue
				}
				fn(b[0], b[1])
				if done != nil {
					done(b[1] - b[0])
				}
			}
		}()
	}
	var err error
produce:
	for lo := 0; lo < n; lo += batch {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break produce
		case batches <- [2]int{lo, min(lo+batch, n)}:
		}
	}
	close(batches)
	wg.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return err
}
