package pipeline

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

type chunk struct {
	index int
	rows  [][]string
}

// processChunks runs one producer, workers transformers and a single
// committer. The first error cancels the others and is returned. Commits
// happen in completion order; each chunk is keyed by its index.
func processChunks(
	ctx context.Context,
	workers int,
	produce func(ctx context.Context, emit func(chunk) error) error,
	transform func(chunk) ([][]string, error),
	commit func(ctx context.Context, c chunk) error,
) error {
	workers = max(workers, 1)
	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan chunk, workers)
	results := make(chan chunk, workers)

	g.Go(func() error {
		defer close(jobs)
		return produce(gctx, func(c chunk) error {
			select {
			case jobs <- c:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		g.Go(func() error {
			defer wg.Done()
			for c := range jobs {
				rows, err := transform(c)
				if err != nil {
					return fmt.Errorf("chunk %d: %w", c.index, err)
				}
				select {
				case results <- chunk{index: c.index, rows: rows}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	g.Go(func() error {
		for c := range results {
			if err := commit(gctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	return g.Wait()
}
