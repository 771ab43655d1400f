package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
)

func emitN(n int) func(context.Context, func(chunk) error) error {
	return func(ctx context.Context, emit func(chunk) error) error {
		for i := range n {
			if err := emit(chunk{index: i, rows: [][]string{{"v"}}}); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestProcessChunksCommitsEveryChunkOnce(t *testing.T) {
	var committed []int
	err := processChunks(context.Background(), 4, emitN(50),
		func(c chunk) ([][]string, error) { return c.rows, nil },
		func(_ context.Context, c chunk) error {
			committed = append(committed, c.index)
			return nil
		},
	)
	if err != nil {
		t.Fatalf("processChunks: %v", err)
	}
	sort.Ints(committed)
	if len(committed) != 50 {
		t.Fatalf("committed %d chunks want 50", len(committed))
	}
	for i, idx := range committed {
		if idx != i {
			t.Fatalf("chunk %d committed out of set: %v", i, committed)
		}
	}
}

func TestProcessChunksStopsOnTransformError(t *testing.T) {
	boom := errors.New("boom")
	var commits atomic.Int32
	err := processChunks(context.Background(), 2, emitN(1000),
		func(c chunk) ([][]string, error) {
			if c.index == 3 {
				return nil, boom
			}
			return c.rows, nil
		},
		func(context.Context, chunk) error {
			commits.Add(1)
			return nil
		},
	)
	if !errors.Is(err, boom) {
		t.Fatalf("expected transform error, got %v", err)
	}
	if commits.Load() >= 1000 {
		t.Fatal("error did not stop the pool")
	}
}

func TestProcessChunksStopsOnCommitError(t *testing.T) {
	boom := errors.New("disk full")
	err := processChunks(context.Background(), 0, emitN(100),
		func(c chunk) ([][]string, error) { return c.rows, nil },
		func(context.Context, chunk) error { return boom },
	)
	if !errors.Is(err, boom) {
		t.Fatalf("expected commit error, got %v", err)
	}
}

func TestProcessChunksHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := processChunks(ctx, 2, emitN(100),
		func(c chunk) ([][]string, error) { return c.rows, nil },
		func(ctx context.Context, c chunk) error { return ctx.Err() },
	)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
