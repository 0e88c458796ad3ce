package embedding

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool bounds CPU-bound embedding work across all callers.
type Pool struct {
	sem *semaphore.Weighted
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size))}
}

// Map runs fn over texts in parts of partSize and reassembles the results in order.
// Waiting for a slot gives up as soon as ctx is done.
func (p *Pool) Map(ctx context.Context, texts []string, partSize int, fn func(context.Context, []string) ([][]float32, error)) ([][]float32, error) {
	parts := batches(texts, partSize)
	results := make([][][]float32, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	for i, part := range parts {
		if err := p.sem.Acquire(gctx, 1); err != nil {
			// a failed part cancels gctx; report that failure rather than the cancellation
			if werr := g.Wait(); werr != nil {
				return nil, werr
			}
			return nil, err
		}
		g.Go(func() error {
			defer p.sem.Release(1)
			if err := gctx.Err(); err != nil {
				return err
			}
			vecs, err := fn(gctx, part)
			if err != nil {
				return err
			}
			results[i] = vecs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}
