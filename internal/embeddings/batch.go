package embeddings

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Batched splits large inputs into fixed-size batches and embeds up to
// concurrency batches at a time. Output order always matches input order.
type Batched struct {
	inner       Provider
	batchSize   int
	concurrency int
}

// NewBatched wraps p. Non-positive sizes fall back to 32 texts per batch and
// a single in-flight batch.
func NewBatched(p Provider, batchSize, concurrency int) *Batched {
	if batchSize <= 0 {
		batchSize = 32
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Batched{inner: p, batchSize: batchSize, concurrency: concurrency}
}

func (b *Batched) ModelID() string { return b.inner.ModelID() }

func (b *Batched) Dim() int { return b.inner.Dim() }

func (b *Batched) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) <= b.batchSize {
		return b.embedBatch(ctx, texts)
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for start := 0; start < len(texts); start += b.batchSize {
		start, end := start, min(start+b.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := b.embedBatch(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("batch %d-%d: %w", start, end-1, err)
			}
			// Each goroutine owns a disjoint range of out.
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Batched) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := b.inner.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: provider returned %d embeddings for %d texts", ErrProviderUnavailable, len(vecs), len(texts))
	}
	return vecs, nil
}
