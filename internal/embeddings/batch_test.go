package embeddings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
)

// echoProvider embeds "n" as the one-element vector {n}.
type echoProvider struct {
	mu     sync.Mutex
	calls  int
	failAt string
}

func (p *echoProvider) ModelID() string { return "echo" }
func (p *echoProvider) Dim() int        { return 1 }

func (p *echoProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if t == p.failAt {
			return nil, fmt.Errorf("%w: boom", ErrProviderUnavailable)
		}
		n, err := strconv.Atoi(t)
		if err != nil {
			return nil, err
		}
		out[i] = []float32{float32(n)}
	}
	return out, nil
}

func numbers(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.Itoa(i)
	}
	return out
}

func TestBatched_PreservesOrder(t *testing.T) {
	inner := &echoProvider{}
	b := NewBatched(inner, 7, 4)

	got, err := b.Embed(context.Background(), numbers(100))
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(got) != 100 {
		t.Fatalf("got %d rows", len(got))
	}
	for i, v := range got {
		if v[0] != float32(i) {
			t.Fatalf("row %d = %v", i, v)
		}
	}
	if inner.calls != 15 {
		t.Fatalf("expected 15 batch calls, got %d", inner.calls)
	}
}

func TestBatched_PropagatesFailure(t *testing.T) {
	b := NewBatched(&echoProvider{failAt: "42"}, 10, 2)
	if _, err := b.Embed(context.Background(), numbers(60)); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestCached_ServesRepeatedQueries(t *testing.T) {
	inner := &echoProvider{}
	c := NewCached(inner, 2)
	ctx := context.Background()

	for _, q := range []string{"1", "1", "2", "1"} {
		if _, err := EmbedOne(ctx, c, q); err != nil {
			t.Fatalf("EmbedOne(%s): %v", q, err)
		}
	}
	hits, misses := c.Stats()
	if hits != 2 || misses != 2 {
		t.Fatalf("hits=%d misses=%d", hits, misses)
	}

	// a third distinct entry empties the full cache
	if _, err := EmbedOne(ctx, c, "3"); err != nil {
		t.Fatal(err)
	}
	if _, err := EmbedOne(ctx, c, "1"); err != nil {
		t.Fatal(err)
	}
	if _, misses := c.Stats(); misses != 4 {
		t.Fatalf("expected cache to be cleared, misses=%d", misses)
	}
}

func TestCached_BatchesPassThrough(t *testing.T) {
	inner := &echoProvider{}
	c := NewCached(inner, 10)
	for i := 0; i < 2; i++ {
		if _, err := c.Embed(context.Background(), numbers(3)); err != nil {
			t.Fatal(err)
		}
	}
	if inner.calls != 2 {
		t.Fatalf("batch calls were cached: %d", inner.calls)
	}
}
