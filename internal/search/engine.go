package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/embeddings"
	"github.com/shiyiawei/EdgeVoiceRAG/internal/search/index"
)

// ErrInvalidQuery reports query parameters rejected before any embedding call.
var ErrInvalidQuery = errors.New("invalid query parameters")

// Default query parameters.
const (
	DefaultTopK      = 5
	DefaultThreshold = 0.5
)

// rows per scoring partition below which scoring stays on one goroutine
const minRowsPerWorker = 2048

// Options configures an Engine.
type Options struct {
	Logger  *slog.Logger
	Metrics *Metrics
	// Workers bounds parallel scoring. Zero means GOMAXPROCS.
	Workers int
	// KeywordFallback answers queries from a keyword index when the
	// embedding provider fails.
	KeywordFallback bool
}

// Engine answers queries against an immutable corpus by exact cosine
// similarity. It is safe for concurrent use.
type Engine struct {
	corpus  *index.Corpus
	prov    embeddings.Provider
	logger  *slog.Logger
	metrics *Metrics
	workers int
	keyword *KeywordIndex
}

// Open loads the store in dir and returns an engine over it.
func Open(dir string, prov embeddings.Provider, opts Options) (*Engine, error) {
	c, err := index.Load(dir)
	if err != nil {
		return nil, err
	}
	return NewEngine(c, prov, opts)
}

// NewEngine returns an engine over c using prov to embed queries.
func NewEngine(c *index.Corpus, prov embeddings.Provider, opts Options) (*Engine, error) {
	if c == nil {
		return nil, fmt.Errorf("corpus is required")
	}
	if prov == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "search")

	if d := prov.Dim(); d > 0 && d != c.Dim() {
		return nil, fmt.Errorf("%w: provider %s embeds %d dims, store has %d", index.ErrVectorLengthMismatch, prov.ModelID(), d, c.Dim())
	}
	if prov.ModelID() != c.ModelID {
		logger.Warn("query model differs from store model", "provider", prov.ModelID(), "store", c.ModelID)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	e := &Engine{
		corpus:  c,
		prov:    prov,
		logger:  logger,
		metrics: opts.Metrics,
		workers: workers,
	}
	if opts.KeywordFallback {
		k, err := NewKeywordIndex(c)
		if err != nil {
			return nil, err
		}
		e.keyword = k
	}
	return e, nil
}

// Corpus returns the corpus the engine searches.
func (e *Engine) Corpus() *index.Corpus { return e.corpus }

// Statistics aggregates the engine's corpus.
func (e *Engine) Statistics() Stats { return Statistics(e.corpus) }

// Close releases the keyword index, if any.
func (e *Engine) Close() error {
	if e.keyword == nil {
		return nil
	}
	return e.keyword.Close()
}

// Search embeds query and returns at most topK chunks whose cosine
// similarity is at least threshold, best first. Ties are broken by ascending
// chunk ID. The cut to topK happens before the threshold filter, so fewer
// than topK results may come back even when more chunks pass the threshold.
func (e *Engine) Search(ctx context.Context, query string, topK int, threshold float64) ([]Result, error) {
	start := time.Now()
	query = norm.NFC.String(strings.TrimSpace(query))
	if err := validate(topK, threshold); err != nil {
		e.metrics.observe(outcomeInvalid, start, 0)
		return nil, err
	}
	if query == "" {
		e.metrics.observe(outcomeInvalid, start, 0)
		return nil, fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}
	if e.corpus.Len() == 0 {
		e.metrics.observe(outcomeOK, start, 0)
		return []Result{}, nil
	}

	vec, err := embeddings.EmbedOne(ctx, e.prov, query)
	if err == nil && !index.Finite(vec) {
		err = fmt.Errorf("%w: query embedding holds non-finite values", embeddings.ErrProviderUnavailable)
	}
	if err != nil {
		if e.keyword != nil {
			e.logger.Warn("query embedding failed, using keyword fallback", "err", err)
			out, kerr := e.keyword.Search(query, topK)
			if kerr == nil {
				e.metrics.observe(outcomeFallback, start, len(out))
				return out, nil
			}
			e.logger.Error("keyword fallback failed", "err", kerr)
		}
		e.metrics.observe(outcomeError, start, 0)
		return nil, fmt.Errorf("cannot embed query: %w", err)
	}

	out, err := e.rank(ctx, vec, topK, threshold)
	if err != nil {
		e.metrics.observe(outcomeError, start, 0)
		return nil, err
	}
	e.metrics.observe(outcomeOK, start, len(out))
	e.logger.Debug("query answered", "results", len(out), "elapsed", time.Since(start))
	return out, nil
}

// SearchVector ranks the corpus against an already embedded query.
func (e *Engine) SearchVector(ctx context.Context, vec []float32, topK int, threshold float64) ([]Result, error) {
	if err := validate(topK, threshold); err != nil {
		return nil, err
	}
	if !index.Finite(vec) {
		return nil, fmt.Errorf("%w: query vector holds non-finite values", ErrInvalidQuery)
	}
	if e.corpus.Len() == 0 {
		return []Result{}, nil
	}
	return e.rank(ctx, vec, topK, threshold)
}

func validate(topK int, threshold float64) error {
	if topK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidQuery, topK)
	}
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return fmt.Errorf("%w: threshold must be finite, got %v", ErrInvalidQuery, threshold)
	}
	return nil
}

func (e *Engine) rank(ctx context.Context, vec []float32, topK int, threshold float64) ([]Result, error) {
	if len(vec) != e.corpus.Dim() {
		return nil, fmt.Errorf("%w: query has %d dims, store has %d", index.ErrVectorLengthMismatch, len(vec), e.corpus.Dim())
	}
	scores, err := e.score(ctx, vec)
	if err != nil {
		return nil, err
	}

	ranked := make([]Result, len(scores))
	for i, s := range scores {
		ranked[i] = Result{ChunkID: i, Score: s}
	}
	SortResults(ranked)
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	out := make([]Result, 0, len(ranked))
	for _, r := range ranked {
		if !(r.Score >= threshold) {
			continue
		}
		r.Text = e.corpus.Texts[r.ChunkID]
		r.Metadata = e.corpus.Metadata[r.ChunkID]
		r.Why = whySemantic
		out = append(out, r)
	}
	return out, nil
}

// score computes the cosine similarity of vec against every row. Large
// corpora are split into contiguous row ranges scored in parallel; each
// worker writes only its own range.
func (e *Engine) score(ctx context.Context, vec []float32) ([]float64, error) {
	n := e.corpus.Len()
	scores := make([]float64, n)

	parts := n / minRowsPerWorker
	if parts > e.workers {
		parts = e.workers
	}
	if parts <= 1 {
		return scores, scoreRange(e.corpus, vec, scores, 0, n)
	}

	g, ctx := errgroup.WithContext(ctx)
	step := (n + parts - 1) / parts
	for lo := 0; lo < n; lo += step {
		lo, hi := lo, min(lo+step, n)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return scoreRange(e.corpus, vec, scores, lo, hi)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func scoreRange(c *index.Corpus, vec []float32, scores []float64, lo, hi int) error {
	for i := lo; i < hi; i++ {
		s, err := index.Cosine(vec, c.Embeddings.Row(i))
		if err != nil {
			return err
		}
		scores[i] = s
	}
	return nil
}
