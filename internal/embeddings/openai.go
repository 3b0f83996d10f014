package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type openAIProvider struct {
	client *openai.Client
	model  string
	dim    atomic.Int64
}

// known output widths, used before the first response arrives.
var openAIDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// NewOpenAI constructs an OpenAI-compatible embeddings provider.
func NewOpenAI(cfg *Config) (Provider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embeddings model is not configured (set EDGERAG_EMBEDDINGS_MODEL)", ErrProviderUnavailable)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: embeddings API key is not configured (set EDGERAG_EMBEDDINGS_API_KEY)", ErrProviderUnavailable)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	dim := cfg.Dim
	if dim <= 0 {
		dim = openAIDims[cfg.Model]
	}
	p := &openAIProvider{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
	}
	p.dim.Store(int64(dim))
	return p, nil
}

func (p *openAIProvider) ModelID() string {
	return "openai:" + p.model
}

func (p *openAIProvider) Dim() int {
	return int(p.dim.Load())
}

func (p *openAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("cannot embed empty text at position %d", i)
		}
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: embeddings response has %d rows for %d inputs", ErrProviderUnavailable, len(resp.Data), len(texts))
	}

	// The API reports each row's input position; do not rely on response order.
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) || out[d.Index] != nil {
			return nil, fmt.Errorf("%w: embeddings response has bad index %d", ErrProviderUnavailable, d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: embeddings response missing embedding", ErrProviderUnavailable)
		}
		out[d.Index] = d.Embedding
	}
	p.dim.Store(int64(len(out[0])))
	return out, nil
}
