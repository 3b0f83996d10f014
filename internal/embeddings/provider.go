package embeddings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/config"
)

// ErrProviderUnavailable marks failures of the embedding model: it could not
// be initialized or a batch call failed.
var ErrProviderUnavailable = errors.New("embedding provider unavailable")

// Provider embeds a batch of texts into fixed-length float vectors.
//
// Row i of the result corresponds to texts[i]. Implementations must be
// deterministic for the same input text and model.
type Provider interface {
	ModelID() string
	Dim() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Config contains the resolved embeddings configuration.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Dim         int
	BatchSize   int
	Concurrency int
	Timeout     time.Duration
}

// LoadConfig resolves embeddings config from the config file, then lets
// environment variables (process first, then ~/.edgerag/.env) override it.
func LoadConfig(cfg *config.Config) (*Config, error) {
	out := &Config{
		Provider:    cfg.Embeddings.Provider,
		Model:       cfg.Embeddings.Model,
		BaseURL:     cfg.Embeddings.BaseURL,
		Dim:         cfg.Embeddings.Dim,
		BatchSize:   cfg.Embeddings.BatchSize,
		Concurrency: cfg.Embeddings.Concurrency,
		Timeout:     cfg.Embeddings.Timeout,
	}

	overrides := []struct {
		key string
		dst *string
	}{
		{"EDGERAG_EMBEDDINGS_PROVIDER", &out.Provider},
		{"EDGERAG_EMBEDDINGS_MODEL", &out.Model},
		{"EDGERAG_EMBEDDINGS_API_KEY", &out.APIKey},
		{"EDGERAG_EMBEDDINGS_BASE_URL", &out.BaseURL},
	}
	for _, o := range overrides {
		v, err := config.GetConfigValue(o.key)
		if err != nil {
			return nil, err
		}
		if v != "" {
			*o.dst = v
		}
	}
	if out.APIKey == "" {
		v, err := config.GetConfigValue("OPENAI_API_KEY")
		if err != nil {
			return nil, err
		}
		out.APIKey = v
	}
	if out.BaseURL == "" {
		out.BaseURL = "https://api.openai.com/v1"
	}
	if out.BatchSize <= 0 {
		out.BatchSize = 32
	}
	if out.Concurrency <= 0 {
		out.Concurrency = 4
	}
	if out.Timeout <= 0 {
		out.Timeout = 30 * time.Second
	}
	return out, nil
}

// NewFromConfig returns an embeddings provider. Large inputs are split into
// batches of cfg.BatchSize.
func NewFromConfig(cfg *Config) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("embeddings config is nil")
	}
	var p Provider
	switch cfg.Provider {
	case "":
		return nil, fmt.Errorf("%w: provider is not configured (set EDGERAG_EMBEDDINGS_PROVIDER)", ErrProviderUnavailable)
	case "openai":
		op, err := NewOpenAI(cfg)
		if err != nil {
			return nil, err
		}
		p = op
	case "hash":
		p = NewHash(cfg.Dim)
	default:
		return nil, fmt.Errorf("%w: unsupported embeddings provider: %s", ErrProviderUnavailable, cfg.Provider)
	}
	return NewBatched(p, cfg.BatchSize, cfg.Concurrency), nil
}

// EmbedOne embeds a single text as a one-item batch.
func EmbedOne(ctx context.Context, p Provider, text string) ([]float32, error) {
	vecs, err := p.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: expected 1 embedding, got %d", ErrProviderUnavailable, len(vecs))
	}
	return vecs[0], nil
}
