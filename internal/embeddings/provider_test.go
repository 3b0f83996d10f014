package embeddings

import (
	"errors"
	"testing"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/config"
)

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv("EDGERAG_HOME", t.TempDir())
	t.Setenv("EDGERAG_EMBEDDINGS_PROVIDER", "openai")
	t.Setenv("EDGERAG_EMBEDDINGS_MODEL", "text-embedding-3-small")
	t.Setenv("EDGERAG_EMBEDDINGS_API_KEY", "")
	t.Setenv("EDGERAG_EMBEDDINGS_BASE_URL", "")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")

	cfg, err := config.DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	ec, err := LoadConfig(cfg)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if ec.Provider != "openai" || ec.Model != "text-embedding-3-small" {
		t.Fatalf("overrides not applied: %+v", ec)
	}
	if ec.APIKey != "sk-fallback" {
		t.Fatalf("api key fallback: %q", ec.APIKey)
	}
	if ec.BaseURL != "https://api.openai.com/v1" {
		t.Fatalf("base url default: %q", ec.BaseURL)
	}

	p, err := NewFromConfig(ec)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if p.Dim() != 1536 {
		t.Fatalf("known model dim: %d", p.Dim())
	}
}

func TestNewFromConfig(t *testing.T) {
	p, err := NewFromConfig(&Config{Provider: "hash", Dim: 32})
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if p.Dim() != 32 || p.ModelID() != "hash:32" {
		t.Fatalf("dim=%d model=%s", p.Dim(), p.ModelID())
	}

	for _, name := range []string{"", "word2vec"} {
		if _, err := NewFromConfig(&Config{Provider: name}); !errors.Is(err, ErrProviderUnavailable) {
			t.Fatalf("provider %q: expected ErrProviderUnavailable, got %v", name, err)
		}
	}
}
