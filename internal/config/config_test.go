package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("EDGERAG_HOME", home)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreDir != filepath.Join(home, "vector_db") {
		t.Fatalf("unexpected store dir: %q", cfg.StoreDir)
	}
	if cfg.Search.TopK != 5 || cfg.Search.Threshold != 0.5 {
		t.Fatalf("unexpected search defaults: %+v", cfg.Search)
	}
	if cfg.Embeddings.Provider != "hash" {
		t.Fatalf("unexpected provider default: %q", cfg.Embeddings.Provider)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("EDGERAG_HOME", home)

	body := "store_dir: /tmp/manual-db\n" +
		"search:\n  top_k: 3\n  threshold: 0.25\n  keyword_fallback: true\n" +
		"embeddings:\n  provider: openai\n  model: text-embedding-3-small\n  timeout: 5s\n"
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreDir != "/tmp/manual-db" {
		t.Fatalf("store dir: %q", cfg.StoreDir)
	}
	if cfg.Search.TopK != 3 || cfg.Search.Threshold != 0.25 || !cfg.Search.KeywordFallback {
		t.Fatalf("search: %+v", cfg.Search)
	}
	if cfg.Embeddings.Provider != "openai" || cfg.Embeddings.Timeout != 5*time.Second {
		t.Fatalf("embeddings: %+v", cfg.Embeddings)
	}
	// untouched fields keep their defaults
	if cfg.Embeddings.BatchSize != 32 {
		t.Fatalf("batch size default lost: %d", cfg.Embeddings.BatchSize)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"bad yaml", "search: [\n"},
		{"zero top_k", "search:\n  top_k: 0\n"},
		{"threshold range", "search:\n  threshold: 1.5\n"},
		{"empty store", "store_dir: \"\"\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			home := t.TempDir()
			t.Setenv("EDGERAG_HOME", home)
			if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(c.body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	home := filepath.Join(t.TempDir(), "fresh")
	t.Setenv("EDGERAG_HOME", home)

	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Search.TopK = 9
	cfg.Build.Similarity = true
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Search.TopK != 9 || !got.Build.Similarity {
		t.Fatalf("round trip lost values: %+v", got)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	got, err := ExpandPath("~/x")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "x") {
		t.Fatalf("ExpandPath: %q", got)
	}
	if got, _ := ExpandPath("/abs"); got != "/abs" {
		t.Fatalf("ExpandPath changed absolute path: %q", got)
	}
}
