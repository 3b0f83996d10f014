package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/search/index"
)

const testManual = `Vehicle manual v2
## Engine
Check the oil level every week.
### Oil
Use 5W-30 synthetic oil.
## Brakes
Inspect the brake pads every 10000 km.
### Fluid
Replace brake fluid every two years.
`

func setupCLI(t *testing.T) (home, manual string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("EDGERAG_HOME", home)
	t.Setenv("EDGERAG_EMBEDDINGS_PROVIDER", "hash")
	t.Setenv("EDGERAG_EMBEDDINGS_MODEL", "")
	flagStoreDir = ""
	manual = filepath.Join(t.TempDir(), "manual.txt")
	if err := os.WriteFile(manual, []byte(testManual), 0o644); err != nil {
		t.Fatal(err)
	}
	return home, manual
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestCLI_BuildSearchStatsExport(t *testing.T) {
	home, manual := setupCLI(t)

	if err := execute(t, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := execute(t, "build", manual, "--similarity"); err != nil {
		t.Fatalf("build: %v", err)
	}

	corpus, err := index.Load(filepath.Join(home, "vector_db"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if corpus.Len() != 4 {
		t.Fatalf("expected 4 chunks, got %d", corpus.Len())
	}
	if !corpus.Info.HasSimilarityMatrix {
		t.Fatalf("similarity matrix missing")
	}

	if err := execute(t, "search", "brake", "fluid", "--k", "2", "--threshold", "-1"); err != nil {
		t.Fatalf("search: %v", err)
	}
	if err := execute(t, "stats", "--json"); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if err := execute(t, "inspect", "1", "--neighbors", "2"); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	out := filepath.Join(t.TempDir(), "manual.db")
	if err := execute(t, "export", "--sqlite", out); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("export file: %v", err)
	}
}

func TestCLI_SearchWithoutStore(t *testing.T) {
	setupCLI(t)
	err := execute(t, "search", "oil")
	if !errors.Is(err, index.ErrStoreNotFound) {
		t.Fatalf("expected ErrStoreNotFound, got %v", err)
	}
}

func TestCLI_InvalidTopK(t *testing.T) {
	_, manual := setupCLI(t)
	if err := execute(t, "build", manual); err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := execute(t, "search", "oil", "--k", "0"); err == nil {
		t.Fatalf("expected error for --k 0")
	}
}
