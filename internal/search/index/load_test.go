package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/chunker"
	"github.com/shiyiawei/EdgeVoiceRAG/internal/embeddings"
)

const testManual = "## Engine\nCheck oil weekly.\n### Oil\nUse 5W-30.\n## Brakes\nInspect pads.\n"

func buildTestCorpus(t *testing.T) *Corpus {
	t.Helper()
	chunks, err := chunker.ParseString(testManual)
	if err != nil {
		t.Fatalf("ParseString: %v", err)
	}
	c, err := Build(context.Background(), embeddings.NewHash(16), chunks, BuildOptions{Normalize: true})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return c
}

func TestInstallLoad_RoundTrip(t *testing.T) {
	c := buildTestCorpus(t)
	dest := filepath.Join(t.TempDir(), "vector_db")
	info, err := Install(context.Background(), dest, c, WriteOptions{Similarity: true})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if c.Info.TotalDocuments != 0 || c.Info.HasSimilarityMatrix {
		t.Fatalf("Install modified the corpus info: %+v", c.Info)
	}

	got, err := Load(dest)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got.Texts, c.Texts) {
		t.Fatalf("texts differ:\n%q\n%q", got.Texts, c.Texts)
	}
	if !reflect.DeepEqual(got.Metadata, c.Metadata) {
		t.Fatalf("metadata differ:\n%+v\n%+v", got.Metadata, c.Metadata)
	}
	if got.Embeddings.Rows != 3 || got.Embeddings.Cols != 16 {
		t.Fatalf("unexpected shape %dx%d", got.Embeddings.Rows, got.Embeddings.Cols)
	}
	if !reflect.DeepEqual(got.Embeddings.Data, c.Embeddings.Data) {
		t.Fatalf("embedding values differ")
	}
	if got.ModelID != "hash:16" {
		t.Fatalf("model id: %q", got.ModelID)
	}
	if got.Info.BuildID == "" || got.Info.TotalDocuments != 3 || !got.Info.Normalized || !got.Info.HasSimilarityMatrix {
		t.Fatalf("unexpected info: %+v", got.Info)
	}
	if got.Info != info {
		t.Fatalf("stored info %+v differs from returned %+v", got.Info, info)
	}
	if _, err := os.Stat(filepath.Join(dest, MirrorFile)); err != nil {
		t.Fatalf("mirror missing: %v", err)
	}
}

func TestBuild_TextsAreEmbeddingUnits(t *testing.T) {
	c := buildTestCorpus(t)
	want := []string{
		"Section: Engine | Check oil weekly.",
		"Section: Engine | Subsection: Oil | Use 5W-30.",
		"Section: Brakes | Inspect pads.",
	}
	if !reflect.DeepEqual(c.Texts, want) {
		t.Fatalf("texts:\n%q\nwant\n%q", c.Texts, want)
	}
	if c.Metadata[1].Kind != chunker.KindSubsection || c.Metadata[1].ContentLength != len("Use 5W-30.") {
		t.Fatalf("metadata[1]: %+v", c.Metadata[1])
	}
}

func TestLoad_MissingStore(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope")); !errors.Is(err, ErrStoreNotFound) {
		t.Fatalf("expected ErrStoreNotFound, got %v", err)
	}

	dir := t.TempDir()
	if _, err := Write(dir, buildTestCorpus(t), WriteOptions{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, CorpusFile)); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); !errors.Is(err, ErrStoreNotFound) {
		t.Fatalf("expected ErrStoreNotFound for missing corpus, got %v", err)
	}
}

func TestLoad_IntegrityErrors(t *testing.T) {
	cases := []struct {
		name   string
		damage func(t *testing.T, dir string)
	}{
		{"extra embedding row", func(t *testing.T, dir string) {
			m := Matrix{Rows: 4, Cols: 16, Data: make([]float32, 64)}
			if err := writeMatrix(filepath.Join(dir, EmbeddingsFile), m); err != nil {
				t.Fatal(err)
			}
		}},
		{"truncated embeddings", func(t *testing.T, dir string) {
			p := filepath.Join(dir, EmbeddingsFile)
			st, err := os.Stat(p)
			if err != nil {
				t.Fatal(err)
			}
			if err := os.Truncate(p, st.Size()-4); err != nil {
				t.Fatal(err)
			}
		}},
		{"zero dimension", func(t *testing.T, dir string) {
			if err := writeMatrix(filepath.Join(dir, EmbeddingsFile), Matrix{Rows: 3}); err != nil {
				t.Fatal(err)
			}
		}},
		{"edited text", func(t *testing.T, dir string) {
			p := filepath.Join(dir, CorpusFile)
			b, err := os.ReadFile(p)
			if err != nil {
				t.Fatal(err)
			}
			b = []byte(strings.Replace(string(b), "Inspect pads.", "Inspect rotors.", 1))
			if err := os.WriteFile(p, b, 0o644); err != nil {
				t.Fatal(err)
			}
		}},
		{"dropped record", func(t *testing.T, dir string) {
			p := filepath.Join(dir, CorpusFile)
			b, err := os.ReadFile(p)
			if err != nil {
				t.Fatal(err)
			}
			lines := strings.SplitAfter(string(b), "\n")
			if err := os.WriteFile(p, []byte(strings.Join(lines[:len(lines)-2], "")), 0o644); err != nil {
				t.Fatal(err)
			}
		}},
		{"non-finite embedding", func(t *testing.T, dir string) {
			m := Matrix{Rows: 3, Cols: 16, Data: make([]float32, 48)}
			m.Data[17] = float32(math.NaN())
			if err := writeMatrix(filepath.Join(dir, EmbeddingsFile), m); err != nil {
				t.Fatal(err)
			}
		}},
		{"bad magic", func(t *testing.T, dir string) {
			p := filepath.Join(dir, EmbeddingsFile)
			b, err := os.ReadFile(p)
			if err != nil {
				t.Fatal(err)
			}
			copy(b, "NOPE")
			if err := os.WriteFile(p, b, 0o644); err != nil {
				t.Fatal(err)
			}
		}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dir := t.TempDir()
			if _, err := Write(dir, buildTestCorpus(t), WriteOptions{}); err != nil {
				t.Fatalf("Write: %v", err)
			}
			c.damage(t, dir)
			_, err := Load(dir)
			var ie *IntegrityError
			if !errors.As(err, &ie) {
				t.Fatalf("expected IntegrityError, got %v", err)
			}
		})
	}
}

func TestInstall_ReplacesExistingStore(t *testing.T) {
	parent := t.TempDir()
	dest := filepath.Join(parent, "vector_db")
	if _, err := Install(context.Background(), dest, buildTestCorpus(t), WriteOptions{}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	chunks, err := chunker.ParseString("## Lights\nHeadlamps auto.\n")
	if err != nil {
		t.Fatal(err)
	}
	next, err := Build(context.Background(), embeddings.NewHash(8), chunks, BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := Install(context.Background(), dest, next, WriteOptions{}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	got, err := Load(dest)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Len() != 1 || got.Dim() != 8 {
		t.Fatalf("store not replaced: len=%d dim=%d", got.Len(), got.Dim())
	}

	entries, err := os.ReadDir(parent)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "vector_db" && e.Name() != "vector_db.lock" {
			t.Fatalf("leftover entry after install: %s", e.Name())
		}
	}
}

func TestWrite_SimilarityMatrix(t *testing.T) {
	dir := t.TempDir()
	c := buildTestCorpus(t)
	if _, err := Write(dir, c, WriteOptions{Similarity: true}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	sim, err := LoadSimilarity(dir)
	if err != nil {
		t.Fatalf("LoadSimilarity: %v", err)
	}
	if sim.Rows != 3 || sim.Cols != 3 {
		t.Fatalf("shape %dx%d", sim.Rows, sim.Cols)
	}
	for i := 0; i < 3; i++ {
		if sim.Row(i)[i] < 0.999 {
			t.Fatalf("diagonal %d = %v", i, sim.Row(i)[i])
		}
		for j := 0; j < 3; j++ {
			if sim.Row(i)[j] != sim.Row(j)[i] {
				t.Fatalf("matrix not symmetric at %d,%d", i, j)
			}
		}
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Info.HasSimilarityMatrix {
		t.Fatalf("info does not report similarity matrix")
	}
}

func TestWrite_SimilaritySkippedAboveLimit(t *testing.T) {
	dir := t.TempDir()
	if _, err := Write(dir, buildTestCorpus(t), WriteOptions{Similarity: true, MaxSimilarityRows: 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := LoadSimilarity(dir); !errors.Is(err, ErrStoreNotFound) {
		t.Fatalf("expected no similarity matrix, got %v", err)
	}
}

type failingProvider struct{}

func (failingProvider) ModelID() string { return "failing" }
func (failingProvider) Dim() int        { return 4 }
func (failingProvider) Embed(context.Context, []string) ([][]float32, error) {
	return nil, embeddings.ErrProviderUnavailable
}

func TestBuild_ProviderFailure(t *testing.T) {
	chunks, err := chunker.ParseString(testManual)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Build(context.Background(), failingProvider{}, chunks, BuildOptions{}); !errors.Is(err, embeddings.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestBuild_EmptyCorpus(t *testing.T) {
	c, err := Build(context.Background(), embeddings.NewHash(4), nil, BuildOptions{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	dir := t.TempDir()
	if _, err := Write(dir, c, WriteOptions{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Len() != 0 || got.Dim() != 4 {
		t.Fatalf("len=%d dim=%d", got.Len(), got.Dim())
	}
}

type nanProvider struct{}

func (nanProvider) ModelID() string { return "nan" }
func (nanProvider) Dim() int        { return 2 }
func (nanProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	out[len(out)-1] = []float32{float32(math.Inf(1)), 0}
	return out, nil
}

func TestBuild_RejectsNonFiniteEmbeddings(t *testing.T) {
	chunks, err := chunker.ParseString(testManual)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Build(context.Background(), nanProvider{}, chunks, BuildOptions{})
	var ie *IntegrityError
	if !errors.As(err, &ie) {
		t.Fatalf("expected IntegrityError, got %v", err)
	}

	c := buildTestCorpus(t)
	c.Embeddings.Data[3] = float32(math.NaN())
	dest := filepath.Join(t.TempDir(), "vector_db")
	if _, err := Install(context.Background(), dest, c, WriteOptions{}); !errors.As(err, &ie) {
		t.Fatalf("Install accepted a NaN embedding: %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("store should not exist after a rejected install: %v", err)
	}
}

func setLockTimeout(t *testing.T, d time.Duration) {
	t.Helper()
	prev := LockTimeout
	LockTimeout = d
	t.Cleanup(func() { LockTimeout = prev })
}

func TestInstall_WaitsForReaders(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "vector_db")
	if _, err := Install(context.Background(), dest, buildTestCorpus(t), WriteOptions{}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	reader := flock.New(LockPath(dest))
	locked, err := reader.TryRLock()
	if err != nil || !locked {
		t.Fatalf("TryRLock: locked=%v err=%v", locked, err)
	}

	setLockTimeout(t, 300*time.Millisecond)
	if _, err := Install(context.Background(), dest, buildTestCorpus(t), WriteOptions{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected lock timeout while a reader holds the store, got %v", err)
	}

	setLockTimeout(t, 5*time.Second)
	const hold = 300 * time.Millisecond
	go func() {
		time.Sleep(hold)
		_ = reader.Unlock()
	}()
	start := time.Now()
	if _, err := Install(context.Background(), dest, buildTestCorpus(t), WriteOptions{}); err != nil {
		t.Fatalf("Install after reader released: %v", err)
	}
	if elapsed := time.Since(start); elapsed < hold {
		t.Fatalf("Install did not wait for the reader: %s", elapsed)
	}
	if _, err := Load(dest); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestLoad_WaitsForInstall(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "vector_db")
	if _, err := Install(context.Background(), dest, buildTestCorpus(t), WriteOptions{}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	writer := flock.New(LockPath(dest))
	locked, err := writer.TryLock()
	if err != nil || !locked {
		t.Fatalf("TryLock: locked=%v err=%v", locked, err)
	}
	defer func() { _ = writer.Unlock() }()

	setLockTimeout(t, 300*time.Millisecond)
	if _, err := Load(dest); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected lock timeout while the store is rebuilt, got %v", err)
	}
}

func TestLoad_ConcurrentReaders(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "vector_db")
	if _, err := Install(context.Background(), dest, buildTestCorpus(t), WriteOptions{}); err != nil {
		t.Fatalf("Install: %v", err)
	}
	setLockTimeout(t, 5*time.Second)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := Load(dest)
			if err == nil && c.Len() != 3 {
				err = fmt.Errorf("loaded %d chunks", c.Len())
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Load: %v", err)
		}
	}
}
