package index

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/chunker"
	"github.com/shiyiawei/EdgeVoiceRAG/internal/embeddings"
)

// BuildOptions controls corpus building.
type BuildOptions struct {
	Normalize bool
	Logger    *slog.Logger
}

// Build embeds chunks with prov and returns the resulting corpus. Texts hold
// the embedding unit of each chunk, in chunk order.
//
// A single Embed call is made for all units; wrap prov with
// embeddings.NewBatched to split large inputs.
func Build(ctx context.Context, prov embeddings.Provider, chunks []chunker.Chunk, opts BuildOptions) (*Corpus, error) {
	if prov == nil {
		return nil, fmt.Errorf("embedding provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "index")

	texts := make([]string, len(chunks))
	meta := make([]Metadata, len(chunks))
	for i, c := range chunks {
		if c.ID != i {
			return nil, fmt.Errorf("chunk %d has id %d, want ids in emission order", i, c.ID)
		}
		texts[i] = EmbeddingUnit(c)
		meta[i] = MetadataFor(c)
	}

	var rows [][]float32
	if len(texts) > 0 {
		start := time.Now()
		var err error
		rows, err = prov.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("cannot embed %d chunks: %w", len(texts), err)
		}
		if len(rows) != len(texts) {
			return nil, fmt.Errorf("%w: provider returned %d vectors for %d texts", embeddings.ErrProviderUnavailable, len(rows), len(texts))
		}
		logger.Debug("chunks embedded", "count", len(texts), "elapsed", time.Since(start))
	}
	if opts.Normalize {
		for i, r := range rows {
			rows[i] = NormalizeL2(r)
		}
	}

	emb, err := NewMatrix(rows, prov.Dim())
	if err != nil {
		return nil, fmt.Errorf("embedding dim changed mid-run: %w", err)
	}
	if emb.Cols <= 0 {
		return nil, fmt.Errorf("provider %s reports no embedding dimension", prov.ModelID())
	}

	c := &Corpus{
		Texts:      texts,
		Metadata:   meta,
		Embeddings: emb,
		ModelID:    prov.ModelID(),
		Info: Info{
			IndexVersion: indexVersion,
			BuildID:      uuid.NewString(),
			CreatedAt:    time.Now().UTC().Format(time.RFC3339),
			Normalized:   opts.Normalize,
		},
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	logger.Info("corpus built", "chunks", c.Len(), "dim", c.Dim(), "model", c.ModelID, "build_id", c.Info.BuildID)
	return c, nil
}

// Install publishes c as the store at dest and returns the index info it
// recorded. Artifacts are written into a sibling temporary directory and
// swapped into place while holding the exclusive store lock, so readers see
// either the old store or the new one.
func Install(ctx context.Context, dest string, c *Corpus, opts WriteOptions) (Info, error) {
	parent := filepath.Dir(filepath.Clean(dest))
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return Info{}, fmt.Errorf("cannot create store parent %s: %w", parent, err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, LockTimeout)
	defer cancel()
	unlock, err := lockStoreContext(lockCtx, dest, false)
	if err != nil {
		return Info{}, err
	}
	defer unlock()

	tmpDir, err := os.MkdirTemp(parent, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return Info{}, fmt.Errorf("cannot create temp store dir: %w", err)
	}
	info, err := Write(tmpDir, c, opts)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return Info{}, err
	}
	if err := ctx.Err(); err != nil {
		_ = os.RemoveAll(tmpDir)
		return Info{}, err
	}
	if err := AtomicSwap(tmpDir, dest); err != nil {
		_ = os.RemoveAll(tmpDir)
		return Info{}, fmt.Errorf("cannot install store at %s: %w", dest, err)
	}
	return info, nil
}

// AtomicSwap replaces destDir with srcDir by renaming. The previous store is
// moved aside first and restored if the final rename fails.
func AtomicSwap(srcDir, destDir string) error {
	parent := filepath.Dir(destDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}
	backup := destDir + ".bak"
	_ = cleanupBackup(backup)
	if _, err := os.Stat(destDir); err == nil {
		if err := os.Rename(destDir, backup); err != nil {
			return err
		}
	}
	if err := os.Rename(srcDir, destDir); err != nil {
		// rollback best-effort
		if _, stErr := os.Stat(backup); stErr == nil {
			_ = os.Rename(backup, destDir)
		}
		return err
	}
	_ = cleanupBackup(backup)
	return nil
}
