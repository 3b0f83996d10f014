package index

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	corpusFormat = "edgerag-corpus"
	indexVersion = 1
)

// FormatVersion is the version of the corpus.jsonl layout written by Write.
const FormatVersion = 1

// DefaultMaxSimilarityRows caps the optional similarity matrix. The matrix
// holds N*N float32 values, so 4096 rows cost 64 MiB on disk and in memory.
const DefaultMaxSimilarityRows = 4096

// WriteOptions controls which optional artifacts Write produces.
type WriteOptions struct {
	// Similarity requests the N×N chunk similarity matrix. It is skipped
	// when the corpus has more than MaxSimilarityRows chunks.
	Similarity bool
	// MaxSimilarityRows defaults to DefaultMaxSimilarityRows when zero.
	MaxSimilarityRows int
	Logger            *slog.Logger
}

type corpusHeader struct {
	Format  string `json:"format"`
	Version int    `json:"version"`
	ModelID string `json:"model_id"`
	Count   int    `json:"count"`
	Dim     int    `json:"dim"`
}

type corpusRecord struct {
	Metadata
	Text     string `json:"text"`
	TextHash string `json:"text_hash"`
}

type corpusMirror struct {
	ModelID        string     `yaml:"model_id"`
	EmbeddingShape [2]int     `yaml:"embedding_shape,flow"`
	Texts          []string   `yaml:"texts"`
	Metadata       []Metadata `yaml:"metadata"`
}

// Write writes every store artifact for c into dir and returns the index
// info it recorded. c is not modified. The directory is expected to be
// private to the caller; use Install to publish a store.
func Write(dir string, c *Corpus, opts WriteOptions) (Info, error) {
	if err := c.Validate(); err != nil {
		return Info{}, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("cannot create store dir %s: %w", dir, err)
	}

	if err := writeMatrix(filepath.Join(dir, EmbeddingsFile), c.Embeddings); err != nil {
		return Info{}, err
	}
	if err := writeCorpus(filepath.Join(dir, CorpusFile), c); err != nil {
		return Info{}, err
	}
	if err := writeMirror(filepath.Join(dir, MirrorFile), c); err != nil {
		return Info{}, err
	}

	info := c.Info
	info.HasSimilarityMatrix = false
	if opts.Similarity {
		limit := opts.MaxSimilarityRows
		if limit <= 0 {
			limit = DefaultMaxSimilarityRows
		}
		if c.Len() > limit {
			logger.Warn("similarity matrix skipped", "chunks", c.Len(), "max_rows", limit)
		} else {
			sim, err := SimilarityMatrix(c)
			if err != nil {
				return Info{}, err
			}
			if err := writeMatrix(filepath.Join(dir, SimilarityFile), sim); err != nil {
				return Info{}, err
			}
			info.HasSimilarityMatrix = true
		}
	}

	if info.IndexVersion == 0 {
		info.IndexVersion = indexVersion
	}
	if info.CreatedAt == "" {
		info.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	info.ModelID = c.ModelID
	info.TotalDocuments = c.Len()
	info.EmbeddingDimension = c.Dim()
	ib, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return Info{}, err
	}
	if err := os.WriteFile(filepath.Join(dir, InfoFile), ib, 0o644); err != nil {
		return Info{}, fmt.Errorf("cannot write index info: %w", err)
	}

	logger.Debug("store written", "dir", dir, "chunks", c.Len(), "dim", c.Dim())
	return info, nil
}

func writeCorpus(path string, c *Corpus) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create corpus file: %w", err)
	}
	bw := bufio.NewWriter(f)
	if err := encodeCorpus(bw, c); err != nil {
		_ = f.Close()
		return fmt.Errorf("cannot write corpus file: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func encodeCorpus(w io.Writer, c *Corpus) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	h := corpusHeader{
		Format:  corpusFormat,
		Version: FormatVersion,
		ModelID: c.ModelID,
		Count:   c.Len(),
		Dim:     c.Dim(),
	}
	if err := enc.Encode(h); err != nil {
		return err
	}
	for i, text := range c.Texts {
		rec := corpusRecord{Metadata: c.Metadata[i], Text: text, TextHash: TextHash(text)}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

func writeMirror(path string, c *Corpus) error {
	m := corpusMirror{
		ModelID:        c.ModelID,
		EmbeddingShape: [2]int{c.Embeddings.Rows, c.Embeddings.Cols},
		Texts:          c.Texts,
		Metadata:       c.Metadata,
	}
	b, err := yaml.Marshal(&m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("cannot write corpus mirror: %w", err)
	}
	return nil
}
