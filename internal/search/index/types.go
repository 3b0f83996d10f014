package index

import (
	"fmt"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/chunker"
)

// Artifact file names inside a store directory.
const (
	EmbeddingsFile = "embeddings.f32"
	CorpusFile     = "corpus.jsonl"
	MirrorFile     = "corpus.yaml"
	InfoFile       = "index_info.json"
	SimilarityFile = "similarity.f32"
)

// Info is the index summary written to index_info.json. It is informational;
// Load does not depend on it.
type Info struct {
	IndexVersion        int    `json:"index_version"`
	BuildID             string `json:"build_id"`
	CreatedAt           string `json:"created_at"`
	ModelID             string `json:"model_id"`
	TotalDocuments      int    `json:"total_documents"`
	EmbeddingDimension  int    `json:"embedding_dimension"`
	Normalized          bool   `json:"normalized"`
	HasSimilarityMatrix bool   `json:"has_similarity_matrix"`
}

// Metadata describes one stored chunk. Empty Section or Subsection means the
// label is absent.
type Metadata struct {
	ID            int          `json:"id" yaml:"id"`
	Section       string       `json:"section,omitempty" yaml:"section,omitempty"`
	Subsection    string       `json:"subsection,omitempty" yaml:"subsection,omitempty"`
	Kind          chunker.Kind `json:"kind" yaml:"kind"`
	ContentLength int          `json:"content_length" yaml:"content_length"`
}

// MetadataFor derives the metadata of c.
func MetadataFor(c chunker.Chunk) Metadata {
	return Metadata{
		ID:            c.ID,
		Section:       c.Section,
		Subsection:    c.Subsection,
		Kind:          c.Kind,
		ContentLength: c.ContentLength(),
	}
}

// Matrix is a dense row-major matrix of float32 values.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

// NewMatrix packs rows into a Matrix. All rows must have the same length;
// cols is used as the width when rows is empty.
func NewMatrix(rows [][]float32, cols int) (Matrix, error) {
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	m := Matrix{Rows: len(rows), Cols: cols, Data: make([]float32, 0, len(rows)*cols)}
	for i, r := range rows {
		if len(r) != cols {
			return Matrix{}, fmt.Errorf("%w: row %d has %d values, want %d", ErrVectorLengthMismatch, i, len(r), cols)
		}
		m.Data = append(m.Data, r...)
	}
	return m, nil
}

// Row returns row i as a slice sharing the matrix storage. Callers must not
// modify it.
func (m Matrix) Row(i int) []float32 {
	start := i * m.Cols
	return m.Data[start : start+m.Cols : start+m.Cols]
}

// Corpus is a loaded, immutable vector store: chunk texts, their metadata
// and one embedding row per chunk.
type Corpus struct {
	Texts      []string
	Metadata   []Metadata
	Embeddings Matrix
	ModelID    string
	Info       Info
}

// Len returns the number of stored chunks.
func (c *Corpus) Len() int { return len(c.Texts) }

// Dim returns the embedding dimensionality.
func (c *Corpus) Dim() int { return c.Embeddings.Cols }

// Validate checks the shape invariants shared by every store operation.
func (c *Corpus) Validate() error {
	if c.Embeddings.Cols <= 0 {
		return &IntegrityError{Reason: fmt.Sprintf("embedding dimension must be positive, got %d", c.Embeddings.Cols)}
	}
	if len(c.Texts) != len(c.Metadata) || len(c.Texts) != c.Embeddings.Rows {
		return &IntegrityError{Reason: fmt.Sprintf("shape mismatch: texts=%d metadata=%d embedding rows=%d",
			len(c.Texts), len(c.Metadata), c.Embeddings.Rows)}
	}
	if len(c.Embeddings.Data) != c.Embeddings.Rows*c.Embeddings.Cols {
		return &IntegrityError{Reason: fmt.Sprintf("embedding data has %d values, want %d",
			len(c.Embeddings.Data), c.Embeddings.Rows*c.Embeddings.Cols)}
	}
	if i := firstNonFinite(c.Embeddings.Data); i >= 0 {
		return &IntegrityError{Reason: fmt.Sprintf("embedding row %d holds a non-finite value", i/c.Embeddings.Cols)}
	}
	for i, m := range c.Metadata {
		if m.ID != i {
			return &IntegrityError{Reason: fmt.Sprintf("metadata %d has id %d", i, m.ID)}
		}
		if (m.Kind == chunker.KindSubsection) != (m.Subsection != "") {
			return &IntegrityError{Reason: fmt.Sprintf("metadata %d: kind %q does not match subsection %q", i, m.Kind, m.Subsection)}
		}
	}
	return nil
}
