package search

import (
	"fmt"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/search/index"
)

// Neighbors returns the n chunks most similar to chunk id, excluding id
// itself. When sim is non-nil it must be the corpus similarity matrix and is
// read instead of recomputing cosines.
func Neighbors(c *index.Corpus, sim *index.Matrix, id, n int) ([]Result, error) {
	if id < 0 || id >= c.Len() {
		return nil, fmt.Errorf("%w: chunk %d out of range [0, %d)", ErrInvalidQuery, id, c.Len())
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: neighbor count must be positive, got %d", ErrInvalidQuery, n)
	}
	if sim != nil && (sim.Rows != c.Len() || sim.Cols != c.Len()) {
		return nil, &index.IntegrityError{Reason: fmt.Sprintf("similarity matrix is %dx%d for %d chunks", sim.Rows, sim.Cols, c.Len())}
	}

	out := make([]Result, 0, c.Len()-1)
	for j := 0; j < c.Len(); j++ {
		if j == id {
			continue
		}
		var s float64
		if sim != nil {
			s = float64(sim.Row(id)[j])
		} else {
			var err error
			s, err = index.Cosine(c.Embeddings.Row(id), c.Embeddings.Row(j))
			if err != nil {
				return nil, err
			}
		}
		out = append(out, Result{ChunkID: j, Text: c.Texts[j], Metadata: c.Metadata[j], Score: s, Why: whySemantic})
	}
	SortResults(out)
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}
