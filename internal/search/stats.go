package search

import (
	"sort"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/search/index"
)

// Stats summarizes a loaded corpus.
type Stats struct {
	TotalDocuments      int      `json:"total_documents"`
	EmbeddingDimension  int      `json:"embedding_dimension"`
	TotalSections       int      `json:"total_sections"`
	TotalSubsections    int      `json:"total_subsections"`
	Sections            []string `json:"sections"`
	HasSimilarityMatrix bool     `json:"has_similarity_matrix"`
	ModelID             string   `json:"model_id"`
}

// Statistics aggregates c. It only reads c and is safe for concurrent use.
func Statistics(c *index.Corpus) Stats {
	sections := map[string]struct{}{}
	subsections := map[string]struct{}{}
	for _, m := range c.Metadata {
		if m.Section != "" {
			sections[m.Section] = struct{}{}
		}
		if m.Subsection != "" {
			subsections[m.Subsection] = struct{}{}
		}
	}
	names := make([]string, 0, len(sections))
	for s := range sections {
		names = append(names, s)
	}
	sort.Strings(names)

	return Stats{
		TotalDocuments:      c.Len(),
		EmbeddingDimension:  c.Dim(),
		TotalSections:       len(sections),
		TotalSubsections:    len(subsections),
		Sections:            names,
		HasSimilarityMatrix: c.Info.HasSimilarityMatrix,
		ModelID:             c.ModelID,
	}
}
