package search

import "github.com/shiyiawei/EdgeVoiceRAG/internal/search/index"

// Result is one ranked chunk returned for a query.
type Result struct {
	ChunkID  int            `json:"chunk_id"`
	Text     string         `json:"text"`
	Metadata index.Metadata `json:"metadata"`
	// Score is the cosine similarity in [-1, 1] when Why is "semantic", and
	// the relevance relative to the best keyword hit, in (0, 1], when Why is
	// "keyword".
	Score float64 `json:"score"`
	Why   string  `json:"why"`
}

const (
	whySemantic = "semantic"
	whyKeyword  = "keyword"
)
