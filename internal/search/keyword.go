package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve"

	"github.com/shiyiawei/EdgeVoiceRAG/internal/search/index"
)

// KeywordIndex is an in-memory full-text index over corpus texts, used when
// the query cannot be embedded.
type KeywordIndex struct {
	corpus *index.Corpus
	bleve  bleve.Index
}

type keywordDoc struct {
	Text string `json:"text"`
}

// NewKeywordIndex indexes every text of c.
func NewKeywordIndex(c *index.Corpus) (*KeywordIndex, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("cannot create keyword index: %w", err)
	}
	batch := idx.NewBatch()
	for i, text := range c.Texts {
		if err := batch.Index(strconv.Itoa(i), keywordDoc{Text: text}); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("cannot index chunk %d: %w", i, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("cannot build keyword index: %w", err)
	}
	return &KeywordIndex{corpus: c, bleve: idx}, nil
}

// Search runs a match query and returns at most limit results, ranked by
// relevance then chunk ID. Scores are bleve relevance divided by the best
// hit's, so they fall in (0, 1] with the top result at 1. They are not cosine
// similarities.
func (k *KeywordIndex) Search(query string, limit int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 || k.corpus.Len() == 0 {
		return []Result{}, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), limit, 0, false)
	res, err := k.bleve.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	top := res.MaxScore
	if top <= 0 {
		top = 1
	}
	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.Atoi(hit.ID)
		if err != nil || id < 0 || id >= k.corpus.Len() {
			continue
		}
		out = append(out, Result{
			ChunkID:  id,
			Text:     k.corpus.Texts[id],
			Metadata: k.corpus.Metadata[id],
			Score:    min(hit.Score/top, 1),
			Why:      whyKeyword,
		})
	}
	SortResults(out)
	return out, nil
}

// Close releases the index.
func (k *KeywordIndex) Close() error {
	return k.bleve.Close()
}
