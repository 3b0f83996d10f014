package index

// SimilarityMatrix computes the symmetric N×N cosine similarity matrix of
// the corpus embeddings. It costs O(N²·D) time and N²·4 bytes of memory.
func SimilarityMatrix(c *Corpus) (Matrix, error) {
	n := c.Len()
	m := Matrix{Rows: n, Cols: n, Data: make([]float32, n*n)}
	for i := 0; i < n; i++ {
		m.Data[i*n+i] = selfSimilarity(c.Embeddings.Row(i))
		for j := i + 1; j < n; j++ {
			s, err := Cosine(c.Embeddings.Row(i), c.Embeddings.Row(j))
			if err != nil {
				return Matrix{}, err
			}
			m.Data[i*n+j] = float32(s)
			m.Data[j*n+i] = float32(s)
		}
	}
	return m, nil
}

// zero vectors are not similar to anything, themselves included
func selfSimilarity(v []float32) float32 {
	if Norm(v) == 0 {
		return 0
	}
	return 1
}
