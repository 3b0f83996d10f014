package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultHashDim is the vector width of the hash provider when none is set.
const DefaultHashDim = 256

// HashProvider is a deterministic, offline embedder based on feature hashing.
//
// Latin words are hashed whole; runs of Han characters are hashed as
// overlapping bigrams so that Chinese manuals get useful overlap without a
// segmenter. Vectors are L2-normalized; text without tokens maps to the zero
// vector.
type HashProvider struct {
	dim int
}

// NewHash returns a HashProvider producing vectors of width dim.
func NewHash(dim int) *HashProvider {
	if dim <= 0 {
		dim = DefaultHashDim
	}
	return &HashProvider{dim: dim}
}

func (h *HashProvider) ModelID() string { return fmt.Sprintf("hash:%d", h.dim) }

func (h *HashProvider) Dim() int { return h.dim }

func (h *HashProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashProvider) vector(text string) []float32 {
	v := make([]float32, h.dim)
	for _, tok := range hashTokens(text) {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dim))
		if sum&(1<<63) != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	var norm2 float64
	for _, x := range v {
		norm2 += float64(x) * float64(x)
	}
	if norm2 == 0 {
		return v
	}
	inv := float32(1 / math.Sqrt(norm2))
	for i := range v {
		v[i] *= inv
	}
	return v
}

func hashTokens(text string) []string {
	text = strings.ToLower(norm.NFKC.String(text))

	var (
		toks []string
		word []rune
		han  []rune
	)
	flushWord := func() {
		if len(word) > 0 {
			toks = append(toks, string(word))
			word = word[:0]
		}
	}
	flushHan := func() {
		switch len(han) {
		case 0:
		case 1:
			toks = append(toks, string(han))
		default:
			for i := 0; i+1 < len(han); i++ {
				toks = append(toks, string(han[i:i+2]))
			}
		}
		han = han[:0]
	}
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Han, r):
			flushWord()
			han = append(han, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushHan()
			word = append(word, r)
		default:
			flushWord()
			flushHan()
		}
	}
	flushWord()
	flushHan()
	return toks
}
