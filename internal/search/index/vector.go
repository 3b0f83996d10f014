package index

import "math"

// Cosine computes cosine similarity between two vectors of equal length.
// It is 0 when either vector has zero norm; the result is clamped to [-1, 1].
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrVectorLengthMismatch
	}
	var dot float64
	var na float64
	var nb float64
	for i := 0; i < len(a); i++ {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	den := math.Sqrt(na) * math.Sqrt(nb)
	if den == 0 {
		return 0, nil
	}
	return clamp(dot / den), nil
}

// Finite reports whether v holds neither NaN nor infinite values.
func Finite(v []float32) bool { return firstNonFinite(v) < 0 }

func firstNonFinite(v []float32) int {
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i
		}
	}
	return -1
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// NormalizeL2 returns a new vector normalized to unit L2 norm.
func NormalizeL2(v []float32) []float32 {
	n := Norm(v)
	out := make([]float32, len(v))
	if n == 0 {
		copy(out, v)
		return out
	}
	inv := float32(1.0 / n)
	for i := range v {
		out[i] = v[i] * inv
	}
	return out
}

func clamp(s float64) float64 {
	switch {
	case s > 1:
		return 1
	case s < -1:
		return -1
	}
	return s
}
