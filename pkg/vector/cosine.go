package vector

import "math"

// Cosine returns the cosine similarity of two vectors in [-1, 1], or 0 when
// either vector is empty, zero, or the lengths differ. The engine uses this
// both for the in-memory driver and for scoring candidates against memories
// mutated earlier in the same job, before they reach the index.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
