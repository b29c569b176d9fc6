package ranking

import "math"

// CosineSimilarity returns dot(a, b) / (|a| * |b|) in [-1, 1]. It returns 0
// when the lengths differ, either vector has zero magnitude, or the result
// is not a number.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	// Rounding can push parallel vectors just past 1.
	return math.Max(-1, math.Min(1, s))
}
