package vision

import "math"

// CosineDistance returns 1 - cos(a, b). Vectors of different length or zero
// norm are maximally distant.
func CosineDistance(a, b Embedding) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 2
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

// Compare returns one comparison per gallery entry, in gallery order.
// An entry matches when its distance is at most threshold.
func Compare(gallery []Embedding, probe Embedding, threshold float32) []Comparison {
	out := make([]Comparison, len(gallery))
	for i, g := range gallery {
		d := CosineDistance(g, probe)
		out[i] = Comparison{Matched: d <= threshold, Distance: d}
	}
	return out
}
