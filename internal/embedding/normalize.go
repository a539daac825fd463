package embedding

import "math"

// NormalizeL2Slice scales x in place to unit L2 norm. The cosine-space
// index assumes every stored and query vector has length one; a zero
// vector is left untouched.
func NormalizeL2Slice(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range x {
		x[i] *= inv
	}
}
