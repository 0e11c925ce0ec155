package tensor

// DotProduct returns the dot product of a and b over the shorter length.
func DotProduct(a, b []float32) float32 {
	n := min(len(a), len(b))

	var sum float32
	for i := range n {
		sum += a[i] * b[i]
	}

	return sum
}
