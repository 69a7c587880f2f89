package common

// Mean returns the arithmetic mean of input, or 0 for an empty slice.
func Mean(input []float64) float64 {
	if len(input) == 0 {
		return 0
	}
	var sum float64
	for _, v := range input {
		sum += v
	}
	return sum / float64(len(input))
}
