package assembler

// MeanConfidence returns the arithmetic mean of values, or nil when there
// are none.
func MeanConfidence(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	return &mean
}
