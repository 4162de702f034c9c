package geometry

import "math"

// IoU returns the intersection-over-union of two boxes in [0, 1].
// Degenerate boxes never overlap anything and yield 0.
func IoU(a, b Rect) float64 {
	if a.IsDegenerate() || b.IsDegenerate() {
		return 0
	}

	left := math.Max(a.MinX, b.MinX)
	top := math.Max(a.MinY, b.MinY)
	right := math.Min(a.MaxX, b.MaxX)
	bottom := math.Min(a.MaxY, b.MaxY)

	if left >= right || top >= bottom {
		return 0
	}

	intersection := (right - left) * (bottom - top)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}

	return intersection / union
}
