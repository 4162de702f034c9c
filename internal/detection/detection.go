// Package detection defines the detector output model and the filter that
// turns raw detector output into a deduplicated, thresholded set.
package detection

import (
	"context"
	"image"
	"sort"

	"github.com/MeKo-Tech/glean/internal/geometry"
)

// Detection is one box reported by an object detector.
type Detection struct {
	Box        geometry.Rect `json:"box" yaml:"box"`
	Confidence float64       `json:"confidence" yaml:"confidence"`
	// ClassScore is nil when the detector head has no separate class score.
	ClassScore *float64 `json:"class_score,omitempty" yaml:"class_score,omitempty"`
	Class      int      `json:"class" yaml:"class"`
	Label      string   `json:"label,omitempty" yaml:"label,omitempty"`
}

// WithClassScore returns a copy of d carrying the given class score.
func (d Detection) WithClassScore(score float64) Detection {
	d.ClassScore = &score
	return d
}

// Detector produces raw detections for an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, img image.Image) ([]Detection, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	return f(ctx, img)
}

// SortByTop returns a copy of dets ordered top to bottom by Box.MinY.
// Detections at the same height keep their input order.
func SortByTop(dets []Detection) []Detection {
	out := make([]Detection, len(dets))
	copy(out, dets)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Box.MinY < out[j].Box.MinY
	})
	return out
}
