package detection

import (
	"errors"
	"fmt"
	"sort"

	"github.com/MeKo-Tech/glean/internal/geometry"
)

// FilterConfig holds the thresholds applied by Filter.
type FilterConfig struct {
	// ConfidenceThreshold drops detections whose confidence is not strictly greater.
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" yaml:"confidence_threshold" json:"confidence_threshold"`
	// ClassScoreThreshold drops detections whose class score, when present, is not strictly greater.
	ClassScoreThreshold float64 `mapstructure:"class_score_threshold" yaml:"class_score_threshold" json:"class_score_threshold"`
	// NMSIoUThreshold suppresses a box overlapping a kept box at or above this IoU.
	NMSIoUThreshold float64 `mapstructure:"nms_iou_threshold" yaml:"nms_iou_threshold" json:"nms_iou_threshold"`
	// NMSScoreThreshold excludes candidates below this confidence from NMS.
	NMSScoreThreshold float64 `mapstructure:"nms_score_threshold" yaml:"nms_score_threshold" json:"nms_score_threshold"`
}

// DefaultFilterConfig returns the thresholds used by the plate and message models.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		ConfidenceThreshold: 0.4,
		ClassScoreThreshold: 0.25,
		NMSIoUThreshold:     0.45,
		NMSScoreThreshold:   0.25,
	}
}

// Validate checks that every threshold is within [0, 1].
func (c FilterConfig) Validate() error {
	checks := []struct {
		name  string
		value float64
	}{
		{"confidence_threshold", c.ConfidenceThreshold},
		{"class_score_threshold", c.ClassScoreThreshold},
		{"nms_iou_threshold", c.NMSIoUThreshold},
		{"nms_score_threshold", c.NMSScoreThreshold},
	}
	var errs []error
	for _, ch := range checks {
		if ch.value < 0 || ch.value > 1 {
			errs = append(errs, fmt.Errorf("%s must be between 0 and 1, got %f", ch.name, ch.value))
		}
	}
	return errors.Join(errs...)
}

// Filter applies confidence thresholds and greedy non-maximum suppression.
//
// Survivors are returned in selection order, highest confidence first. The
// input slice is not modified. Filtering an already filtered set returns it
// unchanged.
func Filter(dets []Detection, cfg FilterConfig) []Detection {
	candidates := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if !(d.Confidence > cfg.ConfidenceThreshold) {
			continue
		}
		if d.ClassScore != nil && !(*d.ClassScore > cfg.ClassScoreThreshold) {
			continue
		}
		// IoU is undefined for zero-area boxes.
		if d.Box.IsDegenerate() {
			continue
		}
		if d.Confidence < cfg.NMSScoreThreshold {
			continue
		}
		candidates = append(candidates, d)
	}
	return NonMaxSuppression(candidates, cfg.NMSIoUThreshold)
}

// NonMaxSuppression keeps the highest-confidence box of every overlapping
// cluster. A box is suppressed when its IoU with an already kept box is at
// least iouThreshold. Ties in confidence keep input order.
func NonMaxSuppression(dets []Detection, iouThreshold float64) []Detection {
	if len(dets) == 0 {
		return []Detection{}
	}

	indices := make([]int, len(dets))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return dets[indices[i]].Confidence > dets[indices[j]].Confidence
	})

	suppressed := make([]bool, len(dets))
	kept := make([]Detection, 0, len(dets))
	for pos, a := range indices {
		if suppressed[a] {
			continue
		}
		kept = append(kept, dets[a])
		for _, b := range indices[pos+1:] {
			if suppressed[b] {
				continue
			}
			if geometry.IoU(dets[a].Box, dets[b].Box) >= iouThreshold {
				suppressed[b] = true
			}
		}
	}
	return kept
}
