package roles

import (
	"image"
	"strings"

	"github.com/MeKo-Tech/glean/internal/detection"
)

// PlatePolicy tags every region as a plate and keeps detector order.
type PlatePolicy struct{}

// Order returns dets unchanged.
func (PlatePolicy) Order(dets []detection.Detection) []detection.Detection { return dets }

// Classify always returns RolePlate.
func (PlatePolicy) Classify(detection.Detection, image.Rectangle) Role { return RolePlate }

// Assemble joins the non-empty plate texts, one per line.
func (PlatePolicy) Assemble(frags []Fragment) Summary {
	lines := make([]string, 0, len(frags))
	for _, f := range frags {
		if s := strings.TrimSpace(f.Text); s != "" {
			lines = append(lines, s)
		}
	}
	return Summary{Text: strings.Join(lines, "\n")}
}
