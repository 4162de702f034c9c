package detection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/MeKo-Tech/glean/internal/geometry"
)

// Record is the serialized form of a detection, as written by external
// detector tooling. Exactly one of XYWH or XYXY must be set.
type Record struct {
	XYWH       []float64 `json:"xywh,omitempty"`
	XYXY       []float64 `json:"xyxy,omitempty"`
	Confidence float64   `json:"confidence"`
	ClassScore *float64  `json:"class_score,omitempty"`
	Class      int       `json:"class"`
	Label      string    `json:"label,omitempty"`
}

// ToDetection normalizes the record's box convention.
func (r Record) ToDetection() (Detection, error) {
	var box geometry.Rect
	switch {
	case len(r.XYWH) == 4 && len(r.XYXY) == 0:
		box = geometry.FromXYWH(r.XYWH[0], r.XYWH[1], r.XYWH[2], r.XYWH[3])
	case len(r.XYXY) == 4 && len(r.XYWH) == 0:
		box = geometry.FromXYXY(r.XYXY[0], r.XYXY[1], r.XYXY[2], r.XYXY[3])
	default:
		return Detection{}, errors.New("record needs exactly one of xywh or xyxy with 4 values")
	}
	return Detection{
		Box:        box,
		Confidence: r.Confidence,
		ClassScore: r.ClassScore,
		Class:      r.Class,
		Label:      r.Label,
	}, nil
}

// Static is a Detector returning a fixed set of detections for every image.
type Static []Detection

// Detect returns a copy of the fixed detections.
func (s Static) Detect(ctx context.Context, _ image.Image) ([]Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Detection, len(s))
	copy(out, s)
	return out, nil
}

// Decode reads a JSON array of records.
func Decode(r io.Reader) (Static, error) {
	var records []Record
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode detections: %w", err)
	}
	out := make(Static, 0, len(records))
	for i, rec := range records {
		d, err := rec.ToDetection()
		if err != nil {
			return nil, fmt.Errorf("detection %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// LoadFile reads pre-computed detections from a JSON file.
func LoadFile(path string) (Static, error) {
	f, err := os.Open(path) //nolint:gosec // G304: detections path is user supplied
	if err != nil {
		return nil, fmt.Errorf("failed to open detections file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}
