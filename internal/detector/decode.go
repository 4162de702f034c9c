package detector

import (
	"fmt"

	"github.com/MeKo-Tech/glean/internal/detection"
	"github.com/MeKo-Tech/glean/internal/geometry"
)

// Frame maps model input coordinates back to source image pixels.
type Frame struct {
	// ScaleX and ScaleY are source width / input width and source height / input height.
	ScaleX, ScaleY float64
	// OffsetX and OffsetY are the source image bounds origin.
	OffsetX, OffsetY float64
}

// Decode converts a raw output tensor into detections in source image
// coordinates. Candidates at or below cfg.ScoreFloor are dropped.
func Decode(data []float32, shape []int64, cfg Config, frame Frame) ([]detection.Detection, error) {
	if len(shape) != 3 || shape[0] != 1 {
		return nil, fmt.Errorf("expected output shape [1, a, b], got %v", shape)
	}
	a, b := int(shape[1]), int(shape[2])
	if len(data) != a*b {
		return nil, fmt.Errorf("output length %d does not match shape %v", len(data), shape)
	}
	switch cfg.Layout {
	case LayoutRows:
		return decodeRows(data, a, b, cfg, frame)
	case LayoutColumns:
		return decodeColumns(data, a, b, cfg, frame)
	default:
		return nil, fmt.Errorf("unknown output layout %q", cfg.Layout)
	}
}

// decodeRows handles [1, N, 5+C]. Boxes are emitted as left/top/width/height.
func decodeRows(data []float32, n, stride int, cfg Config, frame Frame) ([]detection.Detection, error) {
	if stride < 6 {
		return nil, fmt.Errorf("row layout needs at least 6 values per row, got %d", stride)
	}
	out := make([]detection.Detection, 0, 16)
	for i := range n {
		row := data[i*stride : (i+1)*stride]
		conf := float64(row[4])
		if conf <= cfg.ScoreFloor {
			continue
		}
		class, score := argmax(row[5:])

		cx, cy, w, h := float64(row[0]), float64(row[1]), float64(row[2]), float64(row[3])
		left := (cx - 0.5*w) * frame.ScaleX
		top := (cy - 0.5*h) * frame.ScaleY
		box := geometry.FromXYWH(left, top, w*frame.ScaleX, h*frame.ScaleY).Translate(frame.OffsetX, frame.OffsetY)

		d := detection.Detection{Box: box, Confidence: conf, Class: class, Label: cfg.label(class)}
		out = append(out, d.WithClassScore(score))
	}
	return out, nil
}

// decodeColumns handles [1, 4+C, N]. Boxes are emitted as corner pairs.
func decodeColumns(data []float32, channels, n int, cfg Config, frame Frame) ([]detection.Detection, error) {
	if channels < 5 {
		return nil, fmt.Errorf("column layout needs at least 5 channels, got %d", channels)
	}
	scores := make([]float32, channels-4)
	out := make([]detection.Detection, 0, 16)
	for i := range n {
		for c := range scores {
			scores[c] = data[(4+c)*n+i]
		}
		class, conf := argmax(scores)
		if conf <= cfg.ScoreFloor {
			continue
		}

		cx, cy := float64(data[i]), float64(data[n+i])
		w, h := float64(data[2*n+i]), float64(data[3*n+i])
		box := geometry.FromXYXY(
			(cx-w/2)*frame.ScaleX, (cy-h/2)*frame.ScaleY,
			(cx+w/2)*frame.ScaleX, (cy+h/2)*frame.ScaleY,
		).Translate(frame.OffsetX, frame.OffsetY)

		out = append(out, detection.Detection{Box: box, Confidence: conf, Class: class, Label: cfg.label(class)})
	}
	return out, nil
}

func argmax(v []float32) (int, float64) {
	best, idx := float32(0), 0
	for i, s := range v {
		if i == 0 || s > best {
			best, idx = s, i
		}
	}
	return idx, float64(best)
}
