package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/MeKo-Tech/glean/internal/assembler"
	"github.com/MeKo-Tech/glean/internal/geometry"
	"github.com/disintegration/imaging"
)

// JoinMode selects how the segments of one recognition call become text.
type JoinMode int

const (
	// JoinConcat concatenates segment texts in the order the engine returned them.
	JoinConcat JoinMode = iota
	// JoinLines regroups segments into lines by position.
	JoinLines
)

func (m JoinMode) String() string {
	switch m {
	case JoinConcat:
		return "concat"
	case JoinLines:
		return "lines"
	default:
		return fmt.Sprintf("join(%d)", int(m))
	}
}

// ParseJoinMode parses "concat" or "lines".
func ParseJoinMode(s string) (JoinMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "concat", "":
		return JoinConcat, nil
	case "lines":
		return JoinLines, nil
	default:
		return JoinConcat, fmt.Errorf("unknown join mode %q", s)
	}
}

// Extraction is the text obtained for one region.
type Extraction struct {
	Text       string
	Confidence *float64
	// Segments carry boxes in the coordinates of the full image.
	Segments []Segment
	// Degenerate is set when the region had no pixels and OCR was skipped.
	Degenerate bool
}

// Empty reports whether the extraction produced no usable text.
func (e Extraction) Empty() bool { return strings.TrimSpace(e.Text) == "" }

// Extractor crops regions and runs a Recognizer over them, in paragraph
// mode unless WordMode is set.
type Extractor struct {
	Recognizer Recognizer
	Language   string
	Join       JoinMode
	WordMode   bool
	// Scale upsamples crops before recognition when greater than 1.
	Scale float64
	// ToleranceDivisor is passed to the line assembler for JoinLines.
	ToleranceDivisor float64
}

// Extract returns the text inside rect. Regions without pixels yield an
// empty, degenerate extraction and never reach the engine.
func (e *Extractor) Extract(ctx context.Context, img image.Image, rect geometry.Rect) (Extraction, error) {
	crop, ok := geometry.Crop(img, rect)
	if !ok {
		slog.Debug("Skipping degenerate region", "rect", rect.String())
		return Extraction{Degenerate: true}, nil
	}
	origin := crop.Bounds().Min
	offset := rect.ToImageRect(img.Bounds()).Min
	return e.recognize(ctx, crop, e.Join, func(b geometry.Rect) geometry.Rect {
		return b.Translate(float64(offset.X-origin.X), float64(offset.Y-origin.Y))
	})
}

// Page recognizes the whole image and regroups the result into lines.
func (e *Extractor) Page(ctx context.Context, img image.Image) (Extraction, error) {
	if img == nil || img.Bounds().Empty() {
		return Extraction{Degenerate: true}, nil
	}
	return e.recognize(ctx, img, JoinLines, func(b geometry.Rect) geometry.Rect { return b })
}

func (e *Extractor) recognize(
	ctx context.Context, img image.Image, join JoinMode, toImage func(geometry.Rect) geometry.Rect,
) (Extraction, error) {
	if e.Recognizer == nil {
		return Extraction{}, fmt.Errorf("%w: no recognizer configured", ErrRecognitionUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}

	start := time.Now()
	input := img
	scale := 1.0
	if e.Scale > 1 {
		scale = e.Scale
		b := img.Bounds()
		input = imaging.Resize(img, int(float64(b.Dx())*scale), int(float64(b.Dy())*scale), imaging.Lanczos)
	}

	segs, err := e.Recognizer.Recognize(ctx, input, Options{Language: e.Language, Paragraph: !e.WordMode})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Extraction{}, err
		}
		if errors.Is(err, ErrRecognitionUnavailable) {
			return Extraction{}, err
		}
		return Extraction{}, fmt.Errorf("%w: %w", ErrRecognitionUnavailable, err)
	}

	out := make([]Segment, 0, len(segs))
	var confidences []float64
	for _, s := range segs {
		if scale != 1 {
			s.Box = s.Box.Scale(1/scale, 1/scale)
		}
		s.Box = toImage(s.Box)
		out = append(out, s)
		if s.Confidence != nil {
			confidences = append(confidences, *s.Confidence)
		}
	}

	text := joinSegments(out, join, e.ToleranceDivisor)
	slog.Debug("Region recognized",
		"segments", len(out),
		"join", join.String(),
		"duration_ms", time.Since(start).Milliseconds())

	return Extraction{
		Text:       text,
		Confidence: assembler.MeanConfidence(confidences),
		Segments:   out,
	}, nil
}

func joinSegments(segs []Segment, join JoinMode, divisor float64) string {
	if join == JoinLines {
		frags := make([]assembler.Fragment, 0, len(segs))
		for _, s := range segs {
			frags = append(frags, assembler.Fragment{
				XMin: s.Box.MinX,
				YMin: s.Box.MinY,
				YMax: s.Box.MaxY,
				Text: s.Text,
			})
		}
		return strings.TrimRight(assembler.AssembleWith(frags, divisor), "\n")
	}
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(strings.TrimSpace(s.Text))
	}
	return b.String()
}
