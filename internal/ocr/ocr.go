// Package ocr wraps text recognition engines behind a small interface and
// adapts them to per-region extraction.
package ocr

import (
	"context"
	"errors"
	"image"

	"github.com/MeKo-Tech/glean/internal/geometry"
)

// ErrRecognitionUnavailable wraps every failure of the underlying engine.
var ErrRecognitionUnavailable = errors.New("recognition unavailable")

// Segment is one piece of recognized text. Box is relative to the image
// passed to Recognize.
type Segment struct {
	Box  geometry.Rect
	Text string
	// Confidence is in [0, 1], nil when the engine does not report one.
	Confidence *float64
}

// Options controls a single recognition call.
type Options struct {
	// Language is an engine language code such as "eng".
	Language string
	// Paragraph requests pre-merged text blocks instead of single words.
	Paragraph bool
}

// Recognizer turns an image into text segments.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, opts Options) ([]Segment, error)
}

// RecognizerFunc adapts a function to the Recognizer interface.
type RecognizerFunc func(ctx context.Context, img image.Image, opts Options) ([]Segment, error)

// Recognize calls f.
func (f RecognizerFunc) Recognize(ctx context.Context, img image.Image, opts Options) ([]Segment, error) {
	return f(ctx, img, opts)
}

func confidencePtr(v float64) *float64 { return &v }
