package testutil

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"

	"github.com/MeKo-Tech/glean/internal/geometry"
	"github.com/MeKo-Tech/glean/internal/ocr"
)

// ErrEngineFailure is returned for sizes marked with Fail.
var ErrEngineFailure = errors.New("fake engine failure")

// LookupRecognizer is an ocr.Recognizer answering by input size. Texts
// containing newlines come back as one segment per line, stacked top to
// bottom.
type LookupRecognizer struct {
	mu         sync.Mutex
	texts      map[image.Point]string
	fail       map[image.Point]bool
	confidence *float64
	calls      []image.Point
	options    []ocr.Options
	closed     bool
}

// NewLookupRecognizer returns an empty recognizer; unknown sizes read as no text.
func NewLookupRecognizer() *LookupRecognizer {
	return &LookupRecognizer{texts: make(map[image.Point]string), fail: make(map[image.Point]bool)}
}

// Set answers text for inputs of the given size.
func (r *LookupRecognizer) Set(size image.Point, text string) *LookupRecognizer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts[size] = text
	return r
}

// Fail makes inputs of the given size return ErrEngineFailure.
func (r *LookupRecognizer) Fail(size image.Point) *LookupRecognizer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[size] = true
	return r
}

// WithConfidence reports c for every segment.
func (r *LookupRecognizer) WithConfidence(c float64) *LookupRecognizer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confidence = &c
	return r
}

// Recognize implements ocr.Recognizer.
func (r *LookupRecognizer) Recognize(ctx context.Context, img image.Image, opts ocr.Options) ([]ocr.Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	size := img.Bounds().Size()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, size)
	r.options = append(r.options, opts)
	if r.fail[size] {
		return nil, ErrEngineFailure
	}
	text, ok := r.texts[size]
	if !ok || text == "" {
		return nil, nil
	}

	lines := strings.Split(text, "\n")
	lineHeight := float64(size.Y) / float64(len(lines))
	segs := make([]ocr.Segment, 0, len(lines))
	for i, line := range lines {
		y := float64(i) * lineHeight
		segs = append(segs, ocr.Segment{
			Box:        geometry.FromXYXY(0, y, float64(size.X), y+lineHeight),
			Text:       line,
			Confidence: r.confidence,
		})
	}
	return segs, nil
}

// Calls returns the sizes recognized so far.
func (r *LookupRecognizer) Calls() []image.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]image.Point, len(r.calls))
	copy(out, r.calls)
	return out
}

// Options returns the options of every call so far.
func (r *LookupRecognizer) Options() []ocr.Options {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ocr.Options, len(r.options))
	copy(out, r.options)
	return out
}

// Close marks the recognizer closed.
func (r *LookupRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Closed reports whether Close was called.
func (r *LookupRecognizer) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
