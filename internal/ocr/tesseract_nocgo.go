//go:build !cgo

package ocr

import (
	"context"
	"image"
)

// Tesseract is unavailable without cgo.
type Tesseract struct{}

// NewTesseract always fails in non-cgo builds.
func NewTesseract(TesseractConfig) (*Tesseract, error) {
	return nil, ErrTesseractNotBuilt
}

// Version returns an empty string.
func (*Tesseract) Version() string { return "" }

// Recognize always fails in non-cgo builds.
func (*Tesseract) Recognize(context.Context, image.Image, Options) ([]Segment, error) {
	return nil, ErrRecognitionUnavailable
}

// Close is a no-op.
func (*Tesseract) Close() error { return nil }
