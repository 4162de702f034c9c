//go:build cgo

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/MeKo-Tech/glean/internal/geometry"
	"github.com/otiai10/gosseract/v2"
)

// Tesseract is a Recognizer backed by a single gosseract client. A client
// is not safe for concurrent use; wrap it in a Pool or Locked.
type Tesseract struct {
	client *gosseract.Client
	lang   string
}

// NewTesseract creates a client configured from cfg.
func NewTesseract(cfg TesseractConfig) (*Tesseract, error) {
	client := gosseract.NewClient()
	if cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(cfg.TessdataPrefix); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if cfg.Whitelist != "" {
		if err := client.SetWhitelist(cfg.Whitelist); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to set whitelist: %w", err)
		}
	}
	return &Tesseract{client: client}, nil
}

// Version reports the linked Tesseract version.
func (t *Tesseract) Version() string { return t.client.Version() }

// Recognize runs Tesseract over img. Paragraph mode returns one segment per
// paragraph, otherwise one per word.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image, opts Options) ([]Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lang := opts.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	if lang != t.lang {
		if err := t.client.SetLanguage(strings.Split(lang, "+")...); err != nil {
			return nil, fmt.Errorf("%w: set language %s: %w", ErrRecognitionUnavailable, lang, err)
		}
		t.lang = lang
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: encode image: %w", ErrRecognitionUnavailable, err)
	}
	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: set image: %w", ErrRecognitionUnavailable, err)
	}

	mode, level := gosseract.PSM_SPARSE_TEXT, gosseract.RIL_WORD
	if opts.Paragraph {
		mode, level = gosseract.PSM_AUTO, gosseract.RIL_PARA
	}
	if err := t.client.SetPageSegMode(mode); err != nil {
		return nil, fmt.Errorf("%w: set page segmentation: %w", ErrRecognitionUnavailable, err)
	}

	boxes, err := t.client.GetBoundingBoxes(level)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRecognitionUnavailable, err)
	}

	segs := make([]Segment, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		segs = append(segs, Segment{
			Box:        geometry.FromImageRect(b.Box),
			Text:       text,
			Confidence: confidencePtr(float64(b.Confidence) / 100.0),
		})
	}
	return segs, nil
}

// Close releases the client.
func (t *Tesseract) Close() error {
	return t.client.Close()
}
