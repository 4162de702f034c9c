package pipeline

import (
	"errors"

	"github.com/MeKo-Tech/glean/internal/ocr"
)

var (
	// ErrDetectionUnavailable wraps detector failures and missing detectors.
	ErrDetectionUnavailable = errors.New("detection unavailable")
	// ErrRecognitionUnavailable wraps OCR engine failures.
	ErrRecognitionUnavailable = ocr.ErrRecognitionUnavailable
	// ErrUnknownDomain is returned for domains outside Domains.
	ErrUnknownDomain = errors.New("unknown domain")
)
