package pipeline

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/MeKo-Tech/glean/internal/assembler"
	"github.com/MeKo-Tech/glean/internal/detection"
	"github.com/MeKo-Tech/glean/internal/ocr"
	"github.com/MeKo-Tech/glean/internal/roles"
)

// DomainConfig holds the per-domain filter, extraction and assembly settings.
type DomainConfig struct {
	Filter detection.FilterConfig
	// Join controls how the OCR segments of one region are combined.
	Join ocr.JoinMode
	// Scale upsamples region crops before OCR when greater than 1.
	Scale float64
	// ToleranceDivisor tunes line grouping of OCR segments.
	ToleranceDivisor float64
	// Classes maps detector class names to role names (message domain only).
	Classes map[string]string
}

// GenericConfig holds settings for detector-less runs.
type GenericConfig struct {
	// Paragraph requests block-level OCR instead of word-level.
	Paragraph        bool
	ToleranceDivisor float64
}

// Config holds the orchestrator configuration.
type Config struct {
	// Language is the OCR engine language code.
	Language string
	// Workers bounds concurrent region extraction within one run.
	Workers int
	// SkipFailedRegions turns per-region OCR failures into empty text
	// instead of failing the run.
	SkipFailedRegions bool

	Plate   DomainConfig
	Message DomainConfig
	Generic GenericConfig
}

// DefaultConfig returns the thresholds the bundled models were tuned for.
func DefaultConfig() Config {
	return Config{
		Language: ocr.DefaultLanguage,
		Workers:  runtime.NumCPU(),
		Plate: DomainConfig{
			Filter:           detection.DefaultFilterConfig(),
			Join:             ocr.JoinConcat,
			Scale:            1,
			ToleranceDivisor: assembler.DefaultToleranceDivisor,
		},
		Message: DomainConfig{
			Filter: detection.FilterConfig{
				ConfidenceThreshold: 0.4,
				ClassScoreThreshold: 0.25,
				NMSIoUThreshold:     0.45,
				NMSScoreThreshold:   0,
			},
			Join:             ocr.JoinLines,
			Scale:            1,
			ToleranceDivisor: assembler.DefaultToleranceDivisor,
			Classes: map[string]string{
				"group":   roles.RoleGroup.String(),
				"message": roles.RoleMessage.String(),
			},
		},
		Generic: GenericConfig{
			Paragraph:        false,
			ToleranceDivisor: assembler.DefaultToleranceDivisor,
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be non-negative, got %d", c.Workers))
	}
	for name, dc := range map[string]DomainConfig{"plate": c.Plate, "message": c.Message} {
		if err := dc.Filter.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s filter: %w", name, err))
		}
		if dc.Scale < 0 {
			errs = append(errs, fmt.Errorf("%s scale must be non-negative, got %f", name, dc.Scale))
		}
		if dc.ToleranceDivisor < 0 {
			errs = append(errs, fmt.Errorf("%s tolerance divisor must be non-negative", name))
		}
	}
	if c.Generic.ToleranceDivisor < 0 {
		errs = append(errs, errors.New("generic tolerance divisor must be non-negative"))
	}
	if _, err := roles.NewMessagePolicy(c.Message.Classes); err != nil {
		errs = append(errs, fmt.Errorf("message classes: %w", err))
	}
	return errors.Join(errs...)
}

func (c Config) domain(d Domain) DomainConfig {
	if d == DomainMessage {
		return c.Message
	}
	return c.Plate
}
