// Package pipeline runs detection, filtering, role assignment, per-region
// OCR and domain assembly over a single image.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/glean/internal/detection"
	"github.com/MeKo-Tech/glean/internal/ocr"
	"github.com/MeKo-Tech/glean/internal/roles"
	"github.com/prometheus/client_golang/prometheus"
)

// Builder assembles a Pipeline.
type Builder struct {
	cfg        Config
	detectors  map[Domain]detection.Detector
	recognizer ocr.Recognizer
	registerer prometheus.Registerer
}

// NewBuilder returns a builder seeded with DefaultConfig.
func NewBuilder() *Builder {
	return &Builder{cfg: DefaultConfig(), detectors: make(map[Domain]detection.Detector)}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithDetector sets the detector used for d.
func (b *Builder) WithDetector(d Domain, det detection.Detector) *Builder {
	if det == nil {
		delete(b.detectors, d)
		return b
	}
	b.detectors[d] = det
	return b
}

// WithRecognizer sets the OCR engine shared by every domain.
func (b *Builder) WithRecognizer(r ocr.Recognizer) *Builder {
	b.recognizer = r
	return b
}

// WithRegisterer registers the pipeline metrics with reg.
func (b *Builder) WithRegisterer(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// WithWorkers bounds concurrent region extraction. Zero selects NumCPU.
func (b *Builder) WithWorkers(n int) *Builder {
	if n >= 0 {
		b.cfg.Workers = n
	}
	return b
}

// WithLanguage sets the OCR language code.
func (b *Builder) WithLanguage(lang string) *Builder {
	if lang != "" {
		b.cfg.Language = lang
	}
	return b
}

// WithSkipFailedRegions keeps a run alive when a region's OCR fails.
func (b *Builder) WithSkipFailedRegions(skip bool) *Builder {
	b.cfg.SkipFailedRegions = skip
	return b
}

// Config returns the current configuration.
func (b *Builder) Config() Config { return b.cfg }

// Validate checks the configuration and the wired components.
func (b *Builder) Validate() error {
	if err := b.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid pipeline config: %w", err)
	}
	if b.recognizer == nil {
		return errors.New("pipeline needs a recognizer")
	}
	return nil
}

// Build validates the configuration and returns a ready pipeline.
// A domain without a detector fails its runs with ErrDetectionUnavailable.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	msg, err := roles.NewMessagePolicy(b.cfg.Message.Classes)
	if err != nil {
		return nil, fmt.Errorf("message policy: %w", err)
	}

	detectors := make(map[Domain]detection.Detector, len(b.detectors))
	for d, det := range b.detectors {
		detectors[d] = det
	}

	p := &Pipeline{
		cfg:        b.cfg,
		detectors:  detectors,
		recognizer: b.recognizer,
		policies: map[Domain]roles.Policy{
			DomainPlate:   roles.PlatePolicy{},
			DomainMessage: msg,
		},
		metrics: NewMetrics(b.registerer),
	}
	slog.Debug("Pipeline built",
		"language", p.cfg.Language,
		"workers", p.workers(),
		"detectors", len(detectors))
	return p, nil
}

// Pipeline is safe for concurrent Run calls as long as its detectors and
// recognizer are.
type Pipeline struct {
	cfg        Config
	detectors  map[Domain]detection.Detector
	recognizer ocr.Recognizer
	policies   map[Domain]roles.Policy
	metrics    *Metrics

	closeOnce sync.Once
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// HasDetector reports whether runs in d can detect regions.
func (p *Pipeline) HasDetector(d Domain) bool {
	_, ok := p.detectors[d]
	return ok
}

// Info describes the wired components.
func (p *Pipeline) Info() map[string]any {
	info := map[string]any{
		"language":            p.cfg.Language,
		"workers":             p.workers(),
		"skip_failed_regions": p.cfg.SkipFailedRegions,
	}
	for d, det := range p.detectors {
		if inf, ok := det.(interface{ Info() map[string]any }); ok {
			info[d.String()] = inf.Info()
		} else {
			info[d.String()] = fmt.Sprintf("%T", det)
		}
	}
	return info
}

// Close releases detectors and the recognizer when they implement io.Closer.
func (p *Pipeline) Close() error {
	var errs []error
	p.closeOnce.Do(func() {
		for d, det := range p.detectors {
			if c, ok := det.(io.Closer); ok {
				if err := c.Close(); err != nil {
					errs = append(errs, fmt.Errorf("close %s detector: %w", d, err))
				}
			}
		}
		if c, ok := p.recognizer.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close recognizer: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}

func (p *Pipeline) workers() int {
	if p.cfg.Workers > 0 {
		return p.cfg.Workers
	}
	return defaultWorkers()
}
