package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"runtime"
	"strings"

	"github.com/MeKo-Tech/glean/internal/assembler"
	"github.com/MeKo-Tech/glean/internal/common"
	"github.com/MeKo-Tech/glean/internal/detection"
	"github.com/MeKo-Tech/glean/internal/ocr"
	"github.com/MeKo-Tech/glean/internal/roles"
)

func defaultWorkers() int { return runtime.NumCPU() }

// Run reads img for domain d. Plate and message runs detect, filter, order
// and label regions, OCR each region and assemble the domain text. When no
// region survives filtering, or every region reads as empty, the whole
// image is read instead and Result.Detected is false.
func (p *Pipeline) Run(ctx context.Context, d Domain, img image.Image) (*Result, error) {
	if img == nil {
		return nil, errors.New("image is nil")
	}
	sw := common.NewStopwatch()
	res, err := p.run(ctx, d, img, sw)
	if err != nil {
		p.metrics.observeRun(d, outcomeError, sw.Total())
		return nil, err
	}
	res.Domain = d
	res.Width = img.Bounds().Dx()
	res.Height = img.Bounds().Dy()
	res.Elapsed = sw.Total()
	res.Stages = sw.Laps()

	outcome := outcomeDetected
	if !res.Detected {
		outcome = outcomeFallback
	}
	p.metrics.observeRun(d, outcome, res.Elapsed)
	p.metrics.observeStages(d, res.Stages)

	slog.Debug("Run finished",
		"domain", d.String(),
		"detected", res.Detected,
		"fragments", len(res.Fragments),
		"stages", sw.String(),
		"duration_ms", res.Elapsed.Milliseconds())
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, d Domain, img image.Image, sw *common.Stopwatch) (*Result, error) {
	switch d {
	case DomainGeneric:
		return p.runGeneric(ctx, img, sw)
	case DomainPlate, DomainMessage:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDomain, d)
	}

	det, ok := p.detectors[d]
	if !ok {
		return nil, fmt.Errorf("%w: no detector for %s", ErrDetectionUnavailable, d)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := det.Detect(ctx, img)
	if err != nil {
		if isContextErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrDetectionUnavailable, err)
	}
	sw.Lap(StageDetect)

	dc := p.cfg.domain(d)
	kept := detection.Filter(raw, dc.Filter)
	sw.Lap(StageFilter)
	p.metrics.regions.WithLabelValues(d.String()).Observe(float64(len(kept)))
	slog.Debug("Detections filtered", "domain", d.String(), "raw", len(raw), "kept", len(kept))

	if len(kept) == 0 {
		return p.fallback(ctx, img, sw)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	policy := p.policies[d]
	ordered := policy.Order(kept)
	frame := img.Bounds()
	frags := make([]roles.Fragment, len(ordered))
	for i, o := range ordered {
		frags[i] = roles.Fragment{Detection: o, Role: policy.Classify(o, frame)}
	}
	sw.Lap(StageOrder)

	ex := &ocr.Extractor{
		Recognizer:       p.recognizer,
		Language:         p.cfg.Language,
		Join:             dc.Join,
		Scale:            dc.Scale,
		ToleranceDivisor: dc.ToleranceDivisor,
	}
	exts, err := p.extractRegions(ctx, d, ex, img, frags)
	if err != nil {
		return nil, err
	}
	sw.Lap(StageExtract)

	var confidences []float64
	anyText := false
	for i := range frags {
		frags[i].Text = exts[i].Text
		frags[i].Confidence = exts[i].Confidence
		if exts[i].Confidence != nil {
			confidences = append(confidences, *exts[i].Confidence)
		}
		if !exts[i].Empty() && frags[i].Role != roles.RoleApp {
			anyText = true
		}
	}
	if !anyText {
		slog.Debug("All regions empty, reading whole image", "domain", d.String())
		return p.fallback(ctx, img, sw)
	}

	sum := policy.Assemble(frags)
	sw.Lap(StageAssemble)

	return &Result{
		Text:       sum.Text,
		Detected:   true,
		Confidence: assembler.MeanConfidence(confidences),
		App:        sum.App,
		Group:      sum.Group,
		Fragments:  frags,
	}, nil
}

// fallback reads the whole image in paragraph mode through the line assembler.
func (p *Pipeline) fallback(ctx context.Context, img image.Image, sw *common.Stopwatch) (*Result, error) {
	ex := &ocr.Extractor{
		Recognizer:       p.recognizer,
		Language:         p.cfg.Language,
		ToleranceDivisor: p.cfg.Generic.ToleranceDivisor,
	}
	page, err := ex.Page(ctx, img)
	if err != nil {
		return nil, err
	}
	sw.Lap(StageFallback)
	return &Result{Text: page.Text, Detected: false, Confidence: page.Confidence}, nil
}

func (p *Pipeline) runGeneric(ctx context.Context, img image.Image, sw *common.Stopwatch) (*Result, error) {
	ex := &ocr.Extractor{
		Recognizer:       p.recognizer,
		Language:         p.cfg.Language,
		WordMode:         !p.cfg.Generic.Paragraph,
		ToleranceDivisor: p.cfg.Generic.ToleranceDivisor,
	}
	page, err := ex.Page(ctx, img)
	if err != nil {
		return nil, err
	}
	sw.Lap(StageExtract)
	return &Result{
		Text:       page.Text,
		Detected:   strings.TrimSpace(page.Text) != "",
		Confidence: page.Confidence,
	}, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
