package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/glean/internal/ocr"
	"github.com/MeKo-Tech/glean/internal/roles"
)

type regionJob struct {
	index int
	frag  roles.Fragment
}

type regionResult struct {
	index int
	ext   ocr.Extraction
	err   error
}

// extractRegions runs ex over every fragment's box on a bounded worker pool.
// The returned slice is indexed like frags regardless of completion order.
func (p *Pipeline) extractRegions(
	ctx context.Context, d Domain, ex *ocr.Extractor, img image.Image, frags []roles.Fragment,
) ([]ocr.Extraction, error) {
	out := make([]ocr.Extraction, len(frags))
	workers := min(p.workers(), len(frags))

	if workers <= 1 {
		for i, f := range frags {
			ext, err := p.extractOne(ctx, d, ex, img, i, f)
			if err != nil {
				return nil, err
			}
			out[i] = ext
		}
		return out, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan regionJob, len(frags))
	results := make(chan regionResult, len(frags))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				ext, err := p.extractOne(ctx, d, ex, img, job.index, job.frag)
				results <- regionResult{index: job.index, ext: ext, err: err}
				if err != nil {
					cancel()
				}
			}
		}()
	}

	for i, f := range frags {
		jobs <- regionJob{index: i, frag: f}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	firstIdx := len(frags)
	for r := range results {
		if r.err != nil {
			// Prefer the engine failure of the earliest region over the
			// cancellations it caused in later ones.
			if firstErr == nil || (isContextErr(firstErr) && !isContextErr(r.err)) ||
				(isContextErr(firstErr) == isContextErr(r.err) && r.index < firstIdx) {
				firstErr, firstIdx = r.err, r.index
			}
			continue
		}
		out[r.index] = r.ext
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (p *Pipeline) extractOne(
	ctx context.Context, d Domain, ex *ocr.Extractor, img image.Image, i int, f roles.Fragment,
) (ocr.Extraction, error) {
	if err := ctx.Err(); err != nil {
		return ocr.Extraction{}, err
	}
	ext, err := ex.Extract(ctx, img, f.Detection.Box)
	if err != nil {
		if p.cfg.SkipFailedRegions && errors.Is(err, ocr.ErrRecognitionUnavailable) {
			slog.Warn("Region recognition failed, skipping",
				"domain", d.String(), "region", i, "role", f.Role.String(), "error", err)
			p.metrics.skipped.WithLabelValues(d.String()).Inc()
			return ocr.Extraction{}, nil
		}
		if isContextErr(err) {
			return ocr.Extraction{}, err
		}
		return ocr.Extraction{}, fmt.Errorf("region %d: %w", i, err)
	}
	if ext.Degenerate {
		p.metrics.degenerate.WithLabelValues(d.String()).Inc()
	}
	return ext, nil
}
