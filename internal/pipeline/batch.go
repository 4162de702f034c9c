package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
)

// BatchConfig controls RunBatch.
type BatchConfig struct {
	// MaxWorkers is the number of images processed at once (0 = pipeline workers).
	MaxWorkers int
	// ContinueOnError keeps going after a failed image; its slot stays nil.
	ContinueOnError bool
	Progress        Progress
}

type imageJob struct {
	index int
	image image.Image
}

type imageResult struct {
	index  int
	result *Result
	err    error
}

// RunBatch runs every image through Run for domain d and returns results
// in input order. Without ContinueOnError the first failure, by input
// index, is returned alongside the results that did complete.
func (p *Pipeline) RunBatch(ctx context.Context, d Domain, images []image.Image, cfg BatchConfig) ([]*Result, error) {
	if len(images) == 0 {
		return nil, errors.New("no images provided")
	}
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = p.workers()
	}
	workers = min(workers, len(images))

	if cfg.Progress != nil {
		cfg.Progress.OnStart(len(images))
		defer cfg.Progress.OnComplete()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan imageJob, len(images))
	results := make(chan imageResult, len(images))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go p.batchWorker(runCtx, d, jobs, results, &wg)
	}

	for i, img := range images {
		jobs <- imageJob{index: i, image: img}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]*Result, len(images))
	errs := make([]error, len(images))
	done := 0
	for r := range results {
		done++
		if r.err != nil {
			errs[r.index] = r.err
			if cfg.Progress != nil {
				cfg.Progress.OnError(r.index, r.err)
			}
			if !cfg.ContinueOnError {
				cancel()
			}
		} else {
			ordered[r.index] = r.result
		}
		if cfg.Progress != nil {
			cfg.Progress.OnProgress(done, len(images))
		}
	}

	if err := ctx.Err(); err != nil {
		return ordered, err
	}
	if cfg.ContinueOnError {
		return ordered, nil
	}
	for i, err := range errs {
		if err != nil && !isContextErr(err) {
			return ordered, fmt.Errorf("image %d: %w", i, err)
		}
	}
	for i, err := range errs {
		if err != nil {
			return ordered, fmt.Errorf("image %d: %w", i, err)
		}
	}
	return ordered, nil
}

func (p *Pipeline) batchWorker(
	ctx context.Context,
	d Domain,
	jobs <-chan imageJob,
	results chan<- imageResult,
	wg *sync.WaitGroup,
) {
	defer wg.Done()
	for job := range jobs {
		if err := ctx.Err(); err != nil {
			results <- imageResult{index: job.index, err: err}
			continue
		}
		res, err := p.Run(ctx, d, job.image)
		results <- imageResult{index: job.index, result: res, err: err}
	}
}
