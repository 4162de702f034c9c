package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
)

// Pool hands out one engine handle per call. Handles are not assumed to be
// safe for concurrent use; the pool size bounds parallel recognition.
type Pool struct {
	handles chan Recognizer
	all     []Recognizer

	closeOnce sync.Once
}

// NewPool creates size handles with factory. Handles created before a
// factory failure are closed.
func NewPool(size int, factory func() (Recognizer, error)) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	p := &Pool{handles: make(chan Recognizer, size), all: make([]Recognizer, 0, size)}
	for i := range size {
		r, err := factory()
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("failed to create recognizer %d: %w", i, err)
		}
		p.all = append(p.all, r)
		p.handles <- r
	}
	slog.Debug("OCR pool ready", "size", size)
	return p, nil
}

// Size returns the number of handles.
func (p *Pool) Size() int { return len(p.all) }

// Recognize checks out a handle, waiting until one is free or ctx is done.
func (p *Pool) Recognize(ctx context.Context, img image.Image, opts Options) ([]Segment, error) {
	var r Recognizer
	select {
	case r = <-p.handles:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { p.handles <- r }()
	return r.Recognize(ctx, img, opts)
}

// Close closes every handle that implements io.Closer.
func (p *Pool) Close() error {
	var errs []error
	p.closeOnce.Do(func() {
		for _, r := range p.all {
			if c, ok := r.(io.Closer); ok {
				if err := c.Close(); err != nil {
					errs = append(errs, err)
				}
			}
		}
	})
	return errors.Join(errs...)
}

// Locked serializes calls to a single handle.
type Locked struct {
	mu sync.Mutex
	r  Recognizer
}

// NewLocked wraps r with a mutex.
func NewLocked(r Recognizer) *Locked { return &Locked{r: r} }

// Recognize runs r while holding the lock.
func (l *Locked) Recognize(ctx context.Context, img image.Image, opts Options) ([]Segment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Recognize(ctx, img, opts)
}

// Close closes the wrapped handle if it implements io.Closer.
func (l *Locked) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
