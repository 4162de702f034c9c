package pipeline

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/glean/internal/detection"
	"github.com/MeKo-Tech/glean/internal/geometry"
	"github.com/MeKo-Tech/glean/internal/ocr"
	"github.com/MeKo-Tech/glean/internal/roles"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	frameW = 200
	frameH = 400
)

// widthRecognizer answers by crop width so each region can be told apart.
type widthRecognizer struct {
	mu      sync.Mutex
	texts   map[int]string
	conf    map[int]float64
	fail    map[int]bool
	delay   func(width int) time.Duration
	calls   []int
	options []ocr.Options
	closed  atomic.Bool
}

func newWidthRecognizer() *widthRecognizer {
	return &widthRecognizer{texts: map[int]string{}, conf: map[int]float64{}, fail: map[int]bool{}}
}

func (r *widthRecognizer) Recognize(ctx context.Context, img image.Image, opts ocr.Options) ([]ocr.Segment, error) {
	b := img.Bounds()
	w := b.Dx()
	if r.delay != nil {
		select {
		case <-time.After(r.delay(w)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, w)
	r.options = append(r.options, opts)
	if r.fail[w] {
		return nil, errors.New("engine crashed")
	}
	text, ok := r.texts[w]
	if !ok {
		return nil, nil
	}
	seg := ocr.Segment{Box: geometry.FromImageRect(b), Text: text}
	if c, ok := r.conf[w]; ok {
		seg.Confidence = &c
	}
	return []ocr.Segment{seg}, nil
}

func (r *widthRecognizer) Close() error {
	r.closed.Store(true)
	return nil
}

func (r *widthRecognizer) callCount(width int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, w := range r.calls {
		if w == width {
			n++
		}
	}
	return n
}

type closingDetector struct {
	detection.Static
	closed bool
}

func (c *closingDetector) Close() error {
	c.closed = true
	return nil
}

func frame() image.Image { return image.NewRGBA(image.Rect(0, 0, frameW, frameH)) }

func box(x0, y0, x1, y1, conf float64, label string) detection.Detection {
	return detection.Detection{Box: geometry.FromXYXY(x0, y0, x1, y1), Confidence: conf, Label: label}
}

func build(t *testing.T, rec ocr.Recognizer, dets map[Domain]detection.Detector, opts ...func(*Builder)) *Pipeline {
	t.Helper()
	b := NewBuilder().WithRecognizer(rec).WithWorkers(1)
	for d, det := range dets {
		b.WithDetector(d, det)
	}
	for _, o := range opts {
		o(b)
	}
	p, err := b.Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestRunPlateKeepsBestOfOverlappingBoxes(t *testing.T) {
	rec := newWidthRecognizer()
	rec.texts[60] = "AB 123"
	rec.texts[61] = "ZZ 999"
	rec.conf[60] = 0.8

	dets := detection.Static{
		box(10, 10, 71, 30, 0.9, "plate"),
		box(10, 10, 70, 30, 0.95, "plate"),
	}
	p := build(t, rec, map[Domain]detection.Detector{DomainPlate: dets})

	res, err := p.Run(context.Background(), DomainPlate, frame())
	require.NoError(t, err)
	assert.True(t, res.Detected)
	assert.Equal(t, "AB 123", res.Text)
	require.Len(t, res.Fragments, 1)
	assert.Equal(t, roles.RolePlate, res.Fragments[0].Role)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 0.8, *res.Confidence, 1e-12)
	assert.Equal(t, 0, rec.callCount(61))
	assert.Equal(t, DomainPlate, res.Domain)
	assert.Equal(t, frameW, res.Width)
	assert.Contains(t, res.Stages, StageExtract)
}

func TestRunFallsBackWhenNothingDetected(t *testing.T) {
	rec := newWidthRecognizer()
	rec.texts[frameW] = "whole page"
	p := build(t, rec, map[Domain]detection.Detector{DomainPlate: detection.Static{}})

	res, err := p.Run(context.Background(), DomainPlate, frame())
	require.NoError(t, err)
	assert.False(t, res.Detected)
	assert.Equal(t, "whole page", res.Text)
	assert.Empty(t, res.Fragments)
	assert.Contains(t, res.Stages, StageFallback)
	require.Len(t, rec.options, 1)
	assert.True(t, rec.options[0].Paragraph)
}

func TestRunFallsBackWhenBelowThreshold(t *testing.T) {
	rec := newWidthRecognizer()
	rec.texts[frameW] = "page"
	dets := detection.Static{box(10, 10, 70, 30, 0.4, "plate")}
	p := build(t, rec, map[Domain]detection.Detector{DomainPlate: dets})

	res, err := p.Run(context.Background(), DomainPlate, frame())
	require.NoError(t, err)
	assert.False(t, res.Detected)
	assert.Equal(t, "page", res.Text)
}

func TestRunDegenerateRegionNeverReachesEngine(t *testing.T) {
	rec := newWidthRecognizer()
	rec.texts[frameW] = "page"
	// Entirely outside the frame: survives the filter, crops to nothing.
	dets := detection.Static{box(500, 500, 520, 520, 0.9, "plate")}
	p := build(t, rec, map[Domain]detection.Detector{DomainPlate: dets})

	res, err := p.Run(context.Background(), DomainPlate, frame())
	require.NoError(t, err)
	assert.Equal(t, 0, rec.callCount(20))
	assert.False(t, res.Detected)
	assert.Equal(t, "page", res.Text)
}

func TestRunMessageTranscript(t *testing.T) {
	rec := newWidthRecognizer()
	rec.texts[100] = "Family"
	rec.texts[70] = "hi there"
	rec.texts[71] = "hello"
	rec.texts[72] = "bye"

	dets := detection.Static{
		box(120, 200, 192, 240, 0.8, "message"), // right, lower: sent
		box(10, 100, 80, 140, 0.9, "message"),   // left: received
		box(50, 10, 150, 40, 0.9, "group"),
		box(10, 300, 81, 340, 0.7, "message"), // left, lowest: received
	}
	p := build(t, rec, map[Domain]detection.Detector{DomainMessage: dets})

	res, err := p.Run(context.Background(), DomainMessage, frame())
	require.NoError(t, err)
	assert.True(t, res.Detected)
	assert.Equal(t, "Group Name: Family\nReceived: hi there\nSent: bye\nReceived: hello", res.Text)
	assert.Equal(t, "Family", res.Group)

	got := make([]roles.Role, 0, len(res.Fragments))
	for _, f := range res.Fragments {
		got = append(got, f.Role)
	}
	assert.Equal(t, []roles.Role{roles.RoleGroup, roles.RoleReceived, roles.RoleSent, roles.RoleReceived}, got)
}

func TestRunMessageAppOnlyFallsBack(t *testing.T) {
	rec := newWidthRecognizer()
	rec.texts[40] = "WhatsApp"
	rec.texts[frameW] = "page"

	cfg := DefaultConfig()
	cfg.Workers = 1
	cfg.Message.Classes = map[string]string{"app": "app", "message": "message"}
	dets := detection.Static{box(0, 0, 40, 20, 0.9, "app")}
	p := build(t, rec, map[Domain]detection.Detector{DomainMessage: dets}, func(b *Builder) { b.WithConfig(cfg) })

	res, err := p.Run(context.Background(), DomainMessage, frame())
	require.NoError(t, err)
	assert.False(t, res.Detected)
	assert.Equal(t, "page", res.Text)
	assert.Empty(t, res.App)
}

func TestRunWorkersPreserveReadingOrder(t *testing.T) {
	rec := newWidthRecognizer()
	var dets detection.Static
	want := ""
	for i := range 8 {
		w := 30 + i
		rec.texts[w] = string(rune('a' + i))
		y := float64(10 + 40*i)
		dets = append(dets, box(120, y, float64(120+w), y+30, 0.9, "message"))
		if i > 0 {
			want += "\n"
		}
		want += "Sent: " + string(rune('a'+i))
	}
	// Earlier regions finish last.
	rec.delay = func(w int) time.Duration { return time.Duration(40-w) * time.Millisecond }

	p := build(t, rec, map[Domain]detection.Detector{DomainMessage: dets}, func(b *Builder) { b.WithWorkers(4) })

	res, err := p.Run(context.Background(), DomainMessage, frame())
	require.NoError(t, err)
	assert.Equal(t, want, res.Text)
}

func TestRunRecognitionFailureAbortsByDefault(t *testing.T) {
	rec := newWidthRecognizer()
	rec.texts[60] = "AB"
	rec.fail[61] = true
	dets := detection.Static{
		box(10, 10, 70, 30, 0.9, "plate"),
		box(10, 100, 71, 130, 0.9, "plate"),
	}
	p := build(t, rec, map[Domain]detection.Detector{DomainPlate: dets})

	_, err := p.Run(context.Background(), DomainPlate, frame())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecognitionUnavailable)
}

func TestRunSkipFailedRegions(t *testing.T) {
	rec := newWidthRecognizer()
	rec.texts[60] = "AB"
	rec.fail[61] = true
	dets := detection.Static{
		box(10, 10, 70, 30, 0.9, "plate"),
		box(10, 100, 71, 130, 0.9, "plate"),
	}
	reg := prometheus.NewRegistry()
	p := build(t, rec, map[Domain]detection.Detector{DomainPlate: dets}, func(b *Builder) {
		b.WithSkipFailedRegions(true).WithRegisterer(reg)
	})

	res, err := p.Run(context.Background(), DomainPlate, frame())
	require.NoError(t, err)
	assert.True(t, res.Detected)
	assert.Equal(t, "AB", res.Text)
	assert.InDelta(t, 1, promtest.ToFloat64(p.metrics.skipped.WithLabelValues("plate")), 0)
}

func TestRunConfidenceIsMeanOfRegions(t *testing.T) {
	rec := newWidthRecognizer()
	rec.texts[60], rec.conf[60] = "A", 0.9
	rec.texts[61], rec.conf[61] = "B", 0.6
	rec.texts[62] = "C"
	dets := detection.Static{
		box(10, 10, 70, 30, 0.9, "plate"),
		box(10, 100, 71, 130, 0.9, "plate"),
		box(10, 200, 72, 230, 0.9, "plate"),
	}
	p := build(t, rec, map[Domain]detection.Detector{DomainPlate: dets})

	res, err := p.Run(context.Background(), DomainPlate, frame())
	require.NoError(t, err)
	assert.Equal(t, "A\nB\nC", res.Text)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 0.75, *res.Confidence, 1e-12)
}

func TestRunDetectorErrors(t *testing.T) {
	rec := newWidthRecognizer()
	broken := detection.DetectorFunc(func(context.Context, image.Image) ([]detection.Detection, error) {
		return nil, errors.New("session lost")
	})
	p := build(t, rec, map[Domain]detection.Detector{DomainPlate: broken})

	_, err := p.Run(context.Background(), DomainPlate, frame())
	assert.ErrorIs(t, err, ErrDetectionUnavailable)

	_, err = p.Run(context.Background(), DomainMessage, frame())
	assert.ErrorIs(t, err, ErrDetectionUnavailable)

	_, err = p.Run(context.Background(), Domain(42), frame())
	assert.ErrorIs(t, err, ErrUnknownDomain)
}

func TestRunHonoursCancellation(t *testing.T) {
	rec := newWidthRecognizer()
	p := build(t, rec, map[Domain]detection.Detector{DomainPlate: detection.Static{}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Run(ctx, DomainPlate, frame())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.calls)
}

func TestRunGenericUsesWordMode(t *testing.T) {
	rec := newWidthRecognizer()
	rec.texts[frameW], rec.conf[frameW] = "invoice 42", 0.5
	p := build(t, rec, nil)

	res, err := p.Run(context.Background(), DomainGeneric, frame())
	require.NoError(t, err)
	assert.True(t, res.Detected)
	assert.Equal(t, "invoice 42", res.Text)
	require.Len(t, rec.options, 1)
	assert.False(t, rec.options[0].Paragraph)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 0.5, *res.Confidence, 1e-12)

	empty := newWidthRecognizer()
	p = build(t, empty, nil)
	res, err = p.Run(context.Background(), DomainGeneric, frame())
	require.NoError(t, err)
	assert.False(t, res.Detected)
	assert.Nil(t, res.Confidence)
}

func TestRunRecordsMetrics(t *testing.T) {
	rec := newWidthRecognizer()
	rec.texts[frameW] = "page"
	reg := prometheus.NewRegistry()
	p := build(t, rec, map[Domain]detection.Detector{DomainPlate: detection.Static{}}, func(b *Builder) {
		b.WithRegisterer(reg)
	})

	_, err := p.Run(context.Background(), DomainPlate, frame())
	require.NoError(t, err)
	assert.InDelta(t, 1, promtest.ToFloat64(p.metrics.runs.WithLabelValues("plate", outcomeFallback)), 0)

	n, err := promtest.GatherAndCount(reg, "glean_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCloseReleasesComponents(t *testing.T) {
	rec := newWidthRecognizer()
	det := &closingDetector{}
	p, err := NewBuilder().WithRecognizer(rec).WithDetector(DomainPlate, det).Build()
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, det.closed)
	assert.True(t, rec.closed.Load())
}

func TestBuildRequiresRecognizer(t *testing.T) {
	_, err := NewBuilder().Build()
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Plate.Filter.NMSIoUThreshold = 2
	_, err = NewBuilder().WithConfig(cfg).WithRecognizer(newWidthRecognizer()).Build()
	assert.Error(t, err)
}

func TestInfoListsDetectors(t *testing.T) {
	p := build(t, newWidthRecognizer(), map[Domain]detection.Detector{DomainPlate: detection.Static{}})
	info := p.Info()
	assert.Equal(t, "eng", info["language"])
	assert.Contains(t, info, "plate")
	assert.True(t, p.HasDetector(DomainPlate))
	assert.False(t, p.HasDetector(DomainMessage))
}
