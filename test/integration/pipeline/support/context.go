// Package support holds the state and step definitions of the pipeline
// feature suite.
package support

import (
	"context"
	"errors"
	"fmt"
	"image"
	"maps"
	"strings"

	"github.com/MeKo-Tech/glean/internal/detection"
	"github.com/MeKo-Tech/glean/internal/geometry"
	"github.com/MeKo-Tech/glean/internal/pipeline"
	"github.com/MeKo-Tech/glean/internal/testutil"
)

// TestContext is the state of one scenario.
type TestContext struct {
	Scene      testutil.Scene
	Config     pipeline.Config
	PageText   string
	FailRegion []int
	Confidence *float64
	Workers    int

	Recognizer *testutil.LookupRecognizer
	Result     *pipeline.Result
	Err        error
}

// NewTestContext returns a scenario state with default settings.
func NewTestContext() *TestContext {
	cfg := pipeline.DefaultConfig()
	cfg.Message.Classes = maps.Clone(cfg.Message.Classes)
	return &TestContext{Config: cfg, Workers: 2}
}

// region returns the detection with 1-based index n.
func (tc *TestContext) region(n int) (*detection.Detection, error) {
	if n < 1 || n > len(tc.Scene.Detections) {
		return nil, fmt.Errorf("no region %d, scene has %d", n, len(tc.Scene.Detections))
	}
	return &tc.Scene.Detections[n-1], nil
}

func (tc *TestContext) regionSize(d detection.Detection) image.Point {
	return d.Box.ToImageRect(tc.Scene.Image.Bounds()).Size()
}

// Run builds a pipeline from the scenario state and runs domain d.
func (tc *TestContext) Run(domain string) error {
	d, err := pipeline.ParseDomain(domain)
	if err != nil {
		return err
	}
	if tc.Scene.Image == nil {
		return errors.New("no scene set up")
	}

	rec := tc.Scene.Recognizer()
	if tc.PageText != "" {
		rec.Set(tc.Scene.Image.Bounds().Size(), tc.PageText)
	}
	for _, n := range tc.FailRegion {
		det, err := tc.region(n)
		if err != nil {
			return err
		}
		rec.Fail(tc.regionSize(*det))
	}
	if tc.Confidence != nil {
		rec.WithConfidence(*tc.Confidence)
	}
	tc.Recognizer = rec

	b := pipeline.NewBuilder().
		WithConfig(tc.Config).
		WithRecognizer(rec).
		WithWorkers(tc.Workers)
	if d.UsesDetector() {
		b.WithDetector(d, tc.Scene.Detector())
	}
	p, err := b.Build()
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	tc.Result, tc.Err = p.Run(context.Background(), d, tc.Scene.Image)
	return nil
}

// duplicate appends a copy of region n shifted by a few pixels.
func (tc *TestContext) duplicate(n int, confidence float64) error {
	det, err := tc.region(n)
	if err != nil {
		return err
	}
	dup := *det
	dup.Box = dup.Box.Translate(2, 1)
	dup.Confidence = confidence
	tc.Scene.Detections = append(tc.Scene.Detections, dup)
	return nil
}

// addOutside appends a confident detection lying entirely right of the image.
func (tc *TestContext) addOutside(label string) {
	x := float64(tc.Scene.Image.Bounds().Dx() + 10)
	tc.Scene.Detections = append(tc.Scene.Detections, detection.Detection{
		Box:        geometry.FromXYWH(x, 5, 40, 20),
		Confidence: 0.99,
		Label:      label,
	})
}

func normalize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
}
