package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/glean/internal/config"
	"github.com/MeKo-Tech/glean/internal/detection"
	"github.com/MeKo-Tech/glean/internal/detector"
	"github.com/MeKo-Tech/glean/internal/ocr"
	"github.com/MeKo-Tech/glean/internal/pipeline"
	"github.com/MeKo-Tech/glean/internal/render"
	"github.com/MeKo-Tech/glean/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	outputFormatText = "text"
	outputFormatJSON = "json"
	outputFormatYAML = "yaml"
)

// Engine constructors, replaced in tests.
var (
	newRecognizer = func(cfg *config.Config) (ocr.Recognizer, error) {
		return ocr.NewPool(cfg.OCR.PoolSize, func() (ocr.Recognizer, error) {
			t, err := ocr.NewTesseract(cfg.ToTesseractConfig())
			if err != nil {
				return nil, err
			}
			return t, nil
		})
	}
	newDetector = func(cfg detector.Config) (detection.Detector, error) {
		y, err := detector.New(cfg)
		if err != nil {
			return nil, err
		}
		return y, nil
	}
)

// fileResult is one entry of the extract output.
type fileResult struct {
	File   string           `json:"file" yaml:"file"`
	Error  string           `json:"error,omitempty" yaml:"error,omitempty"`
	Result *pipeline.Result `json:"result,omitempty" yaml:"result,omitempty"`
}

type extractOptions struct {
	domain     string
	detections string
}

func newExtractCommand(a *app) *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract [images or directories...]",
		Short: "Extract text from images",
		Long: `Extract text from one or more images. Directories are searched
recursively for supported images (JPEG, PNG, BMP, TIFF, WebP).

Domains:
  plate    license plates, one line per plate
  message  chat screenshots, a Sent:/Received: transcript
  generic  any image, read as a whole

Examples:
  glean extract car.jpg --domain plate
  glean extract chat.png --domain message --format json
  glean extract chat.png --domain message --detections boxes.json
  glean extract photos/ --domain plate --overlay-dir out/ --metrics-file glean.prom`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, a.cfg, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.domain, "domain", "d", pipeline.DomainGeneric.String(), "image domain (plate, message, generic)")
	f.StringVar(&opts.detections, "detections", "", "JSON file with precomputed detections for a single image")
	f.StringP("format", "f", outputFormatText, "output format (text, json, yaml)")
	f.StringP("output", "o", "", "write results to this file instead of stdout")
	f.String("overlay-dir", "", "write annotated images to this directory")
	f.String("metrics-file", "", "write Prometheus metrics in text format to this file")
	f.StringP("language", "l", "", "OCR language (name, BCP 47 tag or Tesseract code)")
	f.Int("workers", 0, "regions read in parallel per image (0 = number of CPUs)")
	f.Int("batch-workers", 0, "images processed in parallel")
	f.Bool("skip-failed-regions", false, "treat regions the OCR engine fails on as empty")
	f.Bool("continue-on-error", false, "keep going when an image fails")
	f.String("onnxruntime-lib", "", "path to the ONNX Runtime shared library")
	f.Bool("gpu", false, "run detectors on the GPU")

	a.bind("output.format", f.Lookup("format"))
	a.bind("output.file", f.Lookup("output"))
	a.bind("output.overlay_dir", f.Lookup("overlay-dir"))
	a.bind("metrics_file", f.Lookup("metrics-file"))
	a.bind("ocr.language", f.Lookup("language"))
	a.bind("pipeline.workers", f.Lookup("workers"))
	a.bind("batch.workers", f.Lookup("batch-workers"))
	a.bind("pipeline.skip_failed_regions", f.Lookup("skip-failed-regions"))
	a.bind("batch.continue_on_error", f.Lookup("continue-on-error"))
	a.bind("onnxruntime_lib", f.Lookup("onnxruntime-lib"))
	a.bind("gpu.enabled", f.Lookup("gpu"))
	return cmd
}

func runExtract(cmd *cobra.Command, cfg *config.Config, opts *extractOptions, args []string) error {
	d, err := pipeline.ParseDomain(opts.domain)
	if err != nil {
		return err
	}
	paths, err := utils.ExpandImagePaths(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no supported images found")
	}
	if opts.detections != "" && len(paths) != 1 {
		return fmt.Errorf("--detections needs exactly one image, got %d", len(paths))
	}

	images := make([]image.Image, len(paths))
	for i, p := range paths {
		img, meta, err := utils.LoadImage(p)
		if err != nil {
			return err
		}
		slog.Debug("Loaded image", "path", p, "width", meta.Width, "height", meta.Height, "format", meta.Format)
		images[i] = img
	}

	var (
		reg        *prometheus.Registry
		registerer prometheus.Registerer
	)
	if cfg.MetricsFile != "" {
		reg = prometheus.NewRegistry()
		registerer = reg
	}
	p, err := buildPipeline(cfg, d, opts.detections, registerer)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			slog.Warn("Failed to release engines", "error", err)
		}
	}()

	progress := &errorCollector{
		LogProgress: pipeline.NewLogProgress(slog.Default(), 10),
		errs:        make(map[int]error),
	}
	start := time.Now()
	results, runErr := p.RunBatch(cmd.Context(), d, images, pipeline.BatchConfig{
		MaxWorkers:      max(cfg.Batch.Workers, 1),
		ContinueOnError: cfg.Batch.ContinueOnError,
		Progress:        progress,
	})
	slog.Info("Extraction finished",
		"images", len(images),
		"domain", d.String(),
		"duration_ms", time.Since(start).Milliseconds())

	if runErr != nil && !cfg.Batch.ContinueOnError {
		return runErr
	}

	out := make([]fileResult, len(paths))
	for i, path := range paths {
		out[i] = fileResult{File: path, Result: results[i]}
		if err, ok := progress.errs[i]; ok {
			out[i].Error = err.Error()
		}
	}

	if cfg.Output.OverlayDir != "" {
		if err := writeOverlays(cfg, paths, images, results); err != nil {
			return err
		}
	}
	if reg != nil {
		if err := prometheus.WriteToTextfile(cfg.MetricsFile, reg); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return writeResults(cmd.OutOrStdout(), cfg.Output, out)
}

// errorCollector keeps per-image errors for the output. RunBatch
// serializes progress calls.
type errorCollector struct {
	*pipeline.LogProgress
	errs map[int]error
}

func (c *errorCollector) OnError(index int, err error) {
	c.errs[index] = err
	c.LogProgress.OnError(index, err)
}

// buildPipeline wires the engines for domain d. A detections file stands in
// for the detector model.
func buildPipeline(cfg *config.Config, d pipeline.Domain, detectionsFile string, reg prometheus.Registerer) (*pipeline.Pipeline, error) {
	rec, err := newRecognizer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OCR engine: %w", err)
	}
	b := pipeline.NewBuilder().
		WithConfig(cfg.ToPipelineConfig()).
		WithRecognizer(rec).
		WithRegisterer(reg)

	switch {
	case detectionsFile != "":
		dets, err := detection.LoadFile(detectionsFile)
		if err != nil {
			closeQuietly(rec)
			return nil, err
		}
		b.WithDetector(d, dets)
	case d.UsesDetector():
		dc, err := cfg.ToDetectorConfig(d)
		if err != nil {
			closeQuietly(rec)
			return nil, err
		}
		det, err := newDetector(dc)
		if err != nil {
			closeQuietly(rec)
			return nil, fmt.Errorf("%w: %w", pipeline.ErrDetectionUnavailable, err)
		}
		b.WithDetector(d, det)
	}

	p, err := b.Build()
	if err != nil {
		closeQuietly(rec)
		return nil, err
	}
	return p, nil
}

func closeQuietly(v any) {
	if c, ok := v.(io.Closer); ok {
		_ = c.Close()
	}
}

func writeOverlays(cfg *config.Config, paths []string, images []image.Image, results []*pipeline.Result) error {
	palette, err := render.ParsePalette(render.DefaultPalette(), cfg.Output.Palette)
	if err != nil {
		return err
	}
	opts := render.DefaultOptions()
	opts.Palette = palette
	for i, res := range results {
		if res == nil {
			continue
		}
		base := strings.TrimSuffix(filepath.Base(paths[i]), filepath.Ext(paths[i]))
		dst := filepath.Join(cfg.Output.OverlayDir, base+"_overlay.png")
		if err := utils.SaveImage(dst, render.Overlay(images[i], res, opts)); err != nil {
			return err
		}
		slog.Debug("Wrote overlay", "path", dst)
	}
	return nil
}

func writeResults(stdout io.Writer, oc config.OutputConfig, results []fileResult) error {
	w := stdout
	if oc.File != "" {
		f, err := os.Create(oc.File)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	switch oc.Format {
	case outputFormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case outputFormatYAML:
		enc := yaml.NewEncoder(w)
		defer func() { _ = enc.Close() }()
		return enc.Encode(results)
	default:
		return writeText(w, results)
	}
}

func writeText(w io.Writer, results []fileResult) error {
	for i, r := range results {
		if len(results) > 1 {
			if i > 0 {
				if _, err := fmt.Fprintln(w); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintf(w, "== %s ==\n", r.File); err != nil {
				return err
			}
		}
		if r.Error != "" {
			if _, err := fmt.Fprintf(w, "error: %s\n", r.Error); err != nil {
				return err
			}
			continue
		}
		if r.Result == nil || r.Result.Text == "" {
			continue
		}
		if _, err := fmt.Fprintln(w, r.Result.Text); err != nil {
			return err
		}
	}
	return nil
}
