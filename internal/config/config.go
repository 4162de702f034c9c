//nolint:lll
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/MeKo-Tech/glean/internal/assembler"
	"github.com/MeKo-Tech/glean/internal/detection"
	"github.com/MeKo-Tech/glean/internal/detector"
	"github.com/MeKo-Tech/glean/internal/models"
	"github.com/MeKo-Tech/glean/internal/ocr"
	"github.com/MeKo-Tech/glean/internal/onnx"
	"github.com/MeKo-Tech/glean/internal/pipeline"
	"github.com/MeKo-Tech/glean/internal/roles"
)

// Config is the complete glean configuration. It is loaded from a config
// file, GLEAN_* environment variables and command-line flags.
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// OCR engine settings
	OCR OCRConfig `mapstructure:"ocr" yaml:"ocr" json:"ocr"`

	// Orchestrator settings
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`

	// Per-domain settings
	Plate   DomainConfig  `mapstructure:"plate" yaml:"plate" json:"plate"`
	Message DomainConfig  `mapstructure:"message" yaml:"message" json:"message"`
	Generic GenericConfig `mapstructure:"generic" yaml:"generic" json:"generic"`

	Output OutputConfig   `mapstructure:"output" yaml:"output" json:"output"`
	Batch  BatchConfig    `mapstructure:"batch" yaml:"batch" json:"batch"`
	GPU    onnx.GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`

	// OnnxRuntimeLib points at the ONNX Runtime shared library.
	OnnxRuntimeLib string `mapstructure:"onnxruntime_lib" yaml:"onnxruntime_lib" json:"onnxruntime_lib"`
	// MetricsFile receives Prometheus text-format metrics after a run.
	MetricsFile string `mapstructure:"metrics_file" yaml:"metrics_file" json:"metrics_file"`
}

// OCRConfig contains Tesseract settings.
type OCRConfig struct {
	Language       string `mapstructure:"language" yaml:"language" json:"language"`
	TessdataPrefix string `mapstructure:"tessdata_prefix" yaml:"tessdata_prefix" json:"tessdata_prefix"`
	Whitelist      string `mapstructure:"whitelist" yaml:"whitelist" json:"whitelist"`
	// PoolSize is the number of engine handles; each runs one region at a time.
	PoolSize int `mapstructure:"pool_size" yaml:"pool_size" json:"pool_size"`
}

// PipelineConfig contains orchestrator settings.
type PipelineConfig struct {
	Workers           int  `mapstructure:"workers" yaml:"workers" json:"workers"`
	SkipFailedRegions bool `mapstructure:"skip_failed_regions" yaml:"skip_failed_regions" json:"skip_failed_regions"`
}

// DomainConfig contains the detector model and assembly settings of one domain.
type DomainConfig struct {
	ModelPath  string   `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	Layout     string   `mapstructure:"layout" yaml:"layout" json:"layout"`
	InputSize  int      `mapstructure:"input_size" yaml:"input_size" json:"input_size"`
	ClassNames []string `mapstructure:"class_names" yaml:"class_names" json:"class_names"`
	ScoreFloor float64  `mapstructure:"score_floor" yaml:"score_floor" json:"score_floor"`
	NumThreads int      `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`

	Filter detection.FilterConfig `mapstructure:"filter" yaml:"filter" json:"filter"`

	Join             string            `mapstructure:"join" yaml:"join" json:"join"`
	Scale            float64           `mapstructure:"scale" yaml:"scale" json:"scale"`
	ToleranceDivisor float64           `mapstructure:"tolerance_divisor" yaml:"tolerance_divisor" json:"tolerance_divisor"`
	Classes          map[string]string `mapstructure:"classes" yaml:"classes,omitempty" json:"classes,omitempty"`
}

// GenericConfig contains settings for detector-less reads.
type GenericConfig struct {
	Paragraph        bool    `mapstructure:"paragraph" yaml:"paragraph" json:"paragraph"`
	ToleranceDivisor float64 `mapstructure:"tolerance_divisor" yaml:"tolerance_divisor" json:"tolerance_divisor"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format     string            `mapstructure:"format" yaml:"format" json:"format"`
	File       string            `mapstructure:"file" yaml:"file" json:"file"`
	OverlayDir string            `mapstructure:"overlay_dir" yaml:"overlay_dir" json:"overlay_dir"`
	Palette    map[string]string `mapstructure:"palette" yaml:"palette,omitempty" json:"palette,omitempty"`
}

// BatchConfig contains multi-image settings.
type BatchConfig struct {
	Workers         int  `mapstructure:"workers" yaml:"workers" json:"workers"`
	ContinueOnError bool `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
}

// Output formats accepted by the CLI.
var (
	validLogLevels = []string{"debug", "info", "warn", "error"}
	validFormats   = []string{"text", "json", "yaml"}
)

// DefaultConfig returns a configuration with the thresholds the bundled
// models were tuned for.
func DefaultConfig() Config {
	pc := pipeline.DefaultConfig()
	return Config{
		ModelsDir: models.DefaultModelsDir,
		LogLevel:  "info",
		OCR: OCRConfig{
			Language: ocr.DefaultLanguage,
			PoolSize: 1,
		},
		Pipeline: PipelineConfig{
			Workers: pc.Workers,
		},
		Plate:   defaultDomainConfig(pc.Plate, detector.LayoutRows, []string{"plate"}),
		Message: defaultDomainConfig(pc.Message, detector.LayoutColumns, []string{"group", "message"}),
		Generic: GenericConfig{
			Paragraph:        pc.Generic.Paragraph,
			ToleranceDivisor: pc.Generic.ToleranceDivisor,
		},
		Output: OutputConfig{Format: "text"},
		Batch:  BatchConfig{Workers: 1},
		GPU:    onnx.DefaultGPUConfig(),
	}
}

func defaultDomainConfig(dc pipeline.DomainConfig, layout detector.Layout, classes []string) DomainConfig {
	det := detector.DefaultConfig()
	return DomainConfig{
		Layout:           string(layout),
		InputSize:        det.InputSize,
		ClassNames:       classes,
		ScoreFloor:       det.ScoreFloor,
		Filter:           dc.Filter,
		Join:             dc.Join.String(),
		Scale:            dc.Scale,
		ToleranceDivisor: dc.ToleranceDivisor,
		Classes:          dc.Classes,
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains(validLogLevels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", ")))
	}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		errs = append(errs, fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", ")))
	}
	if _, err := ocr.ResolveLanguage(c.OCR.Language); err != nil {
		errs = append(errs, fmt.Errorf("ocr language: %w", err))
	}
	if c.OCR.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("invalid ocr pool size: %d (must be positive)", c.OCR.PoolSize))
	}
	if c.Batch.Workers < 0 {
		errs = append(errs, fmt.Errorf("invalid batch workers: %d (must be non-negative)", c.Batch.Workers))
	}
	for name, dc := range map[string]DomainConfig{"plate": c.Plate, "message": c.Message} {
		if err := dc.validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	for role := range c.Output.Palette {
		if _, err := roles.ParseRole(role); err != nil {
			errs = append(errs, fmt.Errorf("output palette: %w", err))
		}
	}
	if err := c.GPU.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("gpu: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	pc := c.ToPipelineConfig()
	return pc.Validate()
}

func (d DomainConfig) validate() error {
	var errs []error
	if _, err := detector.ParseLayout(d.Layout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ocr.ParseJoinMode(d.Join); err != nil {
		errs = append(errs, err)
	}
	if d.InputSize <= 0 {
		errs = append(errs, fmt.Errorf("invalid input size: %d (must be positive)", d.InputSize))
	}
	if err := validateThreshold(d.ScoreFloor, "score_floor"); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ToPipelineConfig converts the config to the orchestrator configuration.
// Call Validate first; unparsable join modes fall back to their defaults.
func (c *Config) ToPipelineConfig() pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.Language = c.OCR.Language
	if lang, err := ocr.ResolveLanguage(c.OCR.Language); err == nil {
		pc.Language = lang
	}
	pc.Workers = c.Pipeline.Workers
	pc.SkipFailedRegions = c.Pipeline.SkipFailedRegions
	pc.Plate = c.Plate.toPipeline(pc.Plate)
	pc.Message = c.Message.toPipeline(pc.Message)
	pc.Generic = pipeline.GenericConfig{
		Paragraph:        c.Generic.Paragraph,
		ToleranceDivisor: orDefault(c.Generic.ToleranceDivisor, assembler.DefaultToleranceDivisor),
	}
	return pc
}

func (d DomainConfig) toPipeline(def pipeline.DomainConfig) pipeline.DomainConfig {
	out := def
	out.Filter = d.Filter
	if j, err := ocr.ParseJoinMode(d.Join); err == nil {
		out.Join = j
	}
	out.Scale = d.Scale
	out.ToleranceDivisor = orDefault(d.ToleranceDivisor, assembler.DefaultToleranceDivisor)
	if len(d.Classes) > 0 {
		out.Classes = d.Classes
	}
	return out
}

// ToDetectorConfig converts the settings of domain d to a detector configuration.
// An empty model path resolves to the bundled model under ModelsDir.
func (c *Config) ToDetectorConfig(d pipeline.Domain) (detector.Config, error) {
	var (
		dc   DomainConfig
		path string
	)
	switch d {
	case pipeline.DomainPlate:
		dc, path = c.Plate, models.PlateDetectorPath(c.ModelsDir)
	case pipeline.DomainMessage:
		dc, path = c.Message, models.MessageDetectorPath(c.ModelsDir)
	default:
		return detector.Config{}, fmt.Errorf("domain %s has no detector", d)
	}
	if dc.ModelPath != "" {
		path = dc.ModelPath
	}
	layout, err := detector.ParseLayout(dc.Layout)
	if err != nil {
		return detector.Config{}, err
	}

	cfg := detector.DefaultConfig()
	cfg.ModelPath = path
	cfg.Layout = layout
	cfg.InputSize = dc.InputSize
	cfg.ClassNames = dc.ClassNames
	cfg.ScoreFloor = dc.ScoreFloor
	cfg.NumThreads = dc.NumThreads
	cfg.LibraryPath = c.OnnxRuntimeLib
	cfg.GPU = c.GPU
	return cfg, nil
}

// ToTesseractConfig returns the engine settings.
func (c *Config) ToTesseractConfig() ocr.TesseractConfig {
	return ocr.TesseractConfig{
		TessdataPrefix: c.OCR.TessdataPrefix,
		Whitelist:      c.OCR.Whitelist,
	}
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// validateThreshold validates that a value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %.2f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}
