// Package detector runs YOLO-style object detection models through ONNX
// Runtime and decodes their output into detection.Detection values.
package detector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/glean/internal/onnx"
)

// Layout describes how a model lays out its output tensor.
type Layout string

const (
	// LayoutRows is [1, N, 5+C]: centre x, centre y, width, height,
	// objectness, then one score per class. Objectness becomes the
	// detection confidence and the best class score its ClassScore.
	LayoutRows Layout = "rows"
	// LayoutColumns is [1, 4+C, N]: centre x, centre y, width, height, then
	// one probability per class, with no objectness. The best class
	// probability becomes the confidence.
	LayoutColumns Layout = "columns"
)

// ParseLayout parses a layout name.
func ParseLayout(s string) (Layout, error) {
	switch l := Layout(strings.ToLower(strings.TrimSpace(s))); l {
	case LayoutRows, LayoutColumns:
		return l, nil
	default:
		return "", fmt.Errorf("unknown output layout %q (want rows or columns)", s)
	}
}

// Config holds configuration for one detector model.
type Config struct {
	ModelPath string `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	Layout    Layout `mapstructure:"layout" yaml:"layout" json:"layout"`
	// InputSize is the square side the model expects.
	InputSize int `mapstructure:"input_size" yaml:"input_size" json:"input_size"`
	// ClassNames labels class indices; the index is used when a name is missing.
	ClassNames []string `mapstructure:"class_names" yaml:"class_names" json:"class_names"`
	// ScoreFloor drops decoded candidates at or below this confidence before
	// they reach the detection filter.
	ScoreFloor  float64        `mapstructure:"score_floor" yaml:"score_floor" json:"score_floor"`
	NumThreads  int            `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	LibraryPath string         `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
	GPU         onnx.GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// DefaultConfig returns a 640x640 row-layout configuration.
func DefaultConfig() Config {
	return Config{
		Layout:     LayoutRows,
		InputSize:  640,
		ScoreFloor: 0.01,
		GPU:        onnx.DefaultGPUConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model path cannot be empty")
	}
	if _, err := ParseLayout(string(c.Layout)); err != nil {
		return err
	}
	if c.InputSize <= 0 {
		return fmt.Errorf("input size must be positive, got %d", c.InputSize)
	}
	if c.ScoreFloor < 0 || c.ScoreFloor >= 1 {
		return fmt.Errorf("score floor must be in [0, 1), got %f", c.ScoreFloor)
	}
	if c.NumThreads < 0 {
		return fmt.Errorf("num threads must be non-negative, got %d", c.NumThreads)
	}
	return c.GPU.Validate()
}

func (c Config) label(class int) string {
	if class >= 0 && class < len(c.ClassNames) {
		return c.ClassNames[class]
	}
	return fmt.Sprintf("class_%d", class)
}
