package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MeKo-Tech/glean/internal/detection"
	"github.com/MeKo-Tech/glean/internal/mempool"
	"github.com/MeKo-Tech/glean/internal/onnx"
	"github.com/yalue/onnxruntime_go"
)

// YOLO is a detection.Detector backed by an ONNX Runtime session.
// Inference calls on one YOLO are serialized.
type YOLO struct {
	config     Config
	session    *onnxruntime_go.DynamicAdvancedSession
	inputInfo  onnxruntime_go.InputOutputInfo
	outputInfo onnxruntime_go.InputOutputInfo
	mu         sync.Mutex
}

var _ detection.Detector = (*YOLO)(nil)

// New loads the model described by cfg.
func New(cfg Config) (*YOLO, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s: %w", cfg.ModelPath, err)
	}

	slog.Debug("Initializing detector",
		"model_path", cfg.ModelPath,
		"layout", cfg.Layout,
		"input_size", cfg.InputSize,
		"gpu_enabled", cfg.GPU.UseGPU)

	if err := onnx.Initialize(cfg.LibraryPath, cfg.GPU.UseGPU); err != nil {
		return nil, err
	}

	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("expected 1 input and 1 output, got %d and %d", len(inputs), len(outputs))
	}
	if len(inputs[0].Dimensions) != 4 {
		return nil, fmt.Errorf("expected 4D input tensor, got %dD", len(inputs[0].Dimensions))
	}

	session, err := createSession(cfg, inputs[0], outputs[0])
	if err != nil {
		return nil, err
	}

	slog.Debug("Detector initialized", "input", inputs[0].Name, "output", outputs[0].Name)
	return &YOLO{config: cfg, session: session, inputInfo: inputs[0], outputInfo: outputs[0]}, nil
}

func createSession(cfg Config, in, out onnxruntime_go.InputOutputInfo) (*onnxruntime_go.DynamicAdvancedSession, error) {
	opts, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("Failed to destroy session options", "error", err)
		}
	}()

	if err := onnx.ConfigureSession(opts, cfg.GPU); err != nil {
		return nil, fmt.Errorf("failed to configure GPU: %w", err)
	}
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := onnxruntime_go.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{in.Name}, []string{out.Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return session, nil
}

// Detect runs the model on img and decodes every candidate above the score
// floor. Thresholding and NMS are left to detection.Filter.
func (y *YOLO) Detect(ctx context.Context, img image.Image) ([]detection.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	size := y.config.InputSize
	data, frame, err := Blob(img, size)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}
	defer mempool.PutFloat32(data)

	tensor, err := onnx.NewImageTensor(data, 3, size, size)
	if err != nil {
		return nil, err
	}

	out, shape, err := y.infer(tensor)
	if err != nil {
		return nil, err
	}

	dets, err := Decode(out, shape, y.config, frame)
	if err != nil {
		return nil, fmt.Errorf("failed to decode output: %w", err)
	}

	slog.Debug("Detector inference done",
		"candidates", len(dets),
		"duration_ms", time.Since(start).Milliseconds())
	return dets, nil
}

func (y *YOLO) infer(tensor onnx.Tensor) ([]float32, []int64, error) {
	y.mu.Lock()
	defer y.mu.Unlock()

	if y.session == nil {
		return nil, nil, errors.New("detector session is closed")
	}

	input, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(tensor.Shape...), tensor.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := input.Destroy(); err != nil {
			slog.Warn("Failed to destroy input tensor", "error", err)
		}
	}()

	outputs := []onnxruntime_go.Value{nil}
	if err := y.session.Run([]onnxruntime_go.Value{input}, outputs); err != nil {
		return nil, nil, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		if err := outputs[0].Destroy(); err != nil {
			slog.Warn("Failed to destroy output tensor", "error", err)
		}
	}()

	ft, ok := outputs[0].(*onnxruntime_go.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("expected float32 tensor, got %T", outputs[0])
	}
	// Output memory belongs to the tensor and is freed on Destroy.
	raw := ft.GetData()
	data := make([]float32, len(raw))
	copy(data, raw)
	shape := []int64(ft.GetShape())
	return data, append([]int64(nil), shape...), nil
}

// Info describes the loaded model.
func (y *YOLO) Info() map[string]any {
	return map[string]any{
		"model_path":   y.config.ModelPath,
		"layout":       string(y.config.Layout),
		"input_size":   y.config.InputSize,
		"input_name":   y.inputInfo.Name,
		"output_name":  y.outputInfo.Name,
		"input_shape":  y.inputInfo.Dimensions,
		"output_shape": y.outputInfo.Dimensions,
		"class_names":  y.config.ClassNames,
		"gpu_enabled":  y.config.GPU.UseGPU,
	}
}

// Close releases the session.
func (y *YOLO) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.session == nil {
		return nil
	}
	err := y.session.Destroy()
	y.session = nil
	return err
}
