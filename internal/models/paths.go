package models

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Detector model file names.
const (
	PlateDetector   = "license_plate_detector.onnx"
	MessageDetector = "message_detector.onnx"
)

// TypeDetection is the subdirectory detector models live in.
const TypeDetection = "detection"

// DefaultModelsDir is used when neither a flag nor the environment names one.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "GLEAN_MODELS_DIR"

// findProjectRoot walks up from the working directory to the nearest go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("could not find project root (go.mod not found)")
}

// ModelInfo describes a bundled model.
type ModelInfo struct {
	Name        string
	Domain      string
	Description string
	Filename    string
}

// GetModelsDir returns the models directory.
// Priority: 1. explicit modelsDir, 2. GLEAN_MODELS_DIR, 3. project root + default.
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if envDir := os.Getenv(EnvModelsDir); envDir != "" {
		return envDir
	}
	if projectRoot, err := findProjectRoot(); err == nil {
		return filepath.Join(projectRoot, DefaultModelsDir)
	}
	return DefaultModelsDir
}

// ResolveModelPath prefers modelsDir/detection/filename and falls back to
// the flat modelsDir/filename layout.
func ResolveModelPath(modelsDir, filename string) string {
	baseDir := GetModelsDir(modelsDir)
	organized := filepath.Join(baseDir, TypeDetection, filename)
	if _, err := os.Stat(organized); err == nil {
		return organized
	}
	return filepath.Join(baseDir, filename)
}

// PlateDetectorPath returns the license plate detector location.
func PlateDetectorPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, PlateDetector)
}

// MessageDetectorPath returns the chat screenshot detector location.
func MessageDetectorPath(modelsDir string) string {
	return ResolveModelPath(modelsDir, MessageDetector)
}

// ValidateModelExists checks that a model file is present.
func ValidateModelExists(modelPath string) error {
	fi, err := os.Stat(modelPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}
	if err != nil {
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("model path is a directory: %s", modelPath)
	}
	return nil
}

// ListAvailableModels returns the models glean knows how to use.
func ListAvailableModels() []ModelInfo {
	return []ModelInfo{
		{
			Name:        "plate-detector",
			Domain:      "plate",
			Description: "YOLO license plate detector, row output layout",
			Filename:    PlateDetector,
		},
		{
			Name:        "message-detector",
			Domain:      "message",
			Description: "YOLO chat screenshot detector, column output layout",
			Filename:    MessageDetector,
		},
	}
}
