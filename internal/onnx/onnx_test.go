package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageTensor(t *testing.T) {
	tensor, err := NewImageTensor(make([]float32, 3*4*5), 3, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 4, 5}, tensor.Shape)
	require.NoError(t, ValidateNCHW(tensor.Shape))
	assert.Equal(t, 60, Elements(tensor.Shape))

	_, err = NewImageTensor(make([]float32, 10), 3, 4, 5)
	require.Error(t, err)
	_, err = NewImageTensor(nil, 1, 1, 1)
	require.Error(t, err)
}

func TestValidateNCHW(t *testing.T) {
	require.Error(t, ValidateNCHW([]int64{1, 3, 4}))
	require.Error(t, ValidateNCHW([]int64{1, 3, 0, 4}))
	assert.Zero(t, Elements(nil))
}

func TestGPUConfig(t *testing.T) {
	cfg := DefaultGPUConfig()
	assert.False(t, cfg.UseGPU)
	require.NoError(t, cfg.Validate())

	cfg.UseGPU = true
	cfg.MemoryLimit = 1 << 30
	require.NoError(t, cfg.Validate())
	settings := cfg.ProviderSettings()
	assert.Equal(t, "0", settings["device_id"])
	assert.Equal(t, "1073741824", settings["gpu_mem_limit"])
	assert.Equal(t, "kNextPowerOfTwo", settings["arena_extend_strategy"])

	bad := cfg
	bad.DeviceID = -1
	require.Error(t, bad.Validate())
	bad = cfg
	bad.ArenaExtendStrategy = "grow"
	require.Error(t, bad.Validate())
	bad = cfg
	bad.CUDNNConvAlgoSearch = "FAST"
	require.Error(t, bad.Validate())
}

func TestCandidateLibraryPaths(t *testing.T) {
	t.Setenv(EnvLibraryPath, "/env/libonnxruntime.so")
	paths := CandidateLibraryPaths("/explicit/lib.so", true)
	require.GreaterOrEqual(t, len(paths), 3)
	assert.Equal(t, "/explicit/lib.so", paths[0])
	assert.Equal(t, "/env/libonnxruntime.so", paths[1])
}
