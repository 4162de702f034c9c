package detector

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/MeKo-Tech/glean/internal/geometry"
	"github.com/MeKo-Tech/glean/internal/mempool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ClassNames = []string{"plate"}
	// Two rows of [cx, cy, w, h, obj, cls].
	data := []float32{
		320, 320, 100, 40, 0.9, 0.8,
		10, 10, 4, 4, 0.005, 0.9,
	}
	frame := Frame{ScaleX: 2, ScaleY: 0.5}

	dets, err := Decode(data, []int64{1, 2, 6}, cfg, frame)
	require.NoError(t, err)
	require.Len(t, dets, 1)

	d := dets[0]
	assert.InDelta(t, 0.9, d.Confidence, 1e-6)
	require.NotNil(t, d.ClassScore)
	assert.InDelta(t, 0.8, *d.ClassScore, 1e-6)
	assert.Equal(t, "plate", d.Label)
	// left = (320-50)*2, top = (320-20)*0.5, width = 200, height = 20
	assert.InDelta(t, 540, d.Box.MinX, 1e-6)
	assert.InDelta(t, 150, d.Box.MinY, 1e-6)
	assert.InDelta(t, 200, d.Box.Width(), 1e-6)
	assert.InDelta(t, 20, d.Box.Height(), 1e-6)
}

func TestDecodeColumns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Layout = LayoutColumns
	cfg.ClassNames = []string{"group", "message"}
	// Channels: cx, cy, w, h, p(group), p(message); three anchors.
	data := []float32{
		100, 200, 300, // cx
		50, 60, 70, // cy
		20, 40, 10, // w
		10, 20, 10, // h
		0.1, 0.7, 0.0, // group
		0.6, 0.2, 0.0, // message
	}
	dets, err := Decode(data, []int64{1, 6, 3}, cfg, Frame{ScaleX: 1, ScaleY: 1, OffsetX: 5})
	require.NoError(t, err)
	require.Len(t, dets, 2)

	assert.Equal(t, "message", dets[0].Label)
	assert.Equal(t, 1, dets[0].Class)
	assert.InDelta(t, 0.6, dets[0].Confidence, 1e-6)
	assert.Nil(t, dets[0].ClassScore)
	assert.Equal(t, geometry.FromXYXY(95, 45, 115, 55), dets[0].Box)

	assert.Equal(t, "group", dets[1].Label)
	assert.InDelta(t, 0.7, dets[1].Confidence, 1e-6)
}

func TestDecodeRejectsBadShapes(t *testing.T) {
	cfg := DefaultConfig()
	_, err := Decode(make([]float32, 12), []int64{2, 6}, cfg, Frame{})
	require.Error(t, err)
	_, err = Decode(make([]float32, 10), []int64{1, 2, 6}, cfg, Frame{})
	require.Error(t, err)
	_, err = Decode(make([]float32, 10), []int64{1, 2, 5}, cfg, Frame{})
	require.Error(t, err)

	cfg.Layout = LayoutColumns
	_, err = Decode(make([]float32, 8), []int64{1, 4, 2}, cfg, Frame{})
	require.Error(t, err)
}

func TestLabelFallsBackToIndex(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "class_3", cfg.label(3))
}

func TestBlob(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 20, 50, 40))
	for y := 20; y < 40; y++ {
		for x := 10; x < 50; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 51, A: 255})
		}
	}
	data, frame, err := Blob(img, 8)
	require.NoError(t, err)
	defer mempool.PutFloat32(data)

	require.Len(t, data, 3*8*8)
	assert.InDelta(t, 1.0, data[0], 1e-6)
	assert.InDelta(t, 0.0, data[64], 1e-6)
	assert.InDelta(t, 0.2, data[128], 1e-6)
	assert.Equal(t, Frame{ScaleX: 5, ScaleY: 2.5, OffsetX: 10, OffsetY: 20}, frame)

	_, _, err = Blob(nil, 8)
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate(), "model path is required")

	cfg.ModelPath = "model.onnx"
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Layout = "diagonal"
	require.Error(t, bad.Validate())
	bad = cfg
	bad.InputSize = 0
	require.Error(t, bad.Validate())
	bad = cfg
	bad.ScoreFloor = 1
	require.Error(t, bad.Validate())

	l, err := ParseLayout(" Columns ")
	require.NoError(t, err)
	assert.Equal(t, LayoutColumns, l)
}

func TestNewMissingModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = t.TempDir() + "/missing.onnx"
	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model file not found")
}

func TestClosedDetector(t *testing.T) {
	y := &YOLO{config: DefaultConfig()}
	require.NoError(t, y.Close())
	_, err := y.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	require.Error(t, err)
}
