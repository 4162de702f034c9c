package testutil

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/MeKo-Tech/glean/internal/ocr"
	"github.com/MeKo-Tech/glean/internal/roles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatSceneLayout(t *testing.T) {
	s := ChatScene(300, []Bubble{
		{Role: roles.RoleGroup, Text: "Family"},
		{Role: roles.RoleReceived, Text: "hi"},
		{Role: roles.RoleSent, Text: "hi"},
	})
	require.Len(t, s.Detections, 3)
	assert.Len(t, s.Texts, 3)

	assert.Equal(t, "group", s.Detections[0].Label)
	assert.InDelta(t, 10, s.Detections[1].Box.MinX, 0)
	assert.InDelta(t, 290, s.Detections[2].Box.MaxX, 0)
	assert.Less(t, s.Detections[1].Box.MinY, s.Detections[2].Box.MinY)

	for _, d := range s.Detections {
		assert.True(t, s.Image.Bounds().Eq(s.Image.Bounds().Union(d.Box.ToImageRect(s.Image.Bounds()))))
	}
}

func TestPlateSceneCarriesClassScores(t *testing.T) {
	s := PlateScene(200, []string{"AB 123", "XY 9"})
	require.Len(t, s.Detections, 2)
	for _, d := range s.Detections {
		require.NotNil(t, d.ClassScore)
		assert.Equal(t, "plate", d.Label)
	}
	assert.Greater(t, s.Detections[0].Confidence, s.Detections[1].Confidence)
}

func TestLookupRecognizer(t *testing.T) {
	r := NewLookupRecognizer().
		Set(image.Pt(40, 20), "one\ntwo").
		Fail(image.Pt(5, 5)).
		WithConfidence(0.5)

	segs, err := r.Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 40, 20)), ocr.Options{Paragraph: true})
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "two", segs[1].Text)
	assert.InDelta(t, 10, segs[1].Box.MinY, 0)
	require.NotNil(t, segs[0].Confidence)

	_, err = r.Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 5, 5)), ocr.Options{})
	assert.True(t, errors.Is(err, ErrEngineFailure))

	segs, err = r.Recognize(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)), ocr.Options{})
	require.NoError(t, err)
	assert.Empty(t, segs)

	assert.Len(t, r.Calls(), 3)
	assert.True(t, r.Options()[0].Paragraph)
	require.NoError(t, r.Close())
	assert.True(t, r.Closed())
}

func TestWritePNG(t *testing.T) {
	s := PlateScene(120, []string{"K 1"})
	path := WritePNG(t, t.TempDir(), "plate.png", s.Image)
	assert.FileExists(t, path)
}
