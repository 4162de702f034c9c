package detector

import (
	"errors"
	"image"

	"github.com/MeKo-Tech/glean/internal/mempool"
	"github.com/disintegration/imaging"
)

// Blob stretches img to size x size and writes it as RGB planes scaled to
// [0, 1] in NCHW order. The returned buffer comes from mempool and should be
// released with mempool.PutFloat32.
func Blob(img image.Image, size int) ([]float32, Frame, error) {
	if img == nil {
		return nil, Frame{}, errors.New("input image is nil")
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, Frame{}, errors.New("input image is empty")
	}

	resized := imaging.Resize(img, size, size, imaging.Linear)
	plane := size * size
	data := mempool.GetFloat32(3 * plane)

	const inv = 1.0 / 255.0
	pix := resized.Pix
	for y := range size {
		row := pix[y*resized.Stride : y*resized.Stride+size*4]
		for x := range size {
			i := y*size + x
			data[i] = float32(row[x*4]) * inv
			data[plane+i] = float32(row[x*4+1]) * inv
			data[2*plane+i] = float32(row[x*4+2]) * inv
		}
	}

	frame := Frame{
		ScaleX:  float64(b.Dx()) / float64(size),
		ScaleY:  float64(b.Dy()) / float64(size),
		OffsetX: float64(b.Min.X),
		OffsetY: float64(b.Min.Y),
	}
	return data, frame, nil
}
