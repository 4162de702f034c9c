package geometry

import (
	"image"

	"github.com/disintegration/imaging"
)

// Crop returns the part of img covered by r and whether that part is
// non-empty. Boxes that are inverted or fall outside the image bounds yield
// (nil, false).
func Crop(img image.Image, r Rect) (image.Image, bool) {
	if img == nil || r.IsDegenerate() {
		return nil, false
	}
	rect := r.ToImageRect(img.Bounds()).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, false
	}
	return imaging.Crop(img, rect), true
}
