// Package geometry holds the axis-aligned box type shared by detectors,
// the detection filter and the OCR adapter, plus overlap and crop helpers.
package geometry

import (
	"fmt"
	"image"
	"math"
)

// Rect is an axis-aligned box in source image pixel coordinates.
//
// Detector backends report boxes either as (x, y, width, height) or as
// (x0, y0, x1, y1); both are normalized to Min/Max corners at the boundary
// through FromXYWH and FromXYXY.
type Rect struct {
	MinX float64 `json:"min_x" yaml:"min_x"`
	MinY float64 `json:"min_y" yaml:"min_y"`
	MaxX float64 `json:"max_x" yaml:"max_x"`
	MaxY float64 `json:"max_y" yaml:"max_y"`
}

// FromXYWH builds a Rect from a top-left corner and a size.
func FromXYWH(x, y, w, h float64) Rect {
	return Rect{MinX: x, MinY: y, MaxX: x + w, MaxY: y + h}
}

// FromXYXY builds a Rect from two corners. Coordinates are kept as given;
// an inverted box stays inverted and reports IsDegenerate.
func FromXYXY(x0, y0, x1, y1 float64) Rect {
	return Rect{MinX: x0, MinY: y0, MaxX: x1, MaxY: y1}
}

// FromCenter builds a Rect from a centre point and a size, the layout used
// by YOLO-style regression heads.
func FromCenter(cx, cy, w, h float64) Rect {
	return FromXYWH(cx-w/2, cy-h/2, w, h)
}

// FromImageRect converts an integer rectangle.
func FromImageRect(r image.Rectangle) Rect {
	return Rect{
		MinX: float64(r.Min.X),
		MinY: float64(r.Min.Y),
		MaxX: float64(r.Max.X),
		MaxY: float64(r.Max.Y),
	}
}

// Width returns the box width. It is negative for inverted boxes.
func (r Rect) Width() float64 { return r.MaxX - r.MinX }

// Height returns the box height. It is negative for inverted boxes.
func (r Rect) Height() float64 { return r.MaxY - r.MinY }

// Area returns the box area, or 0 for degenerate boxes.
func (r Rect) Area() float64 {
	if r.IsDegenerate() {
		return 0
	}
	return r.Width() * r.Height()
}

// IsDegenerate reports whether the box has zero or negative width or height.
func (r Rect) IsDegenerate() bool {
	return !(r.Width() > 0) || !(r.Height() > 0)
}

// Scale multiplies the x coordinates by sx and the y coordinates by sy.
func (r Rect) Scale(sx, sy float64) Rect {
	return Rect{MinX: r.MinX * sx, MinY: r.MinY * sy, MaxX: r.MaxX * sx, MaxY: r.MaxY * sy}
}

// Translate shifts the box by dx, dy.
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{MinX: r.MinX + dx, MinY: r.MinY + dy, MaxX: r.MaxX + dx, MaxY: r.MaxY + dy}
}

// CenterX returns the horizontal centre.
func (r Rect) CenterX() float64 { return (r.MinX + r.MaxX) / 2 }

// ToImageRect converts the box to an integer rectangle clamped to bounds.
// Fractional edges are widened outward. The result is empty when the box
// lies outside bounds or is inverted.
func (r Rect) ToImageRect(bounds image.Rectangle) image.Rectangle {
	x1 := clampInt(int(math.Floor(r.MinX)), bounds.Min.X, bounds.Max.X)
	y1 := clampInt(int(math.Floor(r.MinY)), bounds.Min.Y, bounds.Max.Y)
	x2 := clampInt(int(math.Ceil(r.MaxX)), bounds.Min.X, bounds.Max.X)
	y2 := clampInt(int(math.Ceil(r.MaxY)), bounds.Min.Y, bounds.Max.Y)
	if x2 < x1 {
		x2 = x1
	}
	if y2 < y1 {
		y2 = y1
	}
	return image.Rect(x1, y1, x2, y2)
}

func (r Rect) String() string {
	return fmt.Sprintf("[%.1f,%.1f %.1f,%.1f]", r.MinX, r.MinY, r.MaxX, r.MaxY)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
