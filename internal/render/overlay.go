// Package render draws pipeline results over the source image for review.
package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/MeKo-Tech/glean/internal/pipeline"
	"github.com/MeKo-Tech/glean/internal/roles"
	"github.com/MeKo-Tech/glean/internal/utils"
	"github.com/lucasb-eyer/go-colorful"
)

// Palette maps roles to outline colors.
type Palette map[roles.Role]color.Color

// DefaultPalette returns evenly spaced, well separated hues per role.
func DefaultPalette() Palette {
	hex := map[roles.Role]string{
		roles.RolePlate:    "#f5c211",
		roles.RoleSent:     "#2ec27e",
		roles.RoleReceived: "#3584e4",
		roles.RoleGroup:    "#c061cb",
		roles.RoleApp:      "#e66100",
		roles.RoleMessage:  "#9a9996",
		roles.RoleUnknown:  "#e01b24",
	}
	p := make(Palette, len(hex))
	for r, h := range hex {
		c, err := colorful.Hex(h)
		if err != nil {
			panic(fmt.Sprintf("bad palette color %q: %v", h, err))
		}
		p[r] = c
	}
	return p
}

// ParsePalette overrides roles of base with "#rrggbb" colors keyed by role name.
func ParsePalette(base Palette, overrides map[string]string) (Palette, error) {
	out := make(Palette, len(base)+len(overrides))
	for r, c := range base {
		out[r] = c
	}
	for name, h := range overrides {
		r, err := roles.ParseRole(name)
		if err != nil {
			return nil, err
		}
		c, err := colorful.Hex(h)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", name, err)
		}
		out[r] = c
	}
	return out, nil
}

// Options controls Overlay.
type Options struct {
	Palette   Palette
	Thickness int
	// Labels draws the role and confidence above every box.
	Labels bool
}

// DefaultOptions returns labeled 2px outlines in DefaultPalette.
func DefaultOptions() Options {
	return Options{Palette: DefaultPalette(), Thickness: 2, Labels: true}
}

// Overlay returns an RGBA copy of img with every fragment box of res drawn
// on it. A nil result only copies the image.
func Overlay(img image.Image, res *pipeline.Result, opts Options) *image.RGBA {
	if img == nil {
		return nil
	}
	dst := utils.ToRGBA(img)
	if res == nil {
		return dst
	}
	if opts.Palette == nil {
		opts.Palette = DefaultPalette()
	}
	origin := img.Bounds().Min

	for _, f := range res.Fragments {
		col := opts.colorFor(f.Role)
		rect := f.Detection.Box.ToImageRect(img.Bounds()).Sub(origin)
		utils.DrawRect(dst, rect, col, opts.Thickness)
		if !opts.Labels || rect.Empty() {
			continue
		}
		utils.DrawLabel(dst, image.Pt(rect.Min.X, rect.Min.Y-utils.LabelHeight),
			labelText(f), textColorOn(col), col)
	}
	return dst
}

func (o Options) colorFor(r roles.Role) color.Color {
	if c, ok := o.Palette[r]; ok {
		return c
	}
	return o.Palette[roles.RoleUnknown]
}

func labelText(f roles.Fragment) string {
	if f.Confidence == nil {
		return f.Role.String()
	}
	return fmt.Sprintf("%s %.0f%%", f.Role, *f.Confidence*100)
}

// textColorOn picks black or white text for legibility on bg.
func textColorOn(bg color.Color) color.Color {
	c, ok := colorful.MakeColor(bg)
	if !ok {
		return color.White
	}
	l, _, _ := c.Lab()
	if l > 0.6 {
		return color.Black
	}
	return color.White
}
