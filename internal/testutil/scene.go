// Package testutil builds synthetic scenes and fake engines for tests.
package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/glean/internal/detection"
	"github.com/MeKo-Tech/glean/internal/geometry"
	"github.com/MeKo-Tech/glean/internal/roles"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	bubbleHeight  = 30
	bubbleGap     = 10
	bubbleMargin  = 10
	bubblePadding = 10
)

var (
	sentColor     = color.RGBA{R: 220, G: 248, B: 198, A: 255}
	receivedColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	titleColor    = color.RGBA{R: 7, G: 94, B: 84, A: 255}
	chatBackdrop  = color.RGBA{R: 236, G: 229, B: 221, A: 255}
	plateColor    = color.RGBA{R: 245, G: 194, B: 17, A: 255}
)

// Bubble is one region of a synthetic chat screenshot. Role is RoleGroup,
// RoleSent or RoleReceived.
type Bubble struct {
	Role roles.Role
	Text string
}

// Scene is a synthetic image with the detections a detector would report
// for it and the text a recognizer should read from each region.
type Scene struct {
	Image      *image.RGBA
	Detections []detection.Detection
	// Texts maps region sizes to their text. Region sizes within a scene
	// are unique so a crop identifies its region.
	Texts map[image.Point]string
}

// Detector returns a detector reporting the scene's detections.
func (s Scene) Detector() detection.Detector {
	return detection.Static(s.Detections)
}

// Recognizer returns a LookupRecognizer answering with the scene's texts.
func (s Scene) Recognizer() *LookupRecognizer {
	r := NewLookupRecognizer()
	for size, text := range s.Texts {
		r.Set(size, text)
	}
	return r
}

// ChatScene draws a chat screenshot of the given width. Group bubbles are
// centered, received bubbles hug the left edge and sent bubbles the right.
func ChatScene(width int, bubbles []Bubble) Scene {
	height := bubbleMargin + len(bubbles)*(bubbleHeight+bubbleGap)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(chatBackdrop), image.Point{}, draw.Src)

	s := Scene{Image: img, Texts: make(map[image.Point]string)}
	y := bubbleMargin
	for _, b := range bubbles {
		w := s.uniqueWidth(min(textWidth(b.Text)+2*bubblePadding, width-2*bubbleMargin-len(bubbles)))
		var x int
		var bg color.Color
		label := "message"
		switch b.Role {
		case roles.RoleGroup:
			x, bg, label = (width-w)/2, titleColor, "group"
		case roles.RoleSent:
			x, bg = width-bubbleMargin-w, sentColor
		default:
			x, bg = bubbleMargin, receivedColor
		}

		r := image.Rect(x, y, x+w, y+bubbleHeight)
		draw.Draw(img, r, image.NewUniform(bg), image.Point{}, draw.Src)
		fg := color.Color(color.Black)
		if b.Role == roles.RoleGroup {
			fg = color.White
		}
		drawText(img, r, b.Text, fg)

		s.Detections = append(s.Detections, detection.Detection{
			Box:        geometry.FromImageRect(r),
			Confidence: 0.9,
			Label:      label,
		})
		s.Texts[r.Size()] = b.Text
		y += bubbleHeight + bubbleGap
	}
	return s
}

// PlateScene draws the plates one above the other on a grey backdrop.
// Detections carry objectness and class scores like a row-layout head.
func PlateScene(width int, plates []string) Scene {
	height := bubbleMargin + len(plates)*(bubbleHeight+bubbleGap)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Gray{Y: 90}), image.Point{}, draw.Src)

	s := Scene{Image: img, Texts: make(map[image.Point]string)}
	y := bubbleMargin
	for i, text := range plates {
		w := s.uniqueWidth(min(textWidth(text)+2*bubblePadding, width-2*bubbleMargin-len(plates)))
		x := (width - w) / 2
		r := image.Rect(x, y, x+w, y+bubbleHeight)
		draw.Draw(img, r, image.NewUniform(plateColor), image.Point{}, draw.Src)
		drawText(img, r, text, color.Black)

		d := detection.Detection{
			Box:        geometry.FromXYWH(float64(x), float64(y), float64(w), bubbleHeight),
			Confidence: 0.9 - 0.01*float64(i),
			Label:      "plate",
		}
		s.Detections = append(s.Detections, d.WithClassScore(0.8))
		s.Texts[r.Size()] = text
		y += bubbleHeight + bubbleGap
	}
	return s
}

// uniqueWidth widens w until no region of the scene has that size.
func (s Scene) uniqueWidth(w int) int {
	for {
		if _, taken := s.Texts[image.Pt(w, bubbleHeight)]; !taken {
			return w
		}
		w++
	}
}

func textWidth(text string) int {
	return font.MeasureString(basicfont.Face7x13, text).Ceil()
}

func drawText(dst draw.Image, r image.Rectangle, text string, fg color.Color) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.P(r.Min.X+bubblePadding, r.Min.Y+(r.Dy()+face.Ascent)/2),
	}
	d.DrawString(text)
}

// WritePNG encodes img to dir/name and returns the path.
func WritePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o750))
	path := filepath.Join(dir, name)
	f, err := os.Create(path) //nolint:gosec // G304: test file with controlled path
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()
	require.NoError(t, png.Encode(f, img))
	return path
}
