// Package overlay renders diagnostic images: the analysed slice in
// grayscale with the ROIs, landmarks and labels a measurement used drawn on
// top, so a result can be checked by eye.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"phantomqa/internal/models"
	"phantomqa/pkg/geometry"
	"phantomqa/pkg/qaerr"
)

// Palette used by the task renderers.
var (
	Green   = color.RGBA{0, 220, 0, 255}
	Red     = color.RGBA{230, 30, 30, 255}
	Blue    = color.RGBA{40, 90, 255, 255}
	Yellow  = color.RGBA{240, 220, 0, 255}
	Cyan    = color.RGBA{0, 220, 220, 255}
	Magenta = color.RGBA{220, 0, 220, 255}
)

// Canvas is an RGBA copy of a slice that marks can be drawn on. Coordinates
// are image pixels in RowCol.
type Canvas struct {
	img *image.RGBA
}

// NewCanvas windows s linearly from its minimum to its maximum into 8-bit
// gray.
func NewCanvas(s *models.Slice) (*Canvas, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, s.Cols, s.Rows))
	lo, hi := s.MinMax()
	span := hi - lo
	for r := 0; r < s.Rows; r++ {
		for c := 0; c < s.Cols; c++ {
			var g uint8
			if span > 0 {
				g = uint8(math.Round(255 * (s.At(r, c) - lo) / span))
			}
			img.SetRGBA(c, r, color.RGBA{g, g, g, 255})
		}
	}
	return &Canvas{img: img}, nil
}

// Image returns the canvas.
func (cv *Canvas) Image() image.Image { return cv.img }

func (cv *Canvas) set(r, c int, col color.Color) {
	if image.Pt(c, r).In(cv.img.Rect) {
		cv.img.Set(c, r, col)
	}
}

// Outline draws the boundary pixels of m: mask pixels with a 4-neighbour
// outside the mask or the image.
func (cv *Canvas) Outline(m geometry.Mask, col color.Color) {
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			if !m.At(r, c) {
				continue
			}
			if !m.At(r-1, c) || !m.At(r+1, c) || !m.At(r, c-1) || !m.At(r, c+1) {
				cv.set(r, c, col)
			}
		}
	}
}

// Tint blends col half and half into every pixel of m.
func (cv *Canvas) Tint(m geometry.Mask, col color.Color) {
	cr, cg, cb, _ := col.RGBA()
	for _, p := range m.Coords() {
		r, c := int(p[0]), int(p[1])
		if !image.Pt(c, r).In(cv.img.Rect) {
			continue
		}
		old := cv.img.RGBAAt(c, r)
		cv.img.SetRGBA(c, r, color.RGBA{
			R: uint8((uint32(old.R) + cr>>8) / 2),
			G: uint8((uint32(old.G) + cg>>8) / 2),
			B: uint8((uint32(old.B) + cb>>8) / 2),
			A: 255,
		})
	}
}

// Marker draws a cross of the given half size centred on p (RowCol).
func (cv *Canvas) Marker(p geometry.Point, half int, col color.Color) {
	r, c := int(math.Round(p[0])), int(math.Round(p[1]))
	for d := -half; d <= half; d++ {
		cv.set(r+d, c, col)
		cv.set(r, c+d, col)
	}
}

// Rect draws the border of the rows [r0, r1) x cols [c0, c1) box.
func (cv *Canvas) Rect(r0, c0, r1, c1 int, col color.Color) {
	for c := c0; c < c1; c++ {
		cv.set(r0, c, col)
		cv.set(r1-1, c, col)
	}
	for r := r0; r < r1; r++ {
		cv.set(r, c0, col)
		cv.set(r, c1-1, col)
	}
}

// Label writes text with its top-left corner at p (RowCol).
func (cv *Canvas) Label(p geometry.Point, text string, col color.Color) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  cv.img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(int(p[1]), int(p[0])+face.Ascent),
	}
	d.DrawString(text)
}

// Scaled returns the canvas enlarged by an integer factor with nearest
// neighbour sampling so single-pixel marks stay crisp.
func (cv *Canvas) Scaled(factor int) image.Image {
	if factor <= 1 {
		return cv.img
	}
	b := cv.img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), cv.img, b, draw.Src, nil)
	return dst
}

// Save encodes img to path as PNG or JPEG, creating parent directories.
func Save(img image.Image, path, format string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create overlay directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(format) {
	case "png":
		return png.Encode(f, img)
	case "jpeg", "jpg":
		return jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	default:
		return qaerr.InvalidInput("unsupported overlay format %q", format)
	}
}
