// Package visualization renders the per-image overlay of detected nanorods.
//
// The overlay has two panels side by side. The left one shows the selected particles in
// their label colors over the micrograph, each annotated with its id at the centroid. The
// right one shows the original micrograph with the particle outlines in red.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"strconv"

	"github.com/anthonynsimon/bild/blend"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"nanorods/internal/models"
	"nanorods/pkg/regionprops"
)

const titleHeight = 20

// Options controls the overlay rendering
type Options struct {
	// LabelOpacity is the weight of the particle colors over the micrograph, in [0, 1]
	LabelOpacity float64 `yaml:"labelOpacity"`

	// MaxWidth downsizes wider overlays keeping the aspect ratio, 0 keeps the native size
	MaxWidth int `yaml:"maxWidth"`

	// Titles adds a caption bar above each panel
	Titles bool `yaml:"titles"`
}

// DefaultOptions returns the rendering options used by the batch analyzer
func DefaultOptions() Options {
	return Options{
		LabelOpacity: 1.0,
		MaxWidth:     0,
		Titles:       true,
	}
}

var (
	contourColor = color.RGBA{R: 255, A: 255}
	textColor    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	titleBack    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	titleText    = color.RGBA{A: 255}
)

// Renderer draws overlays for one micrograph at a time
type Renderer struct {
	opts Options
}

// NewRenderer creates a renderer with the given options
func NewRenderer(opts Options) (*Renderer, error) {
	if opts.LabelOpacity < 0 || opts.LabelOpacity > 1 {
		return nil, fmt.Errorf("%w: label opacity must be in [0, 1], got %v", models.ErrInvalidParameter, opts.LabelOpacity)
	}
	if opts.MaxWidth < 0 {
		return nil, fmt.Errorf("%w: max width must be non-negative, got %d", models.ErrInvalidParameter, opts.MaxWidth)
	}
	return &Renderer{opts: opts}, nil
}

// Render builds the two panel overlay
func (r *Renderer) Render(img *models.Micrograph, labels *models.LabelMap, regions []regionprops.Region) (image.Image, error) {
	if bounds := image.Rect(0, 0, img.Width, img.Height); labels.Bounds() != bounds {
		return nil, fmt.Errorf("label map %v does not match micrograph %v", labels.Bounds(), bounds)
	}

	gray := Grayscale(img)

	left := blend.Opacity(gray, colorize(gray, labels), r.opts.LabelOpacity)
	for _, reg := range regions {
		drawText(left, int(reg.CentroidCol+0.5), int(reg.CentroidRow+0.5), strconv.Itoa(reg.Label), textColor)
	}

	right := Contours(gray, labels)

	top := 0
	if r.opts.Titles {
		top = titleHeight
	}
	w, h := img.Width, img.Height
	canvas := imaging.New(2*w, h+top, color.White)
	canvas = imaging.Paste(canvas, left, image.Pt(0, top))
	canvas = imaging.Paste(canvas, right, image.Pt(w, top))

	if r.opts.Titles {
		drawTitle(canvas, image.Rect(0, 0, w, top), "Selected objects")
		drawTitle(canvas, image.Rect(w, 0, 2*w, top), "Original")
	}

	if r.opts.MaxWidth > 0 && canvas.Bounds().Dx() > r.opts.MaxWidth {
		return imaging.Resize(canvas, r.opts.MaxWidth, 0, imaging.Lanczos), nil
	}
	return canvas, nil
}

// Save writes an image, creating the parent directory. The format follows the extension.
func Save(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save overlay: %w", err)
	}
	return nil
}

// Grayscale maps the micrograph intensity range onto 8-bit gray
func Grayscale(img *models.Micrograph) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, img.Width, img.Height))
	lo, hi := img.MinMax()
	scale := 0.0
	if hi > lo {
		scale = 255 / (hi - lo)
	}
	for i, v := range img.Pix {
		out.Pix[i] = uint8((v-lo)*scale + 0.5)
	}
	return out
}

// colorize paints labeled pixels in their palette color and keeps the micrograph elsewhere
func colorize(gray *image.Gray, labels *models.LabelMap) *image.RGBA {
	out := image.NewRGBA(gray.Bounds())
	draw.Draw(out, out.Bounds(), gray, image.Point{}, draw.Src)
	for i, id := range labels.Pix {
		if id == 0 {
			continue
		}
		c := LabelColor(id)
		copy(out.Pix[4*i:4*i+4], []uint8{c.R, c.G, c.B, c.A})
	}
	return out
}

// Contours draws the outline of every labeled region in red over the micrograph. A pixel is
// on the outline when a 4-neighbor carries another label.
func Contours(gray *image.Gray, labels *models.LabelMap) *image.RGBA {
	out := image.NewRGBA(gray.Bounds())
	draw.Draw(out, out.Bounds(), gray, image.Point{}, draw.Src)

	w, h := labels.Width, labels.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			id := labels.Pix[y*w+x]
			if id == 0 {
				continue
			}
			edge := (x > 0 && labels.Pix[y*w+x-1] != id) ||
				(x < w-1 && labels.Pix[y*w+x+1] != id) ||
				(y > 0 && labels.Pix[(y-1)*w+x] != id) ||
				(y < h-1 && labels.Pix[(y+1)*w+x] != id)
			if edge {
				out.SetRGBA(x, y, contourColor)
			}
		}
	}
	return out
}

func drawText(dst draw.Image, x, y int, text string, col color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func drawTitle(dst draw.Image, area image.Rectangle, text string) {
	draw.Draw(dst, area, image.NewUniform(titleBack), image.Point{}, draw.Src)
	width := font.MeasureString(basicfont.Face7x13, text).Ceil()
	x := area.Min.X + (area.Dx()-width)/2
	if x < area.Min.X {
		x = area.Min.X
	}
	// basicfont glyphs sit 11 pixels above the baseline
	y := area.Min.Y + (area.Dy()+11)/2
	drawText(dst, x, y, text, titleText)
}
