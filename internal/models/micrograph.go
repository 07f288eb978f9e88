package models

import (
	"fmt"
	"image"
	"sort"
)

// Micrograph represents a single electron-microscopy image with its calibration
type Micrograph struct {
	// Name is the image identifier used in the result table (usually the file name)
	Name string

	// Width and Height are the image dimensions in pixels
	Width  int
	Height int

	// Pix holds the intensities in row-major order (Pix[y*Width+x])
	Pix []float64

	// PixelSize is the physical length of one pixel in nm, same along X and Y
	PixelSize float64
}

// NewMicrograph creates a micrograph from row-major intensities
func NewMicrograph(name string, width, height int, pix []float64, pixelSize float64) (*Micrograph, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid micrograph dimensions %dx%d", width, height)
	}
	if len(pix) != width*height {
		return nil, fmt.Errorf("pixel buffer has %d values, expected %d", len(pix), width*height)
	}
	return &Micrograph{
		Name:      name,
		Width:     width,
		Height:    height,
		Pix:       pix,
		PixelSize: pixelSize,
	}, nil
}

// At returns the intensity at column x, row y
func (m *Micrograph) At(x, y int) float64 {
	return m.Pix[y*m.Width+x]
}

// MinMax returns the intensity range of the micrograph
func (m *Micrograph) MinMax() (lo, hi float64) {
	if len(m.Pix) == 0 {
		return 0, 0
	}
	lo, hi = m.Pix[0], m.Pix[0]
	for _, v := range m.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Mask is a binary foreground mask with the same shape as its micrograph
type Mask struct {
	Width  int
	Height int

	// Pix is true for foreground candidates, row-major
	Pix []bool
}

// NewMask allocates an all-background mask
func NewMask(width, height int) *Mask {
	return &Mask{Width: width, Height: height, Pix: make([]bool, width*height)}
}

// At reports whether the pixel at column x, row y is foreground
func (m *Mask) At(x, y int) bool {
	return m.Pix[y*m.Width+x]
}

// Set marks the pixel at column x, row y
func (m *Mask) Set(x, y int, v bool) {
	m.Pix[y*m.Width+x] = v
}

// Clone returns a deep copy of the mask
func (m *Mask) Clone() *Mask {
	out := NewMask(m.Width, m.Height)
	copy(out.Pix, m.Pix)
	return out
}

// Count returns the number of foreground pixels
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}

// LabelMap assigns a region id to every pixel. 0 is background.
type LabelMap struct {
	Width  int
	Height int

	// Pix holds the label ids, row-major
	Pix []int
}

// NewLabelMap allocates an all-background label map
func NewLabelMap(width, height int) *LabelMap {
	return &LabelMap{Width: width, Height: height, Pix: make([]int, width*height)}
}

// At returns the label at column x, row y
func (l *LabelMap) At(x, y int) int {
	return l.Pix[y*l.Width+x]
}

// Clone returns a deep copy of the label map
func (l *LabelMap) Clone() *LabelMap {
	out := NewLabelMap(l.Width, l.Height)
	copy(out.Pix, l.Pix)
	return out
}

// Labels returns the distinct non-zero label ids in ascending order
func (l *LabelMap) Labels() []int {
	seen := make(map[int]struct{})
	for _, v := range l.Pix {
		if v != 0 {
			seen[v] = struct{}{}
		}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Max returns the largest label id, 0 for an empty map
func (l *LabelMap) Max() int {
	max := 0
	for _, v := range l.Pix {
		if v > max {
			max = v
		}
	}
	return max
}

// Bounds returns the image rectangle covered by the label map
func (l *LabelMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, l.Width, l.Height)
}
