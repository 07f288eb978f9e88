// Package loader reads micrographs from disk.
//
// MRC files (modes 0, 1, 2 and 6) carry their own pixel size. TIFF, PNG and JPEG images are
// converted to grayscale and need the pixel size to be supplied.
package loader

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/tiff"

	"nanorods/internal/models"
)

// ErrNoPixelSize is returned when neither the file nor the caller provides a pixel size
var ErrNoPixelSize = errors.New("no pixel size available")

var extensions = map[string]bool{
	".mrc":  true,
	".tif":  true,
	".tiff": true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// IsSupported reports whether path has an extension the loader can read
func IsSupported(path string) bool {
	return extensions[strings.ToLower(filepath.Ext(path))]
}

// IsMRC reports whether path is an MRC file
func IsMRC(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".mrc")
}

// Load reads the micrograph at path. fallbackPixelSize (nm) is used for raster images and for
// MRC files whose header has no calibration. The micrograph is named after the file.
func Load(path string, fallbackPixelSize float64) (*models.Micrograph, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	name := filepath.Base(path)

	if IsMRC(path) {
		info, err := file.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat image: %w", err)
		}
		h, pix, err := ReadMRC(file, info.Size())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		pixelSize := h.PixelSize()
		if !(pixelSize > 0) {
			pixelSize = fallbackPixelSize
		}
		if !(pixelSize > 0) {
			return nil, fmt.Errorf("%s: %w", name, ErrNoPixelSize)
		}
		return models.NewMicrograph(name, h.NX, h.NY, pix, pixelSize)
	}

	if !(fallbackPixelSize > 0) {
		return nil, fmt.Errorf("%s: %w", name, ErrNoPixelSize)
	}

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return FromImage(name, img, fallbackPixelSize)
}

// FromImage converts a decoded image to a grayscale micrograph. 16-bit samples keep their range.
func FromImage(name string, img image.Image, pixelSize float64) (*models.Micrograph, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]float64, w*h)

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			row := src.Pix[off : off+w]
			for x, v := range row {
				pix[y*w+x] = float64(v)
			}
		}
	case *image.Gray16:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				pix[y*w+x] = float64(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	default:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				g := color.Gray16Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray16)
				pix[y*w+x] = float64(g.Y)
			}
		}
	}

	return models.NewMicrograph(name, w, h, pix, pixelSize)
}
