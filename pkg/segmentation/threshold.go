package segmentation

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"nanorods/internal/models"
)

// Method selects how the local threshold surface is computed
type Method string

const (
	// MethodGaussian weights the neighborhood with a Gaussian of sigma (blockSize-1)/6
	MethodGaussian Method = "gaussian"

	// MethodMean uses the plain arithmetic mean of the blockSize x blockSize neighborhood
	MethodMean Method = "mean"
)

// gaussianTruncate is the kernel half-width in units of sigma
const gaussianTruncate = 4.0

// LocalThreshold computes a per-pixel threshold surface from a square neighborhood of side
// blockSize. The returned slice has the micrograph's shape; offset is subtracted from every value.
//
// Borders are handled by half-sample symmetric reflection (d c b a | a b c d | d c b a), so
// the threshold near the edge of the field of view is derived from real image content.
func LocalThreshold(ctx context.Context, img *models.Micrograph, blockSize int, method Method, offset float64) ([]float64, error) {
	if err := validateBlockSize(blockSize); err != nil {
		return nil, err
	}

	var kernel []float64
	switch method {
	case MethodGaussian, "":
		kernel = gaussianKernel(float64(blockSize-1) / 6.0)
	case MethodMean:
		kernel = boxKernel(blockSize)
	default:
		return nil, fmt.Errorf("%w: unknown threshold method %q", models.ErrInvalidParameter, method)
	}

	w, h := img.Width, img.Height
	radius := len(kernel) / 2

	// Horizontal pass
	tmp := make([]float64, w*h)
	ext := make([]float64, w+2*radius)
	for y := 0; y < h; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := img.Pix[y*w : (y+1)*w]
		for i := range ext {
			ext[i] = row[reflectIndex(i-radius, w)]
		}
		convolveLine(ext, kernel, tmp[y*w:(y+1)*w])
	}

	// Vertical pass
	out := make([]float64, w*h)
	ext = make([]float64, h+2*radius)
	col := make([]float64, h)
	for x := 0; x < w; x++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range ext {
			ext[i] = tmp[reflectIndex(i-radius, h)*w+x]
		}
		convolveLine(ext, kernel, col)
		for y := 0; y < h; y++ {
			out[y*w+x] = col[y] - offset
		}
	}

	return out, nil
}

// Threshold marks pixels brighter than the local threshold surface as foreground
func Threshold(img *models.Micrograph, surface []float64) *models.Mask {
	mask := models.NewMask(img.Width, img.Height)
	for i, v := range img.Pix {
		mask.Pix[i] = v > surface[i]
	}
	return mask
}

func validateBlockSize(blockSize int) error {
	if blockSize < 3 || blockSize%2 == 0 {
		return fmt.Errorf("%w: block size must be odd and >= 3, got %d", models.ErrInvalidParameter, blockSize)
	}
	return nil
}

// gaussianKernel returns a normalized 1D Gaussian truncated at gaussianTruncate sigma
func gaussianKernel(sigma float64) []float64 {
	radius := int(gaussianTruncate*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	for i := -radius; i <= radius; i++ {
		kernel[i+radius] = math.Exp(-0.5 * float64(i*i) / (sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)
	return kernel
}

func boxKernel(size int) []float64 {
	kernel := make([]float64, size)
	for i := range kernel {
		kernel[i] = 1 / float64(size)
	}
	return kernel
}

// convolveLine writes len(dst) correlation results of an already padded line
func convolveLine(ext, kernel, dst []float64) {
	for i := range dst {
		dst[i] = floats.Dot(kernel, ext[i:i+len(kernel)])
	}
}

// reflectIndex maps any integer index onto [0, n) with half-sample symmetric reflection
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}
