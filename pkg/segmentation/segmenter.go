// Package segmentation turns a grayscale micrograph into a binary foreground mask using
// adaptive local thresholding followed by binary morphological cleanup.
package segmentation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"nanorods/internal/models"
)

// Params holds the segmentation parameters
type Params struct {
	// BlockSize is the side of the square neighborhood used for the local threshold.
	// Must be odd and at least 3.
	BlockSize int `yaml:"blockSize"`

	// Method selects the local threshold weighting (gaussian or mean)
	Method Method `yaml:"method"`

	// Offset is subtracted from the local threshold
	Offset float64 `yaml:"offset"`

	// Erosions is the number of binary erosions applied after thresholding
	Erosions int `yaml:"erosions"`

	// Dilations is the number of binary dilations applied after small object removal
	Dilations int `yaml:"dilations"`

	// MinObjectPx removes connected components with fewer pixels than this
	MinObjectPx int `yaml:"minObjectPx"`

	// MinHolePx fills holes with fewer pixels than this
	MinHolePx int `yaml:"minHolePx"`
}

// DefaultParams returns the parameters tuned for nanorod micrographs
func DefaultParams() Params {
	return Params{
		BlockSize:   301,
		Method:      MethodGaussian,
		Offset:      0,
		Erosions:    1,
		Dilations:   5,
		MinObjectPx: 2000,
		MinHolePx:   500,
	}
}

// Validate checks the parameters before any pixel is touched
func (p Params) Validate() error {
	if err := validateBlockSize(p.BlockSize); err != nil {
		return err
	}
	switch p.Method {
	case MethodGaussian, MethodMean, "":
	default:
		return fmt.Errorf("%w: unknown threshold method %q", models.ErrInvalidParameter, p.Method)
	}
	if p.Erosions < 0 || p.Dilations < 0 {
		return fmt.Errorf("%w: erosions and dilations must be non-negative (got %d, %d)",
			models.ErrInvalidParameter, p.Erosions, p.Dilations)
	}
	if p.MinObjectPx < 0 || p.MinHolePx < 0 {
		return fmt.Errorf("%w: size thresholds must be non-negative (got %d, %d)",
			models.ErrInvalidParameter, p.MinObjectPx, p.MinHolePx)
	}
	return nil
}

// Segment runs the full segmentation chain:
// 1. Local adaptive threshold
// 2. Erosion to cut thin noise bridges
// 3. Small object removal
// 4. Dilation to restore particle bodies
// 5. Small hole filling
func Segment(ctx context.Context, img *models.Micrograph, p Params, log zerolog.Logger) (*models.Mask, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	surface, err := LocalThreshold(ctx, img, p.BlockSize, p.Method, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("local threshold: %w", err)
	}
	mask := Threshold(img, surface)
	log.Debug().Int("foreground", mask.Count()).Msg("thresholded")

	mask = Erode(mask, p.Erosions)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mask = RemoveSmallObjects(mask, p.MinObjectPx)
	log.Debug().Int("foreground", mask.Count()).Msg("small objects removed")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mask = Dilate(mask, p.Dilations)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mask = RemoveSmallHoles(mask, p.MinHolePx)
	log.Debug().Int("foreground", mask.Count()).Msg("segmentation done")

	return mask, nil
}
