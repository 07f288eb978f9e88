// Package analysis runs the nanorod extraction pipeline on single micrographs and on
// whole acquisition folders.
//
// The per-image pipeline consists of:
// 1. Adaptive segmentation and morphological cleanup
// 2. Distance transform watershed splitting of touching particles
// 3. Shape filtering
// 4. Geometry validity filtering and dense relabeling
// 5. Region measurement, length correction and tabulation
package analysis

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"nanorods/internal/models"
	"nanorods/pkg/filters"
	"nanorods/pkg/geometry"
	"nanorods/pkg/measurement"
	"nanorods/pkg/regionprops"
	"nanorods/pkg/segmentation"
	"nanorods/pkg/watershed"
)

// Options holds the per-image pipeline parameters
type Options struct {
	// Segmentation controls thresholding and morphological cleanup
	Segmentation segmentation.Params

	// SeedFraction is the fraction of the largest distance used to place watershed seeds
	SeedFraction float64

	// Filters are applied in order after splitting
	Filters filters.Chain

	// OffsetNm is the tip-to-tip offset subtracted from the caliper diameter
	OffsetNm float64

	// PixelSize overrides the micrograph calibration when positive (nm)
	PixelSize float64
}

// DefaultOptions returns the pipeline used for reference nanorod batches
func DefaultOptions() Options {
	return Options{
		Segmentation: segmentation.DefaultParams(),
		SeedFraction: watershed.DefaultSeedFraction,
		Filters:      filters.DefaultChain(),
		OffsetNm:     geometry.DefaultOffsetNm,
	}
}

// Validate checks every option before any pixel is processed
func (o Options) Validate() error {
	if err := o.Segmentation.Validate(); err != nil {
		return fmt.Errorf("segmentation: %w", err)
	}
	if o.SeedFraction < 0 || o.SeedFraction >= 1 {
		return fmt.Errorf("%w: seed fraction must be in [0, 1), got %v", models.ErrInvalidParameter, o.SeedFraction)
	}
	if err := o.Filters.Validate(); err != nil {
		return err
	}
	if o.OffsetNm < 0 {
		return fmt.Errorf("%w: offset must be non-negative, got %v", models.ErrInvalidParameter, o.OffsetNm)
	}
	if !(o.PixelSize >= 0) || math.IsInf(o.PixelSize, 1) {
		return fmt.Errorf("%w: pixel size must be non-negative, got %v", models.ErrInvalidParameter, o.PixelSize)
	}
	return nil
}

// ImageResult is the outcome of the pipeline on one micrograph
type ImageResult struct {
	Name      string
	PixelSize float64

	// Labels is the final densely numbered label map
	Labels *models.LabelMap

	// Regions and Corrections are indexed alike, in ascending label order
	Regions     []regionprops.Region
	Corrections []geometry.Correction

	Rows []measurement.Row

	// Rejected lists the regions dropped because their length could not be corrected
	Rejected []geometry.Correction
}

// AnalyzeImage runs the full pipeline on one micrograph
func AnalyzeImage(ctx context.Context, img *models.Micrograph, opts Options, log zerolog.Logger) (*ImageResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	pixelSize := img.PixelSize
	if opts.PixelSize > 0 {
		pixelSize = opts.PixelSize
	}
	if !(pixelSize > 0) || math.IsInf(pixelSize, 1) {
		return nil, fmt.Errorf("%w: image %s has no pixel size", models.ErrInvalidParameter, img.Name)
	}

	log = log.With().Str("image", img.Name).Logger()

	mask, err := segmentation.Segment(ctx, img, opts.Segmentation, log)
	if err != nil {
		return nil, fmt.Errorf("segmentation: %w", err)
	}

	labels, err := watershed.Split(ctx, mask, opts.SeedFraction, log)
	if err != nil {
		return nil, fmt.Errorf("watershed: %w", err)
	}
	log.Debug().Int("regions", len(labels.Labels())).Msg("split")

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	labels = opts.Filters.Apply(labels, pixelSize)

	labels, rejected := filters.ByValidGeometry(labels, pixelSize, opts.OffsetNm)
	for _, c := range rejected {
		log.Warn().Int("label", c.Label).Err(c.Err).Msg("dropping region")
	}
	labels = filters.Relabel(labels)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	regions := regionprops.Compute(labels, img)
	for _, r := range regions {
		log.Debug().
			Int("label", r.Label).
			Stringer("bbox", r.BBox).
			Float64("orientation", r.Orientation).
			Float64("meanIntensity", r.MeanIntensity).
			Msg("region")
	}
	corrections := geometry.CorrectAll(regions, pixelSize, opts.OffsetNm)
	rows := measurement.Tabulate(labels, regions, corrections, img.Name, pixelSize)

	if len(rows) == 0 {
		log.Info().Msg("no nanorods found")
	} else {
		log.Debug().Int("nanorods", len(rows)).Msg("measured")
	}

	return &ImageResult{
		Name:        img.Name,
		PixelSize:   pixelSize,
		Labels:      labels,
		Regions:     regions,
		Corrections: corrections,
		Rows:        rows,
		Rejected:    rejected,
	}, nil
}
