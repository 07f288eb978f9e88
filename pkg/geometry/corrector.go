// Package geometry turns the caliper measurement of a region into a physical rod length.
//
// The maximum Feret diameter of a rod overshoots its axial length by a fixed tip-to-tip
// offset; the true length follows from Pythagoras:
//
//	length = sqrt((feret * pixelSize)^2 - offset^2)
//
// The area-to-length ratio (an effective width in nm) is derived from it and used to reject
// shapes whose cross-section is implausible for a nanorod.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"nanorods/pkg/regionprops"
)

// DefaultOffsetNm is the systematic caliper overshoot for the imaged rod geometry
const DefaultOffsetNm = 18.0

// ErrDegenerateGeometry marks a region whose caliper diameter is shorter than the offset
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// Correction is the corrected measurement of one region.
// When Err is non-nil the measurement is invalid and Length/AreaToLength are zero.
type Correction struct {
	Label int

	// Length is the offset-corrected rod length in nm
	Length float64

	// AreaToLength is the region area in nm² divided by Length, in nm
	AreaToLength float64

	Err error
}

// Valid reports whether the correction produced a usable measurement
func (c Correction) Valid() bool {
	return c.Err == nil
}

// Correct computes the corrected length and area-to-length ratio of a region.
// A caliper diameter exactly equal to the offset gives a zero length and an infinite ratio.
func Correct(r regionprops.Region, pixelSize, offsetNm float64) Correction {
	feretNm := r.FeretDiameterMax * pixelSize
	if feretNm < offsetNm {
		return Correction{
			Label: r.Label,
			Err: fmt.Errorf("%w: region %d caliper %.3f nm below offset %.3f nm",
				ErrDegenerateGeometry, r.Label, feretNm, offsetNm),
		}
	}

	length := math.Sqrt(feretNm*feretNm - offsetNm*offsetNm)
	areaNm2 := float64(r.Area) * pixelSize * pixelSize

	ratio := math.Inf(1)
	if length > 0 {
		ratio = areaNm2 / length
	}

	return Correction{
		Label:        r.Label,
		Length:       length,
		AreaToLength: ratio,
	}
}

// CorrectAll applies Correct to every region, preserving order
func CorrectAll(regions []regionprops.Region, pixelSize, offsetNm float64) []Correction {
	out := make([]Correction, len(regions))
	for i, r := range regions {
		out[i] = Correct(r, pixelSize, offsetNm)
	}
	return out
}
