// Package filters holds the shape filter bank and the label relabeler.
//
// Every filter measures the regions of the label map it is given, keeps the labels that
// satisfy its predicate and zeroes the rest. Filters never add or renumber labels, so any
// sequence of filters keeps exactly the labels that pass all of them.
package filters

import (
	"nanorods/internal/models"
	"nanorods/pkg/geometry"
	"nanorods/pkg/regionprops"
)

// Keep returns a new label map with only the regions for which keep returns true
func Keep(labels *models.LabelMap, keep func(regionprops.Region) bool) *models.LabelMap {
	kept := make(map[int]bool)
	for _, r := range regionprops.Compute(labels, nil) {
		if keep(r) {
			kept[r.Label] = true
		}
	}
	return keepLabels(labels, kept)
}

func keepLabels(labels *models.LabelMap, kept map[int]bool) *models.LabelMap {
	out := models.NewLabelMap(labels.Width, labels.Height)
	for i, id := range labels.Pix {
		if id != 0 && kept[id] {
			out.Pix[i] = id
		}
	}
	return out
}

// ByArea keeps regions whose area in nm² is strictly greater than areaNm2
func ByArea(labels *models.LabelMap, areaNm2, pixelSize float64) *models.LabelMap {
	return Keep(labels, func(r regionprops.Region) bool {
		return float64(r.Area)*pixelSize*pixelSize > areaNm2
	})
}

// ByMinorAxisLength keeps regions whose minor axis in nm is strictly less than lengthNm.
// It is an upper bound: wide blobs are rejected, thin rods pass.
func ByMinorAxisLength(labels *models.LabelMap, lengthNm, pixelSize float64) *models.LabelMap {
	return Keep(labels, func(r regionprops.Region) bool {
		return r.MinorAxisLength*pixelSize < lengthNm
	})
}

// ByEccentricity keeps regions more elongated than threshold
func ByEccentricity(labels *models.LabelMap, threshold float64) *models.LabelMap {
	return Keep(labels, func(r regionprops.Region) bool {
		return r.Eccentricity > threshold
	})
}

// ByAreaToLength keeps regions with a valid corrected length whose area-to-length ratio lies
// in [minRatio, maxRatio], both ends inclusive
func ByAreaToLength(labels *models.LabelMap, pixelSize, offsetNm, minRatio, maxRatio float64) *models.LabelMap {
	return Keep(labels, func(r regionprops.Region) bool {
		c := geometry.Correct(r, pixelSize, offsetNm)
		return c.Valid() && c.AreaToLength >= minRatio && c.AreaToLength <= maxRatio
	})
}

// ByValidGeometry drops regions whose length cannot be corrected. The rejected corrections
// are returned so the caller can report them.
func ByValidGeometry(labels *models.LabelMap, pixelSize, offsetNm float64) (*models.LabelMap, []geometry.Correction) {
	kept := make(map[int]bool)
	var rejected []geometry.Correction
	for _, r := range regionprops.Compute(labels, nil) {
		c := geometry.Correct(r, pixelSize, offsetNm)
		if c.Valid() {
			kept[r.Label] = true
		} else {
			rejected = append(rejected, c)
		}
	}
	return keepLabels(labels, kept), rejected
}
