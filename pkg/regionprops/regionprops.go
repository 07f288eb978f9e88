// Package regionprops measures the labeled regions of a label map: area, centroid,
// second-moment ellipse (axis lengths and eccentricity) and maximum Feret diameter.
//
// Properties are always computed from scratch for the label map given; callers recompute
// them after every stage that changes which labels exist.
package regionprops

import (
	"image"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"nanorods/internal/models"
)

// Region holds the geometric descriptors of one labeled region, in pixel units
type Region struct {
	// Label is the region id in the label map it was measured on
	Label int

	// Area is the number of pixels in the region
	Area int

	// CentroidRow and CentroidCol are the mean pixel coordinates
	CentroidRow float64
	CentroidCol float64

	// BBox is the bounding box (Min inclusive, Max exclusive) in image coordinates
	BBox image.Rectangle

	// MajorAxisLength and MinorAxisLength are the axis lengths of the ellipse with the
	// same normalized second central moments as the region
	MajorAxisLength float64
	MinorAxisLength float64

	// Eccentricity of that ellipse: 0 for a circle, approaching 1 for an elongated shape
	Eccentricity float64

	// Orientation is the angle in radians between the row axis and the major axis
	Orientation float64

	// FeretDiameterMax is the longest distance between two points of the region outline
	FeretDiameterMax float64

	// MeanIntensity is the average micrograph intensity over the region, 0 without an image
	MeanIntensity float64
}

// Compute measures every non-zero label of labels, in ascending label order.
// img is optional and only used for intensity properties.
func Compute(labels *models.LabelMap, img *models.Micrograph) []Region {
	w := labels.Width
	pixels := make(map[int][]int)
	for idx, id := range labels.Pix {
		if id != 0 {
			pixels[id] = append(pixels[id], idx)
		}
	}

	ids := make([]int, 0, len(pixels))
	for id := range pixels {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	regions := make([]Region, 0, len(ids))
	for _, id := range ids {
		regions = append(regions, measure(labels, id, pixels[id], w, img))
	}
	return regions
}

// Index returns the regions keyed by label
func Index(regions []Region) map[int]Region {
	byLabel := make(map[int]Region, len(regions))
	for _, r := range regions {
		byLabel[r.Label] = r
	}
	return byLabel
}

func measure(labels *models.LabelMap, id int, idxs []int, w int, img *models.Micrograph) Region {
	n := len(idxs)
	rows := make([]float64, n)
	cols := make([]float64, n)
	bbox := image.Rect(idxs[0]%w, idxs[0]/w, idxs[0]%w+1, idxs[0]/w+1)
	for i, idx := range idxs {
		x, y := idx%w, idx/w
		rows[i], cols[i] = float64(y), float64(x)
		bbox = bbox.Union(image.Rect(x, y, x+1, y+1))
	}

	meanR, varR := stat.PopMeanVariance(rows, nil)
	meanC, varC := stat.PopMeanVariance(cols, nil)
	var cov float64
	for i := range rows {
		cov += (rows[i] - meanR) * (cols[i] - meanC)
	}
	cov /= float64(n)

	r := Region{
		Label:       id,
		Area:        n,
		CentroidRow: meanR,
		CentroidCol: meanC,
		BBox:        bbox,
	}
	r.MajorAxisLength, r.MinorAxisLength, r.Eccentricity, r.Orientation = ellipse(varR, varC, cov)
	r.FeretDiameterMax = FeretDiameterMax(OutlinePoints(labels, id, idxs))

	if img != nil {
		values := make([]float64, n)
		for i, idx := range idxs {
			values[i] = img.Pix[idx]
		}
		r.MeanIntensity = stat.Mean(values, nil)
	}
	return r
}

// ellipse derives the second-moment ellipse from the coordinate covariance
func ellipse(varR, varC, cov float64) (major, minor, ecc, orientation float64) {
	inertia := mat.NewSymDense(2, []float64{
		varC, -cov,
		-cov, varR,
	})
	var eig mat.EigenSym
	if !eig.Factorize(inertia, false) {
		return 0, 0, 0, 0
	}
	values := eig.Values(nil) // ascending
	l2, l1 := math.Max(values[0], 0), math.Max(values[1], 0)

	major = 4 * math.Sqrt(l1)
	minor = 4 * math.Sqrt(l2)
	if l1 > 0 {
		ecc = math.Sqrt(1 - l2/l1)
	}

	if varC == varR {
		orientation = math.Pi / 4
		if cov > 0 {
			orientation = -math.Pi / 4
		}
	} else {
		orientation = 0.5 * math.Atan2(2*cov, varR-varC)
	}
	return major, minor, ecc, orientation
}
