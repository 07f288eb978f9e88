package regionprops

import (
	"math"
	"sort"

	"nanorods/internal/models"
)

// Point is a sub-pixel position in (row, col) coordinates
type Point struct {
	Row, Col float64
}

// OutlinePoints returns the midpoints of every pixel edge separating the region from
// the rest of the image. They are the vertices of the iso-line at level 0.5 around the
// region, so the hull they span is the region outline.
func OutlinePoints(labels *models.LabelMap, id int, idxs []int) []Point {
	w, h := labels.Width, labels.Height
	inside := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < w && y < h && labels.Pix[y*w+x] == id
	}

	points := make([]Point, 0, len(idxs))
	for _, idx := range idxs {
		x, y := idx%w, idx/w
		r, c := float64(y), float64(x)
		if !inside(x, y-1) {
			points = append(points, Point{r - 0.5, c})
		}
		if !inside(x, y+1) {
			points = append(points, Point{r + 0.5, c})
		}
		if !inside(x-1, y) {
			points = append(points, Point{r, c - 0.5})
		}
		if !inside(x+1, y) {
			points = append(points, Point{r, c + 0.5})
		}
	}
	return points
}

// FeretDiameterMax returns the maximum caliper diameter of a point set
func FeretDiameterMax(points []Point) float64 {
	hull := ConvexHull(points)
	best := 0.0
	for i := range hull {
		for j := i + 1; j < len(hull); j++ {
			dr := hull[i].Row - hull[j].Row
			dc := hull[i].Col - hull[j].Col
			if d := dr*dr + dc*dc; d > best {
				best = d
			}
		}
	}
	return math.Sqrt(best)
}

// ConvexHull returns the hull vertices in counter-clockwise order (monotone chain)
func ConvexHull(points []Point) []Point {
	if len(points) < 3 {
		return append([]Point(nil), points...)
	}

	sorted := append([]Point(nil), points...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Row != sorted[j].Row {
			return sorted[i].Row < sorted[j].Row
		}
		return sorted[i].Col < sorted[j].Col
	})

	cross := func(o, a, b Point) float64 {
		return (a.Row-o.Row)*(b.Col-o.Col) - (a.Col-o.Col)*(b.Row-o.Row)
	}

	hull := make([]Point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}
