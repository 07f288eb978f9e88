package watershed

import (
	"math"

	"nanorods/internal/models"
)

// far stands in for infinity in the squared distance passes
const far = 1e20

// DistanceTransform returns the exact Euclidean distance of every foreground pixel to the
// nearest background pixel (0 for background). Pixels outside the image are not background.
//
// The transform is computed separably, columns then rows, with the lower envelope of
// parabolas method of Felzenszwalb and Huttenlocher. A mask without any background pixel
// has no finite distance; it gets a constant surface of 1 so that it still yields one marker.
func DistanceTransform(mask *models.Mask) []float64 {
	w, h := mask.Width, mask.Height
	sq := make([]float64, w*h)

	hasBackground := false
	for i, fg := range mask.Pix {
		if fg {
			sq[i] = far
		} else {
			hasBackground = true
		}
	}

	dist := make([]float64, w*h)
	if !hasBackground {
		for i := range dist {
			dist[i] = 1
		}
		return dist
	}

	n := w
	if h > n {
		n = h
	}
	f := make([]float64, n)
	d := make([]float64, n)
	v := make([]int, n)
	z := make([]float64, n+1)

	// Columns
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			f[y] = sq[y*w+x]
		}
		lowerEnvelope(f[:h], d[:h], v, z)
		for y := 0; y < h; y++ {
			sq[y*w+x] = d[y]
		}
	}

	// Rows
	for y := 0; y < h; y++ {
		copy(f[:w], sq[y*w:(y+1)*w])
		lowerEnvelope(f[:w], d[:w], v, z)
		copy(sq[y*w:(y+1)*w], d[:w])
	}

	for i, s := range sq {
		dist[i] = math.Sqrt(s)
	}
	return dist
}

// lowerEnvelope computes d[q] = min_p (q-p)^2 + f[p] in linear time
func lowerEnvelope(f, d []float64, v []int, z []float64) {
	n := len(f)
	k := 0
	v[0] = 0
	z[0] = math.Inf(-1)
	z[1] = math.Inf(1)

	for q := 1; q < n; q++ {
		s := intersection(f, q, v[k])
		for s <= z[k] {
			k--
			s = intersection(f, q, v[k])
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = math.Inf(1)
	}

	k = 0
	for q := 0; q < n; q++ {
		for z[k+1] < float64(q) {
			k++
		}
		dq := float64(q - v[k])
		d[q] = dq*dq + f[v[k]]
	}
}

func intersection(f []float64, q, p int) float64 {
	fq, fp := float64(q), float64(p)
	return ((f[q] + fq*fq) - (f[p] + fp*fp)) / (2*fq - 2*fp)
}
