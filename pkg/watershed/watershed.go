// Package watershed splits touching particles in a binary mask into separately labeled
// regions with a marker-controlled watershed on the negated distance transform.
package watershed

import (
	"container/heap"
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"nanorods/internal/models"
	"nanorods/pkg/segmentation"
)

// DefaultSeedFraction is the share of the maximum distance a pixel must exceed to seed a basin
const DefaultSeedFraction = 0.2

// Split labels the mask, separating touching blobs along the narrow necks between them.
//
// Seeds are the pixels whose distance to the background exceeds seedFraction times the
// largest distance in the whole mask. The threshold is global, so a small particle next to a
// much larger one may not get a seed of its own. Regions touching the image border are
// removed from the result.
func Split(ctx context.Context, mask *models.Mask, seedFraction float64, log zerolog.Logger) (*models.LabelMap, error) {
	if seedFraction < 0 || seedFraction >= 1 {
		return nil, fmt.Errorf("%w: seed fraction must be in [0, 1), got %v", models.ErrInvalidParameter, seedFraction)
	}
	if mask.Count() == 0 {
		return models.NewLabelMap(mask.Width, mask.Height), nil
	}

	dist := DistanceTransform(mask)
	seeds := Seeds(dist, mask, seedFraction)
	markers, _ := segmentation.Label(seeds)
	log.Debug().Int("markers", markers.Max()).Float64("maxDistance", floats.Max(dist)).Msg("seeds labeled")

	surface := make([]float64, len(dist))
	for i, d := range dist {
		surface[i] = -d
	}

	labels, err := Watershed(ctx, surface, markers, mask)
	if err != nil {
		return nil, err
	}
	return ClearBorder(labels), nil
}

// Seeds marks the mask pixels whose distance exceeds fraction of the global maximum
func Seeds(dist []float64, mask *models.Mask, fraction float64) *models.Mask {
	limit := floats.Max(dist) * fraction
	seeds := models.NewMask(mask.Width, mask.Height)
	for i, d := range dist {
		seeds.Pix[i] = mask.Pix[i] && d > limit
	}
	return seeds
}

// Watershed floods surface from the labeled markers, restricted to the mask, using
// 4-connectivity. Pixels are processed lowest value first and in insertion order on ties.
// Mask pixels that no marker can reach stay 0.
func Watershed(ctx context.Context, surface []float64, markers *models.LabelMap, mask *models.Mask) (*models.LabelMap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w, h := markers.Width, markers.Height
	labels := models.NewLabelMap(w, h)

	q := &floodQueue{}
	age := 0
	for idx, id := range markers.Pix {
		if id == 0 || !mask.Pix[idx] {
			continue
		}
		labels.Pix[idx] = id
		heap.Push(q, floodPixel{value: surface[idx], age: age, idx: idx})
		age++
	}

	popped := 0
	for q.Len() > 0 {
		p := heap.Pop(q).(floodPixel)
		popped++
		if popped%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		id := labels.Pix[p.idx]
		visit := func(n int) {
			if !mask.Pix[n] || labels.Pix[n] != 0 {
				return
			}
			labels.Pix[n] = id
			heap.Push(q, floodPixel{value: surface[n], age: age, idx: n})
			age++
		}

		x, y := p.idx%w, p.idx/w
		if y > 0 {
			visit(p.idx - w)
		}
		if x > 0 {
			visit(p.idx - 1)
		}
		if x < w-1 {
			visit(p.idx + 1)
		}
		if y < h-1 {
			visit(p.idx + w)
		}
	}

	return labels, nil
}

// ClearBorder returns a copy of labels with every region touching the image edge removed
func ClearBorder(labels *models.LabelMap) *models.LabelMap {
	w, h := labels.Width, labels.Height
	touching := make(map[int]bool)
	for x := 0; x < w; x++ {
		touching[labels.Pix[x]] = true
		touching[labels.Pix[(h-1)*w+x]] = true
	}
	for y := 0; y < h; y++ {
		touching[labels.Pix[y*w]] = true
		touching[labels.Pix[y*w+w-1]] = true
	}

	out := labels.Clone()
	for i, id := range out.Pix {
		if id != 0 && touching[id] {
			out.Pix[i] = 0
		}
	}
	return out
}

type floodPixel struct {
	value float64
	age   int
	idx   int
}

type floodQueue []floodPixel

func (q floodQueue) Len() int { return len(q) }
func (q floodQueue) Less(i, j int) bool {
	if q[i].value != q[j].value {
		return q[i].value < q[j].value
	}
	return q[i].age < q[j].age
}
func (q floodQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *floodQueue) Push(x any) { *q = append(*q, x.(floodPixel)) }

func (q *floodQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
