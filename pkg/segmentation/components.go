package segmentation

import "nanorods/internal/models"

// Label assigns a distinct id to every 4-connected foreground component of the mask.
// Ids start at 1 and follow the raster order of each component's first pixel.
// The second return value holds the pixel count of each component, indexed by id.
func Label(mask *models.Mask) (*models.LabelMap, []int) {
	w, h := mask.Width, mask.Height
	labels := models.NewLabelMap(w, h)
	sizes := []int{0}
	queue := make([]int, 0, 64)

	next := 0
	for start, fg := range mask.Pix {
		if !fg || labels.Pix[start] != 0 {
			continue
		}
		next++
		labels.Pix[start] = next
		queue = append(queue[:0], start)
		size := 0
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			size++
			forEachNeighbor4(idx, w, h, func(n int) {
				if mask.Pix[n] && labels.Pix[n] == 0 {
					labels.Pix[n] = next
					queue = append(queue, n)
				}
			})
		}
		sizes = append(sizes, size)
	}

	return labels, sizes
}

// forEachNeighbor4 calls fn with the in-bounds 4-neighbors of idx
func forEachNeighbor4(idx, w, h int, fn func(int)) {
	x, y := idx%w, idx/w
	if y > 0 {
		fn(idx - w)
	}
	if x > 0 {
		fn(idx - 1)
	}
	if x < w-1 {
		fn(idx + 1)
	}
	if y < h-1 {
		fn(idx + w)
	}
}
