package filters

import "nanorods/internal/models"

// Relabel renumbers the regions to a dense 1..N sequence following ascending original id.
// Background stays 0. Relabeling an already dense map returns an identical map.
func Relabel(labels *models.LabelMap) *models.LabelMap {
	mapping := make(map[int]int)
	for i, id := range labels.Labels() {
		mapping[id] = i + 1
	}

	out := models.NewLabelMap(labels.Width, labels.Height)
	for i, id := range labels.Pix {
		if id != 0 {
			out.Pix[i] = mapping[id]
		}
	}
	return out
}
