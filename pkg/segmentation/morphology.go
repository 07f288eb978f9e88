package segmentation

import "nanorods/internal/models"

// Erode applies binary erosion with a cross-shaped structuring element the given number of
// times. Pixels outside the image count as foreground, so objects touching the border are not
// eaten away from the outside.
func Erode(mask *models.Mask, iterations int) *models.Mask {
	out := mask.Clone()
	for i := 0; i < iterations; i++ {
		out = morph(out, true)
	}
	return out
}

// Dilate applies binary dilation with a cross-shaped structuring element the given number of
// times. Pixels outside the image count as background.
func Dilate(mask *models.Mask, iterations int) *models.Mask {
	out := mask.Clone()
	for i := 0; i < iterations; i++ {
		out = morph(out, false)
	}
	return out
}

func morph(in *models.Mask, erode bool) *models.Mask {
	w, h := in.Width, in.Height
	out := models.NewMask(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			v := in.Pix[idx]
			if erode {
				// Outside pixels are foreground: only in-bounds neighbors can erode
				v = v &&
					(y == 0 || in.Pix[idx-w]) &&
					(y == h-1 || in.Pix[idx+w]) &&
					(x == 0 || in.Pix[idx-1]) &&
					(x == w-1 || in.Pix[idx+1])
			} else {
				v = v ||
					(y > 0 && in.Pix[idx-w]) ||
					(y < h-1 && in.Pix[idx+w]) ||
					(x > 0 && in.Pix[idx-1]) ||
					(x < w-1 && in.Pix[idx+1])
			}
			out.Pix[idx] = v
		}
	}
	return out
}

// RemoveSmallObjects drops 4-connected foreground components with fewer than minSize pixels
func RemoveSmallObjects(mask *models.Mask, minSize int) *models.Mask {
	out := mask.Clone()
	if minSize <= 1 {
		return out
	}
	labels, sizes := Label(mask)
	for i, id := range labels.Pix {
		if id != 0 && sizes[id] < minSize {
			out.Pix[i] = false
		}
	}
	return out
}

// RemoveSmallHoles fills 4-connected background components with fewer than areaThreshold
// pixels. Larger background areas, including legitimate particle holes, are kept.
func RemoveSmallHoles(mask *models.Mask, areaThreshold int) *models.Mask {
	inverted := invert(mask)
	inverted = RemoveSmallObjects(inverted, areaThreshold)
	return invert(inverted)
}

func invert(mask *models.Mask) *models.Mask {
	out := models.NewMask(mask.Width, mask.Height)
	for i, v := range mask.Pix {
		out.Pix[i] = !v
	}
	return out
}
