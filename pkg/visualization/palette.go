package visualization

import (
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// labelColors is the cycle used to color particles: red, violet, orange, green, blue,
// magenta, purple, crimson, lime, maroon, mediumvioletred, goldenrod, darkgreen, fuchsia,
// cornflowerblue, navy, hotpink, grey, chocolate, peru
var labelColors = []string{
	"#ff0000", "#ee82ee", "#ffa500", "#008000", "#0000ff",
	"#ff00ff", "#800080", "#dc143c", "#00ff00", "#800000",
	"#c71585", "#daa520", "#006400", "#ff00ff", "#6495ed",
	"#000080", "#ff69b4", "#808080", "#d2691e", "#cd853f",
}

var palette = buildPalette(labelColors)

func buildPalette(hexes []string) []color.RGBA {
	out := make([]color.RGBA, 0, len(hexes))
	for _, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			continue
		}
		r, g, b := c.Clamped().RGB255()
		out = append(out, color.RGBA{R: r, G: g, B: b, A: 255})
	}
	return out
}

// LabelColor returns the display color of a particle id. Ids cycle through the palette
// starting at 1; 0 is the black background.
func LabelColor(id int) color.RGBA {
	if id <= 0 || len(palette) == 0 {
		return color.RGBA{A: 255}
	}
	return palette[(id-1)%len(palette)]
}
