package segmentation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"nanorods/internal/models"
)

// maskFromRows builds a mask from strings where '#' is foreground
func maskFromRows(rows ...string) *models.Mask {
	mask := models.NewMask(len(rows[0]), len(rows))
	for y, row := range rows {
		for x, c := range row {
			mask.Set(x, y, c == '#')
		}
	}
	return mask
}

func rowsFromMask(mask *models.Mask) []string {
	rows := make([]string, mask.Height)
	for y := 0; y < mask.Height; y++ {
		b := make([]byte, mask.Width)
		for x := 0; x < mask.Width; x++ {
			b[x] = '.'
			if mask.At(x, y) {
				b[x] = '#'
			}
		}
		rows[y] = string(b)
	}
	return rows
}

func assertMask(t *testing.T, got *models.Mask, want ...string) {
	t.Helper()
	gotRows := rowsFromMask(got)
	for y := range want {
		if gotRows[y] != want[y] {
			t.Fatalf("mask mismatch at row %d\n got: %v\nwant: %v", y, gotRows, want)
		}
	}
}

// diskImage returns a micrograph with a bright disk on a zero background
func diskImage(size int, cx, cy, radius, value float64) *models.Micrograph {
	pix := make([]float64, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			if dx*dx+dy*dy <= radius*radius {
				pix[y*size+x] = value
			}
		}
	}
	img, _ := models.NewMicrograph("disk", size, size, pix, 1.0)
	return img
}

func TestReflectIndex(t *testing.T) {
	tests := []struct {
		i, n, want int
	}{
		{0, 4, 0},
		{3, 4, 3},
		{-1, 4, 0},
		{-2, 4, 1},
		{-4, 4, 3},
		{4, 4, 3},
		{5, 4, 2},
		{8, 4, 0},
		{-9, 4, 0},
		{7, 1, 0},
	}

	for _, tt := range tests {
		if got := reflectIndex(tt.i, tt.n); got != tt.want {
			t.Errorf("reflectIndex(%d, %d) = %d, want %d", tt.i, tt.n, got, tt.want)
		}
	}
}

func TestGaussianKernel(t *testing.T) {
	kernel := gaussianKernel(50)
	if len(kernel) != 401 {
		t.Fatalf("kernel length = %d, want 401", len(kernel))
	}
	if sum := floats.Sum(kernel); math.Abs(sum-1) > 1e-12 {
		t.Errorf("kernel sum = %v, want 1", sum)
	}
	for i := 0; i < len(kernel)/2; i++ {
		if math.Abs(kernel[i]-kernel[len(kernel)-1-i]) > 1e-15 {
			t.Fatalf("kernel not symmetric at %d", i)
		}
	}
	if floats.MaxIdx(kernel) != 200 {
		t.Errorf("kernel peak at %d, want 200", floats.MaxIdx(kernel))
	}
}

func TestLocalThresholdUniform(t *testing.T) {
	pix := make([]float64, 15*9)
	for i := range pix {
		pix[i] = 42
	}
	img, _ := models.NewMicrograph("flat", 15, 9, pix, 1)

	for _, method := range []Method{MethodGaussian, MethodMean} {
		surface, err := LocalThreshold(context.Background(), img, 7, method, 2)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", method, err)
		}
		for i, v := range surface {
			if math.Abs(v-40) > 1e-9 {
				t.Fatalf("%s: surface[%d] = %v, want 40", method, i, v)
			}
		}
	}
}

func TestLocalThresholdBrightBlock(t *testing.T) {
	size := 21
	pix := make([]float64, size*size)
	for y := 8; y < 13; y++ {
		for x := 8; x < 13; x++ {
			pix[y*size+x] = 100
		}
	}
	img, _ := models.NewMicrograph("block", size, size, pix, 1)

	surface, err := LocalThreshold(context.Background(), img, 7, MethodMean, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mask := Threshold(img, surface)

	if mask.Count() != 25 {
		t.Errorf("foreground count = %d, want 25", mask.Count())
	}
	if !mask.At(10, 10) || !mask.At(8, 8) {
		t.Error("bright block pixels should be foreground")
	}
	if mask.At(0, 0) || mask.At(7, 10) {
		t.Error("background pixels should not be foreground")
	}
}

func TestLocalThresholdInvalid(t *testing.T) {
	img := diskImage(10, 5, 5, 2, 1)
	for _, bs := range []int{-3, 0, 1, 2, 4, 100} {
		_, err := LocalThreshold(context.Background(), img, bs, MethodGaussian, 0)
		if !errors.Is(err, models.ErrInvalidParameter) {
			t.Errorf("block size %d: expected ErrInvalidParameter, got %v", bs, err)
		}
	}
	if _, err := LocalThreshold(context.Background(), img, 3, Method("median"), 0); !errors.Is(err, models.ErrInvalidParameter) {
		t.Errorf("unknown method: expected ErrInvalidParameter, got %v", err)
	}
}

func TestLocalThresholdCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := LocalThreshold(ctx, diskImage(10, 5, 5, 2, 1), 3, MethodGaussian, 0)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestErode(t *testing.T) {
	t.Run("full mask survives", func(t *testing.T) {
		mask := maskFromRows("#####", "#####", "#####")
		assertMask(t, Erode(mask, 3), "#####", "#####", "#####")
	})

	t.Run("square shrinks to center", func(t *testing.T) {
		mask := maskFromRows(
			".......",
			".......",
			"..###..",
			"..###..",
			"..###..",
			".......",
			".......",
		)
		assertMask(t, Erode(mask, 1),
			".......",
			".......",
			".......",
			"...#...",
			".......",
			".......",
			".......",
		)
	})

	t.Run("zero iterations copies", func(t *testing.T) {
		mask := maskFromRows("#.#")
		out := Erode(mask, 0)
		out.Set(1, 0, true)
		if mask.At(1, 0) {
			t.Error("Erode must not alias its input")
		}
	})
}

func TestDilate(t *testing.T) {
	mask := maskFromRows(
		".....",
		".....",
		"..#..",
		".....",
		"#....",
	)
	assertMask(t, Dilate(mask, 1),
		".....",
		"..#..",
		".###.",
		"#.#..",
		"##...",
	)
	assertMask(t, Dilate(mask, 2),
		"..#..",
		".###.",
		"#####",
		"####.",
		"###..",
	)
}

func TestLabel(t *testing.T) {
	mask := maskFromRows(
		"##..#",
		"#...#",
		"..#..",
		".#.##",
	)
	labels, sizes := Label(mask)

	want := []int{
		1, 1, 0, 0, 2,
		1, 0, 0, 0, 2,
		0, 0, 3, 0, 0,
		0, 4, 0, 5, 5,
	}
	for i := range want {
		if labels.Pix[i] != want[i] {
			t.Fatalf("labels = %v, want %v", labels.Pix, want)
		}
	}
	wantSizes := []int{0, 3, 2, 1, 1, 2}
	for i := range wantSizes {
		if sizes[i] != wantSizes[i] {
			t.Fatalf("sizes = %v, want %v", sizes, wantSizes)
		}
	}
}

func TestRemoveSmallObjects(t *testing.T) {
	mask := maskFromRows(
		"##.....",
		"##..###",
		"....###",
		"....###",
	)

	assertMask(t, RemoveSmallObjects(mask, 5),
		".......",
		"....###",
		"....###",
		"....###",
	)
	// Size equal to the threshold is kept
	assertMask(t, RemoveSmallObjects(mask, 4),
		"##.....",
		"##..###",
		"....###",
		"....###",
	)
}

func TestRemoveSmallHoles(t *testing.T) {
	mask := maskFromRows(
		"...........",
		".#########.",
		".#.#######.",
		".#########.",
		".###...###.",
		".###...###.",
		".###...###.",
		".#########.",
		"...........",
	)

	assertMask(t, RemoveSmallHoles(mask, 5),
		"...........",
		".#########.",
		".#########.",
		".#########.",
		".###...###.",
		".###...###.",
		".###...###.",
		".#########.",
		"...........",
	)
	assertMask(t, RemoveSmallHoles(mask, 10),
		"...........",
		".#########.",
		".#########.",
		".#########.",
		".#########.",
		".#########.",
		".#########.",
		".#########.",
		"...........",
	)
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"even block", func(p *Params) { p.BlockSize = 300 }},
		{"tiny block", func(p *Params) { p.BlockSize = 1 }},
		{"negative erosions", func(p *Params) { p.Erosions = -1 }},
		{"negative dilations", func(p *Params) { p.Dilations = -2 }},
		{"negative min object", func(p *Params) { p.MinObjectPx = -1 }},
		{"negative min hole", func(p *Params) { p.MinHolePx = -1 }},
		{"unknown method", func(p *Params) { p.Method = "otsu" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			if err := p.Validate(); !errors.Is(err, models.ErrInvalidParameter) {
				t.Errorf("expected ErrInvalidParameter, got %v", err)
			}
		})
	}
}

func TestSegmentDisk(t *testing.T) {
	img := diskImage(200, 100, 100, 50, 200)

	p := DefaultParams()
	p.BlockSize = 101
	mask, err := Segment(context.Background(), img, p, zerolog.Nop())
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}

	if !mask.At(100, 100) {
		t.Error("disk center should be foreground")
	}
	if mask.At(0, 0) || mask.At(199, 199) || mask.At(100, 160) {
		t.Error("background should stay background")
	}

	labels, sizes := Label(mask)
	if labels.Max() != 1 {
		t.Fatalf("expected a single component, got %d", labels.Max())
	}
	disk := math.Pi * 50 * 50
	if float64(sizes[1]) < disk || float64(sizes[1]) > 1.5*disk {
		t.Errorf("component size %d outside expected range around %.0f", sizes[1], disk)
	}
}

func TestSegmentRemovesSpeckle(t *testing.T) {
	img := diskImage(120, 60, 60, 30, 200)
	// Isolated bright pixels are removed by erosion and small object removal
	img.Pix[5*120+5] = 500
	img.Pix[110*120+20] = 500

	p := DefaultParams()
	p.BlockSize = 51
	p.MinObjectPx = 100
	mask, err := Segment(context.Background(), img, p, zerolog.Nop())
	if err != nil {
		t.Fatalf("Segment failed: %v", err)
	}
	if mask.At(5, 5) || mask.At(20, 110) {
		t.Error("speckle pixels should be removed")
	}
	if !mask.At(60, 60) {
		t.Error("disk should survive")
	}
}

func TestSegmentInvalidParams(t *testing.T) {
	p := DefaultParams()
	p.BlockSize = 4
	_, err := Segment(context.Background(), diskImage(10, 5, 5, 2, 1), p, zerolog.Nop())
	if !errors.Is(err, models.ErrInvalidParameter) {
		t.Errorf("expected ErrInvalidParameter, got %v", err)
	}
}

func BenchmarkLocalThreshold(b *testing.B) {
	img := diskImage(512, 256, 256, 80, 200)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := LocalThreshold(ctx, img, 101, MethodGaussian, 0); err != nil {
			b.Fatal(err)
		}
	}
}
