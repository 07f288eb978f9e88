package visualization

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"nanorods/internal/models"
	"nanorods/pkg/regionprops"
)

func near(a, b uint8) bool {
	d := int(a) - int(b)
	return d >= -1 && d <= 1
}

func nearRGBA(c color.Color, want color.RGBA) bool {
	r, g, b, _ := c.RGBA()
	return near(uint8(r>>8), want.R) && near(uint8(g>>8), want.G) && near(uint8(b>>8), want.B)
}

// scene is a 60x60 gradient micrograph with one 40x40 particle at (10, 10)
func scene(t *testing.T) (*models.Micrograph, *models.LabelMap, []regionprops.Region) {
	t.Helper()
	const size = 60
	pix := make([]float64, size*size)
	for i := range pix {
		pix[i] = float64(i % size)
	}
	img, err := models.NewMicrograph("scene", size, size, pix, 1)
	if err != nil {
		t.Fatal(err)
	}
	labels := models.NewLabelMap(size, size)
	for y := 10; y < 50; y++ {
		for x := 10; x < 50; x++ {
			labels.Pix[y*size+x] = 1
		}
	}
	return img, labels, regionprops.Compute(labels, img)
}

func TestLabelColor(t *testing.T) {
	if c := LabelColor(1); c != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("first color = %v, want red", c)
	}
	if c := LabelColor(0); c != (color.RGBA{A: 255}) {
		t.Errorf("background color = %v, want black", c)
	}
	if len(palette) != 20 {
		t.Fatalf("palette has %d colors, want 20", len(palette))
	}
	if LabelColor(1+len(palette)) != LabelColor(1) {
		t.Error("palette should cycle")
	}
	if LabelColor(2) == LabelColor(1) {
		t.Error("neighboring ids should differ")
	}
}

func TestGrayscale(t *testing.T) {
	img, _ := models.NewMicrograph("g", 3, 1, []float64{-5, 0, 5}, 1)
	g := Grayscale(img)
	if g.Pix[0] != 0 || g.Pix[1] != 128 || g.Pix[2] != 255 {
		t.Errorf("grayscale = %v, want [0 128 255]", g.Pix)
	}

	flat, _ := models.NewMicrograph("flat", 2, 1, []float64{7, 7}, 1)
	if g := Grayscale(flat); g.Pix[0] != 0 || g.Pix[1] != 0 {
		t.Errorf("constant image should map to black, got %v", g.Pix)
	}
}

func TestContours(t *testing.T) {
	img, labels, _ := scene(t)
	gray := Grayscale(img)
	out := Contours(gray, labels)

	red := color.RGBA{R: 255, A: 255}
	if got := out.RGBAAt(10, 30); got != red {
		t.Errorf("edge pixel = %v, want red", got)
	}
	if got := out.RGBAAt(30, 30); got.R != gray.GrayAt(30, 30).Y || got.G != got.R {
		t.Errorf("interior pixel = %v, want gray %d", got, gray.GrayAt(30, 30).Y)
	}
	if got := out.RGBAAt(5, 5); got.G != gray.GrayAt(5, 5).Y {
		t.Errorf("background pixel = %v, want gray", got)
	}
}

func TestRender(t *testing.T) {
	img, labels, regions := scene(t)
	r, err := NewRenderer(DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}

	out, err := r.Render(img, labels, regions)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	b := out.Bounds()
	if b.Dx() != 120 || b.Dy() != 60+titleHeight {
		t.Fatalf("overlay size = %v, want 120x%d", b.Size(), 60+titleHeight)
	}

	gray := Grayscale(img)
	// Particle pixel away from the id text
	if c := out.At(12, 12+titleHeight); !nearRGBA(c, LabelColor(1)) {
		t.Errorf("left particle pixel = %v, want %v", c, LabelColor(1))
	}
	g := gray.GrayAt(5, 5).Y
	if c := out.At(5, 5+titleHeight); !nearRGBA(c, color.RGBA{R: g, G: g, B: g}) {
		t.Errorf("left background pixel = %v, want gray %d", c, g)
	}
	if c := out.At(60+10, 30+titleHeight); !nearRGBA(c, color.RGBA{R: 255}) {
		t.Errorf("right outline pixel = %v, want red", c)
	}
}

func TestRenderTransparentLabels(t *testing.T) {
	img, labels, regions := scene(t)
	r, err := NewRenderer(Options{LabelOpacity: 0})
	if err != nil {
		t.Fatal(err)
	}
	out, err := r.Render(img, labels, regions)
	if err != nil {
		t.Fatal(err)
	}
	if out.Bounds().Dy() != 60 {
		t.Fatalf("overlay without titles should be 60 tall, got %d", out.Bounds().Dy())
	}
	g := Grayscale(img).GrayAt(12, 12).Y
	if c := out.At(12, 12); !nearRGBA(c, color.RGBA{R: g, G: g, B: g}) {
		t.Errorf("particle pixel = %v, want gray %d", c, g)
	}
}

func TestRenderMaxWidth(t *testing.T) {
	img, labels, regions := scene(t)
	r, _ := NewRenderer(Options{LabelOpacity: 1, MaxWidth: 60})
	out, err := r.Render(img, labels, regions)
	if err != nil {
		t.Fatal(err)
	}
	if b := out.Bounds(); b.Dx() != 60 || b.Dy() != 30 {
		t.Errorf("resized overlay = %v, want 60x30", b.Size())
	}
}

func TestRenderErrors(t *testing.T) {
	img, _, _ := scene(t)
	r, _ := NewRenderer(DefaultOptions())
	if _, err := r.Render(img, models.NewLabelMap(10, 10), nil); err == nil {
		t.Error("expected error for mismatched label map")
	}

	for _, opts := range []Options{{LabelOpacity: 1.5}, {LabelOpacity: -0.1}, {LabelOpacity: 1, MaxWidth: -1}} {
		if _, err := NewRenderer(opts); !errors.Is(err, models.ErrInvalidParameter) {
			t.Errorf("NewRenderer(%+v) = %v, want ErrInvalidParameter", opts, err)
		}
	}
}

func TestSave(t *testing.T) {
	img, labels, regions := scene(t)
	r, _ := NewRenderer(DefaultOptions())
	out, err := r.Render(img, labels, regions)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "grid", "scene.png")
	if err := Save(path, out); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("overlay not written: %v", err)
	}

	back, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("failed to reopen overlay: %v", err)
	}
	if back.Bounds().Size() != out.Bounds().Size() {
		t.Errorf("reopened size %v, want %v", back.Bounds().Size(), out.Bounds().Size())
	}
}
