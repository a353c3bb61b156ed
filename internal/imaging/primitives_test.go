package imaging

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestHistogramIntersectionIdentical(t *testing.T) {
	img := gradientImage(64, 64)
	h := HistogramRGB(img)
	if got := h.Intersection(h); math.Abs(got-1) > 1e-9 {
		t.Errorf("self intersection = %v, want 1", got)
	}
	if got := h.Difference(h); math.Abs(got) > 1e-9 {
		t.Errorf("self difference = %v, want 0", got)
	}
}

func TestHistogramDifferenceDisjoint(t *testing.T) {
	black := solidImage(32, 32, color.RGBA{0, 0, 0, 255})
	white := solidImage(32, 32, color.RGBA{255, 255, 255, 255})
	diff := HistogramRGB(black).Difference(HistogramRGB(white))
	if diff < 0.99 {
		t.Errorf("black vs white difference = %v, want ~1", diff)
	}
}

func TestGrayHistogramZeroAreaBox(t *testing.T) {
	img := solidImage(16, 16, color.RGBA{200, 200, 200, 255})
	hist := GrayHistogram(img, image.Rect(5, 5, 5, 5))
	if hist[0] != 1 {
		t.Errorf("zero-area box should read as a 1x1 black matrix, bin0=%v", hist[0])
	}
	var sum float64
	for _, v := range hist {
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("histogram mass = %v, want 1", sum)
	}
}

func TestGrayHistogramClampsToBounds(t *testing.T) {
	img := solidImage(16, 16, color.RGBA{128, 128, 128, 255})
	hist := GrayHistogram(img, image.Rect(-10, -10, 100, 100))
	var sum float64
	for _, v := range hist {
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("clamped histogram mass = %v, want 1", sum)
	}
}

func TestPearsonCorrelation(t *testing.T) {
	a := []float64{1, 2, 3, 4}
	b := []float64{2, 4, 6, 8}
	if got := PearsonCorrelation(a, b); math.Abs(got-1) > 1e-9 {
		t.Errorf("perfectly correlated series = %v, want 1", got)
	}
	inv := []float64{8, 6, 4, 2}
	if got := PearsonCorrelation(a, inv); math.Abs(got+1) > 1e-9 {
		t.Errorf("anti-correlated series = %v, want -1", got)
	}
	flat := []float64{3, 3, 3, 3}
	if got := PearsonCorrelation(a, flat); got != 0 {
		t.Errorf("zero-variance series = %v, want 0", got)
	}
}

func TestEdgeDensityBounds(t *testing.T) {
	flat := solidImage(64, 64, color.RGBA{120, 120, 120, 255})
	if d := EdgeDensity(flat); d != 0 {
		t.Errorf("flat image edge density = %v, want 0", d)
	}

	checker := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			c := color.RGBA{0, 0, 0, 255}
			if (x/4+y/4)%2 == 0 {
				c = color.RGBA{255, 255, 255, 255}
			}
			checker.SetRGBA(x, y, c)
		}
	}
	d := EdgeDensity(checker)
	if d <= 0 || d > 1 {
		t.Errorf("checkerboard edge density = %v, want in (0,1]", d)
	}
}

func TestSharpnessOrdersBlurriness(t *testing.T) {
	sharp := gradientImage(64, 64)
	// Checkerboards have far higher Laplacian variance than smooth gradients.
	checker := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			c := color.RGBA{0, 0, 0, 255}
			if (x+y)%2 == 0 {
				c = color.RGBA{255, 255, 255, 255}
			}
			checker.SetRGBA(x, y, c)
		}
	}
	if Sharpness(checker) <= Sharpness(sharp) {
		t.Error("high-frequency image should measure sharper than a gradient")
	}
}

func TestLuminanceEntropyRange(t *testing.T) {
	flat := solidImage(32, 32, color.RGBA{50, 50, 50, 255})
	if e := LuminanceEntropy(flat); e != 0 {
		t.Errorf("flat image entropy = %v, want 0", e)
	}
	busy := gradientImage(256, 256)
	e := LuminanceEntropy(busy)
	if e <= 0 || e > 8 {
		t.Errorf("gradient entropy = %v, want in (0,8]", e)
	}
}

func TestIsMostlyGrayscale(t *testing.T) {
	gray := solidImage(16, 16, color.RGBA{100, 100, 100, 255})
	if !IsMostlyGrayscale(gray) {
		t.Error("neutral gray image not detected as grayscale")
	}
	red := solidImage(16, 16, color.RGBA{255, 0, 0, 255})
	if IsMostlyGrayscale(red) {
		t.Error("saturated red image detected as grayscale")
	}
}

func TestDominantColors(t *testing.T) {
	red := solidImage(16, 16, color.RGBA{220, 40, 40, 255})
	colors := DominantColors(red, 3)
	if len(colors) == 0 {
		t.Fatal("no dominant colors returned")
	}
	if colors[0].Name != "red" {
		t.Errorf("dominant color = %s, want red", colors[0].Name)
	}
	if math.Abs(colors[0].Percentage-1) > 1e-9 {
		t.Errorf("solid image coverage = %v, want 1", colors[0].Percentage)
	}
}
