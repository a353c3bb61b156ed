package imaging

import (
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

// gradientImage builds a deterministic image with enough structure for the
// hash to be non-degenerate.
func gradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(255 * x / w),
				G: uint8(255 * y / h),
				B: uint8(255 * (x + y) / (w + h)),
				A: 255,
			})
		}
	}
	return img
}

func TestAverageHashStableUnderResize(t *testing.T) {
	base := gradientImage(1920, 1080)
	baseHash := AverageHash(base)

	for _, size := range []struct{ w, h int }{{640, 360}, {960, 540}, {3840, 2160}} {
		resized := Resize(base, size.w, size.h)
		d := HammingDistance(baseHash, AverageHash(resized))
		if d > 5 {
			t.Errorf("hash of %dx%d resize is %d bits away, want <= 5", size.w, size.h, d)
		}
	}
}

func TestAverageHashStableThroughPNG(t *testing.T) {
	base := gradientImage(800, 600)
	baseHash := AverageHash(base)

	path := filepath.Join(t.TempDir(), "roundtrip.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, Resize(base, 1600, 1200)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	decoded, err := Decode(path)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if d := HammingDistance(baseHash, AverageHash(decoded.Frame)); d > 5 {
		t.Errorf("hash after upscale+PNG round trip is %d bits away, want <= 5", d)
	}
}

func TestAverageHashDistinguishesContent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	noisy := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for i := range noisy.Pix {
		noisy.Pix[i] = uint8(rng.Intn(256))
	}
	gradient := gradientImage(64, 64)

	if AverageHash(noisy) == AverageHash(gradient) {
		t.Error("structurally different images share an aHash")
	}
}

func TestHammingDistance(t *testing.T) {
	if d := HammingDistance(0, 0); d != 0 {
		t.Errorf("identical hashes distance %d", d)
	}
	if d := HammingDistance(0, ^uint64(0)); d != 64 {
		t.Errorf("opposite hashes distance %d, want 64", d)
	}
	if d := HammingDistance(0b1010, 0b1001); d != 2 {
		t.Errorf("distance = %d, want 2", d)
	}
}
