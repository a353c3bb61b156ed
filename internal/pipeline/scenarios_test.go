package pipeline

import (
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"pixelsense/internal/imaging"
	"pixelsense/internal/signal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// paintScene draws a deterministic photo-like pattern at any size.
func paintScene(img *image.RGBA) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(255 * x / w),
				G: uint8(255 * y / h),
				B: uint8(128 + 127*(x+y)/(w+h)),
				A: 255,
			})
		}
	}
}

func savePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestDuplicateByResizeIsPerceptualHit(t *testing.T) {
	a := newTestAnalyzer(t)
	dir := t.TempDir()

	original := image.NewRGBA(image.Rect(0, 0, 384, 216))
	paintScene(original)
	originalPath := filepath.Join(dir, "original.png")
	savePNG(t, originalPath, original)

	first, err := a.AnalyzeImage(context.Background(), originalPath, AnalyzeOptions{})
	require.NoError(t, err)
	require.False(t, first.IsCacheHit)

	// Re-save at a third of the size: different content hash, near-identical
	// perceptual hash.
	resizedPath := filepath.Join(dir, "resized.png")
	savePNG(t, resizedPath, imaging.Resize(original, 128, 72))

	second, err := a.AnalyzeImage(context.Background(), resizedPath, AnalyzeOptions{})
	require.NoError(t, err)
	assert.True(t, second.IsCacheHit, "resize should hit via the perceptual index")
	assert.True(t, second.PerceptualHit)

	stats, err := a.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Cache.PerceptualHits)
}

// writeAnimatedGIF builds a two-scene animation with a changing subtitle
// band in the bottom quarter.
func writeAnimatedGIF(t *testing.T, dir string) string {
	t.Helper()
	palette := color.Palette{
		color.RGBA{30, 30, 30, 255},
		color.RGBA{200, 40, 40, 255},
		color.RGBA{40, 40, 200, 255},
		color.RGBA{255, 255, 255, 255},
	}

	frame := func(scene uint8, subtitle uint8) *image.Paletted {
		img := image.NewPaletted(image.Rect(0, 0, 48, 48), palette)
		for y := 0; y < 48; y++ {
			for x := 0; x < 48; x++ {
				img.SetColorIndex(x, y, scene)
			}
		}
		for y := 38; y < 46; y++ {
			for x := 2; x < 46; x += 2 {
				img.SetColorIndex(x, y, subtitle)
			}
		}
		return img
	}

	anim := &gif.GIF{}
	for i := 0; i < 8; i++ {
		anim.Image = append(anim.Image, frame(1, 3))
		anim.Delay = append(anim.Delay, 5)
	}
	for i := 0; i < 8; i++ {
		anim.Image = append(anim.Image, frame(2, 0))
		anim.Delay = append(anim.Delay, 5)
	}

	path := filepath.Join(dir, "anim.gif")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, gif.EncodeAll(f, anim))
	require.NoError(t, f.Close())
	return path
}

func TestAnimatedInputProducesMotionSignals(t *testing.T) {
	a := newTestAnalyzer(t)
	path := writeAnimatedGIF(t, t.TempDir())

	result, err := a.AnalyzeImage(context.Background(), path, AnalyzeOptions{NoCache: true})
	require.NoError(t, err)

	assert.True(t, result.IsAnimated)
	assert.True(t, result.Completed("motion"))
	for _, key := range []string{
		signal.KeyMotionDirection, signal.KeySceneCount,
		signal.KeyAverageMotion, signal.KeyAnimationType,
	} {
		assert.Contains(t, result.Signals, key)
	}

	sceneCount := result.BestFloat(signal.KeySceneCount, 0)
	assert.GreaterOrEqual(t, sceneCount, 2.0, "two-scene animation")

	animated, _ := result.Signals[signal.KeyIsAnimated].Value.AsBool()
	assert.True(t, animated)
}

func TestSingleFrameGIFIsNotAnimated(t *testing.T) {
	a := newTestAnalyzer(t)
	dir := t.TempDir()

	palette := color.Palette{color.RGBA{0, 0, 0, 255}, color.RGBA{255, 255, 255, 255}}
	img := image.NewPaletted(image.Rect(0, 0, 32, 32), palette)
	anim := &gif.GIF{Image: []*image.Paletted{img}, Delay: []int{0}}

	path := filepath.Join(dir, "single.gif")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, gif.EncodeAll(f, anim))
	require.NoError(t, f.Close())

	result, err := a.AnalyzeImage(context.Background(), path, AnalyzeOptions{NoCache: true})
	require.NoError(t, err)
	assert.False(t, result.IsAnimated)
	assert.False(t, result.Completed("motion"), "motion wave triggers only on animated inputs")
}
