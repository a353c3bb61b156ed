package scene

import (
	"image"
	"image/color"
	"testing"

	"pixelsense/internal/imaging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidFrame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// subtitledFrame paints a base color with a text-like band in the bottom
// quarter whose brightness encodes the "subtitle".
func subtitledFrame(base, band color.RGBA) *image.RGBA {
	img := solidFrame(64, 64, base)
	for y := 48; y < 64; y++ {
		for x := 0; x < 64; x += 2 {
			img.SetRGBA(x, y, band)
		}
	}
	return img
}

func animation(frames ...*image.RGBA) *imaging.Decoded {
	first := frames[0]
	b := first.Bounds()
	return &imaging.Decoded{
		Path:       "synthetic.gif",
		Format:     "gif",
		Width:      b.Dx(),
		Height:     b.Dy(),
		IsAnimated: len(frames) > 1,
		Frame:      first,
		Frames:     frames,
	}
}

func TestDetectScenesSingleFrame(t *testing.T) {
	img := animation(solidFrame(32, 32, color.RGBA{10, 10, 10, 255}))
	result := DetectScenes(img, 8)

	assert.Equal(t, 1, result.SceneCount)
	assert.False(t, result.UsedMotionDetection)
	assert.Equal(t, 0, result.LastSceneFrameIndex)
	assert.False(t, result.SuggestEscalation())
}

func TestDetectScenesFindsHardCut(t *testing.T) {
	var frames []*image.RGBA
	for i := 0; i < 10; i++ {
		frames = append(frames, solidFrame(32, 32, color.RGBA{200, 30, 30, 255}))
	}
	for i := 0; i < 10; i++ {
		frames = append(frames, solidFrame(32, 32, color.RGBA{30, 30, 200, 255}))
	}

	result := DetectScenes(animation(frames...), 8)
	require.True(t, result.UsedMotionDetection)
	assert.Equal(t, 20, result.TotalFrames)
	// First frame, the cut, and the last frame.
	assert.Contains(t, result.SceneEndFrameIndices, 0)
	assert.Contains(t, result.SceneEndFrameIndices, 10)
	assert.Equal(t, 19, result.LastSceneFrameIndex)
}

func TestDetectScenesIncludesEndpoints(t *testing.T) {
	var frames []*image.RGBA
	for i := 0; i < 12; i++ {
		frames = append(frames, solidFrame(32, 32, color.RGBA{90, 90, 90, 255}))
	}
	result := DetectScenes(animation(frames...), 4)
	assert.Equal(t, result.SceneEndFrameIndices[0], 0)
	assert.Equal(t, result.LastSceneFrameIndex, 11)
}

func TestDetectTextChangeFrames(t *testing.T) {
	base := color.RGBA{40, 40, 40, 255}
	var frames []*image.RGBA
	// Three subtitle "lines", several frames each.
	for _, band := range []color.RGBA{
		{255, 255, 255, 255},
		{10, 10, 10, 255},
		{160, 160, 160, 255},
	} {
		for i := 0; i < 5; i++ {
			frames = append(frames, subtitledFrame(base, band))
		}
	}

	changes := DetectTextChangeFrames(animation(frames...), 8)
	// Frame 0 plus the two subtitle swaps.
	assert.GreaterOrEqual(t, len(changes), 2)
	assert.LessOrEqual(t, len(changes), 4)
	assert.Equal(t, 0, changes[0])
}

func TestDetectTextChangeFramesStill(t *testing.T) {
	img := animation(solidFrame(32, 32, color.RGBA{0, 0, 0, 255}))
	assert.Nil(t, DetectTextChangeFrames(img, 8))
}

func TestDetectUniqueTextFramesZeroAreaBox(t *testing.T) {
	frames := []*image.RGBA{
		solidFrame(32, 32, color.RGBA{255, 255, 255, 255}),
		solidFrame(32, 32, color.RGBA{255, 255, 255, 255}),
	}
	boxes := []image.Rectangle{image.Rect(5, 5, 5, 5)}

	// A zero-area box yields correlation 0 per frame pair, below any sane
	// similarity threshold, so every frame reads as a new text frame.
	kept := DetectUniqueTextFrames(animation(frames...), boxes, 8, 0.85)
	assert.Equal(t, []int{0, 1}, kept)
}

func TestDetectUniqueTextFramesStableText(t *testing.T) {
	band := color.RGBA{250, 250, 250, 255}
	base := color.RGBA{20, 20, 20, 255}
	frames := []*image.RGBA{
		subtitledFrame(base, band),
		subtitledFrame(base, band),
		subtitledFrame(base, band),
	}
	boxes := []image.Rectangle{image.Rect(0, 48, 64, 64)}

	kept := DetectUniqueTextFrames(animation(frames...), boxes, 8, 0.85)
	assert.Equal(t, []int{0}, kept, "identical text should collapse to the first frame")
}

func TestDetectScenesWithTextAwarenessUnion(t *testing.T) {
	base := color.RGBA{40, 40, 40, 255}
	var frames []*image.RGBA
	for i := 0; i < 6; i++ {
		frames = append(frames, subtitledFrame(base, color.RGBA{255, 255, 255, 255}))
	}
	for i := 0; i < 6; i++ {
		frames = append(frames, subtitledFrame(color.RGBA{200, 40, 40, 255}, color.RGBA{10, 10, 10, 255}))
	}

	result := DetectScenesWithTextAwareness(animation(frames...), 8, 8)
	require.True(t, result.UsedMotionDetection)
	assert.GreaterOrEqual(t, result.TextChangeFrameCount, 1)
	assert.Contains(t, result.SceneEndFrameIndices, 0)
	assert.Equal(t, 11, result.LastSceneFrameIndex)
}

func TestSampleIndices(t *testing.T) {
	idx := sampleIndices(10, 50)
	assert.Len(t, idx, 10)

	idx = sampleIndices(200, 50)
	assert.LessOrEqual(t, len(idx), 50)
	assert.Equal(t, 0, idx[0])
	assert.Equal(t, 199, idx[len(idx)-1])
}
