package wave

import (
	"context"
	"fmt"
	"image"
	"math"

	"pixelsense/internal/imaging"
	"pixelsense/internal/manifest"
	"pixelsense/internal/scene"
	"pixelsense/internal/signal"
)

// MotionWave analyzes animated inputs: scene segmentation, per-transition
// motion, coarse direction, and animation complexity. It triggers only when
// identity reported an animated image and runs in the heavy lane.
type MotionWave struct {
	Base
}

// NewMotionWave builds the motion wave from its manifest.
func NewMotionWave(m *manifest.WaveManifest) *MotionWave {
	return &MotionWave{Base: NewBase(m)}
}

// Contribute runs text-aware scene detection and derives the motion and
// complexity signal families.
func (w *MotionWave) Contribute(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
	if info, ok := requireImage(b, w.Name()); !ok {
		return info, nil
	}
	img := b.Image
	if !img.IsAnimated {
		return []signal.DetectionContribution{
			signal.InfoContribution(w.Name(), "input is not animated"),
		}, nil
	}

	maxScenes := w.Manifest().ParamInt("max_scenes", 8)
	maxTextFrames := w.Manifest().ParamInt("max_text_frames", 8)
	result := scene.DetectScenesWithTextAwareness(img, maxScenes, maxTextFrames)
	if Cancelled(ctx) {
		return nil, ctx.Err()
	}

	direction := dominantDirection(img)
	magnitude := signal.Clamp01(result.AverageMotion * 4)
	movingShare := movingTransitionShare(result)
	stability := signal.Clamp01(1 - result.AverageMotion*4)
	colorVariation := motionSpread(result.SceneMotionScores)
	entropyVariation := entropySpread(img)

	animationType := "static"
	switch {
	case result.AverageMotion > 0.15:
		animationType = "dynamic"
	case result.AverageMotion > 0.03:
		animationType = "subtle"
	}
	overall := signal.Clamp01(magnitude*0.4 + colorVariation*0.3 + entropyVariation*0.3)

	salience := 0.5
	if result.SuggestEscalation() {
		salience = 0.7
	}
	c := w.Contribution("motion", 0.1, 1.0, salience,
		fmt.Sprintf("%d scenes, avg motion %.3f, %d text-change frames",
			result.SceneCount, result.AverageMotion, result.TextChangeFrameCount))

	dirConfidence := 0.5 + magnitude/2
	c.AddSignal(w.Emit(signal.KeyMotionDirection, signal.String(direction), dirConfidence))
	c.AddSignal(w.Emit(signal.KeyMotionMagnitude, signal.Float(magnitude), dirConfidence))
	c.AddSignal(w.Emit(signal.KeyMotionPercentage, signal.Float(movingShare), dirConfidence))
	c.AddSignal(w.Emit(signal.KeySceneCount, signal.Int(int64(result.SceneCount)), 1.0))
	c.AddSignal(w.Emit(signal.KeyAverageMotion, signal.Float(result.AverageMotion), 1.0))
	c.AddSignal(w.Emit(signal.KeyTextChangeFrames, signal.Int(int64(result.TextChangeFrameCount)), 1.0))
	c.AddSignal(w.Emit(signal.KeyAnimationType, signal.String(animationType), 1.0))
	c.AddSignal(w.Emit(signal.KeyVisualStability, signal.Float(stability), 1.0))
	c.AddSignal(w.Emit(signal.KeyColorVariation, signal.Float(colorVariation), 1.0))
	c.AddSignal(w.Emit(signal.KeyEntropyVariation, signal.Float(entropyVariation), 1.0))
	c.AddSignal(w.Emit(signal.KeyOverallComplexity, signal.Float(overall), 1.0))
	return []signal.DetectionContribution{c}, nil
}

// dominantDirection estimates coarse motion direction from the luminance
// centroid shift between the first and last frames.
func dominantDirection(img *imaging.Decoded) string {
	first := img.Frames[0]
	last := img.Frames[img.FrameCount()-1]
	fx, fy := luminanceCentroid(first)
	lx, ly := luminanceCentroid(last)
	dx, dy := lx-fx, ly-fy

	// Shifts under 1% of the frame read as no net direction.
	minShift := 0.01 * float64(img.Width)
	if math.Hypot(dx, dy) < minShift {
		return "none"
	}
	if math.Abs(dx) >= math.Abs(dy) {
		if dx > 0 {
			return "right"
		}
		return "left"
	}
	if dy > 0 {
		return "down"
	}
	return "up"
}

func luminanceCentroid(img *image.RGBA) (float64, float64) {
	gray := imaging.Grayscale(img)
	b := img.Bounds()
	w := b.Dx()
	var sum, sx, sy float64
	for i, v := range gray {
		sum += v
		sx += v * float64(i%w)
		sy += v * float64(i/w)
	}
	if sum == 0 {
		return 0, 0
	}
	return sx / sum, sy / sum
}

// movingTransitionShare is the fraction of scored transitions with
// meaningful motion.
func movingTransitionShare(r *scene.SceneResult) float64 {
	if len(r.SceneMotionScores) == 0 {
		return 0
	}
	moving := 0
	for _, s := range r.SceneMotionScores {
		if s > 0.02 {
			moving++
		}
	}
	return float64(moving) / float64(len(r.SceneMotionScores))
}

// motionSpread is the normalized standard deviation of motion scores.
func motionSpread(scores []float64) float64 {
	if len(scores) < 2 {
		return 0
	}
	var mean float64
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))
	var variance float64
	for _, s := range scores {
		variance += (s - mean) * (s - mean)
	}
	return signal.Clamp01(math.Sqrt(variance/float64(len(scores))) * 4)
}

// entropySpread measures how much luminance entropy varies across a handful
// of sampled frames.
func entropySpread(img *imaging.Decoded) float64 {
	n := img.FrameCount()
	if n < 2 {
		return 0
	}
	samples := []int{0, n / 2, n - 1}
	var values []float64
	for _, idx := range samples {
		values = append(values, imaging.LuminanceEntropy(img.Frames[idx]))
	}
	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return signal.Clamp01((max - min) / 4)
}
