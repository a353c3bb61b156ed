// Package scene segments animated images into scenes and picks the minimal
// set of representative frames for downstream captioning and OCR. Detection
// is histogram-based: per-transition motion is measured as one minus the
// intersection of consecutive frame histograms.
package scene

import (
	"image"
	"math"
	"sort"

	"pixelsense/internal/imaging"
	"pixelsense/internal/logging"
)

// maxSampledFrames bounds histogram work on long animations; frames are
// sampled evenly across the full range.
const maxSampledFrames = 50

// SceneResult describes the detected scene structure of an animation.
type SceneResult struct {
	TotalFrames          int
	SceneCount           int
	SceneEndFrameIndices []int
	LastSceneFrameIndex  int
	SceneMotionScores    []float64
	AverageMotion        float64
	UsedMotionDetection  bool
	TextChangeFrameCount int
	TextChangeFrames     []int
}

// SuggestEscalation reports whether the animation is busy enough that the
// vision LLM should see it.
func (r *SceneResult) SuggestEscalation() bool {
	return r.SceneCount > 2 || r.AverageMotion > 0.1 || r.TextChangeFrameCount > 2
}

// SuggestTextExtraction reports whether OCR over the text-change frames is
// likely to pay off.
func (r *SceneResult) SuggestTextExtraction() bool {
	return r.TextChangeFrameCount > 1
}

// DetectScenes segments img into scenes using color-histogram motion.
// Scene-change frames are transitions whose motion exceeds mean + one
// standard deviation; the first and last frames are always included. When
// more than maxScenes boundaries are found, the highest-scoring ones are
// kept along with the endpoints. Boundaries whose histogram differs from the
// previous kept boundary by 8% or less are deduplicated.
func DetectScenes(img *imaging.Decoded, maxScenes int) *SceneResult {
	log := logging.Get(logging.CategoryScene)
	total := img.FrameCount()

	if total <= 1 {
		return &SceneResult{
			TotalFrames:          total,
			SceneCount:           1,
			SceneEndFrameIndices: []int{0},
			LastSceneFrameIndex:  0,
			UsedMotionDetection:  false,
		}
	}

	sampled := sampleIndices(total, maxSampledFrames)
	hists := make([]*imaging.ColorHistogram, len(sampled))
	for i, idx := range sampled {
		hists[i] = imaging.HistogramRGB(img.Frames[idx])
	}

	// Per-transition motion between consecutive sampled frames.
	motions := make([]float64, len(sampled)-1)
	var sum float64
	for i := 1; i < len(sampled); i++ {
		motions[i-1] = hists[i-1].Difference(hists[i])
		sum += motions[i-1]
	}
	mean := sum / float64(len(motions))
	var variance float64
	for _, m := range motions {
		variance += (m - mean) * (m - mean)
	}
	stddev := math.Sqrt(variance / float64(len(motions)))
	threshold := mean + stddev

	type boundary struct {
		sampleIdx int
		score     float64
	}
	var boundaries []boundary
	for i, m := range motions {
		if m > threshold {
			boundaries = append(boundaries, boundary{sampleIdx: i + 1, score: m})
		}
	}

	// Cap at maxScenes, preferring the strongest transitions. Endpoints are
	// added afterwards and never compete for slots.
	if maxScenes > 0 && len(boundaries) > maxScenes {
		sort.Slice(boundaries, func(i, j int) bool { return boundaries[i].score > boundaries[j].score })
		boundaries = boundaries[:maxScenes]
	}
	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i].sampleIdx < boundaries[j].sampleIdx })

	// Deduplicate boundaries that barely differ from the previous kept one.
	kept := boundaries[:0]
	lastKept := -1
	for _, bd := range boundaries {
		if lastKept >= 0 && hists[lastKept].Difference(hists[bd.sampleIdx]) <= 0.08 {
			continue
		}
		kept = append(kept, bd)
		lastKept = bd.sampleIdx
	}

	indices := []int{sampled[0]}
	scores := []float64{0}
	for _, bd := range kept {
		frame := sampled[bd.sampleIdx]
		if frame != indices[len(indices)-1] {
			indices = append(indices, frame)
			scores = append(scores, bd.score)
		}
	}
	last := sampled[len(sampled)-1]
	if indices[len(indices)-1] != last {
		indices = append(indices, last)
		scores = append(scores, motions[len(motions)-1])
	}

	log.Debug("scenes: %d frames -> %d boundaries (mean motion %.3f, threshold %.3f)",
		total, len(indices), mean, threshold)

	return &SceneResult{
		TotalFrames:          total,
		SceneCount:           len(indices),
		SceneEndFrameIndices: indices,
		LastSceneFrameIndex:  indices[len(indices)-1],
		SceneMotionScores:    scores,
		AverageMotion:        mean,
		UsedMotionDetection:  true,
	}
}

// DetectUniqueTextFrames picks the frames where the text inside the given
// boxes changes. Consecutive frames are compared by the average Pearson
// correlation of per-box normalized grayscale histograms; a frame whose
// correlation to the last kept frame drops below similarityThreshold starts
// a new text frame. Boxes are clamped to image bounds; zero-area boxes read
// as a 1x1 black matrix and contribute correlation 0.
func DetectUniqueTextFrames(img *imaging.Decoded, boxes []image.Rectangle, maxFrames int, similarityThreshold float64) []int {
	if img.FrameCount() == 0 || len(boxes) == 0 {
		return nil
	}
	if similarityThreshold <= 0 {
		similarityThreshold = 0.85
	}

	boxHists := func(frame *image.RGBA) [][]float64 {
		out := make([][]float64, len(boxes))
		for i, box := range boxes {
			h := imaging.GrayHistogram(frame, box)
			out[i] = h[:]
		}
		return out
	}
	empty := make([]bool, len(boxes))
	for i, box := range boxes {
		empty[i] = box.Intersect(image.Rect(0, 0, img.Width, img.Height)).Empty()
	}

	kept := []int{0}
	lastHists := boxHists(img.Frames[0])
	for idx := 1; idx < img.FrameCount(); idx++ {
		cur := boxHists(img.Frames[idx])
		var corrSum float64
		for i := range boxes {
			if empty[i] {
				// Degenerate boxes read as a 1x1 black matrix and always
				// count as different.
				continue
			}
			corrSum += imaging.PearsonCorrelation(lastHists[i], cur[i])
		}
		avg := corrSum / float64(len(boxes))
		if avg < similarityThreshold {
			kept = append(kept, idx)
			lastHists = cur
			if maxFrames > 0 && len(kept) >= maxFrames {
				break
			}
		}
	}
	return kept
}

// DetectTextChangeFrames is the fallback when no ML text boxes are
// available: it watches the bottom quarter of the frame, where subtitles
// typically appear, and keeps frames whose region histogram differs from
// the previous kept frame by more than 5%.
func DetectTextChangeFrames(img *imaging.Decoded, maxTextFrames int) []int {
	if img.FrameCount() <= 1 {
		return nil
	}

	region := func(frame *image.RGBA) [256]float64 {
		b := frame.Bounds()
		strip := image.Rect(b.Min.X, b.Min.Y+b.Dy()*3/4, b.Max.X, b.Max.Y)
		return imaging.GrayHistogram(frame, strip)
	}

	const sensitivity = 0.05
	kept := []int{0}
	last := region(img.Frames[0])
	for idx := 1; idx < img.FrameCount(); idx++ {
		cur := region(img.Frames[idx])
		var diff float64
		for i := range cur {
			diff += math.Abs(cur[i] - last[i])
		}
		if diff/2 > sensitivity {
			kept = append(kept, idx)
			last = cur
			if maxTextFrames > 0 && len(kept) >= maxTextFrames {
				break
			}
		}
	}
	return kept
}

// DetectScenesWithTextAwareness unions scene boundaries with text-change
// frames. When the union exceeds maxScenes the priority order is endpoints,
// then scene-change frames, then text-change frames.
func DetectScenesWithTextAwareness(img *imaging.Decoded, maxScenes, maxTextFrames int) *SceneResult {
	result := DetectScenes(img, maxScenes)
	if !result.UsedMotionDetection {
		return result
	}

	textFrames := DetectTextChangeFrames(img, maxTextFrames)
	result.TextChangeFrames = textFrames
	result.TextChangeFrameCount = len(textFrames)

	first := result.SceneEndFrameIndices[0]
	last := result.LastSceneFrameIndex

	in := make(map[int]bool)
	union := make([]int, 0, len(result.SceneEndFrameIndices)+len(textFrames))
	add := func(frames []int) {
		for _, f := range frames {
			if !in[f] {
				in[f] = true
				union = append(union, f)
			}
		}
	}
	// Priority order drives which frames survive the cap.
	add([]int{first, last})
	add(result.SceneEndFrameIndices)
	add(textFrames)
	if maxScenes > 0 && len(union) > maxScenes {
		union = union[:maxScenes]
	}
	sort.Ints(union)

	result.SceneEndFrameIndices = union
	result.SceneCount = len(union)
	result.LastSceneFrameIndex = union[len(union)-1]
	return result
}

// sampleIndices returns up to max frame indices spread evenly over total,
// always including the first and last frame.
func sampleIndices(total, max int) []int {
	if total <= max {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out
	}
	out := make([]int, 0, max)
	step := float64(total-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(float64(i) * step))
		if len(out) == 0 || out[len(out)-1] != idx {
			out = append(out, idx)
		}
	}
	return out
}
