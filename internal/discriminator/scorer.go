package discriminator

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"pixelsense/internal/logging"
	"pixelsense/internal/signal"
	"pixelsense/internal/vision"

	"github.com/google/uuid"
)

// Input carries everything one scoring pass looks at.
type Input struct {
	Profile      *signal.ImageAnalysisResult
	VisionResult *vision.AnalyzeResult
	OCRText      string
	Goal         string
	PriorScores  []*Score // earlier scores for the same image hash
}

// Scorer computes discriminator scores.
type Scorer struct{}

// NewScorer returns a scorer.
func NewScorer() *Scorer { return &Scorer{} }

// Score evaluates the six vectors and records every contributing signal
// with the vectors it touched. Agreement is filled in once all
// contributions are known; a signal with no peers in its vectors has
// agreement 1.
func (s *Scorer) Score(in Input) *Score {
	contribs := make(map[string]SignalContribution)
	add := func(name string, strength float64, vectors ...string) {
		contribs[name] = SignalContribution{
			Value:    strength,
			Vectors:  vectors,
			Strength: signal.Clamp01(strength),
		}
	}

	caption := in.Profile.Caption
	if in.VisionResult != nil && in.VisionResult.Caption != "" {
		caption = in.VisionResult.Caption
	}
	captionLower := strings.ToLower(caption)

	var v Vectors
	v.OCRFidelity = s.ocrFidelity(in, captionLower, add)
	v.MotionAgreement = s.motionAgreement(in, captionLower, add)
	v.PaletteConsistency = s.paletteConsistency(in, captionLower, add)
	v.StructuralAlignment = s.structuralAlignment(in, add)
	v.GroundingCompleteness = s.groundingCompleteness(in, add)
	v.NoveltyVsPrior = s.noveltyVsPrior(in, caption, add)

	fillAgreement(contribs)

	score := &Score{
		ID:                  uuid.NewString(),
		ImageHash:           in.Profile.BestString(signal.KeySha256, ""),
		Timestamp:           time.Now(),
		ImageType:           string(in.Profile.ContentType()),
		Goal:                in.Goal,
		Vectors:             v,
		SignalContributions: contribs,
		OverallScore:        v.Mean(),
		CaptionLength:       len(caption),
	}
	logging.Get(logging.CategoryDiscriminator).Debug("scored %s: overall %.3f", score.ImageHash, score.OverallScore)
	return score
}

// ocrFidelity: text likeliness, OCR volume, alphanumeric word ratio, and
// whether the caption references the text.
func (s *Scorer) ocrFidelity(in Input, captionLower string, add func(string, float64, ...string)) float64 {
	textLikeliness := in.Profile.BestFloat(signal.KeyTextLikeliness, 0)
	volume := math.Min(1, float64(len(in.OCRText))/500)
	wordRatio := alphanumericWordRatio(in.OCRText)
	refs := 0.0
	if captionReferencesText(captionLower, in.OCRText) {
		refs = 1.0
	}

	add(signal.KeyTextLikeliness, textLikeliness, VectorOCRFidelity)
	add("ocr.volume", volume, VectorOCRFidelity)
	add("ocr.word_ratio", wordRatio, VectorOCRFidelity)
	add("caption.references_text", refs, VectorOCRFidelity)
	return (textLikeliness + volume + wordRatio + refs) / 4
}

// motionAgreement: motion signal confidence, normalized magnitude, coverage,
// and caption mention of animation or direction.
func (s *Scorer) motionAgreement(in Input, captionLower string, add func(string, float64, ...string)) float64 {
	magnitudeSig, hasMotion := in.Profile.Best(signal.KeyMotionMagnitude)
	motionConfidence := 0.0
	magnitude := 0.0
	if hasMotion {
		motionConfidence = magnitudeSig.Confidence
		magnitude, _ = magnitudeSig.Value.AsFloat()
	}
	coverage := in.Profile.BestFloat(signal.KeyMotionPercentage, 0)

	mentions := 0.0
	direction := strings.ToLower(in.Profile.BestString(signal.KeyMotionDirection, ""))
	for _, word := range []string{"animat", "moving", "motion", "gif", direction} {
		if word != "" && word != "none" && strings.Contains(captionLower, word) {
			mentions = 1.0
			break
		}
	}

	add("motion.confidence", motionConfidence, VectorMotionAgreement)
	add(signal.KeyMotionMagnitude, magnitude, VectorMotionAgreement)
	add(signal.KeyMotionPercentage, coverage, VectorMotionAgreement)
	add("caption.mentions_motion", mentions, VectorMotionAgreement)
	return (motionConfidence + magnitude + coverage + mentions) / 4
}

// paletteConsistency: top-3 color coverage, saturation consistency,
// grayscale confidence, and caption mention of the dominant color.
func (s *Scorer) paletteConsistency(in Input, captionLower string, add func(string, float64, ...string)) float64 {
	coverage := topColorCoverage(in.Profile)
	saturation := in.Profile.BestFloat(signal.KeyMeanSaturation, 0.5)
	satConsistency := 1 - math.Abs(saturation-0.5)

	grayConfidence := 0.0
	if graySig, ok := in.Profile.Best(signal.KeyMostlyGrayscale); ok {
		grayConfidence = graySig.Confidence
	}

	mentions := 0.0
	if in.Profile.DominantColor != "" && strings.Contains(captionLower, strings.ToLower(in.Profile.DominantColor)) {
		mentions = 1.0
	}

	add("color.top_coverage", coverage, VectorPaletteConsistency)
	add(signal.KeyMeanSaturation, satConsistency, VectorPaletteConsistency)
	add(signal.KeyMostlyGrayscale, grayConfidence, VectorPaletteConsistency)
	add("caption.mentions_color", mentions, VectorPaletteConsistency)
	return (coverage + satConsistency + grayConfidence + mentions) / 4
}

// structuralAlignment: edge density, bucketed sharpness, aspect-ratio
// sanity, and normalized luminance entropy.
func (s *Scorer) structuralAlignment(in Input, add func(string, float64, ...string)) float64 {
	density := signal.Clamp01(in.Profile.BestFloat(signal.KeyEdgeDensity, 0))
	sharpness := bucketSharpness(in.Profile.BestFloat(signal.KeySharpness, 0))
	aspect := in.Profile.BestFloat(signal.KeyAspectRatio, 1)
	aspectSanity := 0.0
	if aspect >= 0.3 && aspect <= 3.0 {
		aspectSanity = 1.0
	}
	entropy := signal.Clamp01(in.Profile.BestFloat(signal.KeyLuminanceEntropy, 0) / 8)

	add(signal.KeyEdgeDensity, density, VectorStructuralAlignment)
	add(signal.KeySharpness, sharpness, VectorStructuralAlignment)
	add(signal.KeyAspectRatio, aspectSanity, VectorStructuralAlignment)
	add(signal.KeyLuminanceEntropy, entropy, VectorStructuralAlignment)
	return (density + sharpness + aspectSanity + entropy) / 4
}

// groundingCompleteness inspects the vision result's claims; with no claims
// present the vector is 0.
func (s *Scorer) groundingCompleteness(in Input, add func(string, float64, ...string)) float64 {
	if in.VisionResult == nil || len(in.VisionResult.Claims) == 0 {
		add("claims.none", 0, VectorGroundingCompleteness)
		return 0
	}
	claims := in.VisionResult.Claims

	sourceTypes := make(map[string]struct{})
	grounded, withFragments, synthesisOnly := 0, 0, 0
	for _, c := range claims {
		nonSynthesis := false
		for _, src := range c.Sources {
			sourceTypes[src] = struct{}{}
			if src != "synthesis" {
				nonSynthesis = true
			}
		}
		if nonSynthesis {
			grounded++
		} else {
			synthesisOnly++
		}
		if len(c.EvidenceFragments) > 0 {
			withFragments++
		}
	}

	n := float64(len(claims))
	diversity := math.Min(1, float64(len(sourceTypes))/3)
	groundedFrac := float64(grounded) / n
	fragmentFrac := float64(withFragments) / n
	nonSynthesis := 1 - float64(synthesisOnly)/n

	add("claims.source_diversity", diversity, VectorGroundingCompleteness)
	add("claims.grounded", groundedFrac, VectorGroundingCompleteness)
	add("claims.fragments", fragmentFrac, VectorGroundingCompleteness)
	add("claims.non_synthesis", nonSynthesis, VectorGroundingCompleteness)
	return (diversity + groundedFrac + fragmentFrac + nonSynthesis) / 4
}

// noveltyVsPrior: with no priors for the image hash, 1.0; else the mean of
// caption-length divergence and score divergence from the prior mean.
func (s *Scorer) noveltyVsPrior(in Input, caption string, add func(string, float64, ...string)) float64 {
	if len(in.PriorScores) == 0 {
		add("prior.none", 1, VectorNoveltyVsPrior)
		return 1
	}

	var lenSum, scoreSum float64
	for _, p := range in.PriorScores {
		lenSum += float64(p.CaptionLength)
		scoreSum += p.OverallScore
	}
	meanLen := lenSum / float64(len(in.PriorScores))
	meanScore := scoreSum / float64(len(in.PriorScores))

	lenDivergence := 0.0
	if maxLen := math.Max(meanLen, float64(len(caption))); maxLen > 0 {
		lenDivergence = math.Abs(float64(len(caption))-meanLen) / maxLen
	}
	// The current score is not final yet; approximate with the structural
	// signals already accumulated via the prior mean distance from 0.5.
	scoreDivergence := math.Abs(0.5 - meanScore)

	add("prior.caption_divergence", lenDivergence, VectorNoveltyVsPrior)
	add("prior.score_divergence", scoreDivergence, VectorNoveltyVsPrior)
	return (lenDivergence + scoreDivergence) / 2
}

// fillAgreement sets each contribution's agreement to one minus its distance
// from the mean strength of peers sharing any vector. Solo signals agree
// fully.
func fillAgreement(contribs map[string]SignalContribution) {
	for name, c := range contribs {
		var peerSum float64
		peers := 0
		for otherName, other := range contribs {
			if otherName == name {
				continue
			}
			if sharesVector(c.Vectors, other.Vectors) {
				peerSum += other.Strength
				peers++
			}
		}
		if peers == 0 {
			c.Agreement = 1
		} else {
			c.Agreement = 1 - math.Abs(c.Strength-peerSum/float64(peers))
		}
		contribs[name] = c
	}
}

func sharesVector(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func bucketSharpness(sharpness float64) float64 {
	switch {
	case sharpness >= 1000:
		return 1
	case sharpness >= 300:
		return 0.75
	case sharpness >= 150:
		return 0.5
	case sharpness >= 50:
		return 0.25
	default:
		return 0
	}
}

func alphanumericWordRatio(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	alnum := 0
	for _, w := range words {
		ok := true
		for _, r := range w {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				ok = false
				break
			}
		}
		if ok {
			alnum++
		}
	}
	return float64(alnum) / float64(len(words))
}

func captionReferencesText(captionLower, ocr string) bool {
	if captionLower == "" || ocr == "" {
		return false
	}
	for _, w := range strings.Fields(strings.ToLower(ocr)) {
		if len(w) > 3 && strings.Contains(captionLower, w) {
			return true
		}
	}
	return false
}

// topColorCoverage sums the top-3 dominant color percentages.
func topColorCoverage(profile *signal.ImageAnalysisResult) float64 {
	s, ok := profile.Best(signal.KeyDominantPercentages)
	if !ok {
		return 0
	}
	list, ok := s.Value.AsStringList()
	if !ok {
		return 0
	}
	var sum float64
	for i, p := range list {
		if i >= 3 {
			break
		}
		if v, err := strconv.ParseFloat(p, 64); err == nil {
			sum += v
		}
	}
	return signal.Clamp01(sum)
}
