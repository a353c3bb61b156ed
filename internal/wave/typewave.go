package wave

import (
	"context"
	"fmt"

	"pixelsense/internal/manifest"
	"pixelsense/internal/signal"
)

// TypeWave classifies the image into the content-type enum from the signals
// the earlier waves produced. It is the coordinator wave: a confident
// classification can trigger early exit.
type TypeWave struct {
	Base
}

// NewTypeWave builds the type wave from its manifest.
func NewTypeWave(m *manifest.WaveManifest) *TypeWave {
	return &TypeWave{Base: NewBase(m)}
}

// Contribute scores each candidate type against the signal profile and emits
// the winner with its confidence.
func (w *TypeWave) Contribute(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
	if Cancelled(ctx) {
		return nil, ctx.Err()
	}

	density := b.BestFloat(signal.KeyEdgeDensity, 0)
	sharpness := b.BestFloat(signal.KeySharpness, 0)
	textLikeliness := b.BestFloat(signal.KeyTextLikeliness, 0)
	saturation := b.BestFloat(signal.KeyMeanSaturation, 0.5)
	entropy := b.BestFloat(signal.KeyLuminanceEntropy, 4)
	aspect := b.BestFloat(signal.KeyAspectRatio, 1)
	width := b.BestFloat(signal.KeyWidth, 0)
	animated := false
	if s, ok := b.ReadBest(signal.KeyIsAnimated); ok {
		animated, _ = s.Value.AsBool()
	}
	grayscale := false
	if s, ok := b.ReadBest(signal.KeyMostlyGrayscale); ok {
		grayscale, _ = s.Value.AsBool()
	}

	scores := map[signal.ContentType]float64{}

	// Photos: high entropy, natural saturation, no text dominance; focus helps.
	photo := entropy/8*0.45 + (1-textLikeliness)*0.3 + saturation*0.2
	if sharpness > 500 {
		photo += 0.05
	}
	scores[signal.TypePhoto] = photo
	// Screenshots: text plus flat regions, standard display aspect ratios.
	screenshot := textLikeliness*0.4 + (1-entropy/8)*0.3
	if aspect > 1.3 && aspect < 2.2 {
		screenshot += 0.2
	}
	scores[signal.TypeScreenshot] = screenshot
	// Diagrams: edges and text on a low-entropy background.
	scores[signal.TypeDiagram] = density*0.35 + textLikeliness*0.3 + (1-entropy/8)*0.35
	// Charts: like diagrams but with saturated series colors.
	scores[signal.TypeChart] = density*0.3 + textLikeliness*0.25 + saturation*0.25 + (1-entropy/8)*0.2
	// Icons: tiny and flat.
	icon := (1 - entropy/8) * 0.5
	if width > 0 && width <= 256 {
		icon += 0.4
	}
	scores[signal.TypeIcon] = icon
	// Artwork: saturated, high entropy, little text.
	scores[signal.TypeArtwork] = saturation*0.4 + (1-textLikeliness)*0.3 + entropy/8*0.3
	// Memes: animated or photo-with-text.
	meme := textLikeliness * 0.45
	if animated {
		meme += 0.35
	}
	meme += entropy / 8 * 0.2
	scores[signal.TypeMeme] = meme
	// Scanned documents: grayscale text pages.
	scanned := textLikeliness * 0.5
	if grayscale {
		scanned += 0.3
	}
	scanned += (1 - saturation) * 0.2
	scores[signal.TypeScannedDocument] = scanned

	best := signal.TypeUnknown
	bestScore, secondScore := 0.0, 0.0
	for t, s := range scores {
		if s > bestScore {
			best, secondScore, bestScore = t, bestScore, s
		} else if s > secondScore {
			secondScore = s
		}
	}

	// Confidence reflects both absolute fit and the margin over the runner-up.
	confidence := signal.Clamp01(bestScore*0.7 + (bestScore-secondScore)*1.5)
	if bestScore < 0.35 {
		best = signal.TypeUnknown
		confidence = signal.Clamp01(bestScore)
	}
	c := w.Contribution("content", confidence-0.5, 1.0, 0.6,
		fmt.Sprintf("classified as %s (%.2f)", best, confidence))
	c.AddSignal(w.Emit(signal.KeyContentType, signal.String(string(best)), confidence))
	c.AddSignal(w.Emit(signal.KeyTypeConfidence, signal.Float(confidence), 1.0))

	if confidence >= w.Manifest().ParamFloat("early_exit_confidence", 0.9) {
		c.TriggerEarlyExit = true
		c.EarlyExitVerdict = string(best)
	}
	return []signal.DetectionContribution{c}, nil
}
