package wave

import (
	"context"
	"fmt"

	"pixelsense/internal/manifest"
	"pixelsense/internal/signal"
)

// TextWave estimates how text-heavy the image is from already-computed
// structural signals. High edge density with moderate entropy is the classic
// rendered-text profile; grayscale pushes the estimate up (documents, scans).
type TextWave struct {
	Base
}

// NewTextWave builds the text-likeliness wave from its manifest.
func NewTextWave(m *manifest.WaveManifest) *TextWave {
	return &TextWave{Base: NewBase(m)}
}

// Contribute derives content.text_likeliness from quality signals.
func (w *TextWave) Contribute(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
	if Cancelled(ctx) {
		return nil, ctx.Err()
	}

	density := b.BestFloat(signal.KeyEdgeDensity, 0)
	entropy := b.BestFloat(signal.KeyLuminanceEntropy, 4)

	// Rendered text produces dense short edges against a flat background:
	// edge density climbs while entropy stays mid-range.
	likeliness := density * 2.5
	if entropy < 5.5 {
		likeliness *= 1.2
	}
	if entropy > 7 {
		likeliness *= 0.6
	}
	if s, ok := b.ReadBest(signal.KeyMostlyGrayscale); ok {
		if gray, _ := s.Value.AsBool(); gray {
			likeliness *= 1.25
		}
	}
	likeliness = signal.Clamp01(likeliness)

	c := w.Contribution("content", 0.05, 0.7, 0.35, fmt.Sprintf("text likeliness %.2f", likeliness))
	c.AddSignal(w.Emit(signal.KeyTextLikeliness, signal.Float(likeliness), 0.7))
	return []signal.DetectionContribution{c}, nil
}
