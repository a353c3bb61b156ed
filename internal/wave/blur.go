package wave

import (
	"context"
	"fmt"

	"pixelsense/internal/imaging"
	"pixelsense/internal/manifest"
	"pixelsense/internal/signal"
)

// BlurWave measures focus via variance of the Laplacian. Low values feed the
// escalation rules: a blurry input is a candidate for the vision LLM.
type BlurWave struct {
	Base
}

// NewBlurWave builds the blur wave from its manifest.
func NewBlurWave(m *manifest.WaveManifest) *BlurWave {
	return &BlurWave{Base: NewBase(m)}
}

// Contribute computes the sharpness signal from the first frame.
func (w *BlurWave) Contribute(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
	if info, ok := requireImage(b, w.Name()); !ok {
		return info, nil
	}

	sharpness := imaging.Sharpness(b.Image.Frame)
	if Cancelled(ctx) {
		return nil, ctx.Err()
	}

	delta := 0.1
	if sharpness < 100 {
		delta = -0.1
	}
	c := w.Contribution("quality", delta, 0.8, 0.3, fmt.Sprintf("sharpness %.0f", sharpness))
	c.AddSignal(w.Emit(signal.KeySharpness, signal.Float(sharpness), 0.8))
	return []signal.DetectionContribution{c}, nil
}
