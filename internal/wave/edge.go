package wave

import (
	"context"
	"fmt"

	"pixelsense/internal/imaging"
	"pixelsense/internal/manifest"
	"pixelsense/internal/signal"
)

// EdgeWave measures structural quality: Sobel edge density and luminance
// entropy. Downstream, the text and type waves trigger on its output.
type EdgeWave struct {
	Base
}

// NewEdgeWave builds the edge wave from its manifest.
func NewEdgeWave(m *manifest.WaveManifest) *EdgeWave {
	return &EdgeWave{Base: NewBase(m)}
}

// Contribute computes edge density and entropy from the first frame.
func (w *EdgeWave) Contribute(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
	if info, ok := requireImage(b, w.Name()); !ok {
		return info, nil
	}
	frame := b.Image.Frame

	density := imaging.EdgeDensity(frame)
	if Cancelled(ctx) {
		return nil, ctx.Err()
	}
	entropy := imaging.LuminanceEntropy(frame)

	c := w.Contribution("quality", 0.1, 0.9, 0.4,
		fmt.Sprintf("edge density %.3f, entropy %.2f bits", density, entropy))
	c.AddSignal(w.Emit(signal.KeyEdgeDensity, signal.Float(density), 0.9))
	c.AddSignal(w.Emit(signal.KeyLuminanceEntropy, signal.Float(entropy), 0.9))
	return []signal.DetectionContribution{c}, nil
}
