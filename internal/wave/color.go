package wave

import (
	"context"
	"fmt"

	"pixelsense/internal/imaging"
	"pixelsense/internal/manifest"
	"pixelsense/internal/signal"
)

// ColorWave profiles the palette: dominant colors, mean luminance and
// saturation, and the grayscale flag.
type ColorWave struct {
	Base
}

// NewColorWave builds the color wave from its manifest.
func NewColorWave(m *manifest.WaveManifest) *ColorWave {
	return &ColorWave{Base: NewBase(m)}
}

// Contribute computes the color signals from the first frame.
func (w *ColorWave) Contribute(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
	if info, ok := requireImage(b, w.Name()); !ok {
		return info, nil
	}
	frame := b.Image.Frame

	maxColors := w.Manifest().ParamInt("max_colors", 5)
	dominant := imaging.DominantColors(frame, maxColors)
	if Cancelled(ctx) {
		return nil, ctx.Err()
	}

	names := make([]string, 0, len(dominant))
	hexes := make([]string, 0, len(dominant))
	percentages := make([]string, 0, len(dominant))
	for _, d := range dominant {
		names = append(names, d.Name)
		hexes = append(hexes, d.Hex)
		percentages = append(percentages, fmt.Sprintf("%.3f", d.Percentage))
	}

	meanLum := imaging.MeanLuminance(frame)
	meanSat := imaging.MeanSaturation(frame)
	grayscale := imaging.IsMostlyGrayscale(frame)

	salience := 0.4
	if grayscale {
		salience = 0.5
	}
	c := w.Contribution("color", 0.15, 0.9, salience,
		fmt.Sprintf("palette of %d colors, saturation %.2f", len(dominant), meanSat))
	c.AddSignal(w.Emit(signal.KeyDominantNames, signal.StringList(names), 0.9))
	c.AddSignal(w.Emit(signal.KeyDominantHexes, signal.StringList(hexes), 0.9))
	c.AddSignal(w.Emit(signal.KeyDominantPercentages, signal.StringList(percentages), 0.9))
	c.AddSignal(w.Emit(signal.KeyPalette, signal.StringList(hexes), 0.9))
	c.AddSignal(w.Emit(signal.KeyMeanLuminance, signal.Float(meanLum), 1.0))
	c.AddSignal(w.Emit(signal.KeyMeanSaturation, signal.Float(meanSat), 1.0))
	c.AddSignal(w.Emit(signal.KeyMostlyGrayscale, signal.Bool(grayscale), 1.0))
	return []signal.DetectionContribution{c}, nil
}
