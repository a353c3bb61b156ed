// Package wave defines the Wave interface the orchestrator schedules, the
// shared helper constructors, and the built-in heuristic waves. There is no
// inheritance chain: waves are one interface plus free helper functions, and
// every wave's parameters come from its manifest.
package wave

import (
	"context"

	"pixelsense/internal/logging"
	"pixelsense/internal/manifest"
	"pixelsense/internal/signal"
)

// Wave is a single analyzer scheduled by the orchestrator. Contribute must
// be idempotent with respect to its inputs: rerunning on the same blackboard
// state yields the same signal set with equal-or-higher confidence.
// Waves never return an error across the orchestrator boundary for
// recoverable faults; they convert those to info contributions.
type Wave interface {
	Name() string
	Manifest() *manifest.WaveManifest
	Contribute(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error)
}

// Base carries the manifest-backed fields every wave shares. Embed it and
// implement Contribute.
type Base struct {
	manifest *manifest.WaveManifest
}

// NewBase wraps a manifest for embedding.
func NewBase(m *manifest.WaveManifest) Base { return Base{manifest: m} }

// Name returns the wave's manifest name.
func (b Base) Name() string { return b.manifest.Name }

// Manifest returns the wave's manifest.
func (b Base) Manifest() *manifest.WaveManifest { return b.manifest }

// Emit builds a signal from this wave, with the confidence clamped into the
// manifest-declared range for the key.
func (b Base) Emit(key string, value signal.Value, confidence float64) signal.Signal {
	lo, hi := b.manifest.EmittedRange(key)
	if confidence < lo {
		confidence = lo
	}
	if confidence > hi {
		confidence = hi
	}
	return signal.New(key, value, confidence, b.manifest.Name)
}

// Contribution starts a contribution attributed to this wave.
func (b Base) Contribution(category string, delta, weight, salience float64, reason string) signal.DetectionContribution {
	return signal.NewContribution(b.manifest.Name, category, delta, weight, salience, reason)
}

// Cancelled reports whether the wave's context has been cancelled; waves
// check this at their suspension points.
func Cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Logf logs wave activity under the waves category.
func Logf(format string, args ...interface{}) {
	logging.Get(logging.CategoryWaves).Debug(format, args...)
}

// requireImage returns the decoded image, or an info contribution explaining
// why the wave could not run. Waves that need pixels call this first.
func requireImage(b *signal.Blackboard, wave string) ([]signal.DetectionContribution, bool) {
	if b.Image == nil || b.Image.Frame == nil {
		return []signal.DetectionContribution{
			signal.InfoContribution(wave, "no decoded image available"),
		}, false
	}
	return nil, true
}
