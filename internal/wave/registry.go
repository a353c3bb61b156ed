package wave

import (
	"pixelsense/internal/logging"
	"pixelsense/internal/manifest"
	"pixelsense/internal/rules"
)

// Build instantiates the built-in waves for every enabled manifest in the
// registry. Manifests with no matching implementation are skipped with a
// log: a manifest alone cannot conjure an analyzer.
func Build(reg *manifest.Registry, kernel *rules.Kernel) []Wave {
	log := logging.Get(logging.CategoryWaves)
	var waves []Wave
	for _, m := range reg.Enabled() {
		switch m.Name {
		case "identity":
			waves = append(waves, NewIdentityWave(m))
		case "color":
			waves = append(waves, NewColorWave(m))
		case "edge":
			waves = append(waves, NewEdgeWave(m))
		case "blur":
			waves = append(waves, NewBlurWave(m))
		case "text":
			waves = append(waves, NewTextWave(m))
		case "type":
			waves = append(waves, NewTypeWave(m))
		case "motion":
			waves = append(waves, NewMotionWave(m))
		case "contradiction":
			waves = append(waves, NewContradictionWave(m, kernel))
		default:
			log.Warn("no implementation for wave manifest %q, skipping", m.Name)
		}
	}
	log.Info("built %d waves", len(waves))
	return waves
}
