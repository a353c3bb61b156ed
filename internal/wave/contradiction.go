package wave

import (
	"context"
	"fmt"

	"pixelsense/internal/manifest"
	"pixelsense/internal/rules"
	"pixelsense/internal/signal"
)

// ContradictionWave is the sink wave: it asserts the best signal per key as
// facts and lets the rule kernel derive contradictions. Contradictions are
// policy findings, not failures; they surface as validation.* signals.
type ContradictionWave struct {
	Base
	kernel *rules.Kernel
}

// NewContradictionWave builds the contradiction wave. kernel may be shared
// across analyses; evaluation runs on a per-call fact store.
func NewContradictionWave(m *manifest.WaveManifest, kernel *rules.Kernel) *ContradictionWave {
	return &ContradictionWave{Base: NewBase(m), kernel: kernel}
}

// Contribute asserts the current signal view and reports derived
// contradictions with the highest severity as the status.
func (w *ContradictionWave) Contribute(ctx context.Context, b *signal.Blackboard) ([]signal.DetectionContribution, error) {
	if w.kernel == nil {
		return []signal.DetectionContribution{
			signal.InfoContribution(w.Name(), "rule kernel unavailable"),
		}, nil
	}
	if Cancelled(ctx) {
		return nil, ctx.Err()
	}

	facts := w.collectFacts(b)
	derived, err := w.kernel.Evaluate(facts, "contradiction")
	if err != nil {
		Logf("contradiction: evaluation failed: %v", err)
		return []signal.DetectionContribution{
			signal.InfoContribution(w.Name(), fmt.Sprintf("rule evaluation failed: %v", err)),
		}, nil
	}

	status := "clean"
	kinds := make([]string, 0, len(derived))
	for _, f := range derived {
		if len(f.Args) != 2 {
			continue
		}
		kind, _ := f.Args[0].(string)
		severity, _ := f.Args[1].(string)
		kinds = append(kinds, kind)
		if rules.SeverityRank[severity] > rules.SeverityRank[status] {
			status = severity
		}
	}

	delta := 0.05
	if len(kinds) > 0 {
		delta = -0.1 * float64(rules.SeverityRank[status])
	}
	c := w.Contribution("validation", delta, 1.0, 0.3,
		fmt.Sprintf("%d contradictions, status %s", len(kinds), status))
	count := w.Emit(signal.KeyContradictionCount, signal.Int(int64(len(kinds))), 1.0)
	if len(kinds) > 0 {
		count = count.WithMetadata("kinds", signal.StringList(kinds))
	}
	c.AddSignal(count)
	c.AddSignal(w.Emit(signal.KeyContradictionStatus, signal.String(status), 1.0))
	return []signal.DetectionContribution{c}, nil
}

// collectFacts maps the best signal per key to rule facts. Only the best
// signal is asserted, so rules over the same pair of signals resolve to the
// higher-confidence observation.
func (w *ContradictionWave) collectFacts(b *signal.Blackboard) []rules.Fact {
	var facts []rules.Fact

	if t := b.BestString(signal.KeyContentType, ""); t != "" {
		facts = append(facts, rules.Fact{Predicate: "content_type", Args: []interface{}{t}})
	}
	addScaled := func(pred, key string) {
		if s, ok := b.ReadBest(key); ok {
			if v, ok := s.Value.AsFloat(); ok {
				facts = append(facts, rules.Fact{Predicate: pred, Args: []interface{}{rules.ScaleFloat(v)}})
			}
		}
	}
	addScaled("text_likeliness", signal.KeyTextLikeliness)
	addScaled("edge_density", signal.KeyEdgeDensity)
	addScaled("saturation", signal.KeyMeanSaturation)

	if s, ok := b.ReadBest(signal.KeySharpness); ok {
		if v, ok := s.Value.AsFloat(); ok {
			facts = append(facts, rules.Fact{Predicate: "sharpness", Args: []interface{}{int64(v)}})
		}
	}
	if s, ok := b.ReadBest(signal.KeyWidth); ok {
		if v, ok := s.Value.AsInt(); ok {
			facts = append(facts, rules.Fact{Predicate: "width", Args: []interface{}{v}})
		}
	}
	if s, ok := b.ReadBest(signal.KeyFrameCount); ok {
		if v, ok := s.Value.AsInt(); ok {
			facts = append(facts, rules.Fact{Predicate: "frame_count", Args: []interface{}{v}})
		}
	}
	addBool := func(pred, key string) {
		if s, ok := b.ReadBest(key); ok {
			if v, ok := s.Value.AsBool(); ok {
				name := "/false"
				if v {
					name = "/true"
				}
				facts = append(facts, rules.Fact{Predicate: pred, Args: []interface{}{name}})
			}
		}
	}
	addBool("is_animated", signal.KeyIsAnimated)
	addBool("is_grayscale", signal.KeyMostlyGrayscale)
	return facts
}
