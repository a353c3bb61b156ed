// Package escalate decides when an analysis result warrants the vision LLM
// or OCR, assembles the structured prompt for the LLM, and normalizes the
// caption that comes back.
package escalate

import (
	"fmt"

	"pixelsense/internal/logging"
	"pixelsense/internal/signal"
)

// Thresholds are the escalation floors, usually sourced from config.
type Thresholds struct {
	TypeConfidenceFloor float64
	SharpnessFloor      float64
	TextLikelinessFloor float64
}

// DefaultThresholds returns the spec defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TypeConfidenceFloor: 0.7,
		SharpnessFloor:      300,
		TextLikelinessFloor: 0.4,
	}
}

// Decision is the outcome of the escalation rules.
type Decision struct {
	EscalateLLM bool
	EscalateOCR bool
	Reasons     []string
}

// Decide applies the escalation rules to a fresh analysis result.
func Decide(result *signal.ImageAnalysisResult, t Thresholds) Decision {
	var d Decision

	typeConfidence := result.BestFloat(signal.KeyTypeConfidence, 0)
	sharpness := result.BestFloat(signal.KeySharpness, 0)
	textLikeliness := result.BestFloat(signal.KeyTextLikeliness, 0)
	sceneCount := result.BestFloat(signal.KeySceneCount, 0)
	contentType := result.ContentType()

	if typeConfidence < t.TypeConfidenceFloor {
		d.EscalateLLM = true
		d.Reasons = append(d.Reasons, fmt.Sprintf("type confidence %.2f below %.2f", typeConfidence, t.TypeConfidenceFloor))
	}
	if sharpness < t.SharpnessFloor {
		d.EscalateLLM = true
		d.Reasons = append(d.Reasons, fmt.Sprintf("sharpness %.0f below %.0f", sharpness, t.SharpnessFloor))
	}
	if textLikeliness > t.TextLikelinessFloor {
		d.EscalateLLM = true
		d.Reasons = append(d.Reasons, fmt.Sprintf("text likeliness %.2f above %.2f", textLikeliness, t.TextLikelinessFloor))
	}
	if contentType == signal.TypeDiagram || contentType == signal.TypeChart {
		d.EscalateLLM = true
		d.Reasons = append(d.Reasons, fmt.Sprintf("detected type %s", contentType))
	}
	if result.IsAnimated && sceneCount > 2 {
		d.EscalateLLM = true
		d.Reasons = append(d.Reasons, fmt.Sprintf("animated with %d scenes", int(sceneCount)))
	}

	if textLikeliness >= t.TextLikelinessFloor {
		d.EscalateOCR = true
		d.Reasons = append(d.Reasons, fmt.Sprintf("OCR: text likeliness %.2f", textLikeliness))
	}

	logging.Get(logging.CategoryEscalation).Debug("escalation for %s: llm=%v ocr=%v (%v)",
		result.ImagePath, d.EscalateLLM, d.EscalateOCR, d.Reasons)
	return d
}
