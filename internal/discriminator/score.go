// Package discriminator scores analysis results across six orthogonal
// quality vectors, keeps an immutable ledger of scores and feedback, and
// learns per-signal effectiveness weights from that feedback.
package discriminator

import (
	"time"
)

// Vector names. A signal contribution records which of these it touched.
const (
	VectorOCRFidelity           = "ocr_fidelity"
	VectorMotionAgreement       = "motion_agreement"
	VectorPaletteConsistency    = "palette_consistency"
	VectorStructuralAlignment   = "structural_alignment"
	VectorGroundingCompleteness = "grounding_completeness"
	VectorNoveltyVsPrior        = "novelty_vs_prior"
)

// Vectors holds the six per-vector scores, each in [0,1].
type Vectors struct {
	OCRFidelity           float64 `json:"ocr_fidelity"`
	MotionAgreement       float64 `json:"motion_agreement"`
	PaletteConsistency    float64 `json:"palette_consistency"`
	StructuralAlignment   float64 `json:"structural_alignment"`
	GroundingCompleteness float64 `json:"grounding_completeness"`
	NoveltyVsPrior        float64 `json:"novelty_vs_prior"`
}

// Mean is the overall score: the unweighted mean of the six vectors.
func (v Vectors) Mean() float64 {
	return (v.OCRFidelity + v.MotionAgreement + v.PaletteConsistency +
		v.StructuralAlignment + v.GroundingCompleteness + v.NoveltyVsPrior) / 6
}

// SignalContribution records one signal's part in a score.
type SignalContribution struct {
	Value     float64  `json:"value"`
	Vectors   []string `json:"vectors"`
	Strength  float64  `json:"strength"`  // normalized per signal
	Agreement float64  `json:"agreement"` // 1 - |strength - mean(peer strengths)|
}

// Score is one immutable ledger record. Feedback never mutates a score; it
// is recorded as a successor record referencing the id.
type Score struct {
	ID                  string                        `json:"id"`
	ImageHash           string                        `json:"image_hash"`
	Timestamp           time.Time                     `json:"timestamp"`
	ImageType           string                        `json:"image_type"`
	Goal                string                        `json:"goal"`
	Vectors             Vectors                       `json:"vectors"`
	SignalContributions map[string]SignalContribution `json:"signal_contributions"`
	OverallScore        float64                       `json:"overall_score"`
	CaptionLength       int                           `json:"caption_length"`
	Accepted            *bool                         `json:"accepted,omitempty"`
	Feedback            string                        `json:"feedback,omitempty"`
}
