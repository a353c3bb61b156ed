// Package vision defines the contracts the pipeline requires of its external
// collaborators - the vision LLM and the OCR engine - plus a Gemini-backed
// implementation of both. The pipeline only ever sees the interfaces; tests
// substitute fakes.
package vision

import "context"

// Claim is one grounded statement from an enhanced vision response. Sources
// name the evidence types backing the claim ("signal", "ocr", "pixel",
// "synthesis"); synthesis-only claims are treated as ungrounded downstream.
type Claim struct {
	Text              string
	Sources           []string
	EvidenceFragments []string
}

// AnalyzeResult is what a vision LLM call produces.
type AnalyzeResult struct {
	Success          bool
	Caption          string
	Error            string
	Model            string
	Claims           []Claim
	EnhancedMetadata map[string]string
}

// Client is the vision LLM contract.
type Client interface {
	Analyze(ctx context.Context, imagePath string, prompt string) (*AnalyzeResult, error)
}

// OCRClient is the text-extraction contract. frameIndices selects animation
// frames; nil means the whole (still) image.
type OCRClient interface {
	ExtractText(ctx context.Context, imagePath string, frameIndices []int) (string, error)
}
