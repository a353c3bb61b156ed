package escalate

import (
	"testing"

	"pixelsense/internal/signal"

	"github.com/stretchr/testify/assert"
)

func profile(kv map[string]interface{}) *signal.ImageAnalysisResult {
	signals := make(map[string]signal.Signal, len(kv))
	for key, raw := range kv {
		signals[key] = signal.New(key, signal.FromInterface(raw), 0.9, "test")
	}
	return &signal.ImageAnalysisResult{Signals: signals}
}

func TestDecideSharpConfidentPhotoDoesNotEscalate(t *testing.T) {
	r := profile(map[string]interface{}{
		signal.KeyTypeConfidence: 0.85,
		signal.KeySharpness:      1800.0,
		signal.KeyTextLikeliness: 0.1,
		signal.KeyContentType:    "Photo",
	})
	d := Decide(r, DefaultThresholds())
	assert.False(t, d.EscalateLLM)
	assert.False(t, d.EscalateOCR)
}

func TestDecideBlurryDiagramEscalatesBoth(t *testing.T) {
	r := profile(map[string]interface{}{
		signal.KeyTypeConfidence: 0.55,
		signal.KeySharpness:      120.0,
		signal.KeyTextLikeliness: 0.55,
		signal.KeyContentType:    "Diagram",
	})
	d := Decide(r, DefaultThresholds())
	assert.True(t, d.EscalateLLM)
	assert.True(t, d.EscalateOCR)
	assert.NotEmpty(t, d.Reasons)
}

func TestDecideRules(t *testing.T) {
	tests := []struct {
		name    string
		signals map[string]interface{}
		animated bool
		wantLLM bool
		wantOCR bool
	}{
		{
			name: "low type confidence",
			signals: map[string]interface{}{
				signal.KeyTypeConfidence: 0.5,
				signal.KeySharpness:      2000.0,
				signal.KeyTextLikeliness: 0.1,
			},
			wantLLM: true,
		},
		{
			name: "low sharpness",
			signals: map[string]interface{}{
				signal.KeyTypeConfidence: 0.9,
				signal.KeySharpness:      100.0,
				signal.KeyTextLikeliness: 0.1,
			},
			wantLLM: true,
		},
		{
			name: "chart type always escalates",
			signals: map[string]interface{}{
				signal.KeyTypeConfidence: 0.95,
				signal.KeySharpness:      2000.0,
				signal.KeyTextLikeliness: 0.1,
				signal.KeyContentType:    "Chart",
			},
			wantLLM: true,
		},
		{
			name: "text likeliness at the OCR floor",
			signals: map[string]interface{}{
				signal.KeyTypeConfidence: 0.9,
				signal.KeySharpness:      2000.0,
				signal.KeyTextLikeliness: 0.4,
			},
			wantOCR: true,
			// 0.4 is not > 0.4, so the LLM rule does not fire.
			wantLLM: false,
		},
		{
			name: "busy animation",
			signals: map[string]interface{}{
				signal.KeyTypeConfidence: 0.9,
				signal.KeySharpness:      2000.0,
				signal.KeyTextLikeliness: 0.1,
				signal.KeySceneCount:     4,
			},
			animated: true,
			wantLLM:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := profile(tt.signals)
			r.IsAnimated = tt.animated
			d := Decide(r, DefaultThresholds())
			assert.Equal(t, tt.wantLLM, d.EscalateLLM, "LLM")
			assert.Equal(t, tt.wantOCR, d.EscalateOCR, "OCR")
		})
	}
}
