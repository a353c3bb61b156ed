package escalate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPostProcessCaption(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain caption passes through",
			in:   "Two dogs playing in the park.",
			want: "Two dogs playing in the park.",
		},
		{
			name: "strips leakage preamble",
			in:   "Here is a caption: two dogs playing.",
			want: "Two dogs playing.",
		},
		{
			name: "strips stacked preambles",
			in:   "Sure, here is a caption: an image of two dogs.",
			want: "Two dogs.",
		},
		{
			name: "trims quotes",
			in:   `"a quiet mountain lake"`,
			want: "A quiet mountain lake",
		},
		{
			name: "capitalizes first letter",
			in:   "small red icon",
			want: "Small red icon",
		},
		{
			name: "empty stays empty",
			in:   "   ",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PostProcessCaption(tt.in, 125))
		})
	}
}

func TestPostProcessCaptionTruncatesOnSentence(t *testing.T) {
	in := "A crowded market street at dusk. Vendors line both sides selling fruit, fabric, and lanterns while shoppers wander between the stalls looking at everything on offer."
	out := PostProcessCaption(in, 125)
	assert.LessOrEqual(t, len(out), 125)
	assert.Equal(t, "A crowded market street at dusk.", out)
}

func TestPostProcessCaptionTruncatesOnWord(t *testing.T) {
	in := strings.Repeat("wordy ", 40) // no sentence boundary at all
	out := PostProcessCaption(in, 125)
	assert.LessOrEqual(t, len(out), 125)
	assert.False(t, strings.HasSuffix(out, " "), "no trailing space after word cut")
}
