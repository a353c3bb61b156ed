package escalate

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// leakagePreambles are the well-known prompt-leakage openers models prepend
// despite instructions. Matched case-insensitively and stripped repeatedly.
var leakagePreambles = []string{
	"here is a caption:",
	"here is the caption:",
	"here's a caption:",
	"caption:",
	"sure,",
	"certainly,",
	"the image shows",
	"this image shows",
	"an image of",
	"a picture of",
	"image of",
	"picture of",
}

// PostProcessCaption normalizes a raw LLM caption: strips leakage preambles
// and wrapping quotes, capitalizes the first letter, and truncates to
// maxLength on a sentence boundary, falling back to a word boundary.
func PostProcessCaption(caption string, maxLength int) string {
	out := strings.TrimSpace(caption)

	stripped := true
	for stripped {
		stripped = false
		lower := strings.ToLower(out)
		for _, pre := range leakagePreambles {
			if strings.HasPrefix(lower, pre) {
				out = strings.TrimSpace(out[len(pre):])
				stripped = true
				break
			}
		}
	}

	out = strings.Trim(out, `"'`)
	out = strings.TrimSpace(out)
	if out == "" {
		return ""
	}

	r, size := utf8.DecodeRuneInString(out)
	out = string(unicode.ToUpper(r)) + out[size:]

	if maxLength > 0 && len(out) > maxLength {
		out = truncateAtBoundary(out, maxLength)
	}
	return out
}

// truncateAtBoundary cuts at the last sentence end within the limit, or the
// last word break when no sentence fits.
func truncateAtBoundary(s string, max int) string {
	window := s[:max]
	if idx := strings.LastIndexAny(window, ".!?"); idx > 0 {
		return strings.TrimSpace(window[:idx+1])
	}
	if idx := strings.LastIndex(window, " "); idx > 0 {
		return strings.TrimSpace(window[:idx])
	}
	return window
}
