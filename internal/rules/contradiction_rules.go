package rules

// DefaultContradictionRules is the built-in rule program. Input facts are
// asserted per analysis from the merged signal view; the single derived
// predicate is contradiction(kind, severity). The [0,1] ratio facts
// (text_likeliness, edge_density, saturation) use the 0-100 integer scale
// (see ScaleFloat); sharpness, width and frame_count are raw integers.
const DefaultContradictionRules = `
# Contradiction detection over analysis signals.

Decl content_type(T) bound [/string].
Decl text_likeliness(V) bound [/number].
Decl sharpness(V) bound [/number].
Decl edge_density(V) bound [/number].
Decl saturation(V) bound [/number].
Decl is_animated(V) bound [/name].
Decl frame_count(V) bound [/number].
Decl width(V) bound [/number].
Decl is_grayscale(V) bound [/name].

Decl contradiction(Kind, Severity) bound [/string, /string].

# A photo that reads as mostly rendered text is suspicious.
contradiction("photo_with_heavy_text", "warning") :-
    content_type("Photo"),
    text_likeliness(T),
    T > 70.

# Animated flag without frames to back it up.
contradiction("animated_single_frame", "error") :-
    is_animated(/true),
    frame_count(1).

# Icons are small by definition.
contradiction("icon_oversized", "info") :-
    content_type("Icon"),
    width(W),
    W > 512.

# Scanned documents should not be saturated.
contradiction("scanned_document_saturated", "warning") :-
    content_type("ScannedDocument"),
    saturation(S),
    S > 40.

# Charts without structural edges are probably misclassified.
contradiction("chart_without_structure", "warning") :-
    content_type("Chart"),
    edge_density(E),
    E < 5.

# A grayscale artwork with near-zero sharpness reads as a failed decode.
contradiction("artwork_unfocused_grayscale", "info") :-
    content_type("Artwork"),
    is_grayscale(/true),
    sharpness(S),
    S < 10.
`

// SeverityRank orders contradiction severities; the highest ranked severity
// present becomes the validation status. Ties between rules resolving the
// same signals are resolved by preferring the higher-confidence signal,
// which the wave applies before asserting facts (only best signals are
// asserted).
var SeverityRank = map[string]int{
	"clean":    0,
	"info":     1,
	"warning":  2,
	"error":    3,
	"critical": 4,
}
