package escalate

import (
	_ "embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"pixelsense/internal/logging"
	"pixelsense/internal/signal"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var embeddedPrompts []byte

// promptTemplates is the data-driven prompt subsystem: a header stating the
// output envelope, a purpose line per requested format, a focus line per
// detected type, signal globs selecting the high-weight signal block, and
// per-format rules.
type promptTemplates struct {
	Header      string                       `yaml:"header"`
	Purposes    map[string]string            `yaml:"purposes"`
	Focus       map[string]string            `yaml:"focus"`
	SignalGlobs map[string][]string          `yaml:"signal_globs"`
	FormatRules map[string][]string          `yaml:"format_rules"`
}

// PromptBuilder assembles vision LLM prompts from the template set.
type PromptBuilder struct {
	templates promptTemplates
}

// NewPromptBuilder loads the embedded templates, optionally overlaid by a
// template file's contents.
func NewPromptBuilder(overlay []byte) (*PromptBuilder, error) {
	var t promptTemplates
	if err := yaml.Unmarshal(embeddedPrompts, &t); err != nil {
		return nil, fmt.Errorf("failed to parse embedded prompts: %w", err)
	}
	if len(overlay) > 0 {
		if err := yaml.Unmarshal(overlay, &t); err != nil {
			return nil, fmt.Errorf("failed to parse prompt overlay: %w", err)
		}
	}
	return &PromptBuilder{templates: t}, nil
}

// Build composes the structured prompt for one escalation: header, purpose
// for the requested format, focus for the detected type, the compact signal
// block, and the format rules.
func (p *PromptBuilder) Build(result *signal.ImageAnalysisResult, format string) string {
	if format == "" {
		format = "caption"
	}
	contentType := string(result.ContentType())

	var sb strings.Builder
	sb.WriteString(p.templates.Header)
	sb.WriteString("\n")

	if purpose, ok := p.templates.Purposes[format]; ok {
		sb.WriteString(purpose)
		sb.WriteString("\n")
	}
	if focus, ok := p.templates.Focus[contentType]; ok {
		sb.WriteString(focus)
		sb.WriteString("\n")
	}

	if block := p.signalBlock(result, contentType); block != "" {
		sb.WriteString("Detected signals:\n")
		sb.WriteString(block)
	}

	if rules, ok := p.templates.FormatRules[format]; ok && len(rules) > 0 {
		sb.WriteString("Rules:\n")
		for _, r := range rules {
			sb.WriteString("- ")
			sb.WriteString(r)
			sb.WriteString("\n")
		}
	}

	prompt := sb.String()
	logging.Get(logging.CategoryEscalation).Debug("built %s prompt for %s (%d chars)", format, contentType, len(prompt))
	return prompt
}

// signalBlock enumerates only the signals whose keys match the globs
// configured for the detected type, sorted for stable prompts.
func (p *PromptBuilder) signalBlock(result *signal.ImageAnalysisResult, contentType string) string {
	globs, ok := p.templates.SignalGlobs[contentType]
	if !ok {
		globs = p.templates.SignalGlobs["default"]
	}
	if len(globs) == 0 {
		return ""
	}

	keys := make([]string, 0, len(result.Signals))
	for key := range result.Signals {
		for _, glob := range globs {
			if matched, _ := path.Match(glob, key); matched {
				keys = append(keys, key)
				break
			}
		}
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		s := result.Signals[key]
		sb.WriteString(fmt.Sprintf("- %s: %s (%.2f)\n", key, s.Value, s.Confidence))
	}
	return sb.String()
}
