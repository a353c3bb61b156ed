// Package manifest loads the declarative wave manifests that drive the
// orchestrator. Manifests are YAML, one per wave, with a versioned schema;
// built-in defaults are baked into the binary and can be overridden or
// extended by files in the configured manifest directory.
package manifest

import (
	"fmt"
	"time"
)

// SchemaVersion is the current manifest schema version. Files declaring a
// higher version are rejected at load time; unknown fields within the
// current version are ignored with a log.
const SchemaVersion = 1

// WaveManifest declares a wave's parameters, triggers and emitted signals.
// The orchestrator builds its DAG from these without recompiling.
type WaveManifest struct {
	SchemaVersion int    `yaml:"schema_version"`
	Name          string `yaml:"name"`
	Priority      int    `yaml:"priority"`
	Enabled       bool   `yaml:"enabled"`
	IsOptional    bool   `yaml:"is_optional"`

	Scope    ScopeSpec    `yaml:"scope"`
	Triggers TriggerSpec  `yaml:"triggers"`
	Emits    EmitSpec     `yaml:"emits"`
	Listens  ListenSpec   `yaml:"listens"`
	Cache    CacheSpec    `yaml:"cache"`
	Config   ConfigSpec   `yaml:"config"`
	Lane     LaneSpec     `yaml:"lane"`
	Escalation EscalationSpec `yaml:"escalation"`

	TriggerTimeout   string `yaml:"trigger_timeout"`
	ExecutionTimeout string `yaml:"execution_timeout"`

	// Params holds wave-specific tunables; waves read them with the
	// precedence process-config override > manifest value > code default.
	Params map[string]interface{} `yaml:"params"`

	Tags []string `yaml:"tags"`
}

// ScopeSpec classifies where the wave sits in the dataflow.
type ScopeSpec struct {
	Sink        bool `yaml:"sink"`
	Coordinator bool `yaml:"coordinator"`
	Atom        bool `yaml:"atom"`
}

// TriggerSpec declares when a wave becomes eligible. All requires entries
// must hold (AllOf); when signals is non-empty, at least one listed key must
// exist (AnyOf); any skip_when entry holding vetoes the wave for the run.
type TriggerSpec struct {
	Requires []RequireSpec `yaml:"requires"`
	Signals  []string      `yaml:"signals"`
	SkipWhen []RequireSpec `yaml:"skip_when"`
}

// RequireSpec is one trigger condition over a blackboard signal.
// Condition is one of: exists (default), equals, gt, lt.
type RequireSpec struct {
	Signal    string      `yaml:"signal"`
	Condition string      `yaml:"condition"`
	Value     interface{} `yaml:"value"`
}

// EmitSpec declares the signals a wave emits across its lifecycle.
type EmitSpec struct {
	OnStart     []EmitKeySpec `yaml:"on_start"`
	OnComplete  []EmitKeySpec `yaml:"on_complete"`
	OnFailure   []EmitKeySpec `yaml:"on_failure"`
	Conditional []EmitKeySpec `yaml:"conditional"`
}

// EmitKeySpec declares one emitted signal key with its type contract.
type EmitKeySpec struct {
	Key             string     `yaml:"key"`
	Type            string     `yaml:"type"` // bool|int|float|string|string_list|bytes|map
	Description     string     `yaml:"description"`
	ConfidenceRange []float64  `yaml:"confidence_range"` // [min,max], both in [0,1]
}

// ListenSpec declares the input signals a wave consumes.
type ListenSpec struct {
	Required []string `yaml:"required"`
	Optional []string `yaml:"optional"`
}

// CacheSpec declares which signals participate in the signature cache.
type CacheSpec struct {
	Emits []string `yaml:"emits"`
	Uses  []string `yaml:"uses"`
}

// ConfigSpec binds manifest behavior to process configuration keys.
type ConfigSpec struct {
	Bindings []ConfigBinding `yaml:"bindings"`
}

// ConfigBinding gates a wave on a process config key.
type ConfigBinding struct {
	ConfigKey   string `yaml:"config_key"`
	SkipIfFalse bool   `yaml:"skip_if_false"`
}

// LaneSpec assigns the wave to a concurrency class.
type LaneSpec struct {
	Name           string `yaml:"name"` // fast | default | heavy
	MaxConcurrency int    `yaml:"max_concurrency"`
	Priority       int    `yaml:"priority"`
}

// EscalationSpec declares escalation hooks for the wave's findings.
type EscalationSpec struct {
	TextExtraction bool `yaml:"text_extraction"`
}

// Validate checks structural invariants on a single manifest.
func (m *WaveManifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("manifest missing name")
	}
	if m.SchemaVersion > SchemaVersion {
		return fmt.Errorf("manifest %s: schema_version %d not supported (max %d)", m.Name, m.SchemaVersion, SchemaVersion)
	}
	for _, e := range m.Emits.OnComplete {
		if e.Key == "" {
			return fmt.Errorf("manifest %s: emits.on_complete entry missing key", m.Name)
		}
		if len(e.ConfidenceRange) != 0 && len(e.ConfidenceRange) != 2 {
			return fmt.Errorf("manifest %s: emit %s: confidence_range must have two elements", m.Name, e.Key)
		}
		if len(e.ConfidenceRange) == 2 {
			lo, hi := e.ConfidenceRange[0], e.ConfidenceRange[1]
			if lo < 0 || hi > 1 || lo > hi {
				return fmt.Errorf("manifest %s: emit %s: confidence_range [%g,%g] invalid", m.Name, e.Key, lo, hi)
			}
		}
	}
	for _, r := range append(append([]RequireSpec{}, m.Triggers.Requires...), m.Triggers.SkipWhen...) {
		if r.Signal == "" {
			return fmt.Errorf("manifest %s: trigger condition missing signal", m.Name)
		}
		switch r.Condition {
		case "", "exists", "equals", "gt", "lt":
		default:
			return fmt.Errorf("manifest %s: unknown trigger condition %q", m.Name, r.Condition)
		}
	}
	if m.ExecutionTimeout != "" {
		if _, err := time.ParseDuration(m.ExecutionTimeout); err != nil {
			return fmt.Errorf("manifest %s: execution_timeout: %w", m.Name, err)
		}
	}
	if m.TriggerTimeout != "" {
		if _, err := time.ParseDuration(m.TriggerTimeout); err != nil {
			return fmt.Errorf("manifest %s: trigger_timeout: %w", m.Name, err)
		}
	}
	switch m.Lane.Name {
	case "", "fast", "default", "heavy":
	default:
		return fmt.Errorf("manifest %s: unknown lane %q", m.Name, m.Lane.Name)
	}
	return nil
}

// LaneName returns the wave's lane, defaulting to "default".
func (m *WaveManifest) LaneName() string {
	if m.Lane.Name == "" {
		return "default"
	}
	return m.Lane.Name
}

// ExecTimeout returns the parsed execution timeout, or def when unset.
func (m *WaveManifest) ExecTimeout(def time.Duration) time.Duration {
	if m.ExecutionTimeout == "" {
		return def
	}
	d, err := time.ParseDuration(m.ExecutionTimeout)
	if err != nil {
		return def
	}
	return d
}

// EmittedRange returns the declared confidence range for an emitted key.
// Defaults to [0,1] when undeclared.
func (m *WaveManifest) EmittedRange(key string) (lo, hi float64) {
	for _, e := range m.Emits.OnComplete {
		if e.Key == key && len(e.ConfidenceRange) == 2 {
			return e.ConfidenceRange[0], e.ConfidenceRange[1]
		}
	}
	return 0, 1
}

// ParamFloat reads a float param with a code default.
func (m *WaveManifest) ParamFloat(name string, def float64) float64 {
	v, ok := m.Params[name]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

// ParamInt reads an int param with a code default.
func (m *WaveManifest) ParamInt(name string, def int) int {
	v, ok := m.Params[name]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

// ParamBool reads a bool param with a code default.
func (m *WaveManifest) ParamBool(name string, def bool) bool {
	v, ok := m.Params[name]
	if !ok {
		return def
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

// ParamString reads a string param with a code default.
func (m *WaveManifest) ParamString(name, def string) string {
	v, ok := m.Params[name]
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return def
}

// ApplyOverrides layers process-config overrides on top of manifest params.
// Overrides take highest precedence per the configured parameter rules.
func (m *WaveManifest) ApplyOverrides(overrides map[string]interface{}) {
	if len(overrides) == 0 {
		return
	}
	if m.Params == nil {
		m.Params = make(map[string]interface{}, len(overrides))
	}
	for k, v := range overrides {
		m.Params[k] = v
	}
}
