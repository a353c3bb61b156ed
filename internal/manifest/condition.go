package manifest

import (
	"fmt"

	"pixelsense/internal/signal"
)

// Condition is a composable trigger expression evaluated against the
// blackboard. A wave with no conditions is eligible immediately.
type Condition interface {
	Eval(b *signal.Blackboard) bool
	String() string
}

// SignalExists holds when at least one signal exists under the key.
type SignalExists struct{ Key string }

func (c SignalExists) Eval(b *signal.Blackboard) bool { return b.Has(c.Key) }
func (c SignalExists) String() string                 { return fmt.Sprintf("exists(%s)", c.Key) }

// SignalEquals holds when the best signal's value equals the expected value.
type SignalEquals struct {
	Key   string
	Value signal.Value
}

func (c SignalEquals) Eval(b *signal.Blackboard) bool {
	s, ok := b.ReadBest(c.Key)
	if !ok {
		return false
	}
	return s.Value.Equal(c.Value)
}
func (c SignalEquals) String() string { return fmt.Sprintf("equals(%s,%s)", c.Key, c.Value) }

// SignalGreaterThan holds when the best signal's numeric value exceeds the
// threshold. Non-numeric signals never satisfy it.
type SignalGreaterThan struct {
	Key       string
	Threshold float64
}

func (c SignalGreaterThan) Eval(b *signal.Blackboard) bool {
	s, ok := b.ReadBest(c.Key)
	if !ok {
		return false
	}
	v, ok := s.Value.AsFloat()
	return ok && v > c.Threshold
}
func (c SignalGreaterThan) String() string { return fmt.Sprintf("gt(%s,%g)", c.Key, c.Threshold) }

// SignalLessThan is the mirror of SignalGreaterThan.
type SignalLessThan struct {
	Key       string
	Threshold float64
}

func (c SignalLessThan) Eval(b *signal.Blackboard) bool {
	s, ok := b.ReadBest(c.Key)
	if !ok {
		return false
	}
	v, ok := s.Value.AsFloat()
	return ok && v < c.Threshold
}
func (c SignalLessThan) String() string { return fmt.Sprintf("lt(%s,%g)", c.Key, c.Threshold) }

// AllOf holds when every child holds. An empty AllOf holds.
type AllOf struct{ Children []Condition }

func (c AllOf) Eval(b *signal.Blackboard) bool {
	for _, child := range c.Children {
		if !child.Eval(b) {
			return false
		}
	}
	return true
}
func (c AllOf) String() string { return fmt.Sprintf("all_of(%d)", len(c.Children)) }

// AnyOf holds when at least one child holds. An empty AnyOf holds.
type AnyOf struct{ Children []Condition }

func (c AnyOf) Eval(b *signal.Blackboard) bool {
	if len(c.Children) == 0 {
		return true
	}
	for _, child := range c.Children {
		if child.Eval(b) {
			return true
		}
	}
	return false
}
func (c AnyOf) String() string { return fmt.Sprintf("any_of(%d)", len(c.Children)) }

// compileRequire turns one RequireSpec into a Condition.
func compileRequire(r RequireSpec) Condition {
	switch r.Condition {
	case "", "exists":
		return SignalExists{Key: r.Signal}
	case "equals":
		return SignalEquals{Key: r.Signal, Value: signal.FromInterface(r.Value)}
	case "gt":
		v, _ := signal.FromInterface(r.Value).AsFloat()
		return SignalGreaterThan{Key: r.Signal, Threshold: v}
	case "lt":
		v, _ := signal.FromInterface(r.Value).AsFloat()
		return SignalLessThan{Key: r.Signal, Threshold: v}
	}
	// Validate rejects anything else; exists is the safe fallback.
	return SignalExists{Key: r.Signal}
}

// TriggerCondition compiles the manifest's trigger block into one condition:
// AllOf(requires) AND AnyOf(exists(signals...)).
func (m *WaveManifest) TriggerCondition() Condition {
	all := AllOf{}
	for _, r := range m.Triggers.Requires {
		all.Children = append(all.Children, compileRequire(r))
	}
	if len(m.Triggers.Signals) > 0 {
		any := AnyOf{}
		for _, key := range m.Triggers.Signals {
			any.Children = append(any.Children, SignalExists{Key: key})
		}
		all.Children = append(all.Children, any)
	}
	return all
}

// SkipCondition compiles the manifest's skip_when block: AnyOf(skip_when).
// A wave whose skip condition holds is excluded from the run entirely.
func (m *WaveManifest) SkipCondition() Condition {
	if len(m.Triggers.SkipWhen) == 0 {
		return neverCondition{}
	}
	any := AnyOf{}
	for _, r := range m.Triggers.SkipWhen {
		any.Children = append(any.Children, compileRequire(r))
	}
	return any
}

// neverCondition never holds; used so an empty skip_when never skips.
type neverCondition struct{}

func (neverCondition) Eval(*signal.Blackboard) bool { return false }
func (neverCondition) String() string               { return "never" }
