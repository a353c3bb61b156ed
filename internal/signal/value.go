// Package signal defines the typed signal model shared by every analysis
// component: tagged-variant values, the per-image blackboard, and the
// contribution merger that folds wave outputs into a final result.
package signal

import (
	"fmt"
	"strings"
)

// Kind enumerates the allowed value kinds for a signal.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindFloat
	KindString
	KindStringList
	KindBytes
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindStringList:
		return "string_list"
	case KindBytes:
		return "bytes"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Value is a tagged variant holding one of the allowed signal value kinds.
// The zero value is a false bool. Values are immutable once constructed.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	list []string
	raw  []byte
	m    map[string]Value
}

// Bool constructs a bool value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int constructs an int value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float constructs a float value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// String constructs a string value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// StringList constructs a list-of-strings value. The slice is copied.
func StringList(v []string) Value {
	cp := make([]string, len(v))
	copy(cp, v)
	return Value{kind: KindStringList, list: cp}
}

// Bytes constructs a bytes value. The slice is copied.
func Bytes(v []byte) Value {
	cp := make([]byte, len(v))
	copy(cp, v)
	return Value{kind: KindBytes, raw: cp}
}

// Map constructs a nested map value. The map is copied one level deep.
func Map(v map[string]Value) Value {
	cp := make(map[string]Value, len(v))
	for k, val := range v {
		cp[k] = val
	}
	return Value{kind: KindMap, m: cp}
}

// Kind returns the value's kind tag.
func (v Value) Kind() Kind { return v.kind }

// AsBool returns the bool value and whether the kind matched.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the int value and whether the kind matched.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the float value; ints coerce losslessly.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// AsString returns the string value and whether the kind matched.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsStringList returns a copy of the list value and whether the kind matched.
func (v Value) AsStringList() ([]string, bool) {
	if v.kind != KindStringList {
		return nil, false
	}
	cp := make([]string, len(v.list))
	copy(cp, v.list)
	return cp, true
}

// AsBytes returns a copy of the bytes value and whether the kind matched.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	cp := make([]byte, len(v.raw))
	copy(cp, v.raw)
	return cp, true
}

// AsMap returns a copy of the map value and whether the kind matched.
func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	cp := make(map[string]Value, len(v.m))
	for k, val := range v.m {
		cp[k] = val
	}
	return cp, true
}

// Equal reports deep equality of two values, tag included.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindStringList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	case KindBytes:
		if len(v.raw) != len(o.raw) {
			return false
		}
		for i := range v.raw {
			if v.raw[i] != o.raw[i] {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, val := range v.m {
			ov, ok := o.m[k]
			if !ok || !val.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// Interface returns the value as a plain Go value for serialization.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindStringList:
		out, _ := v.AsStringList()
		return out
	case KindBytes:
		out, _ := v.AsBytes()
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.m))
		for k, val := range v.m {
			out[k] = val.Interface()
		}
		return out
	}
	return nil
}

// FromInterface converts a plain Go value (as produced by JSON/YAML decoding
// or Interface) back into a tagged Value. Unknown types become strings.
func FromInterface(raw interface{}) Value {
	switch v := raw.(type) {
	case bool:
		return Bool(v)
	case int:
		return Int(int64(v))
	case int64:
		return Int(v)
	case float64:
		return Float(v)
	case string:
		return String(v)
	case []byte:
		return Bytes(v)
	case []string:
		return StringList(v)
	case []interface{}:
		list := make([]string, 0, len(v))
		for _, e := range v {
			list = append(list, fmt.Sprintf("%v", e))
		}
		return StringList(list)
	case map[string]interface{}:
		m := make(map[string]Value, len(v))
		for k, e := range v {
			m[k] = FromInterface(e)
		}
		return Map(m)
	case map[string]Value:
		return Map(v)
	case Value:
		return v
	default:
		return String(fmt.Sprintf("%v", raw))
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return fmt.Sprintf("%v", v.b)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%g", v.f)
	case KindString:
		return v.s
	case KindStringList:
		return strings.Join(v.list, ",")
	case KindBytes:
		return fmt.Sprintf("bytes[%d]", len(v.raw))
	case KindMap:
		return fmt.Sprintf("map[%d]", len(v.m))
	}
	return "?"
}
