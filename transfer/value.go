package transfer

import (
	"fmt"
	"math"

	"github.com/wippyai/isolates/errors"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is an immutable, heap-independent datum. The zero Value is
// undefined.
type Value struct {
	kind Kind
	b    bool
	num  uint64 // int64 or float64 bits depending on kind
	str  string
	raw  []byte
	list []Value
	dict map[string]Value
}

// Undefined returns the undefined value.
func Undefined() Value { return Value{} }

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool returns a boolean value.
func Bool(v bool) Value { return Value{kind: KindBool, b: v} }

// Int returns a 64-bit integer value.
func Int(v int64) Value { return Value{kind: KindInt, num: uint64(v)} }

// Float returns a 64-bit float value.
func Float(v float64) Value { return Value{kind: KindFloat, num: math.Float64bits(v)} }

// String returns a string value.
func String(v string) Value { return Value{kind: KindString, str: v} }

// Bytes returns a binary value. The input is copied so the Value does not
// alias caller-owned memory.
func Bytes(v []byte) Value {
	cp := make([]byte, len(v))
	copy(cp, v)
	return Value{kind: KindBytes, raw: cp}
}

// List returns a list value holding the given elements.
func List(vs ...Value) Value {
	cp := make([]Value, len(vs))
	copy(cp, vs)
	return Value{kind: KindList, list: cp}
}

// Map returns a map value. The input map is copied shallowly; element
// Values are already safe to share.
func Map(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, dict: cp}
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsUndefined reports whether v is the undefined value.
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsInt returns the integer payload.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return int64(v.num), true
}

// AsFloat returns the float payload.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindFloat {
		return 0, false
	}
	return math.Float64frombits(v.num), true
}

// AsString returns the string payload.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// AsBytes returns a copy of the binary payload.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	cp := make([]byte, len(v.raw))
	copy(cp, v.raw)
	return cp, true
}

// AsList returns the list payload. The returned slice must not be mutated.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

// AsMap returns the map payload. The returned map must not be mutated.
func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.dict, true
}

// Copy returns a deep copy of v. Scalar values share nothing to begin with;
// lists and maps are cloned recursively.
func (v Value) Copy() Value {
	switch v.kind {
	case KindBytes:
		return Bytes(v.raw)
	case KindList:
		cp := make([]Value, len(v.list))
		for i, e := range v.list {
			cp[i] = e.Copy()
		}
		return Value{kind: KindList, list: cp}
	case KindMap:
		cp := make(map[string]Value, len(v.dict))
		for k, e := range v.dict {
			cp[k] = e.Copy()
		}
		return Value{kind: KindMap, dict: cp}
	default:
		return v
	}
}

// Interface converts v to plain Go data: nil, bool, int64, float64, string,
// []byte, []any or map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindUndefined, KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return int64(v.num)
	case KindFloat:
		return math.Float64frombits(v.num)
	case KindString:
		return v.str
	case KindBytes:
		b, _ := v.AsBytes()
		return b
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.dict))
		for k, e := range v.dict {
			out[k] = e.Interface()
		}
		return out
	default:
		return nil
	}
}

// FromGo converts plain Go data to a Value. Supported inputs mirror what
// Interface produces, plus the smaller integer and float widths.
func FromGo(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case uint32:
		return Int(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case string:
		return String(x), nil
	case []byte:
		return Bytes(x), nil
	case []any:
		elems := make([]Value, len(x))
		for i, e := range x {
			ev, err := FromGo(e)
			if err != nil {
				return Value{}, err
			}
			elems[i] = ev
		}
		return List(elems...), nil
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			ev, err := FromGo(e)
			if err != nil {
				return Value{}, err
			}
			m[k] = ev
		}
		return Map(m), nil
	case Value:
		return x, nil
	default:
		return Value{}, errors.New(errors.PhaseCapture, errors.KindTypeMismatch).
			Detail("cannot transfer value of type %T", v).Build()
	}
}
