package instrument

import (
	"encoding/json"
	"strconv"
)

// ValueKind discriminates the payload type of a Value.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueBool
	ValueInt
	ValueFloat
	ValueString
)

// Value is a tagged union holding one instrument reading. The kind is
// fixed by the instrument's facet, so consumers never need reflection.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
}

// BoolValue wraps a boolean reading.
func BoolValue(b bool) Value { return Value{kind: ValueBool, b: b} }

// IntValue wraps an integer reading.
func IntValue(i int64) Value { return Value{kind: ValueInt, i: i} }

// FloatValue wraps a floating-point reading.
func FloatValue(f float64) Value { return Value{kind: ValueFloat, f: f} }

// StringValue wraps a string reading.
func StringValue(s string) Value { return Value{kind: ValueString, s: s} }

// Kind returns the payload type.
func (v Value) Kind() ValueKind { return v.kind }

// Bool returns the boolean payload and whether the value holds one.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == ValueBool }

// Int returns the integer payload and whether the value holds one.
func (v Value) Int() (int64, bool) { return v.i, v.kind == ValueInt }

// Float returns the float payload and whether the value holds one.
func (v Value) Float() (float64, bool) { return v.f, v.kind == ValueFloat }

// Str returns the string payload and whether the value holds one.
func (v Value) Str() (string, bool) { return v.s, v.kind == ValueString }

// Format renders the value as an MQTT state payload. Booleans use the
// Home Assistant ON/OFF convention.
func (v Value) Format() string {
	switch v.kind {
	case ValueBool:
		if v.b {
			return "ON"
		}
		return "OFF"
	case ValueInt:
		return strconv.FormatInt(v.i, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case ValueString:
		return v.s
	default:
		return ""
	}
}

// MarshalJSON renders the value with its native JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueBool:
		return json.Marshal(v.b)
	case ValueInt:
		return json.Marshal(v.i)
	case ValueFloat:
		return json.Marshal(v.f)
	case ValueString:
		return json.Marshal(v.s)
	default:
		return []byte("null"), nil
	}
}
