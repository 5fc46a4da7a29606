package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	// KindRaw is a JSON object or array, stored verbatim.
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindRaw:
		return "raw"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a single field value of a sensor record. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	s    string // string contents, or the number literal for KindNumber
	raw  json.RawMessage
}

// Null returns the null Value.
func Null() Value { return Value{} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number returns a numeric Value holding the literal n.
func Number(n json.Number) Value { return Value{kind: KindNumber, s: n.String()} }

// Float returns a numeric Value for f.
func Float(f float64) Value {
	return Value{kind: KindNumber, s: strconv.FormatFloat(f, 'g', -1, 64)}
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// Str returns the string contents when v is a string.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Boolean returns the boolean when v is a bool.
func (v Value) Boolean() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// Float64 returns the number as a float64 when v is numeric.
func (v Value) Float64() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return strconv.AppendBool(nil, v.b), nil
	case KindNumber:
		return []byte(v.s), nil
	case KindString:
		return json.Marshal(v.s)
	case KindRaw:
		return v.raw, nil
	default:
		return nil, fmt.Errorf("store: marshal value of unknown kind %d", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("store: empty value")
	}
	switch data[0] {
	case 'n':
		if string(data) != "null" {
			return fmt.Errorf("store: invalid literal %q", data)
		}
		*v = Null()
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return fmt.Errorf("store: decode bool: %w", err)
		}
		*v = Bool(b)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("store: decode string: %w", err)
		}
		*v = String(s)
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, data); err != nil {
			return fmt.Errorf("store: decode composite: %w", err)
		}
		*v = Value{kind: KindRaw, raw: buf.Bytes()}
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("store: decode number: %w", err)
		}
		*v = Number(n)
	}
	return nil
}

// Fields maps field names to values.
type Fields map[string]Value

// Clone returns a shallow copy of f. Values are immutable, so the copy is safe
// to hand out while the original keeps being merged into.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
