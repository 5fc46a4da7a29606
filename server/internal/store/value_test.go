package store

import (
	"encoding/json"
	"testing"
)

func TestValue_RoundTripKinds(t *testing.T) {
	cases := []struct {
		in   string
		kind Kind
		out  string
	}{
		{`null`, KindNull, `null`},
		{`true`, KindBool, `true`},
		{`false`, KindBool, `false`},
		{`"hi"`, KindString, `"hi"`},
		{`42`, KindNumber, `42`},
		{`-1.5e3`, KindNumber, `-1.5e3`},
		{`12345678901234567890`, KindNumber, `12345678901234567890`},
		{`{ "a" : [1, 2] }`, KindRaw, `{"a":[1,2]}`},
		{`[true, null]`, KindRaw, `[true,null]`},
	}
	for _, tc := range cases {
		var v Value
		if err := json.Unmarshal([]byte(tc.in), &v); err != nil {
			t.Errorf("%s: unmarshal: %v", tc.in, err)
			continue
		}
		if v.Kind() != tc.kind {
			t.Errorf("%s: kind got %v, want %v", tc.in, v.Kind(), tc.kind)
		}
		out, err := json.Marshal(v)
		if err != nil {
			t.Errorf("%s: marshal: %v", tc.in, err)
			continue
		}
		if string(out) != tc.out {
			t.Errorf("%s: marshal got %s, want %s", tc.in, out, tc.out)
		}
	}
}

func TestValue_NullInsideObject(t *testing.T) {
	var f Fields
	if err := json.Unmarshal([]byte(`{"a":null,"b":1}`), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f["a"].Kind() != KindNull {
		t.Errorf("a: got %v, want null", f["a"].Kind())
	}
	if _, ok := f["a"]; !ok {
		t.Error("a: null field should still be present")
	}
}

func TestValue_Accessors(t *testing.T) {
	if s, ok := String("x").Str(); !ok || s != "x" {
		t.Errorf("Str: got %q, %v", s, ok)
	}
	if _, ok := Float(1).Str(); ok {
		t.Error("Str on number: want ok=false")
	}
	if b, ok := Bool(true).Boolean(); !ok || !b {
		t.Errorf("Boolean: got %v, %v", b, ok)
	}
	if f, ok := Float(2.25).Float64(); !ok || f != 2.25 {
		t.Errorf("Float64: got %v, %v", f, ok)
	}
	if Null().Kind() != KindNull || (Value{}).Kind() != KindNull {
		t.Error("zero Value should be null")
	}
}

func TestValue_InvalidLiteral(t *testing.T) {
	var v Value
	if err := v.UnmarshalJSON([]byte(`nope`)); err == nil {
		t.Error("expected error for invalid literal")
	}
	if err := v.UnmarshalJSON([]byte(`  `)); err == nil {
		t.Error("expected error for empty input")
	}
}
