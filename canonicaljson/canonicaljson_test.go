package canonicaljson

import (
	"math"
	"testing"
)

// ── Encode ────────────────────────────────────────────────────────────────

func TestEncodeKeyOrdering(t *testing.T) {
	v := map[string]any{"b": 1, "a": 2, "10": 3, "2": 4}
	got, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `{"10":3,"2":4,"a":2,"b":1}`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestEncodeIntegerNotFloat(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{int(3), "3"},
		{float64(3), "3"},
		{float64(3.5), "3.5"},
		{int64(-42), "-42"},
	}
	for _, tt := range tests {
		got, err := Encode(tt.in)
		if err != nil {
			t.Fatalf("Encode(%v): %v", tt.in, err)
		}
		if string(got) != tt.want {
			t.Errorf("Encode(%v) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestEncodeStringEscaping(t *testing.T) {
	got, err := Encode("a\"b\\c\nd")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := `"a\"b\\c\nd"`
	if string(got) != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestEncodeRejectsNaNAndInf(t *testing.T) {
	for _, v := range []any{
		math.NaN(),
		math.Inf(1),
		math.Inf(-1),
	} {
		if _, err := Encode(v); err == nil {
			t.Errorf("expected error encoding %v", v)
		}
	}
}

func TestEncodeNoWhitespace(t *testing.T) {
	v := map[string]any{"a": []any{1, 2, "x"}}
	got, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for _, b := range got {
		if b == ' ' || b == '\n' || b == '\t' {
			t.Fatalf("unexpected whitespace in %s", got)
		}
	}
}

// ── Decode ────────────────────────────────────────────────────────────────

func TestDecodeRejectsDuplicateKeys(t *testing.T) {
	_, err := Decode([]byte(`{"a":1,"a":2}`))
	if err == nil {
		t.Fatal("expected error for duplicate key")
	}
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	_, err := Decode([]byte(`{"a":1} garbage`))
	if err == nil {
		t.Fatal("expected error for trailing data")
	}
}

// ── Round trip ────────────────────────────────────────────────────────────

func TestRoundTrip(t *testing.T) {
	in := []byte(`{"auth_events":["$a","$b"],"depth":4,"prev_events":[],"signed":true,"content":{"x":1.5,"y":null}}`)
	v, err := Decode(in)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out1, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	v2, err := Decode(out1)
	if err != nil {
		t.Fatalf("Decode(Encode(v)): %v", err)
	}
	out2, err := Encode(v2)
	if err != nil {
		t.Fatalf("Encode(v2): %v", err)
	}
	if string(out1) != string(out2) {
		t.Errorf("canonical form not stable: %s vs %s", out1, out2)
	}
}
