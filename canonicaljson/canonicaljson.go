// Package canonicaljson implements the deterministic JSON encoding used to
// hash and sign Matrix events and server-key responses: object keys sorted
// by Unicode code point, no whitespace, minimal string escaping, and
// integers emitted without an exponent or trailing ".0".
//
// The value grammar is {nil, bool, json.Number, string, []any, map[string]any}.
// Decode rejects NaN, ±Inf and duplicate object keys with InvalidJson.
package canonicaljson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/tos-network/roomcore/rcerr"
)

// ErrInvalidJSON is this package's sentinel for invalid JSON. Errors
// returned by Encode and Decode carry Kind rcerr.InvalidJson (test them with
// rcerr.Is); they do not wrap ErrInvalidJSON.
var ErrInvalidJSON = errors.New("canonicaljson: invalid json")

// Encode serializes v into canonical form. v must be built from the grammar
// documented in the package comment; maps with non-string keys, functions,
// channels, NaN and ±Inf floats are rejected.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, rcerr.Wrap(rcerr.InvalidJson, "canonicaljson.Encode", "cannot encode value", err)
	}
	return buf.Bytes(), nil
}

// MustEncode panics on error; useful for literals in tests.
func MustEncode(v any) []byte {
	b, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return b
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case string:
		encodeString(buf, val)
		return nil
	case json.Number:
		return encodeNumber(buf, val)
	case float64:
		return encodeNumber(buf, json.Number(strconv.FormatFloat(val, 'g', -1, 64)))
	case float32:
		return encodeNumber(buf, json.Number(strconv.FormatFloat(float64(val), 'g', -1, 32)))
	case int:
		buf.WriteString(strconv.Itoa(val))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
		return nil
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
		return nil
	case []any:
		return encodeArray(buf, val)
	case map[string]any:
		return encodeObject(buf, val)
	default:
		return fmt.Errorf("canonicaljson: unsupported type %T", v)
	}
}

func encodeArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(buf, elem); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys) // Unicode code-point order == byte order for valid UTF-8 Go strings.

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, k)
		buf.WriteByte(':')
		if err := encodeValue(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeNumber(buf *bytes.Buffer, n json.Number) error {
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("canonicaljson: invalid number %q: %w", n, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canonicaljson: number %q is NaN or infinite", n)
	}
	if i, ok := asInt64(n); ok {
		buf.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	buf.WriteString(n.String())
	return nil
}

// asInt64 reports whether n represents an exact integer value, including
// "3" and "3.0" but not "3.5".
func asInt64(n json.Number) (int64, bool) {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	if f < -9.2e18 || f > 9.2e18 {
		return 0, false
	}
	return int64(f), true
}

// encodeString applies the subset of RFC 8259 escaping the canonical
// form requires: control characters, the quote and the backslash.
func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}
