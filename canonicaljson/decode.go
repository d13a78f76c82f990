package canonicaljson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tos-network/roomcore/rcerr"
)

// Decode parses data into the canonical value grammar, rejecting duplicate
// object keys and malformed JSON. Numbers decode to json.Number so Encode
// can losslessly distinguish integers from floats on re-encode.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, rcerr.Wrap(rcerr.InvalidJson, "canonicaljson.Decode", "malformed json", err)
	}
	// Reject trailing garbage after the single top-level value.
	if _, err := dec.Token(); err != io.EOF {
		return nil, rcerr.New(rcerr.InvalidJson, "canonicaljson.Decode", "trailing data after top-level value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (any, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			return nil, fmt.Errorf("canonicaljson: unexpected delimiter %q", t)
		}
	case nil, bool, string, json.Number:
		return t, nil
	default:
		return nil, fmt.Errorf("canonicaljson: unexpected token %v (%T)", tok, tok)
	}
}

func decodeObject(dec *json.Decoder) (map[string]any, error) {
	obj := make(map[string]any)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("canonicaljson: object key is not a string: %v", keyTok)
		}
		if _, exists := obj[key]; exists {
			return nil, fmt.Errorf("canonicaljson: duplicate object key %q", key)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		obj[key] = val
	}
	// Consume the closing '}'.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func decodeArray(dec *json.Decoder) ([]any, error) {
	arr := make([]any, 0)
	for dec.More() {
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		arr = append(arr, val)
	}
	// Consume the closing ']'.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return arr, nil
}
