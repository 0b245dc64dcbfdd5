// Package jsonutil holds small JSON value helpers shared by the document layer.
package jsonutil

import (
	"bytes"
	"encoding/json"

	canonicaljson "github.com/gibson042/canonicaljson-go"
)

// DeepCopy returns a structurally independent copy of a JSON-decoded value.
// Mutating the copy never affects the original.
func DeepCopy(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CanonicalMarshal serializes v as canonical JSON (sorted keys, normalized
// numbers and strings), so equal values always produce equal bytes.
func CanonicalMarshal(v any) ([]byte, error) {
	return canonicaljson.Marshal(v)
}

// CanonicalEqual reports whether a and b serialize to identical canonical JSON.
func CanonicalEqual(a, b any) (bool, error) {
	ab, err := canonicaljson.Marshal(a)
	if err != nil {
		return false, err
	}
	bb, err := canonicaljson.Marshal(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}
