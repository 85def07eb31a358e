// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package webauthn

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Statement is the decoded CBOR map of an attestation statement.  Format
// verifiers read fields through the typed accessors so that a wrong CBOR type
// at an expected field aborts parsing with a TypeMismatchError instead of a
// silent zero value.
type Statement map[string]interface{}

// DecodeStatement decodes raw attestation statement bytes into a Statement.
func DecodeStatement(typ string, data []byte) (Statement, error) {
	var stmt Statement
	if err := cbor.Unmarshal(data, &stmt); err != nil {
		return nil, &MalformedEncodingError{Type: typ, Msg: err.Error()}
	}
	return stmt, nil
}

// Has returns whether the statement contains the given field.
func (s Statement) Has(field string) bool {
	_, ok := s[field]
	return ok
}

// Bytes returns the byte string stored at field.
func (s Statement) Bytes(typ, field string) ([]byte, error) {
	v, ok := s[field]
	if !ok {
		return nil, &MissingFieldError{Type: typ, Field: field}
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, &TypeMismatchError{Type: typ, Field: field, Want: "byte string", Got: cborTypeName(v)}
	}
	return b, nil
}

// Int returns the integer stored at field.
func (s Statement) Int(typ, field string) (int, error) {
	v, ok := s[field]
	if !ok {
		return 0, &MissingFieldError{Type: typ, Field: field}
	}
	n, ok := cborInt(v)
	if !ok {
		return 0, &TypeMismatchError{Type: typ, Field: field, Want: "integer", Got: cborTypeName(v)}
	}
	return n, nil
}

// Array returns the array stored at field.
func (s Statement) Array(typ, field string) ([]interface{}, error) {
	v, ok := s[field]
	if !ok {
		return nil, &MissingFieldError{Type: typ, Field: field}
	}
	a, ok := v.([]interface{})
	if !ok {
		return nil, &TypeMismatchError{Type: typ, Field: field, Want: "array", Got: cborTypeName(v)}
	}
	return a, nil
}

// ByteArray returns the array of byte strings stored at field.  Every element
// must be a byte string.
func (s Statement) ByteArray(typ, field string) ([][]byte, error) {
	a, err := s.Array(typ, field)
	if err != nil {
		return nil, err
	}
	bs := make([][]byte, len(a))
	for i, v := range a {
		b, ok := v.([]byte)
		if !ok {
			return nil, &TypeMismatchError{
				Type:  typ,
				Field: fmt.Sprintf("%s[%d]", field, i),
				Want:  "byte string",
				Got:   cborTypeName(v),
			}
		}
		bs[i] = b
	}
	return bs, nil
}

// cborInt normalizes the integer representations produced by generic CBOR
// decoding (uint64 for major type 0, int64 for major type 1).
func cborInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func cborTypeName(v interface{}) string {
	switch v.(type) {
	case []byte:
		return "byte string"
	case string:
		return "text string"
	case int64, uint64, int:
		return "integer"
	case []interface{}:
		return "array"
	case map[interface{}]interface{}, map[string]interface{}:
		return "map"
	case bool:
		return "boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
