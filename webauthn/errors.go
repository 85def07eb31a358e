// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package webauthn

import (
	"strconv"
	"strings"
)

// MalformedEncodingError describes a CBOR or byte-layout decoding failure.
type MalformedEncodingError struct {
	Type string
	Msg  string
}

func (e *MalformedEncodingError) Error() string {
	return "webauthn/" + transformType(e.Type) + ": malformed encoding: " + e.Msg
}

// TruncatedDataError results when a declared length exceeds the remaining buffer.
type TruncatedDataError struct {
	Type string
	Msg  string
}

func (e *TruncatedDataError) Error() string {
	return "webauthn/" + transformType(e.Type) + ": truncated data: " + e.Msg
}

// TypeMismatchError results when a field holds a CBOR value of the wrong type.
type TypeMismatchError struct {
	Type  string
	Field string
	Want  string
	Got   string
}

func (e *TypeMismatchError) Error() string {
	return "webauthn/" + transformType(e.Type) + ": " + e.Field + ": expected " + e.Want + ", got " + e.Got
}

// MissingFieldError results when a required field is missing.
type MissingFieldError struct {
	Type  string
	Field string
}

func (e *MissingFieldError) Error() string {
	return "webauthn/" + transformType(e.Type) + ": missing " + e.Field
}

// VerificationError describes a semantic attestation or assertion check that failed.
type VerificationError struct {
	Type  string
	Field string
	Msg   string
}

func (e *VerificationError) Error() string {
	s := "webauthn/" + transformType(e.Type) + ": failed to verify " + e.Field
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

// UnsupportedAlgorithmError results when a COSE algorithm identifier does not
// resolve to a registered signature algorithm.
type UnsupportedAlgorithmError struct {
	Algorithm int
}

func (e *UnsupportedAlgorithmError) Error() string {
	return "webauthn: COSE algorithm " + strconv.Itoa(e.Algorithm) + " is not supported"
}

// CertificateChainError results when an attestation certificate chain cannot
// be accepted under the configured trust policy.
type CertificateChainError struct {
	Type string
	Msg  string
}

func (e *CertificateChainError) Error() string {
	return "webauthn/" + transformType(e.Type) + ": invalid certificate chain: " + e.Msg
}

// UnsupportedFeatureError describes a feature that is not supported.
type UnsupportedFeatureError struct {
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return "webauthn: " + e.Feature + " is not supported"
}

// UnregisteredFormatError results when no parser is registered for an
// attestation statement format.
type UnregisteredFormatError struct {
	Format string
}

func (e *UnregisteredFormatError) Error() string {
	return "webauthn: attestation statement format " + e.Format + " is not registered"
}

func transformType(typ string) string {
	return strings.Replace(strings.ToLower(typ), " ", "_", -1)
}
