// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

// Package metadata defines the trust service contract used during attestation
// verification: metadata statement lookup by authenticator AAGUID, statement
// integrity checking, and attestation root certificate material.
package metadata

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Statement is the subset of a FIDO metadata statement consumed during
// attestation verification.
type Statement struct {
	AAGUID      uuid.UUID `json:"aaguid"`
	Description string    `json:"description,omitempty"`
	// Hash of the canonical statement payload, as published by the
	// metadata service alongside the statement.
	Hash []byte `json:"hash"`
	// AttestationRootCertificates holds base64 encoded DER certificates,
	// ordered with the primary root first.
	AttestationRootCertificates []string `json:"attestationRootCertificates"`
}

// Roots decodes the statement's attestation root certificates.
func (s *Statement) Roots() ([]*x509.Certificate, error) {
	if len(s.AttestationRootCertificates) == 0 {
		return nil, errors.New("metadata statement has no attestation root certificates")
	}
	roots := make([]*x509.Certificate, 0, len(s.AttestationRootCertificates))
	for i, b64 := range s.AttestationRootCertificates {
		der, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding attestation root certificate %d", i)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing attestation root certificate %d", i)
		}
		roots = append(roots, cert)
	}
	return roots, nil
}

// PrimaryRoot decodes the first declared attestation root certificate.
func (s *Statement) PrimaryRoot() (*x509.Certificate, error) {
	roots, err := s.Roots()
	if err != nil {
		return nil, err
	}
	return roots[0], nil
}

// Entry pairs a metadata statement with the hash the service recorded for it
// when the statement was fetched.
type Entry struct {
	AAGUID    uuid.UUID
	Hash      []byte
	Statement *Statement
}

// VerifyHash checks that the statement's declared hash matches the hash the
// service stored for the entry.  A mismatch means the statement was altered
// after the service recorded it.
func (e *Entry) VerifyHash() error {
	if e.Statement == nil {
		return errors.New("metadata entry has no statement")
	}
	if len(e.Hash) == 0 || len(e.Statement.Hash) == 0 {
		return errors.New("metadata entry is missing hash material")
	}
	if !bytes.Equal(e.Hash, e.Statement.Hash) {
		return errors.New("metadata statement hash does not match entry hash")
	}
	return nil
}

// Service looks up metadata entries by authenticator AAGUID.  A nil entry
// with a nil error means the service has no metadata for the authenticator;
// verification then proceeds without a metadata trust constraint.
// Implementations must be safe for concurrent readers.
type Service interface {
	GetEntry(ctx context.Context, aaguid uuid.UUID) (*Entry, error)
}

// HashStatement computes the SHA-256 hash of a canonical statement payload.
// Services that fetch statements over the wire record this next to the entry
// so VerifyHash can detect post-fetch tampering.
func HashStatement(payload []byte) []byte {
	sum := sha256.Sum256(payload)
	return sum[:]
}
