// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package webauthn

import (
	"bytes"
	"context"
	"crypto/x509"
	"strings"

	"github.com/google/uuid"

	"github.com/keyfed/mfakit/certchain"
)

// VerifyTrustChain runs the metadata trust-chain step shared by x5c-bearing
// attestation formats.  When a trust service and an authenticator AAGUID are
// available, the metadata entry for the AAGUID is fetched, its statement hash
// is verified, and a certificate chain is built from the attestation
// certificate with the statement's primary root as an out-of-band trust
// anchor.  The chain is accepted when its only defect is the untrusted root;
// strict mode additionally requires the built root to be byte-identical to
// the declared metadata root.
//
// Returns the built trust path, or nil when no metadata constraint applies
// (no service, nil AAGUID, or no entry for the authenticator).
func VerifyTrustChain(typ string, attestnCert *x509.Certificate, aaguid uuid.UUID, opts *VerifyOptions) ([]*x509.Certificate, error) {
	if opts == nil || opts.Metadata == nil || aaguid == uuid.Nil {
		return nil, nil
	}

	entry, err := opts.Metadata.GetEntry(context.Background(), aaguid)
	if err != nil {
		return nil, &CertificateChainError{Type: typ, Msg: "metadata lookup for " + aaguid.String() + ": " + err.Error()}
	}
	if entry == nil {
		// No metadata constraint for this authenticator.
		return nil, nil
	}

	if err := entry.VerifyHash(); err != nil {
		return nil, &VerificationError{Type: typ, Field: "metadata hash", Msg: "invalid metadata hash: " + err.Error()}
	}

	root, err := entry.Statement.PrimaryRoot()
	if err != nil {
		return nil, &CertificateChainError{Type: typ, Msg: err.Error()}
	}

	chain, err := certchain.BuildAndEvaluate(attestnCert, root)
	if err != nil {
		return nil, &CertificateChainError{Type: typ, Msg: err.Error()}
	}

	if !chain.ValidUnderUntrustedRootPolicy() {
		return nil, &CertificateChainError{Type: typ, Msg: "chain root status is [" + statusNames(chain) + "], want only untrusted root"}
	}
	if opts.RequireValidAttestationRoot && !bytes.Equal(chain.Root().Cert.Raw, root.Raw) {
		return nil, &CertificateChainError{Type: typ, Msg: "chain root does not match declared metadata attestation root"}
	}

	trustPath := make([]*x509.Certificate, len(chain.Elements))
	for i, el := range chain.Elements {
		trustPath[i] = el.Cert
	}
	return trustPath, nil
}

func statusNames(r *certchain.Result) string {
	names := make([]string, len(r.Root().Statuses))
	for i, s := range r.Root().Statuses {
		names[i] = s.String()
	}
	return strings.Join(names, ", ")
}
