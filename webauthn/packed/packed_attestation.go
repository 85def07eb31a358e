// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

// Package packed implements the packed attestation statement format.
// Importing it registers the format with the webauthn package.
package packed

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/keyfed/mfakit/webauthn"
)

const attestationType = "packed attestation"

var oidPackedCertificateExt = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 45724, 1, 1, 4}

type attestationStatement struct {
	webauthn.SignatureAlgorithm                     // Algorithm used to generate the attestation signature.
	sig                         []byte              // Signature.
	attestnCert                 *x509.Certificate   // Attestation certificate.
	caCerts                     []*x509.Certificate // Attestation certificate chain.
}

func parseAttestation(data []byte) (webauthn.AttestationStatement, error) {
	stmt, err := webauthn.DecodeStatement(attestationType, data)
	if err != nil {
		return nil, err
	}

	alg, err := stmt.Int(attestationType, "alg")
	if err != nil {
		return nil, err
	}
	sig, err := stmt.Bytes(attestationType, "sig")
	if err != nil {
		return nil, err
	}
	if len(sig) == 0 {
		return nil, &webauthn.MissingFieldError{Type: attestationType, Field: "sig"}
	}

	if stmt.Has("ecdaaKeyId") {
		if stmt.Has("x5c") {
			return nil, &webauthn.MalformedEncodingError{Type: attestationType, Msg: "packed attestation can not have both x5c and ecdaaKeyId fields"}
		}
		return nil, &webauthn.UnsupportedFeatureError{Feature: "Elliptic Curve based Direct Anonymous Attestation (ECDAA)"}
	}

	attStmt := &attestationStatement{sig: sig}

	if attStmt.SignatureAlgorithm, err = webauthn.CoseAlgToSignatureAlgorithm(alg); err != nil {
		return nil, err
	}

	if stmt.Has("x5c") {
		x5c, err := stmt.ByteArray(attestationType, "x5c")
		if err != nil {
			return nil, err
		}
		for i, der := range x5c {
			c, err := x509.ParseCertificate(der)
			if err != nil {
				return nil, &webauthn.MalformedEncodingError{Type: attestationType, Msg: fmt.Sprintf("x5c[%d]: %s", i, err.Error())}
			}
			if i == 0 {
				attStmt.attestnCert = c
			} else {
				attStmt.caCerts = append(attStmt.caCerts, c)
			}
		}
	}

	return attStmt, nil
}

// Verify implements the webauthn.AttestationStatement interface.  It follows
// the packed attestation statement verification procedure defined in
// http://w3c.github.io/webauthn/#sctn-packed-attestation
func (attStmt *attestationStatement) Verify(clientDataHash []byte, authnData *webauthn.AuthenticatorData, opts *webauthn.VerifyOptions) (attType webauthn.AttestationType, trustPath interface{}, err error) {
	rawAuthnData := authnData.Raw
	signed := make([]byte, len(rawAuthnData)+len(clientDataHash))
	copy(signed, rawAuthnData)
	copy(signed[len(rawAuthnData):], clientDataHash)

	if attStmt.attestnCert == nil {
		// Self attestation: alg must match the algorithm of
		// credentialPublicKey in authenticatorData.
		if attStmt.Algorithm != authnData.Credential.Algorithm {
			err = &webauthn.VerificationError{Type: attestationType, Field: "alg", Msg: "self attestation algorithm does not match credential algorithm"}
			return
		}

		// Verify that sig is a valid signature over the concatenation of
		// authenticatorData and clientDataHash using the credential public
		// key with alg.
		if err = authnData.Credential.Verify(signed, attStmt.sig); err != nil {
			err = &webauthn.VerificationError{Type: attestationType, Field: "signature", Msg: err.Error()}
			return
		}

		return webauthn.AttestationTypeSelf, nil, nil
	}

	// Verify that sig is a valid signature over the concatenation of
	// authenticatorData and clientDataHash using the attestation public key
	// in attestnCert with the algorithm specified in alg.
	if err = attStmt.attestnCert.CheckSignature(attStmt.Algorithm, signed, attStmt.sig); err != nil {
		err = &webauthn.VerificationError{Type: attestationType, Field: "signature", Msg: err.Error()}
		return
	}

	// Evaluate the attestation certificate against metadata for the
	// authenticator's AAGUID, when a trust service is configured.
	aaguid, _ := uuid.FromBytes(authnData.AAGUID)
	trustCerts, err := webauthn.VerifyTrustChain(attestationType, attStmt.attestnCert, aaguid, opts)
	if err != nil {
		return
	}
	if trustCerts == nil {
		// No metadata constraint.  Build a chain from the statement's own
		// certificates.
		if trustCerts, err = verifyAttestationCert(attStmt.attestnCert, attStmt.caCerts); err != nil {
			err = &webauthn.VerificationError{Type: attestationType, Field: "certificate", Msg: err.Error()}
			return
		}
	}

	// Verify that attestnCert meets requirements.
	if err = verifyAttestationStatementCert(attStmt.attestnCert); err != nil {
		err = &webauthn.VerificationError{Type: attestationType, Field: "certificate requirement", Msg: err.Error()}
		return
	}

	// If attestnCert contains an extension with OID 1.3.6.1.4.1.45724.1.1.4
	// (id-fido-gen-ce-aaguid) verify that the value of this extension matches
	// aaguid in authenticatorData.
	if err = matchAAGUIDWithCertificateExtensionIfExists(attStmt.attestnCert, authnData.AAGUID); err != nil {
		err = &webauthn.VerificationError{Type: attestationType, Field: "certificate extension " + oidPackedCertificateExt.String(), Msg: err.Error()}
		return
	}

	return webauthn.AttestationTypeBasic, trustCerts, nil
}

func verifyAttestationCert(attestnCert *x509.Certificate, caCerts []*x509.Certificate) (trustPath []*x509.Certificate, err error) {
	var verifyOptions x509.VerifyOptions

	if len(caCerts) > 0 {
		lastCert := caCerts[len(caCerts)-1]
		if bytes.Equal(lastCert.RawIssuer, lastCert.RawSubject) && lastCert.IsCA {
			caCerts = caCerts[:len(caCerts)-1]

			verifyOptions.Roots = x509.NewCertPool()
			verifyOptions.Roots.AddCert(lastCert)
		}
		if len(caCerts) > 0 {
			verifyOptions.Intermediates = x509.NewCertPool()
			for _, c := range caCerts {
				verifyOptions.Intermediates.AddCert(c)
			}
		}
	} else if bytes.Equal(attestnCert.RawIssuer, attestnCert.RawSubject) {
		verifyOptions.Roots = x509.NewCertPool()
		verifyOptions.Roots.AddCert(attestnCert)
	}

	chains, err := attestnCert.Verify(verifyOptions)
	if err != nil {
		return nil, err
	}
	return chains[0], nil
}

func verifyAttestationStatementCert(c *x509.Certificate) error {
	// Version MUST be set to 3 (which is indicated by an ASN.1 INTEGER with value 2).
	if c.Version != 3 {
		return fmt.Errorf("expected certificate version 3, got version %d", c.Version)
	}

	// Subject field MUST be set to:
	// - Subject-C: ISO 3166 code specifying the country where the Authenticator vendor is incorporated
	// - Subject-O: Legal name of the Authenticator vendor (UTF8String)
	// - Subject-OU: Literal string "Authenticator Attestation" (UTF8String)
	// - Subject-CN: A UTF8String of the vendor's choosing
	subject := c.Subject
	if c := subject.Country; len(c) == 0 || len(c[0]) != 2 {
		return errors.New("certificate \"country name\" must be set to two character ISO 3166 code")
	}
	if o := subject.Organization; len(o) == 0 {
		return errors.New("certificate missing \"organization name\"")
	}
	if ou := subject.OrganizationalUnit; len(ou) == 0 || ou[0] != "Authenticator Attestation" {
		return errors.New("certificate \"organization unit name\" must be \"Authenticator Attestation\"")
	}
	if cn := subject.CommonName; len(cn) == 0 {
		return errors.New("certificate missing \"common name\"")
	}

	// The Basic Constraints extension MUST have the CA component set to false.
	if c.IsCA {
		return errors.New("certificate's basic constraints extension does not have the CA component set to false")
	}

	return nil
}

func matchAAGUIDWithCertificateExtensionIfExists(c *x509.Certificate, aaguid []byte) error {
	for _, ext := range c.Extensions {
		if ext.Id.Equal(oidPackedCertificateExt) {
			if ext.Critical {
				return errors.New("certificate extension must not be marked as critical")
			}
			var rawValue asn1.RawValue
			if rest, err := asn1.Unmarshal(ext.Value, &rawValue); err != nil {
				return errors.New("failed to unmarshal certificate extension: " + err.Error())
			} else if len(rest) != 0 {
				return errors.New("trailing data after certificate extension")
			}
			if !bytes.Equal(rawValue.Bytes, aaguid) {
				return errors.New("aaguid does not match certificate extension")
			}
			return nil
		}
	}
	return nil
}

func init() {
	webauthn.RegisterAttestationFormat("packed", parseAttestation)
}
