// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

// Package fidou2f implements the fido-u2f attestation statement format.
// Importing it registers the format with the webauthn package.
package fidou2f

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/asn1"
	"math/big"
	"strconv"

	"github.com/google/uuid"

	"github.com/keyfed/mfakit/webauthn"
)

const attestationType = "fido u2f attestation"

// FIDO-defined X.509 extensions carried by U2F attestation certificates.
var (
	oidTransports = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 45724, 2, 1, 1}
	oidAAGUID     = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 45724, 1, 1, 4}
)

// id-ecPublicKey parameter identifying the P-256 curve.
var oidCurveP256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 3, 1, 7}

type attestationStatement struct {
	sig         []byte
	attestnCert *x509.Certificate
}

func parseAttestation(data []byte) (webauthn.AttestationStatement, error) {
	stmt, err := webauthn.DecodeStatement(attestationType, data)
	if err != nil {
		return nil, err
	}

	sig, err := stmt.Bytes(attestationType, "sig")
	if err != nil {
		return nil, err
	}
	if len(sig) == 0 {
		return nil, &webauthn.MalformedEncodingError{Type: attestationType, Msg: "sig is empty"}
	}

	x5c, err := stmt.ByteArray(attestationType, "x5c")
	if err != nil {
		return nil, err
	}
	if len(x5c) != 1 {
		return nil, &webauthn.MalformedEncodingError{Type: attestationType, Msg: "expected 1 attestation certificate in x5c, got " + strconv.Itoa(len(x5c))}
	}
	if len(x5c[0]) == 0 {
		return nil, &webauthn.MalformedEncodingError{Type: attestationType, Msg: "x5c[0] is empty"}
	}

	attStmt := &attestationStatement{sig: sig}
	if attStmt.attestnCert, err = x509.ParseCertificate(x5c[0]); err != nil {
		return nil, &webauthn.MalformedEncodingError{Type: attestationType, Msg: "x5c[0]: " + err.Error()}
	}

	return attStmt, nil
}

// Verify implements the webauthn.AttestationStatement interface.  It follows
// the fido-u2f attestation statement verification procedure defined in
// http://w3c.github.io/webauthn/#sctn-fido-u2f-attestation
func (attStmt *attestationStatement) Verify(clientDataHash []byte, authnData *webauthn.AuthenticatorData, opts *webauthn.VerifyOptions) (attType webauthn.AttestationType, trustPath interface{}, err error) {
	// A U2F authenticator has no AAGUID to report, so attested credential
	// data must carry the all-zero identifier.
	if !bytes.Equal(authnData.AAGUID, make([]byte, 16)) {
		err = &webauthn.VerificationError{Type: attestationType, Field: "aaguid", Msg: "non-empty AAGUID"}
		return
	}

	// The authenticator's AAGUID, if any, is declared through a certificate
	// extension.  Transport hints are informational only.
	aaguid := certAAGUID(attStmt.attestnCert)
	_ = certTransports(attStmt.attestnCert)

	trustCerts, err := webauthn.VerifyTrustChain(attestationType, attStmt.attestnCert, aaguid, opts)
	if err != nil {
		return
	}

	// If certificate public key is not an Elliptic Curve (EC) public key over
	// the P-256 curve, terminate this algorithm and return an appropriate
	// error.  The curve is matched by its OID so the check does not depend on
	// platform curve naming.
	certificatePublicKey, ok := attStmt.attestnCert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		err = &webauthn.VerificationError{Type: attestationType, Field: "certificate public key", Msg: "unsupported curve: certificate public key is not an Elliptic Curve public key"}
		return
	}
	if !certCurveIsP256(attStmt.attestnCert) {
		err = &webauthn.VerificationError{Type: attestationType, Field: "certificate public key", Msg: "unsupported curve: certificate public key is not on the P-256 curve"}
		return
	}

	// Convert credentialPublicKey to the raw ANSI X9.62 form used by the
	// legacy U2F signature payload.  The coordinates must be the exact bytes
	// carried in the COSE key, so they are taken from the credential's raw
	// coordinate fields rather than re-serialized big integers.
	if len(authnData.Credential.X) == 0 || len(authnData.Credential.Y) == 0 {
		err = &webauthn.VerificationError{Type: attestationType, Field: "credential public key", Msg: "credential public key is not an Elliptic Curve public key"}
		return
	}
	credentialPublicKeyU2F := make([]byte, 0, 1+len(authnData.Credential.X)+len(authnData.Credential.Y))
	credentialPublicKeyU2F = append(credentialPublicKeyU2F, 0x04)
	credentialPublicKeyU2F = append(credentialPublicKeyU2F, authnData.Credential.X...)
	credentialPublicKeyU2F = append(credentialPublicKeyU2F, authnData.Credential.Y...)

	// Let verificationData be the concatenation of
	// (0x00 || rpIdHash || clientDataHash || credentialId || publicKeyU2F).
	var verificationData bytes.Buffer
	verificationData.WriteByte(0x00)
	verificationData.Write(authnData.RPIDHash)
	verificationData.Write(clientDataHash)
	verificationData.Write(authnData.CredentialID)
	verificationData.Write(credentialPublicKeyU2F)

	// Decode the DER ECDSA signature into (r,s) sized to the certificate key.
	keyByteLen := (certificatePublicKey.Params().BitSize + 7) / 8
	r, s, err := decodeECDSASignature(attStmt.sig, keyByteLen)
	if err != nil {
		return
	}

	// Resolve the hash from the credential public key's COSE algorithm.
	sigAlg, err := webauthn.CoseAlgToSignatureAlgorithm(authnData.Credential.COSEAlgorithm)
	if err != nil {
		return
	}

	h := sigAlg.Hash.New()
	h.Write(verificationData.Bytes())
	if !ecdsa.Verify(certificatePublicKey, h.Sum(nil), r, s) {
		err = &webauthn.VerificationError{Type: attestationType, Field: "signature", Msg: "invalid signature"}
		return
	}

	if trustCerts == nil {
		trustCerts = []*x509.Certificate{attStmt.attestnCert}
	}
	return webauthn.AttestationTypeBasic, trustCerts, nil
}

// certAAGUID returns the AAGUID declared through the id-fido-gen-ce-aaguid
// certificate extension, or uuid.Nil when the extension is absent or
// malformed.
func certAAGUID(cert *x509.Certificate) uuid.UUID {
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(oidAAGUID) {
			continue
		}
		var raw []byte
		if _, err := asn1.Unmarshal(ext.Value, &raw); err != nil {
			return uuid.Nil
		}
		aaguid, err := uuid.FromBytes(raw)
		if err != nil {
			return uuid.Nil
		}
		return aaguid
	}
	return uuid.Nil
}

// Transport flag bits of the fidoU2FTransports extension, per FIDO U2F
// Authenticator Transports Extension v1.1.
const (
	transportBluetoothClassic = 1 << 5
	transportBluetoothLE      = 1 << 4
	transportUSB              = 1 << 3
	transportNFC              = 1 << 2
	transportUSBInternal      = 1 << 1
)

// certTransports returns the transports declared through the
// fidoU2FTransports certificate extension.
func certTransports(cert *x509.Certificate) []webauthn.AuthenticatorTransport {
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(oidTransports) {
			continue
		}
		var bits asn1.BitString
		if _, err := asn1.Unmarshal(ext.Value, &bits); err != nil {
			return nil
		}
		if len(bits.Bytes) == 0 {
			return nil
		}
		flags := int(bits.Bytes[0])
		var transports []webauthn.AuthenticatorTransport
		if flags&(transportBluetoothClassic|transportBluetoothLE) != 0 {
			transports = append(transports, webauthn.AuthenticatorBLE)
		}
		if flags&transportUSB != 0 {
			transports = append(transports, webauthn.AuthenticatorUSB)
		}
		if flags&transportNFC != 0 {
			transports = append(transports, webauthn.AuthenticatorNFC)
		}
		if flags&transportUSBInternal != 0 {
			transports = append(transports, webauthn.AuthenticatorInternal)
		}
		return transports
	}
	return nil
}

// certCurveIsP256 matches the certificate key's named curve against the P-256
// OID found in the SubjectPublicKeyInfo algorithm parameters.
func certCurveIsP256(cert *x509.Certificate) bool {
	type algorithmIdentifier struct {
		Algorithm  asn1.ObjectIdentifier
		Parameters asn1.RawValue `asn1:"optional"`
	}
	type subjectPublicKeyInfo struct {
		Algorithm algorithmIdentifier
		PublicKey asn1.BitString
	}
	var spki subjectPublicKeyInfo
	if _, err := asn1.Unmarshal(cert.RawSubjectPublicKeyInfo, &spki); err != nil {
		return false
	}
	var curve asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(spki.Algorithm.Parameters.FullBytes, &curve); err != nil {
		return false
	}
	return curve.Equal(oidCurveP256)
}

// decodeECDSASignature decodes a DER encoded ECDSA signature and returns
// (r,s) left-padded to the key byte length.
func decodeECDSASignature(sig []byte, keyByteLen int) (r *big.Int, s *big.Int, err error) {
	type ecdsaSignature struct {
		R, S *big.Int
	}
	var decoded ecdsaSignature
	rest, err := asn1.Unmarshal(sig, &decoded)
	if err != nil {
		return nil, nil, &webauthn.VerificationError{Type: attestationType, Field: "signature", Msg: "signature decode error: " + err.Error()}
	}
	if len(rest) > 0 {
		return nil, nil, &webauthn.VerificationError{Type: attestationType, Field: "signature", Msg: "signature decode error: trailing bytes after DER signature"}
	}
	if decoded.R.Sign() <= 0 || decoded.S.Sign() <= 0 {
		return nil, nil, &webauthn.VerificationError{Type: attestationType, Field: "signature", Msg: "signature decode error: r and s must be positive"}
	}
	if decoded.R.BitLen() > keyByteLen*8 || decoded.S.BitLen() > keyByteLen*8 {
		return nil, nil, &webauthn.VerificationError{Type: attestationType, Field: "signature", Msg: "signature decode error: r or s exceeds key length"}
	}

	rawR := make([]byte, keyByteLen)
	rawS := make([]byte, keyByteLen)
	decoded.R.FillBytes(rawR)
	decoded.S.FillBytes(rawS)
	return new(big.Int).SetBytes(rawR), new(big.Int).SetBytes(rawS), nil
}

func init() {
	webauthn.RegisterAttestationFormat("fido-u2f", parseAttestation)
}
