// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package webauthn

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"github.com/ldclabs/cose/iana"
)

// Credential represents the credential algorithm and public key used to
// verify attestation and assertion signatures.  For EC2 keys the raw COSE
// coordinate bytes are retained, since legacy U2F signature payloads are
// reconstructed from the coordinates exactly as carried on the wire.
type Credential struct {
	Raw []byte
	SignatureAlgorithm
	crypto.PublicKey
	COSECurve int    // COSE elliptic curve identifier (EC2 keys only).
	X         []byte // Raw x-coordinate bytes (EC2 keys only).
	Y         []byte // Raw y-coordinate bytes (EC2 keys only).
}

// MarshalPKIXPublicKeyPEM serializes public key to PEM-encoded PKIX format.
func (c *Credential) MarshalPKIXPublicKeyPEM() ([]byte, error) {
	publicKeyPKIX, err := x509.MarshalPKIXPublicKey(c.PublicKey)
	if err != nil {
		return nil, err
	}
	publicKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyPKIX,
	})
	return publicKeyPEM, nil
}

var coseEncMode, _ = cbor.CTAP2EncOptions().EncMode()

// MarshalCOSE re-encodes the credential public key in COSE_Key form using
// CTAP2 canonical CBOR.  Algorithm and coordinate fields survive a
// decode/encode round trip byte-exact.
func (c *Credential) MarshalCOSE() ([]byte, error) {
	switch pk := c.PublicKey.(type) {
	case *ecdsa.PublicKey:
		type ec2Key struct {
			Kty int    `cbor:"1,keyasint"`
			Alg int    `cbor:"3,keyasint"`
			Crv int    `cbor:"-1,keyasint"`
			X   []byte `cbor:"-2,keyasint"`
			Y   []byte `cbor:"-3,keyasint"`
		}
		return coseEncMode.Marshal(&ec2Key{
			Kty: int(iana.KeyTypeEC2),
			Alg: c.COSEAlgorithm,
			Crv: c.COSECurve,
			X:   c.X,
			Y:   c.Y,
		})
	case *rsa.PublicKey:
		type rsaKey struct {
			Kty int    `cbor:"1,keyasint"`
			Alg int    `cbor:"3,keyasint"`
			N   []byte `cbor:"-1,keyasint"`
			E   []byte `cbor:"-2,keyasint"`
		}
		return coseEncMode.Marshal(&rsaKey{
			Kty: int(iana.KeyTypeRSA),
			Alg: c.COSEAlgorithm,
			N:   pk.N.Bytes(),
			E:   big.NewInt(int64(pk.E)).Bytes(),
		})
	default:
		return nil, &UnsupportedFeatureError{Feature: fmt.Sprintf("credential public key of type %T", c.PublicKey)}
	}
}

// Verify verifies the signature of hashed message using credential algorithm
// and public key.
func (c *Credential) Verify(message []byte, signature []byte) error {
	h := c.Hash.New()
	h.Write(message)
	digest := h.Sum(nil)

	switch pk := c.PublicKey.(type) {
	case *rsa.PublicKey:
		if c.IsRSAPSS() {
			return rsa.VerifyPSS(pk, c.Hash, digest, signature, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto})
		}
		return rsa.VerifyPKCS1v15(pk, c.Hash, digest, signature)
	case *ecdsa.PublicKey:
		type ecdsaSignature struct {
			R, S *big.Int
		}
		var ecdsaSig ecdsaSignature
		if rest, err := asn1.Unmarshal(signature, &ecdsaSig); err != nil {
			return err
		} else if len(rest) != 0 {
			return errors.New("trailing data after ECDSA signature")
		}
		if ecdsaSig.R.Sign() <= 0 || ecdsaSig.S.Sign() <= 0 {
			return errors.New("ECDSA signature contained zero or negative values")
		}
		if !ecdsa.Verify(pk, digest, ecdsaSig.R, ecdsaSig.S) {
			return errors.New("ECDSA signature verification failed")
		}
		return nil
	default:
		return &UnsupportedFeatureError{Feature: fmt.Sprintf("credential public key of type %T", c.PublicKey)}
	}
}

// coseKeyMap is the decoded COSE_Key map.  Labels are small integers from the
// IANA COSE Key Common Parameters registry.
type coseKeyMap map[int]interface{}

func (m coseKeyMap) intField(typ string, field string, label int) (int, error) {
	v, ok := m[label]
	if !ok {
		return 0, &MissingFieldError{Type: typ, Field: field}
	}
	n, ok := cborInt(v)
	if !ok {
		return 0, &TypeMismatchError{Type: typ, Field: field, Want: "integer", Got: cborTypeName(v)}
	}
	return n, nil
}

func (m coseKeyMap) bytesField(typ string, field string, label int) ([]byte, error) {
	v, ok := m[label]
	if !ok {
		return nil, &MissingFieldError{Type: typ, Field: field}
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, &TypeMismatchError{Type: typ, Field: field, Want: "byte string", Got: cborTypeName(v)}
	}
	return b, nil
}

func coseCurve(crv int) elliptic.Curve {
	switch crv {
	case int(iana.EllipticCurveP_256):
		return elliptic.P256()
	case int(iana.EllipticCurveP_384):
		return elliptic.P384()
	case int(iana.EllipticCurveP_521):
		return elliptic.P521()
	default:
		return nil
	}
}

// ParseCredential parses a credential public key encoded in COSE_Key format.
// rest holds any trailing bytes after the key map, such as authenticator
// extension data.
func ParseCredential(coseKeyData []byte) (c *Credential, rest []byte, err error) {
	const typ = "credential"

	var raw coseKeyMap
	decoder := cbor.NewDecoder(bytes.NewReader(coseKeyData))
	if err = decoder.Decode(&raw); err != nil {
		return nil, nil, &MalformedEncodingError{Type: typ, Msg: err.Error()}
	}
	keyLen := decoder.NumBytesRead()
	rest = coseKeyData[keyLen:]
	rawKey := coseKeyData[:keyLen]

	kty, err := raw.intField(typ, "kty", int(iana.KeyParameterKty))
	if err != nil {
		return nil, nil, err
	}
	coseAlg, err := raw.intField(typ, "alg", int(iana.KeyParameterAlg))
	if err != nil {
		return nil, nil, err
	}

	signatureAlgorithm, err := CoseAlgToSignatureAlgorithm(coseAlg)
	if err != nil {
		return nil, nil, err
	}

	switch kty {
	case int(iana.KeyTypeRSA):
		if !signatureAlgorithm.IsRSA() {
			return nil, nil, &MalformedEncodingError{Type: typ, Msg: "COSE key type " + strconv.Itoa(kty) + " and algorithm " + strconv.Itoa(coseAlg) + " are mismatched"}
		}
		nb, err := raw.bytesField(typ, "RSA n", int(iana.RSAKeyParameterN))
		if err != nil {
			return nil, nil, err
		}
		eb, err := raw.bytesField(typ, "RSA e", int(iana.RSAKeyParameterE))
		if err != nil {
			return nil, nil, err
		}
		n := new(big.Int).SetBytes(nb)
		e := new(big.Int).SetBytes(eb)
		pub := &rsa.PublicKey{N: n, E: int(e.Int64())}
		return &Credential{Raw: rawKey, SignatureAlgorithm: signatureAlgorithm, PublicKey: pub}, rest, nil

	case int(iana.KeyTypeEC2):
		if !signatureAlgorithm.IsECDSA() {
			return nil, nil, &MalformedEncodingError{Type: typ, Msg: "COSE key type " + strconv.Itoa(kty) + " and algorithm " + strconv.Itoa(coseAlg) + " are mismatched"}
		}
		crv, err := raw.intField(typ, "ECDSA curve", int(iana.EC2KeyParameterCrv))
		if err != nil {
			return nil, nil, err
		}
		curve := coseCurve(crv)
		if curve == nil {
			return nil, nil, &UnsupportedFeatureError{Feature: "credential COSE curve " + strconv.Itoa(crv)}
		}
		xb, err := raw.bytesField(typ, "ECDSA x", int(iana.EC2KeyParameterX))
		if err != nil {
			return nil, nil, err
		}
		yb, err := raw.bytesField(typ, "ECDSA y", int(iana.EC2KeyParameterY))
		if err != nil {
			return nil, nil, err
		}
		pub := &ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(xb),
			Y:     new(big.Int).SetBytes(yb),
		}
		return &Credential{
			Raw:                rawKey,
			SignatureAlgorithm: signatureAlgorithm,
			PublicKey:          pub,
			COSECurve:          crv,
			X:                  xb,
			Y:                  yb,
		}, rest, nil

	default:
		return nil, nil, &UnsupportedFeatureError{Feature: "credential of COSE key type " + strconv.Itoa(kty) + " and algorithm " + strconv.Itoa(coseAlg)}
	}
}
