// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package webauthn

import (
	"crypto"
	"crypto/x509"
	"sync"
	"sync/atomic"

	"github.com/ldclabs/cose/iana"
)

// SignatureAlgorithm represents a signature algorithm, and its corresponding
// public key algorithm, hash function, and COSE algorithm identifier from the
// IANA COSE Algorithms registry.
type SignatureAlgorithm struct {
	Algorithm          x509.SignatureAlgorithm
	PublicKeyAlgorithm x509.PublicKeyAlgorithm
	Hash               crypto.Hash
	COSEAlgorithm      int
}

// IsRSA returns if signature algorithm uses RSA public key.
func (alg SignatureAlgorithm) IsRSA() bool {
	return alg.PublicKeyAlgorithm == x509.RSA
}

// IsRSAPSS returns if signature algorithm uses RSASSA-PSS padding.
func (alg SignatureAlgorithm) IsRSAPSS() bool {
	switch alg.Algorithm {
	case x509.SHA256WithRSAPSS, x509.SHA384WithRSAPSS, x509.SHA512WithRSAPSS:
		return true
	default:
		return false
	}
}

// IsECDSA returns if signature algorithm uses ECDSA public key.
func (alg SignatureAlgorithm) IsECDSA() bool {
	return alg.PublicKeyAlgorithm == x509.ECDSA
}

// CoseAlgToSignatureAlgorithm returns the signature algorithm registered for
// the given COSE algorithm identifier, or UnsupportedAlgorithmError.
func CoseAlgToSignatureAlgorithm(coseAlg int) (SignatureAlgorithm, error) {
	algs, _ := atomicCOSEAlgorithms.Load().([]SignatureAlgorithm)
	for _, alg := range algs {
		if alg.COSEAlgorithm == coseAlg {
			return alg, nil
		}
	}
	return SignatureAlgorithm{}, &UnsupportedAlgorithmError{Algorithm: coseAlg}
}

var (
	coseAlgorithmsMu     sync.Mutex
	atomicCOSEAlgorithms atomic.Value
)

// RegisterSignatureAlgorithm registers the given COSE algorithm identifier
// with corresponding signature algorithm, public key algorithm, and hash.
func RegisterSignatureAlgorithm(coseAlg int, sigAlg x509.SignatureAlgorithm, pkAlg x509.PublicKeyAlgorithm, hash crypto.Hash) {
	registered := false
	coseAlgorithmsMu.Lock()
	algs, _ := atomicCOSEAlgorithms.Load().([]SignatureAlgorithm)
	for i := 0; i < len(algs); i++ {
		if algs[i].COSEAlgorithm == coseAlg {
			algs[i] = SignatureAlgorithm{sigAlg, pkAlg, hash, coseAlg}
			registered = true
			break
		}
	}
	if registered {
		atomicCOSEAlgorithms.Store(algs)
	} else {
		atomicCOSEAlgorithms.Store(append(algs, SignatureAlgorithm{sigAlg, pkAlg, hash, coseAlg}))
	}
	coseAlgorithmsMu.Unlock()
}

// UnregisterSignatureAlgorithm unregisters the given COSE algorithm.
func UnregisterSignatureAlgorithm(coseAlg int) {
	coseAlgorithmsMu.Lock()
	algs, _ := atomicCOSEAlgorithms.Load().([]SignatureAlgorithm)
	for i := 0; i < len(algs); i++ {
		if algs[i].COSEAlgorithm == coseAlg {
			atomicCOSEAlgorithms.Store(append(algs[:i], algs[i+1:]...))
			break
		}
	}
	coseAlgorithmsMu.Unlock()
}

// signatureAlgorithmRegistered returns if the given COSE algorithm is registered.
func signatureAlgorithmRegistered(coseAlg int) bool {
	algs, _ := atomicCOSEAlgorithms.Load().([]SignatureAlgorithm)
	for _, alg := range algs {
		if alg.COSEAlgorithm == coseAlg {
			return true
		}
	}
	return false
}

func init() {
	RegisterSignatureAlgorithm(int(iana.AlgorithmES256), x509.ECDSAWithSHA256, x509.ECDSA, crypto.SHA256)
	RegisterSignatureAlgorithm(int(iana.AlgorithmES384), x509.ECDSAWithSHA384, x509.ECDSA, crypto.SHA384)
	RegisterSignatureAlgorithm(int(iana.AlgorithmES512), x509.ECDSAWithSHA512, x509.ECDSA, crypto.SHA512)
	RegisterSignatureAlgorithm(int(iana.AlgorithmPS256), x509.SHA256WithRSAPSS, x509.RSA, crypto.SHA256)
	RegisterSignatureAlgorithm(int(iana.AlgorithmPS384), x509.SHA384WithRSAPSS, x509.RSA, crypto.SHA384)
	RegisterSignatureAlgorithm(int(iana.AlgorithmPS512), x509.SHA512WithRSAPSS, x509.RSA, crypto.SHA512)
	RegisterSignatureAlgorithm(int(iana.AlgorithmRS256), x509.SHA256WithRSA, x509.RSA, crypto.SHA256)
	RegisterSignatureAlgorithm(int(iana.AlgorithmRS384), x509.SHA384WithRSA, x509.RSA, crypto.SHA384)
	RegisterSignatureAlgorithm(int(iana.AlgorithmRS512), x509.SHA512WithRSA, x509.RSA, crypto.SHA512)
}
