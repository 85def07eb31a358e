// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

// Package certchain builds and evaluates X.509 certificate chains for
// attestation verification.  Unlike crypto/x509 verification, a chain is
// always produced together with a per-certificate status set, so callers can
// apply policies such as "a chain anchored at an out-of-band root is valid
// when the root's only defect is being untrusted".  Revocation is never
// checked: attestation roots are distributed through metadata services, not
// public revocation infrastructure.
package certchain

import (
	"bytes"
	"crypto/x509"
	"time"

	"github.com/pkg/errors"
)

// Status describes a defect recorded for one certificate in a built chain.
type Status int

const (
	// StatusUntrustedRoot marks a terminal certificate that is not among
	// the validator's trusted anchors.
	StatusUntrustedRoot Status = iota + 1
	// StatusNotYetValid marks a certificate whose validity period has not
	// started.
	StatusNotYetValid
	// StatusExpired marks a certificate whose validity period has ended.
	StatusExpired
	// StatusInvalidSignature marks a certificate that is not correctly
	// signed by its issuer in the chain.
	StatusInvalidSignature
	// StatusPartialChain marks a terminal certificate that is neither
	// self-signed nor issued by a known anchor.
	StatusPartialChain
)

func (s Status) String() string {
	switch s {
	case StatusUntrustedRoot:
		return "untrusted root"
	case StatusNotYetValid:
		return "not yet valid"
	case StatusExpired:
		return "expired"
	case StatusInvalidSignature:
		return "invalid signature"
	case StatusPartialChain:
		return "partial chain"
	default:
		return "unknown"
	}
}

// Element is one certificate in a built chain with its recorded statuses.
// An element with no statuses has no known defect.
type Element struct {
	Cert     *x509.Certificate
	Statuses []Status
}

// Has returns whether the element carries the given status.
func (e *Element) Has(s Status) bool {
	for _, st := range e.Statuses {
		if st == s {
			return true
		}
	}
	return false
}

// OnlyStatus returns whether the element carries exactly one status and that
// status is s.
func (e *Element) OnlyStatus(s Status) bool {
	return len(e.Statuses) == 1 && e.Statuses[0] == s
}

// Result is an evaluated chain ordered from leaf to root.  Exactly one
// terminal element represents the root.
type Result struct {
	Elements []Element
}

// Leaf returns the first chain element.
func (r *Result) Leaf() *Element {
	return &r.Elements[0]
}

// Root returns the terminal chain element.
func (r *Result) Root() *Element {
	return &r.Elements[len(r.Elements)-1]
}

// ValidUnderUntrustedRootPolicy reports whether the chain's only defect is
// an untrusted root: every non-terminal element is clean and the terminal
// element carries exactly one status, StatusUntrustedRoot.  Out-of-band
// attestation roots are expected to be absent from the local trust store, so
// this is the success condition for metadata-anchored chains.
func (r *Result) ValidUnderUntrustedRootPolicy() bool {
	for i := 0; i < len(r.Elements)-1; i++ {
		if len(r.Elements[i].Statuses) != 0 {
			return false
		}
	}
	return r.Root().OnlyStatus(StatusUntrustedRoot)
}

// Validator builds and evaluates chains.  Roots holds trusted anchors; a
// terminal certificate outside this set is reported with
// StatusUntrustedRoot.  The zero value trusts nothing and evaluates against
// the current time.
type Validator struct {
	Roots []*x509.Certificate
	Now   func() time.Time
}

// BuildAndEvaluate builds a chain from leaf, using extraRoot as an
// additional trust anchor supplied out-of-band (typically the attestation
// root declared by a metadata statement), and evaluates every certificate.
// The chain itself is always returned when it can be built; policy decisions
// are made by the caller from the recorded statuses.
func (v *Validator) BuildAndEvaluate(leaf *x509.Certificate, extraRoot *x509.Certificate) (*Result, error) {
	if leaf == nil {
		return nil, errors.New("certchain: leaf certificate is required")
	}

	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}

	anchors := make([]*x509.Certificate, 0, len(v.Roots)+1)
	anchors = append(anchors, v.Roots...)
	if extraRoot != nil {
		anchors = append(anchors, extraRoot)
	}

	chain := []*x509.Certificate{leaf}
	if !selfSigned(leaf) {
		if issuer := findIssuer(leaf, anchors); issuer != nil {
			chain = append(chain, issuer)
		}
	}

	result := &Result{Elements: make([]Element, len(chain))}
	for i, cert := range chain {
		el := Element{Cert: cert}

		if now.Before(cert.NotBefore) {
			el.Statuses = append(el.Statuses, StatusNotYetValid)
		}
		if now.After(cert.NotAfter) {
			el.Statuses = append(el.Statuses, StatusExpired)
		}

		terminal := i == len(chain)-1
		if terminal {
			if selfSigned(cert) {
				if err := cert.CheckSignatureFrom(cert); err != nil {
					el.Statuses = append(el.Statuses, StatusInvalidSignature)
				}
			} else if i == 0 {
				// Leaf with no resolvable issuer.
				el.Statuses = append(el.Statuses, StatusPartialChain)
			}
			if !trustedAnchor(cert, v.Roots) {
				el.Statuses = append(el.Statuses, StatusUntrustedRoot)
			}
		} else {
			parent := chain[i+1]
			if !bytes.Equal(cert.RawIssuer, parent.RawSubject) {
				el.Statuses = append(el.Statuses, StatusInvalidSignature)
			} else if err := cert.CheckSignatureFrom(parent); err != nil {
				el.Statuses = append(el.Statuses, StatusInvalidSignature)
			}
		}

		result.Elements[i] = el
	}

	return result, nil
}

// BuildAndEvaluate builds and evaluates a chain with no trusted anchors
// beyond the supplied extra root.  This matches attestation verification,
// where metadata roots are expected to be absent from any local trust store.
func BuildAndEvaluate(leaf *x509.Certificate, extraRoot *x509.Certificate) (*Result, error) {
	var v Validator
	return v.BuildAndEvaluate(leaf, extraRoot)
}

func selfSigned(cert *x509.Certificate) bool {
	return bytes.Equal(cert.RawIssuer, cert.RawSubject)
}

func findIssuer(cert *x509.Certificate, candidates []*x509.Certificate) *x509.Certificate {
	// Prefer a candidate that both matches by name and verifies the
	// signature; fall back to a name match so signature defects are still
	// reported on a built chain.
	var nameMatch *x509.Certificate
	for _, cand := range candidates {
		if !bytes.Equal(cert.RawIssuer, cand.RawSubject) {
			continue
		}
		if err := cert.CheckSignatureFrom(cand); err == nil {
			return cand
		}
		if nameMatch == nil {
			nameMatch = cand
		}
	}
	return nameMatch
}

func trustedAnchor(cert *x509.Certificate, roots []*x509.Certificate) bool {
	for _, root := range roots {
		if bytes.Equal(cert.Raw, root.Raw) {
			return true
		}
	}
	return false
}
