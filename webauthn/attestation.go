// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package webauthn

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/keyfed/mfakit/metadata"
)

// AttestationType identifies an attestation trust model.
type AttestationType int

// Attestation types are defined in http://w3c.github.io/webauthn/#sctn-attestation-types
const (
	AttestationTypeBasic AttestationType = iota + 1
	AttestationTypeSelf
	AttestationTypeCA
	AttestationTypeECDAA
	AttestationTypeNone
)

func (attType AttestationType) String() string {
	switch attType {
	case AttestationTypeBasic:
		return "Basic"
	case AttestationTypeSelf:
		return "Self"
	case AttestationTypeCA:
		return "AttCA"
	case AttestationTypeECDAA:
		return "ECDAA"
	case AttestationTypeNone:
		return "None"
	default:
		return "Undefined"
	}
}

// VerifyOptions carries the trust material available to attestation format
// verifiers.  A nil Metadata service skips the metadata trust-chain step;
// verification then rests on certificate and signature checks alone.
type VerifyOptions struct {
	// Metadata is the trust service queried by authenticator AAGUID.
	Metadata metadata.Service
	// RequireValidAttestationRoot additionally requires the built chain's
	// terminal certificate to be byte-identical to the root the metadata
	// statement declares.  This defends against a substituted chain whose
	// root is merely untrusted.
	RequireValidAttestationRoot bool
}

// AttestationStatement is the common interface implemented by all attestation statements.
type AttestationStatement interface {
	// Verify verifies an attestation statement and returns attestation type and trust path, or an error.
	Verify(clientDataHash []byte, authnData *AuthenticatorData, opts *VerifyOptions) (attType AttestationType, trustPath interface{}, err error)
}

func parseAttestationObject(data []byte) (authnData *AuthenticatorData, attStmt AttestationStatement, err error) {
	type rawAttestationObject struct {
		AuthnData []byte          `cbor:"authData"`
		Fmt       string          `cbor:"fmt"`
		AttStmt   cbor.RawMessage `cbor:"attStmt"`
	}
	var raw rawAttestationObject
	if err = cbor.Unmarshal(data, &raw); err != nil {
		return nil, nil, &MalformedEncodingError{Type: "attestation object", Msg: err.Error()}
	}
	if len(raw.AuthnData) == 0 {
		return nil, nil, &MissingFieldError{Type: "attestation object", Field: "authenticator data"}
	}
	if len(raw.Fmt) == 0 {
		return nil, nil, &MissingFieldError{Type: "attestation object", Field: "attestation statement format"}
	}

	if authnData, err = ParseAuthenticatorData(raw.AuthnData); err != nil {
		return nil, nil, err
	}
	// Verify that credential id and credential are not empty.
	if len(authnData.CredentialID) == 0 || authnData.Credential == nil {
		return nil, nil, &MissingFieldError{Type: "attestation object", Field: "credential data"}
	}
	if attStmt, err = parseAttestationStatement(raw.Fmt, raw.AttStmt); err != nil {
		return nil, nil, err
	}
	return authnData, attStmt, nil
}

// PublicKeyCredentialAttestation represents the Web Authentication structure of PublicKeyCredential
// for new credentials, as defined in http://w3c.github.io/webauthn/#iface-pkcredential
type PublicKeyCredentialAttestation struct {
	ID         string
	RawID      []byte
	ClientData *CollectedClientData
	AuthnData  *AuthenticatorData
	AttStmt    AttestationStatement
}

// UnmarshalJSON implements json.Unmarshaler interface.  rawId, clientDataJSON, and attestationObject
// are base64 URL encoded.
func (credentialAttestation *PublicKeyCredentialAttestation) UnmarshalJSON(data []byte) (err error) {
	type rawAuthenticatorAttestationResponse struct {
		ClientDataJSON    string `json:"clientDataJSON"`    // JSON-serialized client data passed to the authenticator by the client.
		AttestationObject string `json:"attestationObject"` // Attestation object, containing authenticator data and attestation statement.
	}
	type rawPublicKeyCredential struct {
		ID       string                              `json:"id,omitempty"`    // base64 url encoded credential ID.
		RawID    string                              `json:"rawId,omitempty"` // Raw credential ID.
		Response rawAuthenticatorAttestationResponse `json:"response"`        // Authenticator's response to client's request to create a public key credential.
		Type     string                              `json:"type"`            // "public-key"
	}
	var raw rawPublicKeyCredential
	if err = json.Unmarshal(data, &raw); err != nil {
		return &MalformedEncodingError{Type: "attestation", Msg: err.Error()}
	}

	// Check for empty data.
	if len(raw.ID) == 0 && len(raw.RawID) == 0 {
		return &MissingFieldError{Type: "attestation", Field: "credential id and raw id"}
	}
	if len(raw.Response.ClientDataJSON) == 0 {
		return &MissingFieldError{Type: "attestation", Field: "client data"}
	}
	if len(raw.Response.AttestationObject) == 0 {
		return &MissingFieldError{Type: "attestation", Field: "attestation object"}
	}
	if len(raw.Type) == 0 {
		return &MissingFieldError{Type: "attestation", Field: "type"}
	}

	if raw.Type != "public-key" {
		return &MalformedEncodingError{Type: "attestation", Msg: "expected type as \"public-key\", got \"" + raw.Type + "\""}
	}

	// base64 decode RawID, ClientDataJSON, and AttestationObject.
	var rawID []byte
	if len(raw.RawID) > 0 {
		rawID, err = base64DecodeString(raw.RawID)
		if err != nil {
			return &MalformedEncodingError{Type: "attestation", Msg: "failed to base64 decode credential raw id"}
		} else if len(rawID) == 0 {
			return &MalformedEncodingError{Type: "attestation", Msg: "base64 decoded credential raw id is empty"}
		}
	}
	rawClientDataJSON, err := base64DecodeString(raw.Response.ClientDataJSON)
	if err != nil {
		return &MalformedEncodingError{Type: "attestation", Msg: "failed to base64 decode client data"}
	} else if len(rawClientDataJSON) == 0 {
		return &MalformedEncodingError{Type: "attestation", Msg: "base64 decoded client data is empty"}
	}
	rawAttestationObject, err := base64DecodeString(raw.Response.AttestationObject)
	if err != nil {
		return &MalformedEncodingError{Type: "attestation", Msg: "failed to base64 decode attestation object"}
	} else if len(rawAttestationObject) == 0 {
		return &MalformedEncodingError{Type: "attestation", Msg: "base64 decoded attestation object is empty"}
	}

	credentialAttestation.ID = raw.ID
	credentialAttestation.RawID = rawID
	if len(credentialAttestation.ID) == 0 && len(credentialAttestation.RawID) > 0 {
		credentialAttestation.ID = base64.RawURLEncoding.EncodeToString(credentialAttestation.RawID)
	}
	if len(credentialAttestation.RawID) == 0 && len(credentialAttestation.ID) > 0 {
		if credentialAttestation.RawID, err = base64.RawURLEncoding.DecodeString(credentialAttestation.ID); err != nil {
			return &MalformedEncodingError{Type: "attestation", Msg: "failed to base64 decode credential id"}
		} else if len(credentialAttestation.RawID) == 0 {
			return &MalformedEncodingError{Type: "attestation", Msg: "base64 decoded credential id is empty"}
		}
	}

	if credentialAttestation.ClientData, err = parseClientData(rawClientDataJSON); err != nil {
		return err
	}

	credentialAttestation.AuthnData, credentialAttestation.AttStmt, err = parseAttestationObject(rawAttestationObject)
	return err
}

// VerifyAttestationStatement verifies the attestation statement under the
// given options and returns attestation type and trust path, or an error.
func (credentialAttestation *PublicKeyCredentialAttestation) VerifyAttestationStatement(opts *VerifyOptions) (attType AttestationType, trustPath interface{}, err error) {
	clientDataHash := sha256.Sum256(credentialAttestation.ClientData.Raw)
	return credentialAttestation.AttStmt.Verify(clientDataHash[:], credentialAttestation.AuthnData, opts)
}

var (
	formatsMu     sync.RWMutex
	atomicFormats = make(map[string]func([]byte) (AttestationStatement, error))
)

// RegisterAttestationFormat registers attestation statement format with a function that parses attestation statement of given format.
func RegisterAttestationFormat(name string, parse func([]byte) (AttestationStatement, error)) {
	formatsMu.Lock()
	defer formatsMu.Unlock()

	if parse == nil {
		panic("webauthn: register attestation parse function is nil")
	}

	if _, ok := atomicFormats[name]; ok {
		panic("webauthn: register called twice for attestation parse function " + name)
	}
	atomicFormats[name] = parse
}

// UnregisterAttestationFormat unregisters given attestation statement format.
func UnregisterAttestationFormat(name string) {
	formatsMu.Lock()
	defer formatsMu.Unlock()
	delete(atomicFormats, name)
}

func parseAttestationStatement(format string, data []byte) (AttestationStatement, error) {
	formatsMu.RLock()
	defer formatsMu.RUnlock()
	parser, ok := atomicFormats[format]
	if !ok {
		return nil, &UnregisteredFormatError{Format: format}
	}
	return parser(data)
}
