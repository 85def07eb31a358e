// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package webauthn

import (
	"encoding/binary"
	"strconv"

	"github.com/fxamacker/cbor/v2"
)

// Authenticator data flag bits defined in
// http://w3c.github.io/webauthn/#sctn-authenticator-data
const (
	flagUserPresent            = 0x01 // UP: flags bit 0.
	flagUserVerified           = 0x04 // UV: flags bit 2.
	flagAttestedCredentialData = 0x40 // AT: flags bit 6.
	flagExtensionData          = 0x80 // ED: flags bit 7.
)

// AuthenticatorData represents the Web Authentication structure of the same name,
// as defined in http://w3c.github.io/webauthn/#sctn-authenticator-data
type AuthenticatorData struct {
	Raw          []byte                 // Complete raw authenticator data content.
	RPIDHash     []byte                 // SHA-256 hash of the RP ID the credential is scoped to.
	UserPresent  bool                   // User is present.
	UserVerified bool                   // User is verified.
	Counter      uint32                 // Signature counter.
	AAGUID       []byte                 // AAGUID of the authenticator (optional).
	CredentialID []byte                 // Identifier of a public key credential source (optional).
	Credential   *Credential            // Algorithm and public key portion of a Relying Party-specific credential key pair (optional).
	Extensions   map[string]interface{} // Extension-defined authenticator data (optional).
}

// ParseAuthenticatorData decodes the fixed-layout authenticator data blob:
// 32 bytes rpIdHash, 1 byte flags, 4 bytes big-endian counter, then attested
// credential data (16 bytes AAGUID, 2-byte big-endian credential ID length,
// credential ID, COSE credential public key) when the AT flag is set, then
// extension data when the ED flag is set.
func ParseAuthenticatorData(data []byte) (authnData *AuthenticatorData, err error) {
	const typ = "authenticator data"

	if len(data) < 37 {
		return nil, &TruncatedDataError{Type: typ, Msg: "need at least 37 bytes, have " + strconv.Itoa(len(data))}
	}

	authnData = &AuthenticatorData{Raw: data}

	authnData.RPIDHash = make([]byte, 32)
	copy(authnData.RPIDHash, data)

	flags := data[32]
	authnData.UserPresent = flags&flagUserPresent > 0
	authnData.UserVerified = flags&flagUserVerified > 0
	credentialDataIncluded := flags&flagAttestedCredentialData > 0
	extensionDataIncluded := flags&flagExtensionData > 0

	authnData.Counter = binary.BigEndian.Uint32(data[33:37])

	rest := data[37:]

	if credentialDataIncluded {
		if len(rest) < 18 {
			return nil, &TruncatedDataError{Type: typ, Msg: "attested credential data needs at least 18 bytes, have " + strconv.Itoa(len(rest))}
		}

		authnData.AAGUID = make([]byte, 16)
		copy(authnData.AAGUID, rest)

		idLength := binary.BigEndian.Uint16(rest[16:18])

		if len(rest[18:]) < int(idLength) {
			return nil, &TruncatedDataError{Type: typ, Msg: "declared credential id length " + strconv.Itoa(int(idLength)) + " exceeds remaining " + strconv.Itoa(len(rest[18:])) + " bytes"}
		}
		authnData.CredentialID = make([]byte, idLength)
		copy(authnData.CredentialID, rest[18:])

		if authnData.Credential, rest, err = ParseCredential(rest[18+idLength:]); err != nil {
			return nil, err
		}
	}

	if extensionDataIncluded {
		if len(rest) == 0 {
			return nil, &TruncatedDataError{Type: typ, Msg: "extension data flag is set but no extension data remains"}
		}
		if err = cbor.Unmarshal(rest, &authnData.Extensions); err != nil {
			return nil, &MalformedEncodingError{Type: typ, Msg: "extension data: " + err.Error()}
		}
	} else if credentialDataIncluded && len(rest) > 0 {
		return nil, &MalformedEncodingError{Type: typ, Msg: strconv.Itoa(len(rest)) + " trailing bytes after attested credential data"}
	}

	return authnData, nil
}
