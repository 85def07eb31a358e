// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package webauthn

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// TokenBindingStatus represents the Web Authentication enumeration of the same name,
// as defined in http://w3c.github.io/webauthn/#dictionary-client-data
type TokenBindingStatus string

// TokenBindingStatus enumeration.
const (
	TokenBindingPresent   TokenBindingStatus = "present"   // Token binding was used when communicating with the Relying Party.
	TokenBindingSupported TokenBindingStatus = "supported" // Client supports token binding, but it was not negotiated when communicating with the Relying Party.
)

// TokenBinding represents the Web Authentication structure of the same name,
// as defined in http://w3c.github.io/webauthn/#dictionary-client-data
type TokenBinding struct {
	Status TokenBindingStatus `json:"status"`
	ID     string             `json:"id"` // Base64url encoded Token Binding ID that was used when communicating with the Relying Party (required if status is "present").
}

// CollectedClientData represents the Web Authentication structure of the same name,
// as defined in http://w3c.github.io/webauthn/#dictionary-client-data
type CollectedClientData struct {
	Raw          []byte        `json:"-"`            // Complete raw client data content.
	Type         string        `json:"type"`         // "webauthn.create" when creating new credentials, and "webauthn.get" when getting an assertion.
	Challenge    string        `json:"challenge"`    // base64 url encoded challenge provided by the Relying Party.
	Origin       string        `json:"origin"`       // Fully qualified origin of the requester.
	TokenBinding *TokenBinding `json:"tokenBinding"` // State of the Token Binding protocol used when communicating with the Relying Party.  Its absence indicates that the client doesn't support token binding.
}

func parseClientData(data []byte) (clientData *CollectedClientData, err error) {
	clientData = &CollectedClientData{Raw: data}
	if err = json.Unmarshal(data, &clientData); err != nil {
		return nil, &MalformedEncodingError{Type: "client data", Msg: err.Error()}
	}
	// Verify required fields (type, challenge, origin) are not empty.
	if len(clientData.Type) == 0 {
		return nil, &MissingFieldError{Type: "client data", Field: "type"}
	}
	if len(clientData.Challenge) == 0 {
		return nil, &MissingFieldError{Type: "client data", Field: "challenge"}
	}
	if len(clientData.Origin) == 0 {
		return nil, &MissingFieldError{Type: "client data", Field: "origin"}
	}
	// Verify TokenBinding required field (status) is not empty.
	if clientData.TokenBinding != nil && len(clientData.TokenBinding.Status) == 0 {
		return nil, &MissingFieldError{Type: "client data", Field: "token binding status"}
	}
	return clientData, nil
}

func base64DecodeString(s string) ([]byte, error) {
	if len(s) > 1 {
		// remove padding
		if s[len(s)-2] == '=' {
			s = s[:len(s)-2]
		} else if s[len(s)-1] == '=' {
			s = s[:len(s)-1]
		}
	}

	// convert base64 URL to base64 Std
	s = strings.Replace(s, "-", "+", -1)
	s = strings.Replace(s, "_", "/", -1)

	return base64.RawStdEncoding.DecodeString(s)
}
