// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package webauthn_test

import (
	"bytes"
	"encoding/base64"
	"reflect"
	"strings"
	"testing"

	"github.com/ldclabs/cose/iana"

	"github.com/keyfed/mfakit/webauthn"
)

var (
	// Test data adapted from apowers313's fido2-helpers (2019) at https://github.com/apowers313/fido2-helpers/blob/master/fido2-helpers.js
	testAttestation = `{
		"id":    "AAii3V6sGoaozW7TbNaYlJaJ5br8TrBfRXnofZO6l2suc3a5tt_XFuFkFA_5eabU80S1PW0m4IZ79BS2kQO7Zcuy2vf0ESg18GTLG1mo5YSkIdqL2J44egt-6rcj7NedSEwxa_uuxUYBtHNnSQqDmtoUAfM9LSWLl65BjKVZNGUp9ao33mMSdVfQQ0bHze69JVQvLBf8OTiZUqJsOuKmpqUc",
		"rawId": "AAii3V6sGoaozW7TbNaYlJaJ5br8TrBfRXnofZO6l2suc3a5tt_XFuFkFA_5eabU80S1PW0m4IZ79BS2kQO7Zcuy2vf0ESg18GTLG1mo5YSkIdqL2J44egt-6rcj7NedSEwxa_uuxUYBtHNnSQqDmtoUAfM9LSWLl65BjKVZNGUp9ao33mMSdVfQQ0bHze69JVQvLBf8OTiZUqJsOuKmpqUc",
		"response": {
			"attestationObject": "o2NmbXRkbW9ja2dhdHRTdG10oGhhdXRoRGF0YVkBJkmWDeWIDoxodDQXD2R2YFuP5K65ooYyx5lc87qDHZdjQQAAAAAAAAAAAAAAAAAAAAAAAAAAAKIACKLdXqwahqjNbtNs1piUlonluvxOsF9Feeh9k7qXay5zdrm239cW4WQUD_l5ptTzRLU9bSbghnv0FLaRA7tly7La9_QRKDXwZMsbWajlhKQh2ovYnjh6C37qtyPs151ITDFr-67FRgG0c2dJCoOa2hQB8z0tJYuXrkGMpVk0ZSn1qjfeYxJ1V9BDRsfN7r0lVC8sF_w5OJlSomw64qampRylAQIDJiABIVgguxHN3W6ehp0VWXKaMNie1J82MVJCFZYScau74o17cx8iWCDb1jkTLi7lYZZbgwUwpqAk8QmIiPMTVQUVkhGEyGrKww==",
			"clientDataJSON":    "eyJjaGFsbGVuZ2UiOiIzM0VIYXYtaloxdjlxd0g3ODNhVS1qMEFSeDZyNW8tWUhoLXdkN0M2alBiZDdXaDZ5dGJJWm9zSUlBQ2Vod2Y5LXM2aFhoeVNITy1ISFVqRXdaUzI5dyIsImNsaWVudEV4dGVuc2lvbnMiOnt9LCJoYXNoQWxnb3JpdGhtIjoiU0hBLTI1NiIsIm9yaWdpbiI6Imh0dHBzOi8vbG9jYWxob3N0Ojg0NDMiLCJ0eXBlIjoid2ViYXV0aG4uY3JlYXRlIn0="
		},
		"type": "public-key"
	}`
	testAttestationChallenge = "33EHav-jZ1v9qwH783aU-j0ARx6r5o-YHh-wd7C6jPbd7Wh6ytbIZosIIACehwf9-s6hXhySHO-HHUjEwZS29w"

	// Same attestation with the declared id modified so that it no longer matches
	// the credential id inside the authenticator data.
	testAttestationWrongID = `{
		"id": "BAii3V6sGoaozW7TbNaYlJaJ5br8TrBfRXnofZO6l2suc3a5tt_XFuFkFA_5eabU80S1PW0m4IZ79BS2kQO7Zcuy2vf0ESg18GTLG1mo5YSkIdqL2J44egt-6rcj7NedSEwxa_uuxUYBtHNnSQqDmtoUAfM9LSWLl65BjKVZNGUp9ao33mMSdVfQQ0bHze69JVQvLBf8OTiZUqJsOuKmpqUc",
		"response": {
			"attestationObject": "o2NmbXRkbW9ja2dhdHRTdG10oGhhdXRoRGF0YVkBJkmWDeWIDoxodDQXD2R2YFuP5K65ooYyx5lc87qDHZdjQQAAAAAAAAAAAAAAAAAAAAAAAAAAAKIACKLdXqwahqjNbtNs1piUlonluvxOsF9Feeh9k7qXay5zdrm239cW4WQUD_l5ptTzRLU9bSbghnv0FLaRA7tly7La9_QRKDXwZMsbWajlhKQh2ovYnjh6C37qtyPs151ITDFr-67FRgG0c2dJCoOa2hQB8z0tJYuXrkGMpVk0ZSn1qjfeYxJ1V9BDRsfN7r0lVC8sF_w5OJlSomw64qampRylAQIDJiABIVgguxHN3W6ehp0VWXKaMNie1J82MVJCFZYScau74o17cx8iWCDb1jkTLi7lYZZbgwUwpqAk8QmIiPMTVQUVkhGEyGrKww==",
			"clientDataJSON":    "eyJjaGFsbGVuZ2UiOiIzM0VIYXYtaloxdjlxd0g3ODNhVS1qMEFSeDZyNW8tWUhoLXdkN0M2alBiZDdXaDZ5dGJJWm9zSUlBQ2Vod2Y5LXM2aFhoeVNITy1ISFVqRXdaUzI5dyIsImNsaWVudEV4dGVuc2lvbnMiOnt9LCJoYXNoQWxnb3JpdGhtIjoiU0hBLTI1NiIsIm9yaWdpbiI6Imh0dHBzOi8vbG9jYWxob3N0Ojg0NDMiLCJ0eXBlIjoid2ViYXV0aG4uY3JlYXRlIn0="
		},
		"type": "public-key"
	}`

	// Test data from apowers313's fido2-helpers (2019) at https://github.com/apowers313/fido2-helpers/blob/master/fido2-helpers.js
	testAssertion1 = `{
		"id":    "AAhH7cnPRBkcukjnc2G2GM1H5dkVs9P1q2VErhD57pkzKVjBbixdsufjXhUOfiD27D0VA-fPKUVYNGE2XYcjhihtYODQv-xEarplsa7Ix6hK13FA6uyRxMgHC3PhTbx-rbq_RMUbaJ-HoGVt-c820ifdoagkFR02Van8Vr9q67Bn6zHNDT_DNrQbtpIUqqX_Rg2p5o6F7bVO3uOJG9hUNgUb",
		"rawId": "AAhH7cnPRBkcukjnc2G2GM1H5dkVs9P1q2VErhD57pkzKVjBbixdsufjXhUOfiD27D0VA-fPKUVYNGE2XYcjhihtYODQv-xEarplsa7Ix6hK13FA6uyRxMgHC3PhTbx-rbq_RMUbaJ-HoGVt-c820ifdoagkFR02Van8Vr9q67Bn6zHNDT_DNrQbtpIUqqX_Rg2p5o6F7bVO3uOJG9hUNgUb",
		"response": {
			"clientDataJSON":    "eyJjaGFsbGVuZ2UiOiJlYVR5VU5ueVBERGRLOFNORWdURVV2ejFROGR5bGtqalRpbVlkNVg3UUFvLUY4X1oxbHNKaTNCaWxVcEZaSGtJQ05EV1k4cjlpdm5UZ1c3LVhaQzNxUSIsImNsaWVudEV4dGVuc2lvbnMiOnt9LCJoYXNoQWxnb3JpdGhtIjoiU0hBLTI1NiIsIm9yaWdpbiI6Imh0dHBzOi8vbG9jYWxob3N0Ojg0NDMiLCJ0eXBlIjoid2ViYXV0aG4uZ2V0In0",
			"authenticatorData": "SZYN5YgOjGh0NBcPZHZgW4_krrmihjLHmVzzuoMdl2MBAAABaw",
			"signature":         "MEYCIQD6dF3B0ZoaLA0r78oyRdoMNR0bN93Zi4cF_75hFAH6pQIhALY0UIsrh03u_f4yKOwzwD6Cj3_GWLJiioTT9580s1a7",
			"userHandle":        ""
		},
		"type": "public-key"
	}`
	testAssertion1Id        = "AAhH7cnPRBkcukjnc2G2GM1H5dkVs9P1q2VErhD57pkzKVjBbixdsufjXhUOfiD27D0VA-fPKUVYNGE2XYcjhihtYODQv-xEarplsa7Ix6hK13FA6uyRxMgHC3PhTbx-rbq_RMUbaJ-HoGVt-c820ifdoagkFR02Van8Vr9q67Bn6zHNDT_DNrQbtpIUqqX_Rg2p5o6F7bVO3uOJG9hUNgUb"
	testAssertion1Challenge = "eaTyUNnyPDDdK8SNEgTEUvz1Q8dylkjjTimYd5X7QAo-F8_Z1lsJi3BilUpFZHkICNDWY8r9ivnTgW7-XZC3qQ"
	testAssertion1CoseKey   = []byte{
		165, 1, 2, 3, 38, 32, 1, 33, 88, 32, 69, 236, 253, 104, 237, 176, 4, 5, 142, 231, 131, 46, 25, 177, 42, 73, 213, 154, 133, 41, 198, 48, 8, 55, 228, 16, 141, 145, 161, 55, 143, 196, 34, 88, 32, 62, 59, 246, 97, 132, 170, 147, 120, 130, 166, 236, 73, 123, 208, 65, 186, 122, 59, 120, 178, 13, 89, 106, 132, 57, 16, 184, 60, 147, 124, 176, 78,
	}

	// Test data from apowers313's fido2-helpers (2019) at https://github.com/apowers313/fido2-helpers/blob/master/fido2-helpers.js
	testAssertion2 = `{
		"id":    "AwVUFfSwuMV1DRHfYmNry1IUGW03wEw9aTAR7kJM1nw",
		"rawId": "AwVUFfSwuMV1DRHfYmNry1IUGW03wEw9aTAR7kJM1nw",
		"response": {
			"clientDataJSON":    "ew0KCSJ0eXBlIiA6ICJ3ZWJhdXRobi5nZXQiLA0KCSJjaGFsbGVuZ2UiIDogIm03WlUwWi1fSWl3dmlGbkYxSlhlSmpGaFZCaW5jVzY5RTFDdGo4QVEtWWJiMXVjNDFiTUh0SXRnNkpBQ2gxc09qX1pYam9udzJhY2pfSkQyaS1heEVRIiwNCgkib3JpZ2luIiA6ICJodHRwczovL3dlYmF1dGhuLm9yZyIsDQoJInRva2VuQmluZGluZyIgOiANCgl7DQoJCSJzdGF0dXMiIDogInN1cHBvcnRlZCINCgl9DQp9",
			"authenticatorData": "lWkIjx7O4yMpVANdvRDXyuORMFonUbVZu4_Xy7IpvdQFAAAAAQ",
			"signature":         "ElyXBPkS6ps0aod8pSEwdbaeG04SUSoucEHaulPrK3eBk3R4aePjTB-SjiPbya5rxzbuUIYO0UnqkpZrb19ZywWqwQ7qVxZzxSq7BCZmJhcML7j54eK_2nszVwXXVgO7WxpBcy_JQMxjwjXw6wNAxmnJ-H3TJJO82x4-9pDkno-GjUH2ObYk9NtkgylyMcENUaPYqajSLX-q5k14T2g839UC3xzsg71xHXQSeHgzPt6f3TXpNxNNcBYJAMm8-exKsoMkxHPDLkzK1wd5giietdoT25XQ72i8fjSSL8eiS1gllEjwbqLJn5zMQbWlgpSzJy3lK634sdeZtmMpXbRtMA",
			"userHandle":        "YWs"
		},
		"type": "public-key"
	}`
	testAssertion2Id        = "AwVUFfSwuMV1DRHfYmNry1IUGW03wEw9aTAR7kJM1nw"
	testAssertion2Challenge = "m7ZU0Z-_IiwviFnF1JXeJjFhVBincW69E1Ctj8AQ-Ybb1uc41bMHtItg6JACh1sOj_ZXjonw2acj_JD2i-axEQ"
	testAssertion2CoseKey   = []byte{
		164, 1, 3, 3, 57, 1, 0, 32, 89, 1, 0, 219, 52, 253, 167, 26, 159, 48, 173, 210, 53, 107, 218, 176, 74, 93, 231, 242, 28, 158, 50, 134, 80, 151, 20, 56, 101, 163, 52, 157, 232, 179, 57, 111, 58, 89, 41, 137, 104, 194, 193, 138, 167, 84, 125, 5, 203, 138, 33, 155, 74, 198, 204, 227, 176, 226, 76, 144, 135, 168, 191, 95, 106, 151, 116, 13, 2, 217, 67, 105, 186, 173, 189, 194, 146, 193, 198, 94, 89, 137, 227, 213, 166, 119, 173, 36, 149, 69, 68, 168, 176, 3, 213, 168, 14, 249, 84, 223, 53, 251, 66, 145, 74, 205, 177, 30, 68, 164, 166, 35, 218, 244, 130, 242, 95, 8, 243, 152, 88, 56, 102, 137, 140, 81, 103, 143, 238, 242, 23, 210, 67, 244, 32, 236, 216, 149, 208, 174, 227, 46, 253, 102, 255, 106, 173, 60, 65, 213, 146, 142, 212, 26, 101, 227, 90, 77, 10, 0, 211, 94, 94, 45, 155, 194, 20, 19, 83, 221, 252, 35, 150, 151, 181, 68, 51, 13, 165, 17, 29, 188, 66, 166, 105, 188, 234, 194, 141, 128, 229, 147, 212, 37, 78, 24, 203, 145, 168, 112, 93, 202, 222, 106, 41, 235, 185, 55, 64, 193, 105, 17, 81, 68, 85, 100, 115, 30, 141, 209, 245, 60, 203, 176, 199, 93, 137, 235, 203, 68, 254, 216, 185, 252, 172, 54, 76, 102, 183, 227, 67, 255, 155, 227, 192, 162, 108, 101, 61, 27, 10, 38, 178, 20, 4, 223, 106, 109, 253, 33, 68, 0, 1, 0, 1,
	}
)

type mockStatement struct {
}

func parseMockStatement(data []byte) (webauthn.AttestationStatement, error) {
	return &mockStatement{}, nil
}

func (attStmt *mockStatement) Verify(clientDataHash []byte, authnData *webauthn.AuthenticatorData, opts *webauthn.VerifyOptions) (attType webauthn.AttestationType, trustPath interface{}, err error) {
	return webauthn.AttestationTypeBasic, nil, nil
}

func decodeBase64(s string) []byte {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		panic(err.Error())
	}
	return b
}

func decodeCredential(data []byte) *webauthn.Credential {
	c, _, err := webauthn.ParseCredential(data)
	if err != nil {
		panic(err.Error())
	}
	return c
}

func testConfig() *webauthn.Config {
	cfg := &webauthn.Config{
		RPID:                    "acme.com",
		RPName:                  "ACME Corporation",
		RPIcon:                  "https://acme.com/avatar.png",
		Timeout:                 uint64(30000),
		ChallengeLength:         64,
		AuthenticatorAttachment: webauthn.AuthenticatorPlatform,
		ResidentKey:             webauthn.ResidentKeyPreferred,
		UserVerification:        webauthn.UserVerificationPreferred,
		Attestation:             webauthn.AttestationDirect,
		CredentialAlgs:          []int{int(iana.AlgorithmES256), int(iana.AlgorithmPS256), int(iana.AlgorithmRS256)},
	}
	if err := cfg.Valid(); err != nil {
		panic(err)
	}
	return cfg
}

func TestNewAttestationOptions(t *testing.T) {
	cfg := testConfig()
	user := &webauthn.User{
		ID:            []byte{1, 2, 3},
		Name:          "Jane Doe",
		DisplayName:   "Jane",
		CredentialIDs: [][]byte{{4, 5, 6}},
	}
	creationOptions, err := webauthn.NewAttestationOptions(cfg, user)
	if err != nil {
		t.Fatalf("NewAttestationOptions() returns error %q", err)
	}
	if len(creationOptions.Challenge) != cfg.ChallengeLength {
		t.Errorf("challenge length %d, want %d", len(creationOptions.Challenge), cfg.ChallengeLength)
	}
	creationOptions.Challenge = nil
	want := &webauthn.PublicKeyCredentialCreationOptions{
		RP: webauthn.PublicKeyCredentialRpEntity{
			Name: "ACME Corporation",
			Icon: "https://acme.com/avatar.png",
			ID:   "acme.com",
		},
		User: webauthn.PublicKeyCredentialUserEntity{
			Name:        "Jane Doe",
			ID:          []byte{1, 2, 3},
			DisplayName: "Jane",
		},
		PubKeyCredParams: []webauthn.PublicKeyCredentialParameters{
			{Type: webauthn.PublicKeyCredentialTypePublicKey, Alg: int(iana.AlgorithmES256)},
			{Type: webauthn.PublicKeyCredentialTypePublicKey, Alg: int(iana.AlgorithmPS256)},
			{Type: webauthn.PublicKeyCredentialTypePublicKey, Alg: int(iana.AlgorithmRS256)},
		},
		Timeout: uint64(30000),
		ExcludeCredentials: []webauthn.PublicKeyCredentialDescriptor{
			{Type: webauthn.PublicKeyCredentialTypePublicKey, ID: []byte{4, 5, 6}},
		},
		AuthenticatorSelection: webauthn.AuthenticatorSelectionCriteria{
			AuthenticatorAttachment: webauthn.AuthenticatorPlatform,
			ResidentKey:             webauthn.ResidentKeyPreferred,
			UserVerification:        webauthn.UserVerificationPreferred,
		},
		Attestation: webauthn.AttestationDirect,
	}
	if !reflect.DeepEqual(creationOptions, want) {
		t.Errorf("attestation options %+v, want %+v (challenge field is nil for testing)", creationOptions, want)
	}
}

func TestNewAttestationOptionsError(t *testing.T) {
	testCases := []struct {
		name         string
		user         *webauthn.User
		wantErrorMsg string
	}{
		{"empty user name", &webauthn.User{ID: []byte{1}, DisplayName: "Jane"}, "user name is required"},
		{"empty user id", &webauthn.User{Name: "Jane Doe", DisplayName: "Jane"}, "user id is required"},
		{"empty user display name", &webauthn.User{ID: []byte{1}, Name: "Jane Doe"}, "user display name is required"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := webauthn.NewAttestationOptions(testConfig(), tc.user); err == nil {
				t.Errorf("NewAttestationOptions() returns no error, want error containing substring %q", tc.wantErrorMsg)
			} else if !strings.Contains(err.Error(), tc.wantErrorMsg) {
				t.Errorf("NewAttestationOptions() returns error %q, want error containing substring %q", err, tc.wantErrorMsg)
			}
		})
	}
}

func TestParseAndVerifyAttestation(t *testing.T) {
	webauthn.RegisterAttestationFormat("mock", parseMockStatement)
	defer webauthn.UnregisterAttestationFormat("mock")

	credentialAttestation, err := webauthn.ParseAttestation(bytes.NewReader([]byte(testAttestation)))
	if err != nil {
		t.Fatalf("ParseAttestation() returns error %q", err)
	}
	expected := &webauthn.AttestationExpectedData{
		RPID:             "localhost",
		Origin:           "https://localhost:8443",
		CredentialAlgs:   []int{int(iana.AlgorithmES256), int(iana.AlgorithmES384), int(iana.AlgorithmES512)},
		Challenge:        testAttestationChallenge,
		UserVerification: webauthn.UserVerificationPreferred,
	}
	attType, trustPath, err := webauthn.VerifyAttestation(credentialAttestation, expected, nil)
	if err != nil {
		t.Fatalf("VerifyAttestation() returns error %q", err)
	}
	if attType != webauthn.AttestationTypeBasic {
		t.Errorf("attestation type %v, want %v", attType, webauthn.AttestationTypeBasic)
	}
	if trustPath != nil {
		t.Errorf("trust path %v, want nil", trustPath)
	}
}

func TestVerifyAttestationError(t *testing.T) {
	webauthn.RegisterAttestationFormat("mock", parseMockStatement)
	defer webauthn.UnregisterAttestationFormat("mock")

	testCases := []struct {
		name         string
		attestation  []byte
		expected     *webauthn.AttestationExpectedData
		wantErrorMsg string
	}{
		{
			name:        "attestation wrong id",
			attestation: []byte(testAttestationWrongID),
			expected: &webauthn.AttestationExpectedData{
				RPID:             "localhost",
				Origin:           "https://localhost:8443",
				UserVerification: webauthn.UserVerificationPreferred,
				Challenge:        testAttestationChallenge,
			},
			wantErrorMsg: "attestation: failed to verify credential ID: attestation's raw ID does not match credential ID",
		},
		{
			name:        "attestation wrong rp id",
			attestation: []byte(testAttestation),
			expected: &webauthn.AttestationExpectedData{
				RPID:             "acme.com",
				Origin:           "https://localhost:8443",
				UserVerification: webauthn.UserVerificationPreferred,
				Challenge:        testAttestationChallenge,
			},
			wantErrorMsg: "attestation: failed to verify rp ID: authenticator data's rp ID hash does not match computed rp ID hash",
		},
		{
			name:        "attestation wrong origin",
			attestation: []byte(testAttestation),
			expected: &webauthn.AttestationExpectedData{
				RPID:             "localhost",
				Origin:           "https://acme.com",
				UserVerification: webauthn.UserVerificationPreferred,
				Challenge:        testAttestationChallenge,
			},
			wantErrorMsg: "attestation: failed to verify client data origin",
		},
		{
			name:        "attestation wrong challenge",
			attestation: []byte(testAttestation),
			expected: &webauthn.AttestationExpectedData{
				RPID:             "localhost",
				Origin:           "https://localhost:8443",
				UserVerification: webauthn.UserVerificationPreferred,
				Challenge:        "bm90LXRoZS1jaGFsbGVuZ2U",
			},
			wantErrorMsg: "attestation: failed to verify client data challenge",
		},
		{
			name:        "attestation doesn't conform to user verification requirement",
			attestation: []byte(testAttestation),
			expected: &webauthn.AttestationExpectedData{
				RPID:             "localhost",
				Origin:           "https://localhost:8443",
				UserVerification: webauthn.UserVerificationRequired,
				Challenge:        testAttestationChallenge,
			},
			wantErrorMsg: "attestation: failed to verify user verification: user didn't verify",
		},
		{
			name:        "attestation credential algorithm not allowed",
			attestation: []byte(testAttestation),
			expected: &webauthn.AttestationExpectedData{
				RPID:             "localhost",
				Origin:           "https://localhost:8443",
				UserVerification: webauthn.UserVerificationPreferred,
				Challenge:        testAttestationChallenge,
				CredentialAlgs:   []int{int(iana.AlgorithmRS256)},
			},
			wantErrorMsg: "attestation: failed to verify credential algorithm",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			credentialAttestation, err := webauthn.ParseAttestation(bytes.NewReader(tc.attestation))
			if err != nil {
				t.Fatalf("ParseAttestation() returns error %q", err)
			}
			if _, _, err := webauthn.VerifyAttestation(credentialAttestation, tc.expected, nil); err == nil {
				t.Errorf("VerifyAttestation() returns no error, want error containing substring %q", tc.wantErrorMsg)
			} else if !strings.Contains(err.Error(), tc.wantErrorMsg) {
				t.Errorf("VerifyAttestation() returns error %q, want error containing substring %q", err, tc.wantErrorMsg)
			}
		})
	}
}

func TestNewAssertionOptions(t *testing.T) {
	cfg := testConfig()
	user := &webauthn.User{
		CredentialIDs: [][]byte{{1, 2, 3}, {4, 5, 6}},
	}
	requestOptions, err := webauthn.NewAssertionOptions(cfg, user)
	if err != nil {
		t.Fatalf("NewAssertionOptions() returns error %q", err)
	}
	if len(requestOptions.Challenge) != cfg.ChallengeLength {
		t.Errorf("challenge length %d, want %d", len(requestOptions.Challenge), cfg.ChallengeLength)
	}
	requestOptions.Challenge = nil
	want := &webauthn.PublicKeyCredentialRequestOptions{
		Timeout: uint64(30000),
		RPID:    "acme.com",
		AllowCredentials: []webauthn.PublicKeyCredentialDescriptor{
			{Type: webauthn.PublicKeyCredentialTypePublicKey, ID: []byte{1, 2, 3}},
			{Type: webauthn.PublicKeyCredentialTypePublicKey, ID: []byte{4, 5, 6}},
		},
		UserVerification: webauthn.UserVerificationPreferred,
	}
	if !reflect.DeepEqual(requestOptions, want) {
		t.Errorf("assertion options %+v, want %+v (challenge field is nil for testing)", requestOptions, want)
	}
}

func TestParseAndVerifyAssertion(t *testing.T) {
	testCases := []struct {
		name      string
		assertion []byte
		expected  *webauthn.AssertionExpectedData
	}{
		{
			name:      "assertion without user handle",
			assertion: []byte(testAssertion1),
			expected: &webauthn.AssertionExpectedData{
				RPID:             "localhost",
				Origin:           "https://localhost:8443",
				UserVerification: webauthn.UserVerificationPreferred,
				Challenge:        testAssertion1Challenge,
				PrevCounter:      uint32(362),
				Credential:       decodeCredential(testAssertion1CoseKey),
			},
		},
		{
			name:      "assertion with user handle",
			assertion: []byte(testAssertion2),
			expected: &webauthn.AssertionExpectedData{
				RPID:             "webauthn.org",
				Origin:           "https://webauthn.org",
				UserVerification: webauthn.UserVerificationPreferred,
				Challenge:        testAssertion2Challenge,
				UserID:           decodeBase64("YWs"),
				PrevCounter:      uint32(0),
				Credential:       decodeCredential(testAssertion2CoseKey),
			},
		},
		{
			name:      "credential id is allowed",
			assertion: []byte(testAssertion1),
			expected: &webauthn.AssertionExpectedData{
				RPID:              "localhost",
				Origin:            "https://localhost:8443",
				UserVerification:  webauthn.UserVerificationPreferred,
				Challenge:         testAssertion1Challenge,
				UserCredentialIDs: [][]byte{decodeBase64(testAssertion1Id), decodeBase64(testAssertion2Id)},
				Credential:        decodeCredential(testAssertion1CoseKey),
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			credentialAssertion, err := webauthn.ParseAssertion(bytes.NewReader(tc.assertion))
			if err != nil {
				t.Fatalf("ParseAssertion() returns error %q", err)
			}
			if err := webauthn.VerifyAssertion(credentialAssertion, tc.expected); err != nil {
				t.Errorf("VerifyAssertion() returns error %q", err)
			}
		})
	}
}

func TestVerifyAssertionError(t *testing.T) {
	testCases := []struct {
		name         string
		assertion    []byte
		expected     *webauthn.AssertionExpectedData
		wantErrorMsg string
	}{
		{
			name:      "assertion wrong rp id",
			assertion: []byte(testAssertion1),
			expected: &webauthn.AssertionExpectedData{
				RPID:             "acme.com",
				Origin:           "https://localhost:8443",
				UserVerification: webauthn.UserVerificationPreferred,
				Challenge:        testAssertion1Challenge,
				Credential:       decodeCredential(testAssertion1CoseKey),
			},
			wantErrorMsg: "assertion: failed to verify rp ID: authenticator data's rp ID hash does not match computed rp ID hash",
		},
		{
			name:      "assertion doesn't conform to user verification requirement",
			assertion: []byte(testAssertion1),
			expected: &webauthn.AssertionExpectedData{
				RPID:             "localhost",
				Origin:           "https://localhost:8443",
				UserVerification: webauthn.UserVerificationRequired,
				Challenge:        testAssertion1Challenge,
				Credential:       decodeCredential(testAssertion1CoseKey),
			},
			wantErrorMsg: "assertion: failed to verify user verification: user didn't verify",
		},
		{
			name:      "credential id is not allowed",
			assertion: []byte(testAssertion1),
			expected: &webauthn.AssertionExpectedData{
				RPID:              "localhost",
				Origin:            "https://localhost:8443",
				UserVerification:  webauthn.UserVerificationPreferred,
				Challenge:         testAssertion1Challenge,
				UserCredentialIDs: [][]byte{decodeBase64(testAssertion2Id)},
				Credential:        decodeCredential(testAssertion1CoseKey),
			},
			wantErrorMsg: "assertion: failed to verify credential ID: credential ID is not allowed",
		},
		{
			name:      "counter rollback",
			assertion: []byte(testAssertion1),
			expected: &webauthn.AssertionExpectedData{
				RPID:             "localhost",
				Origin:           "https://localhost:8443",
				UserVerification: webauthn.UserVerificationPreferred,
				Challenge:        testAssertion1Challenge,
				PrevCounter:      uint32(500),
				Credential:       decodeCredential(testAssertion1CoseKey),
			},
			wantErrorMsg: "assertion: failed to verify counter",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			credentialAssertion, err := webauthn.ParseAssertion(bytes.NewReader(tc.assertion))
			if err != nil {
				t.Fatalf("ParseAssertion() returns error %q", err)
			}
			if err := webauthn.VerifyAssertion(credentialAssertion, tc.expected); err == nil {
				t.Errorf("VerifyAssertion() returns no error, want error containing substring %q", tc.wantErrorMsg)
			} else if !strings.Contains(err.Error(), tc.wantErrorMsg) {
				t.Errorf("VerifyAssertion() returns error %q, want error containing substring %q", err, tc.wantErrorMsg)
			}
		})
	}
}
