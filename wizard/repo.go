// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package wizard

import "context"

// Registration is a user's MFA enrollment record as stored by the hosting
// identity provider.
type Registration struct {
	UserID          string
	Enrolled        bool
	Disabled        bool
	OptedOut        bool
	PreferredMethod Method
	Methods         []Method
}

// RegistrationRepository is the external store of user registrations.  A nil
// registration with a nil error means the user is unregistered.
type RegistrationRepository interface {
	GetUserRegistration(ctx context.Context, cfg *Config, userID string) (*Registration, error)
	SetPreferredMethod(ctx context.Context, userID string, m Method) error
}

// KeyStore issues and checks per-user shared-secret keys for OTP methods and
// removes stored WebAuthn credentials.  NewKey replaces any existing key and
// resets the signature counter.
type KeyStore interface {
	NewKey(ctx context.Context, userID string) error
	EncodedKey(ctx context.Context, userID string) (string, error)
	CheckCode(ctx context.Context, userID, code string) (bool, error)
	RemoveStoredCredential(ctx context.Context, userID string, credentialID []byte) error
}
