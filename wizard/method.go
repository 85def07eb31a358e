// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

// Package wizard implements the UI-less state machine that drives multi-step
// MFA enrollment and challenge flows.  The hosting identity provider posts
// one action per request; the machine validates, mutates the session's State
// in place, and returns.  Rendering, localization, and persistence between
// requests belong to the caller.
package wizard

// Method identifies an authentication method a user can enroll in or be
// challenged with.
type Method int

const (
	MethodNone Method = iota
	MethodChoose
	MethodCode
	MethodEmail
	MethodExternal
	MethodAzure
	MethodBiometrics
	MethodPin
)

func (m Method) String() string {
	switch m {
	case MethodNone:
		return "none"
	case MethodChoose:
		return "choose"
	case MethodCode:
		return "code"
	case MethodEmail:
		return "email"
	case MethodExternal:
		return "external"
	case MethodAzure:
		return "azure"
	case MethodBiometrics:
		return "biometrics"
	case MethodPin:
		return "pin"
	default:
		return "unknown"
	}
}

// methodCycle is the fixed fallback order used when a preferred method is
// unavailable.  Only methods in this cycle participate in fallback.
var methodCycle = [...]Method{MethodCode, MethodEmail, MethodExternal, MethodAzure}

// NextAvailableMethod advances circularly through the fallback method cycle
// starting after preferred, returning the first method for which available
// reports true.  If the cycle comes back around to preferred without finding
// one, preferred itself is returned; a deployment with a single configured
// method must not loop forever.
func NextAvailableMethod(preferred Method, available func(Method) bool) Method {
	start := -1
	for i, m := range methodCycle {
		if m == preferred {
			start = i
			break
		}
	}
	if start == -1 {
		// Preferred method is outside the fallback cycle.
		return preferred
	}

	for i := 1; i <= len(methodCycle); i++ {
		m := methodCycle[(start+i)%len(methodCycle)]
		if m == preferred {
			break
		}
		if available(m) {
			return m
		}
	}
	return preferred
}
