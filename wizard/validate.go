// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package wizard

import (
	"strings"
	"unicode"

	"github.com/gravitational/trace"
)

const (
	pinMinLength  = 4
	pinMaxLength  = 12
	codeLength    = 6
	phoneMinDigit = 7
	phoneMaxDigit = 15
)

// validateInput checks the collected step input for the active method.
// Failures are step-local: the caller records the message and stays on the
// collect-input step.
func validateInput(method Method, input string) error {
	switch method {
	case MethodEmail:
		return validateEmail(input)
	case MethodExternal, MethodAzure:
		return validatePhone(input)
	case MethodPin:
		return validatePIN(input)
	case MethodCode:
		// The OTP flow collects nothing before code verification.
		return nil
	default:
		return trace.BadParameter("method %q does not collect input", method.String())
	}
}

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return trace.BadParameter("enter a valid email address")
	}
	domain := s[at+1:]
	if strings.IndexByte(domain, '@') != -1 || !strings.Contains(domain, ".") {
		return trace.BadParameter("enter a valid email address")
	}
	if strings.ContainsAny(s, " \t") {
		return trace.BadParameter("enter a valid email address")
	}
	return nil
}

func validatePhone(s string) error {
	s = strings.TrimSpace(s)
	digits := 0
	for i, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return trace.BadParameter("enter a valid phone number")
		}
	}
	if digits < phoneMinDigit || digits > phoneMaxDigit {
		return trace.BadParameter("enter a valid phone number")
	}
	return nil
}

func validatePIN(s string) error {
	if len(s) < pinMinLength || len(s) > pinMaxLength {
		return trace.BadParameter("pin must be between %d and %d digits", pinMinLength, pinMaxLength)
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return trace.BadParameter("pin must contain only digits")
		}
	}
	return nil
}

func validateCode(s string) error {
	if len(s) != codeLength {
		return trace.BadParameter("verification code must be %d digits", codeLength)
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return trace.BadParameter("verification code must contain only digits")
		}
	}
	return nil
}
