// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package wizard

// Step identifies the wizard step a session is on.
type Step int

const (
	StepStart Step = iota
	StepChooseMethod
	StepCollectInput
	StepVerifyCode
	StepSuccess
	StepBypass
	StepLockout
)

func (s Step) String() string {
	switch s {
	case StepStart:
		return "start"
	case StepChooseMethod:
		return "choose method"
	case StepCollectInput:
		return "collect input"
	case StepVerifyCode:
		return "verify code"
	case StepSuccess:
		return "success"
	case StepBypass:
		return "bypass"
	case StepLockout:
		return "lockout"
	default:
		return "unknown"
	}
}

// Action is the single user action posted to the machine per invocation.
type Action int

const (
	ActionNext Action = iota
	ActionPrior
	ActionCancel
	ActionResend
	ActionSelect
	ActionQuit
	ActionContinue
)

func (a Action) String() string {
	switch a {
	case ActionNext:
		return "next"
	case ActionPrior:
		return "prior"
	case ActionCancel:
		return "cancel"
	case ActionResend:
		return "resend"
	case ActionSelect:
		return "select"
	case ActionQuit:
		return "quit"
	case ActionContinue:
		return "continue"
	default:
		return "unknown"
	}
}

// UserContext carries caller-owned session facts about the signing-in user.
type UserContext struct {
	UPN      string
	Remote   bool
	TwoWay   bool
	Disabled bool
	OptedOut bool
}

// State is the per-session wizard state.  It is mutated in place by
// Machine.Advance and round-tripped between requests by the caller; the
// hosting system must not post concurrent actions for the same session.
type State struct {
	Step     Step
	Method   Method
	User     UserContext
	Selected Method // method picked on the choose-method step
	Input    string // collected address, phone number, or pin
	Code     string // submitted verification code
	Remember bool   // persist Method as the user's preference on success
	Error    string // step-local validation error; cleared on transition
	Message  string // fixed message for bypass/lockout terminals
	Done     bool   // terminal step has been quit or auto-continued

	// KeyIssued records that a secret key was issued for this enrollment
	// attempt.  Re-entering the verify-code step must not rotate the key
	// again; only an explicit resend does.
	KeyIssued bool
}
