// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package wizard

import (
	"context"
	"log/slog"

	"github.com/gravitational/trace"
)

// Fixed terminal messages.  Localization is the hosting layer's concern; the
// message keys here identify which terminal was entered.
const (
	messageBypass  = "multi-factor authentication was bypassed for this sign-in"
	messageLockout = "your account is locked out of multi-factor authentication; contact your administrator"
)

// Config holds hosting-policy settings for the wizard.
type Config struct {
	// AllowCancel permits cancelling out of a non-required method's flow
	// from any non-terminal step.
	AllowCancel bool
	// RememberMethodEnabled enables persisting the chosen method as the
	// user's preference on successful enrollment.
	RememberMethodEnabled bool
	// DefaultMethod is used when a user has no preferred method on record.
	DefaultMethod Method
	// Logger receives step transition logs.  Defaults to slog.Default.
	Logger *slog.Logger
}

// CheckAndSetDefaults validates the config and fills in defaults.
func (c *Config) CheckAndSetDefaults() error {
	if c.DefaultMethod == MethodNone {
		c.DefaultMethod = MethodCode
	}
	if c.DefaultMethod == MethodBiometrics {
		return trace.NotImplemented("biometrics enrollment is not supported")
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Machine drives enrollment and challenge flows.  It is stateless across
// sessions; all per-session data lives in State.
type Machine struct {
	cfg      *Config
	registry *Registry
	repo     RegistrationRepository
	keys     KeyStore
	log      *slog.Logger

	transitions map[transitionKey]handler
}

type transitionKey struct {
	step   Step
	action Action
}

type handler func(ctx context.Context, st *State) error

// NewMachine returns a machine wired to the given collaborators.
func NewMachine(cfg *Config, registry *Registry, repo RegistrationRepository, keys KeyStore) (*Machine, error) {
	if cfg == nil {
		return nil, trace.BadParameter("missing config")
	}
	if err := cfg.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	if registry == nil {
		return nil, trace.BadParameter("missing provider registry")
	}
	if repo == nil {
		return nil, trace.BadParameter("missing registration repository")
	}
	if keys == nil {
		return nil, trace.BadParameter("missing key store")
	}

	m := &Machine{
		cfg:      cfg,
		registry: registry,
		repo:     repo,
		keys:     keys,
		log:      cfg.Logger.With("component", "mfa-wizard"),
	}

	// The flow is an explicit step x action table.  Anything not listed is
	// rejected, so every reachable transition is visible here.
	m.transitions = map[transitionKey]handler{
		{StepStart, ActionNext}: m.handleStart,

		{StepChooseMethod, ActionSelect}: m.handleSelectMethod,
		{StepChooseMethod, ActionCancel}: m.handleCancel,

		{StepCollectInput, ActionNext}:   m.handleCollectInput,
		{StepCollectInput, ActionPrior}:  m.handlePriorToChoose,
		{StepCollectInput, ActionCancel}: m.handleCancel,

		{StepVerifyCode, ActionNext}:   m.handleVerifyCode,
		{StepVerifyCode, ActionPrior}:  m.handlePriorToCollect,
		{StepVerifyCode, ActionResend}: m.handleResend,
		{StepVerifyCode, ActionCancel}: m.handleCancel,

		{StepBypass, ActionQuit}:     m.handleTerminal,
		{StepBypass, ActionContinue}: m.handleTerminal,

		{StepLockout, ActionQuit}:     m.handleTerminal,
		{StepLockout, ActionContinue}: m.handleTerminal,
	}

	return m, nil
}

// Advance applies a single posted action to the session state.  Validation
// failures are recorded on st.Error and keep the session on the same step;
// an error return means the action itself was not acceptable for the step.
func (m *Machine) Advance(ctx context.Context, st *State, action Action) error {
	if st == nil {
		return trace.BadParameter("missing state")
	}
	if st.Step == StepSuccess || st.Done {
		return trace.BadParameter("session is already complete")
	}

	h, ok := m.transitions[transitionKey{st.Step, action}]
	if !ok {
		return trace.BadParameter("action %q is not valid on step %q", action.String(), st.Step.String())
	}

	st.Error = ""
	prev := st.Step
	if err := h(ctx, st); err != nil {
		return trace.Wrap(err)
	}
	m.log.DebugContext(ctx, "wizard step advanced",
		"user", st.User.UPN,
		"method", st.Method.String(),
		"from", prev.String(),
		"to", st.Step.String(),
		"action", action.String(),
	)
	return nil
}

// SelectMethod returns the method to challenge the user with, falling back
// circularly through the method cycle when the preferred method has no
// enabled provider.
func (m *Machine) SelectMethod(preferred Method) Method {
	return NextAvailableMethod(preferred, m.registry.Available)
}

func (m *Machine) handleStart(ctx context.Context, st *State) error {
	reg, err := m.repo.GetUserRegistration(ctx, m.cfg, st.User.UPN)
	if err != nil {
		return trace.Wrap(err)
	}

	// Unregistered, disabled, and opted-out users short-circuit to a
	// terminal step with a fixed message and no further branching.
	switch {
	case reg == nil || !reg.Enrolled:
		st.Step = StepBypass
		st.Message = messageBypass
		return nil
	case reg.Disabled:
		st.Step = StepLockout
		st.Message = messageLockout
		return nil
	case reg.OptedOut || st.User.OptedOut:
		st.Step = StepBypass
		st.Message = messageBypass
		return nil
	}

	preferred := reg.PreferredMethod
	if preferred == MethodNone {
		preferred = m.cfg.DefaultMethod
	}
	if preferred == MethodChoose {
		st.Step = StepChooseMethod
		return nil
	}
	return m.enterMethod(ctx, st, preferred)
}

func (m *Machine) handleSelectMethod(ctx context.Context, st *State) error {
	if st.Selected == MethodNone || st.Selected == MethodChoose {
		st.Error = "select an authentication method"
		return nil
	}
	if !m.registry.Available(st.Selected) {
		st.Error = "the selected method is not available"
		return nil
	}
	return m.enterMethod(ctx, st, st.Selected)
}

// enterMethod resolves the provider for method and moves the session to the
// method's first step.
func (m *Machine) enterMethod(ctx context.Context, st *State, method Method) error {
	if method == MethodBiometrics {
		return trace.NotImplemented("biometrics enrollment is not supported")
	}

	if !m.registry.Available(method) {
		fallback := m.SelectMethod(method)
		if fallback == method {
			st.Error = "no authentication method is available"
			return nil
		}
		method = fallback
	}

	st.Method = method
	st.Step = StepCollectInput

	// Methods whose provider needs no input entry skip straight to code
	// verification.
	if p, ok := m.registry.Provider(method); ok && !p.UIElementRequired(ElementInput) {
		return m.enterVerifyCode(ctx, st)
	}
	return nil
}

func (m *Machine) handleCollectInput(ctx context.Context, st *State) error {
	if err := validateInput(st.Method, st.Input); err != nil {
		st.Error = err.Error()
		return nil
	}
	return m.enterVerifyCode(ctx, st)
}

// enterVerifyCode moves to the code-verification step, issuing a fresh
// secret key exactly once per enrollment attempt on first entry.
func (m *Machine) enterVerifyCode(ctx context.Context, st *State) error {
	if !st.KeyIssued {
		if err := m.keys.NewKey(ctx, st.User.UPN); err != nil {
			return trace.Wrap(err)
		}
		st.KeyIssued = true
		m.log.InfoContext(ctx, "issued new secret key", "user", st.User.UPN, "method", st.Method.String())
	}
	st.Step = StepVerifyCode
	return nil
}

func (m *Machine) handleVerifyCode(ctx context.Context, st *State) error {
	if err := validateCode(st.Code); err != nil {
		st.Error = err.Error()
		return nil
	}
	ok, err := m.keys.CheckCode(ctx, st.User.UPN, st.Code)
	if err != nil {
		return trace.Wrap(err)
	}
	if !ok {
		st.Error = "the verification code is incorrect"
		return nil
	}

	if st.Remember && m.cfg.RememberMethodEnabled {
		if err := m.repo.SetPreferredMethod(ctx, st.User.UPN, st.Method); err != nil {
			return trace.Wrap(err)
		}
	}

	st.Step = StepSuccess
	m.log.InfoContext(ctx, "enrollment complete", "user", st.User.UPN, "method", st.Method.String())
	return nil
}

// handleResend explicitly rotates the secret key and stays on the
// verification step.
func (m *Machine) handleResend(ctx context.Context, st *State) error {
	if err := m.keys.NewKey(ctx, st.User.UPN); err != nil {
		return trace.Wrap(err)
	}
	st.KeyIssued = true
	m.log.InfoContext(ctx, "reissued secret key", "user", st.User.UPN, "method", st.Method.String())
	return nil
}

func (m *Machine) handlePriorToCollect(ctx context.Context, st *State) error {
	st.Step = StepCollectInput
	return nil
}

func (m *Machine) handlePriorToChoose(ctx context.Context, st *State) error {
	st.Step = StepChooseMethod
	return nil
}

func (m *Machine) handleCancel(ctx context.Context, st *State) error {
	if !m.cfg.AllowCancel {
		return trace.AccessDenied("cancelling enrollment is not permitted")
	}
	if p, ok := m.registry.Provider(st.Method); ok && p.Required() {
		return trace.AccessDenied("method %q is required and can not be cancelled", st.Method.String())
	}
	st.Done = true
	m.log.InfoContext(ctx, "enrollment cancelled", "user", st.User.UPN, "method", st.Method.String())
	return nil
}

func (m *Machine) handleTerminal(ctx context.Context, st *State) error {
	st.Done = true
	return nil
}

// RemoveCredential deletes a stored WebAuthn credential for the user through
// the key store.
func (m *Machine) RemoveCredential(ctx context.Context, userID string, credentialID []byte) error {
	if len(credentialID) == 0 {
		return trace.BadParameter("missing credential id")
	}
	return trace.Wrap(m.keys.RemoveStoredCredential(ctx, userID, credentialID))
}
