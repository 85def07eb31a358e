// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package wizard

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/gravitational/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUPN = "jane@example.com"

type fakeProvider struct {
	kind       Method
	enabled    bool
	required   bool
	needsInput bool
}

func (p *fakeProvider) Kind() Method   { return p.kind }
func (p *fakeProvider) Enabled() bool  { return p.enabled }
func (p *fakeProvider) Required() bool { return p.required }

func (p *fakeProvider) UIElementRequired(el UIElement) bool {
	if el == ElementInput {
		return p.needsInput
	}
	return false
}
func (p *fakeProvider) AuthenticationMethods() []Method { return []Method{p.kind} }

type fakeRepo struct {
	registrations map[string]*Registration
	preferred     map[string]Method
}

func newFakeRepo(regs ...*Registration) *fakeRepo {
	r := &fakeRepo{
		registrations: make(map[string]*Registration),
		preferred:     make(map[string]Method),
	}
	for _, reg := range regs {
		r.registrations[reg.UserID] = reg
	}
	return r
}

func (r *fakeRepo) GetUserRegistration(_ context.Context, _ *Config, userID string) (*Registration, error) {
	return r.registrations[userID], nil
}

func (r *fakeRepo) SetPreferredMethod(_ context.Context, userID string, m Method) error {
	r.preferred[userID] = m
	return nil
}

type fakeKeys struct {
	newKeyCalls int
	codeOK      bool
	removed     [][]byte
}

func (k *fakeKeys) NewKey(_ context.Context, _ string) error {
	k.newKeyCalls++
	return nil
}

func (k *fakeKeys) EncodedKey(_ context.Context, _ string) (string, error) {
	return "JBSWY3DPEHPK3PXP", nil
}

func (k *fakeKeys) CheckCode(_ context.Context, _, _ string) (bool, error) {
	return k.codeOK, nil
}

func (k *fakeKeys) RemoveStoredCredential(_ context.Context, _ string, credentialID []byte) error {
	k.removed = append(k.removed, credentialID)
	return nil
}

type fixture struct {
	machine *Machine
	repo    *fakeRepo
	keys    *fakeKeys
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, cfg *Config, reg *Registration, providers ...Provider) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	var regs []*Registration
	if reg != nil {
		regs = append(regs, reg)
	}
	repo := newFakeRepo(regs...)
	keys := &fakeKeys{codeOK: true}
	machine, err := NewMachine(cfg, NewRegistry(providers...), repo, keys)
	require.NoError(t, err)
	return &fixture{machine: machine, repo: repo, keys: keys}
}

func enrolled(preferred Method) *Registration {
	return &Registration{
		UserID:          testUPN,
		Enrolled:        true,
		PreferredMethod: preferred,
		Methods:         []Method{MethodCode, MethodEmail},
	}
}

func newState() *State {
	return &State{User: UserContext{UPN: testUPN}}
}

func TestNewMachineValidation(t *testing.T) {
	registry := NewRegistry()
	repo := newFakeRepo()
	keys := &fakeKeys{}
	cfg := &Config{Logger: quietLogger()}

	_, err := NewMachine(nil, registry, repo, keys)
	assert.True(t, trace.IsBadParameter(err))

	_, err = NewMachine(cfg, nil, repo, keys)
	assert.True(t, trace.IsBadParameter(err))

	_, err = NewMachine(cfg, registry, nil, keys)
	assert.True(t, trace.IsBadParameter(err))

	_, err = NewMachine(cfg, registry, repo, nil)
	assert.True(t, trace.IsBadParameter(err))

	_, err = NewMachine(&Config{DefaultMethod: MethodBiometrics, Logger: quietLogger()}, registry, repo, keys)
	assert.True(t, trace.IsNotImplemented(err))
}

func TestOTPFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, enrolled(MethodCode),
		&fakeProvider{kind: MethodCode, enabled: true})
	st := newState()

	// The OTP method collects no input, so starting goes straight to code
	// verification and issues a key.
	require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
	assert.Equal(t, StepVerifyCode, st.Step)
	assert.Equal(t, MethodCode, st.Method)
	assert.True(t, st.KeyIssued)
	assert.Equal(t, 1, f.keys.newKeyCalls)

	// Going back and forward again must not rotate the key.
	require.NoError(t, f.machine.Advance(ctx, st, ActionPrior))
	assert.Equal(t, StepCollectInput, st.Step)
	require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
	assert.Equal(t, StepVerifyCode, st.Step)
	assert.Equal(t, 1, f.keys.newKeyCalls)

	// An explicit resend does rotate it.
	require.NoError(t, f.machine.Advance(ctx, st, ActionResend))
	assert.Equal(t, StepVerifyCode, st.Step)
	assert.Equal(t, 2, f.keys.newKeyCalls)

	st.Code = "123456"
	require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
	assert.Equal(t, StepSuccess, st.Step)
}

func TestVerifyCodeFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, enrolled(MethodCode),
		&fakeProvider{kind: MethodCode, enabled: true})
	st := newState()
	require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
	require.Equal(t, StepVerifyCode, st.Step)

	// Malformed codes never reach the key store.
	st.Code = "12ab"
	require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
	assert.Equal(t, StepVerifyCode, st.Step)
	assert.Contains(t, st.Error, "verification code must be 6 digits")

	// A well-formed but wrong code stays on the step with a message.
	f.keys.codeOK = false
	st.Code = "654321"
	require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
	assert.Equal(t, StepVerifyCode, st.Step)
	assert.Equal(t, "the verification code is incorrect", st.Error)

	// The error clears once the right code arrives.
	f.keys.codeOK = true
	require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
	assert.Equal(t, StepSuccess, st.Step)
	assert.Empty(t, st.Error)
}

func TestEmailFlowCollectsInput(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, enrolled(MethodEmail),
		&fakeProvider{kind: MethodEmail, enabled: true, needsInput: true})
	st := newState()

	require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
	assert.Equal(t, StepCollectInput, st.Step)
	assert.Equal(t, MethodEmail, st.Method)
	assert.False(t, st.KeyIssued)

	// Invalid input stays on the step.
	st.Input = "not-an-email"
	require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
	assert.Equal(t, StepCollectInput, st.Step)
	assert.Contains(t, st.Error, "enter a valid email address")

	st.Input = "jane@example.com"
	require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
	assert.Equal(t, StepVerifyCode, st.Step)
	assert.True(t, st.KeyIssued)
}

func TestBypassTerminals(t *testing.T) {
	ctx := context.Background()

	testCases := []struct {
		name     string
		reg      *Registration
		wantStep Step
		wantMsg  string
	}{
		{"unregistered user", nil, StepBypass, messageBypass},
		{"not enrolled", &Registration{UserID: testUPN}, StepBypass, messageBypass},
		{"disabled", &Registration{UserID: testUPN, Enrolled: true, Disabled: true}, StepLockout, messageLockout},
		{"opted out", &Registration{UserID: testUPN, Enrolled: true, OptedOut: true}, StepBypass, messageBypass},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil, tc.reg, &fakeProvider{kind: MethodCode, enabled: true})
			st := newState()
			require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
			assert.Equal(t, tc.wantStep, st.Step)
			assert.Equal(t, tc.wantMsg, st.Message)

			// Either terminal action completes the session.
			require.NoError(t, f.machine.Advance(ctx, st, ActionQuit))
			assert.True(t, st.Done)
		})
	}
}

func TestChooseMethod(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, enrolled(MethodChoose),
		&fakeProvider{kind: MethodCode, enabled: true},
		&fakeProvider{kind: MethodEmail, enabled: true, needsInput: true})
	st := newState()

	require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
	assert.Equal(t, StepChooseMethod, st.Step)

	// No selection recorded yet.
	require.NoError(t, f.machine.Advance(ctx, st, ActionSelect))
	assert.Equal(t, StepChooseMethod, st.Step)
	assert.Equal(t, "select an authentication method", st.Error)

	// An unavailable method is rejected.
	st.Selected = MethodAzure
	require.NoError(t, f.machine.Advance(ctx, st, ActionSelect))
	assert.Equal(t, StepChooseMethod, st.Step)
	assert.Equal(t, "the selected method is not available", st.Error)

	st.Selected = MethodEmail
	require.NoError(t, f.machine.Advance(ctx, st, ActionSelect))
	assert.Equal(t, StepCollectInput, st.Step)
	assert.Equal(t, MethodEmail, st.Method)

	// Prior from collect input returns to method choice.
	require.NoError(t, f.machine.Advance(ctx, st, ActionPrior))
	assert.Equal(t, StepChooseMethod, st.Step)
}

func TestMethodFallback(t *testing.T) {
	ctx := context.Background()

	// The preferred method's provider is disabled; the cycle falls through
	// to the next enabled one.
	f := newFixture(t, nil, enrolled(MethodCode),
		&fakeProvider{kind: MethodCode, enabled: false},
		&fakeProvider{kind: MethodEmail, enabled: true, needsInput: true})
	st := newState()
	require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
	assert.Equal(t, StepCollectInput, st.Step)
	assert.Equal(t, MethodEmail, st.Method)
}

func TestNoMethodAvailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, enrolled(MethodCode),
		&fakeProvider{kind: MethodCode, enabled: false})
	st := newState()
	require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
	assert.Equal(t, "no authentication method is available", st.Error)
}

func TestBiometricsNotImplemented(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, enrolled(MethodBiometrics),
		&fakeProvider{kind: MethodCode, enabled: true})
	st := newState()
	err := f.machine.Advance(ctx, st, ActionNext)
	assert.True(t, trace.IsNotImplemented(err))
}

func TestRememberMethod(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{RememberMethodEnabled: true, Logger: quietLogger()}
	f := newFixture(t, cfg, enrolled(MethodCode),
		&fakeProvider{kind: MethodCode, enabled: true})
	st := newState()
	st.Remember = true

	require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
	st.Code = "123456"
	require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
	assert.Equal(t, StepSuccess, st.Step)
	assert.Equal(t, MethodCode, f.repo.preferred[testUPN])
}

func TestRememberMethodDisabledByPolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, enrolled(MethodCode),
		&fakeProvider{kind: MethodCode, enabled: true})
	st := newState()
	st.Remember = true

	require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
	st.Code = "123456"
	require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
	assert.Equal(t, StepSuccess, st.Step)
	_, saved := f.repo.preferred[testUPN]
	assert.False(t, saved)
}

func TestCancelPolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("cancel not permitted", func(t *testing.T) {
		f := newFixture(t, nil, enrolled(MethodCode),
			&fakeProvider{kind: MethodCode, enabled: true})
		st := newState()
		require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
		err := f.machine.Advance(ctx, st, ActionCancel)
		assert.True(t, trace.IsAccessDenied(err))
	})

	t.Run("required method can not be cancelled", func(t *testing.T) {
		cfg := &Config{AllowCancel: true, Logger: quietLogger()}
		f := newFixture(t, cfg, enrolled(MethodCode),
			&fakeProvider{kind: MethodCode, enabled: true, required: true})
		st := newState()
		require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
		err := f.machine.Advance(ctx, st, ActionCancel)
		assert.True(t, trace.IsAccessDenied(err))
	})

	t.Run("cancel completes the session", func(t *testing.T) {
		cfg := &Config{AllowCancel: true, Logger: quietLogger()}
		f := newFixture(t, cfg, enrolled(MethodCode),
			&fakeProvider{kind: MethodCode, enabled: true})
		st := newState()
		require.NoError(t, f.machine.Advance(ctx, st, ActionNext))
		require.NoError(t, f.machine.Advance(ctx, st, ActionCancel))
		assert.True(t, st.Done)
	})
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, enrolled(MethodCode),
		&fakeProvider{kind: MethodCode, enabled: true})

	err := f.machine.Advance(ctx, nil, ActionNext)
	assert.True(t, trace.IsBadParameter(err))

	st := newState()
	err = f.machine.Advance(ctx, st, ActionResend)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `action "resend" is not valid on step "start"`)

	st.Step = StepSuccess
	err = f.machine.Advance(ctx, st, ActionNext)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session is already complete")
}

func TestRemoveCredential(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, enrolled(MethodCode),
		&fakeProvider{kind: MethodCode, enabled: true})

	err := f.machine.RemoveCredential(ctx, testUPN, nil)
	assert.True(t, trace.IsBadParameter(err))

	credentialID := []byte{1, 2, 3}
	require.NoError(t, f.machine.RemoveCredential(ctx, testUPN, credentialID))
	require.Len(t, f.keys.removed, 1)
	assert.Equal(t, credentialID, f.keys.removed[0])
}
