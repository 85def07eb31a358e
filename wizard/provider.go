// Copyright (c) 2025 Keyfed Authors. All rights reserved.
// Use of this source code is governed by Apache License 2.0 found in the LICENSE file.

package wizard

// UIElement identifies a piece of step UI that the hosting layer may or may
// not have to render for a provider.  The machine only queries whether an
// element is required; it never renders.
type UIElement int

const (
	ElementInput UIElement = iota // address/phone/pin entry field
	ElementQRCode
	ElementResendLink
	ElementRememberChoice
)

// Provider supplies per-method capability facts.  One provider is registered
// per authentication method; the machine dispatches on Kind.
type Provider interface {
	// Kind returns the method this provider implements.
	Kind() Method
	// Enabled reports whether the method is available for enrollment.
	Enabled() bool
	// Required reports whether the hosting policy forbids cancelling out
	// of this method's flow.
	Required() bool
	// UIElementRequired reports whether the given step element must be
	// rendered for this provider.
	UIElementRequired(el UIElement) bool
	// AuthenticationMethods returns the methods this provider can satisfy
	// a challenge with, ordered by preference.
	AuthenticationMethods() []Method
}

// Registry holds the configured providers keyed by method.
type Registry struct {
	providers map[Method]Provider
}

// NewRegistry returns a registry with the given providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[Method]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Kind()] = p
	}
	return r
}

// Register adds or replaces the provider for its method.
func (r *Registry) Register(p Provider) {
	r.providers[p.Kind()] = p
}

// Provider returns the provider registered for m.
func (r *Registry) Provider(m Method) (Provider, bool) {
	p, ok := r.providers[m]
	return p, ok
}

// Available reports whether a provider for m is registered and enabled.
func (r *Registry) Available(m Method) bool {
	p, ok := r.providers[m]
	return ok && p.Enabled()
}
