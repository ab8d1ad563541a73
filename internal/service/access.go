package service

import (
	"errors"
	"strings"

	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
	"github.com/consorcio10demayo/canalero-auth/internal/ports"
)

// AccessPolicy answers authorization questions from the current auth state.
// It is a read-only selector; it never mutates the state it observes.
type AccessPolicy struct {
	source StateSource
	roles  ports.RoleMapper
}

// NewAccessPolicy builds a policy over the given state source. The role
// mapper backs MetadataRole only; access decisions read the perfiles row.
func NewAccessPolicy(source StateSource, roles ports.RoleMapper) (*AccessPolicy, error) {
	if source == nil {
		return nil, errors.New("state source is required")
	}
	return &AccessPolicy{source: source, roles: roles}, nil
}

// IsAuthenticated reports whether the state is a settled signed-in state.
func (p *AccessPolicy) IsAuthenticated() bool {
	return p.source.State().Authenticated()
}

// Role resolves the effective role: the profile row when loaded, ciudadano
// for an authenticated user whose profile has not resolved, RoleNone for
// visitors. Provider metadata never raises the role above ciudadano; only
// the perfiles row grants operador or admin.
func (p *AccessPolicy) Role() domainauth.Role {
	return p.roleFrom(p.source.State())
}

func (p *AccessPolicy) roleFrom(state domainauth.AuthState) domainauth.Role {
	if state.Profile != nil {
		if state.Profile.Rol.Valid() {
			return state.Profile.Rol
		}
		return domainauth.ParseRole(string(state.Profile.Rol))
	}
	if !state.Authenticated() {
		return domainauth.RoleNone
	}
	return domainauth.RoleCiudadano
}

// MetadataRole reports the role the provider's claims suggest for the
// signed-in user. It is a display hint for the window before the profile
// row resolves; it never feeds CanAccess.
func (p *AccessPolicy) MetadataRole() domainauth.Role {
	state := p.source.State()
	if state.User == nil || p.roles == nil {
		return domainauth.RoleNone
	}
	if r := p.roles.Map(*state.User); r.Valid() {
		return r
	}
	return domainauth.RoleNone
}

// CanAccess reports whether the current user may reach a surface restricted
// to the given roles. An empty list means any authenticated user.
func (p *AccessPolicy) CanAccess(allowed ...domainauth.Role) bool {
	state := p.source.State()
	if !state.Authenticated() {
		return false
	}
	if len(allowed) == 0 {
		return true
	}

	role := p.roleFrom(state)
	for _, want := range allowed {
		if strings.EqualFold(strings.TrimSpace(string(want)), string(role)) {
			return true
		}
	}
	return false
}

// ContactoVerificado reports whether the user's contact is verified. It is
// derived, never assigned: true only once the store observes a session
// whose email the provider has confirmed.
func (p *AccessPolicy) ContactoVerificado() bool {
	return p.VerifiedIdentity() != nil
}

// VerifiedIdentity returns a copy of the authenticated identity once its
// contact is verified, nil otherwise.
func (p *AccessPolicy) VerifiedIdentity() *domainauth.Identity {
	state := p.source.State()
	if !state.Authenticated() || !state.User.EmailConfirmed() {
		return nil
	}
	u := state.User.Clone()
	return &u
}
