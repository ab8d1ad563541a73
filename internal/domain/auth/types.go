package auth

// Package auth contains domain-level types for identity, sessions, and
// profiles. It is pure and free of framework/adapter concerns.

import (
	"maps"
	"strings"
	"time"
)

// Role represents an application's authorization role as stored in the
// perfiles table. Keep string form for easy persistence and claims mapping.
// Valid values are defined as constants below.
type Role string

const (
	RoleCiudadano Role = "ciudadano"
	RoleOperador  Role = "operador"
	RoleAdmin     Role = "admin"

	// RoleNone is the zero role for unauthenticated visitors.
	RoleNone Role = ""
)

// ParseRole normalizes an arbitrary role string. Unknown or empty values
// collapse to RoleCiudadano so a malformed claim never grants access.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleOperador:
		return RoleOperador
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleCiudadano
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleCiudadano, RoleOperador, RoleAdmin:
		return true
	}
	return false
}

// Identity represents the authenticated principal returned by the identity
// provider. Adapters map provider-specific claims into this shape.
type Identity struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	Phone            string         `json:"phone,omitempty"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	ConfirmedAt      *time.Time     `json:"confirmed_at,omitempty"`
	AppMetadata      map[string]any `json:"app_metadata,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
	CreatedAt        *time.Time     `json:"created_at,omitempty"`
}

// EmailConfirmed reports whether the provider has verified the user's email.
func (i Identity) EmailConfirmed() bool {
	return i.EmailConfirmedAt != nil || i.ConfirmedAt != nil
}

// DisplayName derives a human-readable name from provider metadata,
// falling back to the local part of the email address.
func (i Identity) DisplayName() string {
	for _, key := range []string{"full_name", "name"} {
		if v, ok := i.UserMetadata[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	if at := strings.IndexByte(i.Email, '@'); at > 0 {
		return i.Email[:at]
	}
	return i.Email
}

// Clone returns a copy with its own metadata maps.
func (i Identity) Clone() Identity {
	out := i
	out.AppMetadata = maps.Clone(i.AppMetadata)
	out.UserMetadata = maps.Clone(i.UserMetadata)
	return out
}

// Session is the token pair issued by the identity provider.
// ExpiresAt is absolute epoch seconds; ExpiresIn is the original lifetime.
type Session struct {
	AccessToken  string   `json:"access_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	RefreshToken string   `json:"refresh_token"`
	User         Identity `json:"user"`
}

// Clone returns a copy whose embedded identity owns its own maps.
func (s Session) Clone() Session {
	out := s
	out.User = s.User.Clone()
	return out
}

// Expired reports whether the session's access token has passed its expiry.
func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt != 0 && now.Unix() >= s.ExpiresAt
}

// ExpiresWithin reports whether the session expires before now+d.
// Used to refresh slightly ahead of the actual deadline.
func (s Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	return s.ExpiresAt != 0 && now.Add(d).Unix() >= s.ExpiresAt
}

// Profile is the application-side record for a user, one row of perfiles.
// ID matches the provider user ID.
type Profile struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Nombre string `json:"nombre"`
	Rol    Role   `json:"rol"`
}

// AuthState is the complete authentication snapshot handed to observers.
// All pointer fields are owned by the receiver; the manager hands out copies.
type AuthState struct {
	User        *Identity
	Session     *Session
	Profile     *Profile
	Loading     bool
	Initialized bool
	Hydrated    bool
	Err         error
}

// Clone returns a deep copy so observers can never mutate manager state.
func (s AuthState) Clone() AuthState {
	out := s
	if s.User != nil {
		u := s.User.Clone()
		out.User = &u
	}
	if s.Session != nil {
		sess := s.Session.Clone()
		out.Session = &sess
	}
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	return out
}

// Authenticated reports whether the state is a settled signed-in state:
// session and user resolved, no load in flight, initialization complete.
// Mid-initialize states never count, whatever fields they already carry.
func (s AuthState) Authenticated() bool {
	return s.Session != nil && s.User != nil && !s.Loading && s.Initialized
}

// VerificationMethod identifies which contact-verification path is active.
// Google is the default; the flow starts there and resets return to it.
type VerificationMethod string

const (
	MethodGoogle VerificationMethod = "google"
	MethodEmail  VerificationMethod = "email"
)

// VerificationState tracks progress of the contact-verification flow.
type VerificationState struct {
	Method         VerificationMethod
	Loading        bool
	MagicLinkSent  bool
	MagicLinkEmail string
}

// EventType classifies auth change notifications from the provider.
type EventType string

const (
	EventSignedIn         EventType = "SIGNED_IN"
	EventSignedOut        EventType = "SIGNED_OUT"
	EventTokenRefreshed   EventType = "TOKEN_REFRESHED"
	EventUserUpdated      EventType = "USER_UPDATED"
	EventPasswordRecovery EventType = "PASSWORD_RECOVERY"
)

// Event is a single auth change notification. Session is nil on sign-out.
type Event struct {
	Type    EventType
	Session *Session
}

// Snapshot is the persisted partial state used for fast rehydration.
// It deliberately carries no tokens; only the provider owns those.
type Snapshot struct {
	UserID  string    `json:"user_id"`
	Email   string    `json:"email"`
	Profile *Profile  `json:"profile,omitempty"`
	SavedAt time.Time `json:"saved_at"`
}

// CachedToken is the single-slot cache entry for a verified access token.
type CachedToken struct {
	Token     string
	ExpiresAt time.Time
}

// Valid reports whether the cached token is usable at the given instant.
func (c CachedToken) Valid(now time.Time) bool {
	return c.Token != "" && now.Before(c.ExpiresAt)
}
