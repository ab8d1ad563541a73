package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"

	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
)

// AuthorizeInput carries inputs for initiating an OAuth flow.
type AuthorizeInput struct {
	// Provider is the upstream social provider slug, e.g. "google".
	Provider string
	// RedirectTo is the absolute URL the provider sends the browser back to.
	RedirectTo string
	// Scopes requested from the upstream social provider, space separated.
	Scopes string
}

// AuthorizeResult is the outcome of starting an OAuth flow.
type AuthorizeResult struct {
	// URL is the provider authorization endpoint with all parameters set.
	URL string
	// Verifier is the PKCE code verifier to present on exchange; empty
	// when the provider runs without PKCE.
	Verifier string
}

// TokenClaims is the verified content of a provider access token.
type TokenClaims struct {
	Subject   string
	Email     string
	Role      string
	ExpiresAt int64
}

// IdentityProvider is the contract against the hosted identity service.
// It owns token persistence; callers never handle refresh tokens directly.
type IdentityProvider interface {
	// AuthorizeURL starts the social login flow for the given provider slug.
	AuthorizeURL(ctx context.Context, in AuthorizeInput) (AuthorizeResult, error)

	// SendMagicLink asks the provider to email a one-time sign-in link.
	SendMagicLink(ctx context.Context, email, redirectTo string) error

	// ExchangeCode completes a PKCE flow begun by AuthorizeURL.
	ExchangeCode(ctx context.Context, code, verifier string) (*domainauth.Session, error)

	// SignInWithPassword authenticates with email and password.
	SignInWithPassword(ctx context.Context, email, password string) (*domainauth.Session, error)

	// SignUp registers an email/password account; metadata becomes the
	// identity's user metadata. When the project requires email
	// confirmation before sign-in, the returned session is nil and the
	// account stays pending until the address is confirmed.
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domainauth.Session, error)

	// Refresh trades a refresh token for a new session.
	Refresh(ctx context.Context, refreshToken string) (*domainauth.Session, error)

	// CurrentSession returns the stored session, refreshing it when stale.
	// Returns ErrNoSession when nothing is stored.
	CurrentSession(ctx context.Context) (*domainauth.Session, error)

	// GetUser fetches the identity behind an access token.
	GetUser(ctx context.Context, accessToken string) (*domainauth.Identity, error)

	// SignOut revokes the session at the provider and clears local storage.
	SignOut(ctx context.Context, accessToken string) error

	// VerifyToken validates a raw JWT and returns its claims.
	VerifyToken(ctx context.Context, raw string) (*TokenClaims, error)

	// OnAuthChange registers a listener for session change events.
	// Events are delivered one at a time in emission order. The returned
	// function removes the listener.
	OnAuthChange(fn func(domainauth.Event)) (unsubscribe func())
}

// ProfileStore persists and retrieves application profiles.
type ProfileStore interface {
	// Get loads a profile by provider user ID. Absence is reported with
	// an error satisfying errors.IsNotFound.
	Get(ctx context.Context, userID string) (*domainauth.Profile, error)

	// Insert creates a profile row. A duplicate insert is reported with
	// an error satisfying errors.IsConflict.
	Insert(ctx context.Context, p domainauth.Profile) error
}

// SnapshotStore persists the partial auth state used for rehydration.
type SnapshotStore interface {
	Save(ctx context.Context, snap domainauth.Snapshot) error
	// Load returns (nil, nil) when no snapshot exists.
	Load(ctx context.Context) (*domainauth.Snapshot, error)
	Clear(ctx context.Context) error
}

// RoleMapper extracts an application role from provider metadata claims.
type RoleMapper interface {
	Map(identity domainauth.Identity) domainauth.Role
}

// ErrorReporter forwards unexpected failures to an external channel.
// It is an optional capability; a nil reporter disables reporting.
type ErrorReporter interface {
	CaptureError(err error, tags map[string]string)
}

// ErrNoSession is returned by CurrentSession when no session is stored.
type noSessionError struct{}

func (noSessionError) Error() string { return "no stored session" }

var ErrNoSession error = noSessionError{}
