// Package devauth provides a config-driven identity provider for local
// development. It short-circuits the hosted provider entirely: any code
// exchanges for the configured identity and tokens are random strings.
package devauth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
	apperrors "github.com/consorcio10demayo/canalero-auth/internal/errors"
	"github.com/consorcio10demayo/canalero-auth/internal/ports"
)

// Config controls the dev auth provider behavior.
type Config struct {
	UserID string
	Email  string
	Nombre string
	Role   domainauth.Role // default ciudadano
	// Password, when set, is required by SignInWithPassword. Empty accepts
	// any non-empty password.
	Password        string
	SessionDuration time.Duration // default 8h when zero
	Now             func() time.Time
}

// Provider implements ports.IdentityProvider for local development.
// Exchange ignores the code and returns the configured identity.
type Provider struct {
	cfg      Config
	identity domainauth.Identity
	now      func() time.Time

	mu        sync.Mutex
	current   *domainauth.Session
	pending   string // email awaiting a magic-link exchange
	listeners []*listener
}

type listener struct {
	fn func(domainauth.Event)
}

var _ ports.IdentityProvider = (*Provider)(nil)

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.UserID == "" {
		return nil, errors.New("dev auth: UserID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	if cfg.Role == "" {
		cfg.Role = domainauth.RoleCiudadano
	}
	if cfg.SessionDuration == 0 {
		cfg.SessionDuration = 8 * time.Hour
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	meta := map[string]any{"rol": string(cfg.Role)}
	if cfg.Nombre != "" {
		meta["full_name"] = cfg.Nombre
	}
	// Dev identities count as email-confirmed so verification-gated
	// screens are reachable locally.
	confirmedAt := now()
	return &Provider{
		cfg: cfg,
		identity: domainauth.Identity{
			ID:               cfg.UserID,
			Email:            cfg.Email,
			EmailConfirmedAt: &confirmedAt,
			UserMetadata:     meta,
		},
		now: now,
	}, nil
}

// AuthorizeURL returns a local callback URL so the UI flow can run without
// a hosted provider.
func (p *Provider) AuthorizeURL(_ context.Context, in ports.AuthorizeInput) (ports.AuthorizeResult, error) {
	if in.RedirectTo == "" {
		return ports.AuthorizeResult{}, apperrors.Validation("redirect URL is required")
	}
	return ports.AuthorizeResult{
		URL:      "/auth/callback?code=dev-" + uuid.NewString(),
		Verifier: uuid.NewString(),
	}, nil
}

// SendMagicLink records the address so the next exchange signs in as it.
func (p *Provider) SendMagicLink(_ context.Context, email, redirectTo string) error {
	if strings.TrimSpace(email) == "" {
		return apperrors.ValidationField("email", "email is required")
	}
	_ = redirectTo
	p.mu.Lock()
	p.pending = email
	p.mu.Unlock()
	return nil
}

// ExchangeCode accepts any non-empty code and signs in the configured
// identity, or the pending magic-link address when one is recorded.
func (p *Provider) ExchangeCode(_ context.Context, code, verifier string) (*domainauth.Session, error) {
	if code == "" {
		return nil, apperrors.Validation("authorization code is required")
	}
	_ = verifier
	return p.signIn(domainauth.EventSignedIn), nil
}

func (p *Provider) SignInWithPassword(_ context.Context, email, password string) (*domainauth.Session, error) {
	if email == "" || password == "" {
		return nil, apperrors.Validation("email and password are required")
	}
	if !strings.EqualFold(email, p.cfg.Email) {
		return nil, apperrors.Provider("Invalid login credentials")
	}
	if p.cfg.Password != "" && password != p.cfg.Password {
		return nil, apperrors.Provider("Invalid login credentials")
	}
	return p.signIn(domainauth.EventSignedIn), nil
}

// SignUp registers any new address and signs it in immediately; dev
// projects never hold accounts for email confirmation. The configured
// address counts as already registered.
func (p *Provider) SignUp(_ context.Context, email, password string, metadata map[string]any) (*domainauth.Session, error) {
	if email == "" || password == "" {
		return nil, apperrors.Validation("email and password are required")
	}
	if strings.EqualFold(email, p.cfg.Email) {
		return nil, apperrors.Provider("User already registered")
	}
	_ = metadata
	p.mu.Lock()
	p.pending = email
	p.mu.Unlock()
	return p.signIn(domainauth.EventSignedIn), nil
}

func (p *Provider) Refresh(_ context.Context, refreshToken string) (*domainauth.Session, error) {
	p.mu.Lock()
	if p.current == nil || refreshToken == "" || refreshToken != p.current.RefreshToken {
		p.mu.Unlock()
		return nil, apperrors.Unauthorized("invalid refresh token")
	}
	p.mu.Unlock()
	return p.signIn(domainauth.EventTokenRefreshed), nil
}

func (p *Provider) CurrentSession(_ context.Context) (*domainauth.Session, error) {
	p.mu.Lock()
	sess := p.current
	p.mu.Unlock()
	if sess == nil {
		return nil, ports.ErrNoSession
	}
	if sess.Expired(p.now()) {
		// Dev sessions renew silently so a long pause never logs you out.
		return p.signIn(domainauth.EventTokenRefreshed), nil
	}
	out := *sess
	return &out, nil
}

func (p *Provider) GetUser(_ context.Context, accessToken string) (*domainauth.Identity, error) {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	if current == nil || accessToken != current.AccessToken {
		return nil, apperrors.Unauthorized("invalid access token")
	}
	out := p.identity
	return &out, nil
}

func (p *Provider) SignOut(_ context.Context, _ string) error {
	p.mu.Lock()
	p.current = nil
	p.pending = ""
	p.mu.Unlock()
	p.emit(domainauth.Event{Type: domainauth.EventSignedOut})
	return nil
}

func (p *Provider) VerifyToken(_ context.Context, token string) (*ports.TokenClaims, error) {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	if current == nil || token != current.AccessToken {
		return nil, apperrors.Unauthorized("invalid access token")
	}
	if current.Expired(p.now()) {
		return nil, apperrors.Unauthorized("token expired")
	}
	return &ports.TokenClaims{
		Subject:   p.cfg.UserID,
		Email:     p.cfg.Email,
		Role:      string(p.cfg.Role),
		ExpiresAt: current.ExpiresAt,
	}, nil
}

func (p *Provider) OnAuthChange(fn func(domainauth.Event)) func() {
	l := &listener{fn: fn}
	p.mu.Lock()
	p.listeners = append(p.listeners, l)
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, cur := range p.listeners {
			if cur == l {
				p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
				return
			}
		}
	}
}

func (p *Provider) signIn(eventType domainauth.EventType) *domainauth.Session {
	now := p.now()
	identity := p.identity

	p.mu.Lock()
	if p.pending != "" {
		identity.Email = p.pending
		p.pending = ""
	}
	sess := domainauth.Session{
		AccessToken:  "dev-access-" + uuid.NewString(),
		TokenType:    "bearer",
		ExpiresIn:    int64(p.cfg.SessionDuration / time.Second),
		ExpiresAt:    now.Add(p.cfg.SessionDuration).Unix(),
		RefreshToken: "dev-refresh-" + uuid.NewString(),
		User:         identity,
	}
	p.current = &sess
	p.mu.Unlock()

	evCopy := sess
	p.emit(domainauth.Event{Type: eventType, Session: &evCopy})

	out := sess
	return &out
}

// emit calls listeners outside the lock so a handler may call back into
// the provider.
func (p *Provider) emit(ev domainauth.Event) {
	p.mu.Lock()
	snapshot := make([]*listener, len(p.listeners))
	copy(snapshot, p.listeners)
	p.mu.Unlock()

	for _, l := range snapshot {
		l.fn(ev)
	}
}
