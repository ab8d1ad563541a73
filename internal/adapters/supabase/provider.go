package supabase

// Package supabase implements the identity provider port against a hosted
// Supabase Auth (GoTrue) project.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
	apperrors "github.com/consorcio10demayo/canalero-auth/internal/errors"
	"github.com/consorcio10demayo/canalero-auth/internal/ports"
)

// maxResponseBytes caps how much of a provider response body is read.
const maxResponseBytes = 1 << 20

// Config holds settings for the GoTrue client.
type Config struct {
	// ProjectURL is the Supabase project base URL, e.g. https://xyz.supabase.co.
	ProjectURL string
	// APIKey is the publishable (or legacy anon) key sent on every request.
	APIKey string
	// JWTSecret verifies legacy HS256 access tokens. Optional; projects on
	// asymmetric keys are covered by the JWKS endpoint.
	JWTSecret string
	// UsePKCE attaches a PKCE challenge to OAuth authorize URLs.
	UsePKCE bool
	// RefreshSkew refreshes sessions this long before their actual expiry.
	RefreshSkew time.Duration

	HTTPClient *http.Client     // Optional, defaults to a 10s-timeout client
	Storage    TokenStorage     // Optional, defaults to in-memory storage
	Logger     *slog.Logger     // Optional, defaults to slog.Default()
	Now        func() time.Time // Optional clock override, for tests
}

// Provider implements ports.IdentityProvider against the GoTrue HTTP API.
type Provider struct {
	baseURL     string
	apiKey      string
	usePKCE     bool
	refreshSkew time.Duration

	client   *http.Client
	storage  TokenStorage
	verifier *tokenVerifier
	hub      *eventHub
	logger   *slog.Logger
	now      func() time.Time

	// refreshGroup collapses concurrent refreshes of the same token into
	// one request; GoTrue rotates refresh tokens on use.
	refreshGroup singleflight.Group
}

var _ ports.IdentityProvider = (*Provider)(nil)

// NewProvider creates a GoTrue client for the configured project.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.ProjectURL == "" {
		return nil, errors.New("project URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	storage := cfg.Storage
	if storage == nil {
		storage = NewMemoryTokenStorage()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	refreshSkew := cfg.RefreshSkew
	if refreshSkew <= 0 {
		refreshSkew = time.Minute
	}

	baseURL := strings.TrimRight(cfg.ProjectURL, "/") + "/auth/v1"

	return &Provider{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		usePKCE:     cfg.UsePKCE,
		refreshSkew: refreshSkew,
		client:      httpClient,
		storage:     storage,
		verifier:    newTokenVerifier(baseURL+"/.well-known/jwks.json", cfg.JWTSecret, httpClient, now),
		hub:         newEventHub(),
		logger:      logger,
		now:         now,
	}, nil
}

// Close stops event delivery. Registered listeners receive nothing after it
// returns.
func (p *Provider) Close() {
	p.hub.close()
}

// AuthorizeURL builds the provider authorization URL for a social login.
// No network call is made; GoTrue redirects the browser from this URL to
// the upstream provider.
func (p *Provider) AuthorizeURL(_ context.Context, in ports.AuthorizeInput) (ports.AuthorizeResult, error) {
	if in.RedirectTo == "" {
		return ports.AuthorizeResult{}, apperrors.Validation("redirect URL is required")
	}
	providerSlug := in.Provider
	if providerSlug == "" {
		providerSlug = "google"
	}

	q := url.Values{}
	q.Set("provider", providerSlug)
	q.Set("redirect_to", in.RedirectTo)
	if in.Scopes != "" {
		q.Set("scopes", in.Scopes)
	}

	var res ports.AuthorizeResult
	if p.usePKCE {
		verifier := oauth2.GenerateVerifier()
		q.Set("code_challenge", oauth2.S256ChallengeFromVerifier(verifier))
		q.Set("code_challenge_method", "s256")
		res.Verifier = verifier
	}
	res.URL = p.baseURL + "/authorize?" + q.Encode()
	return res, nil
}

// SendMagicLink asks GoTrue to email a one-time sign-in link. Unknown
// addresses get an account created on first use.
func (p *Provider) SendMagicLink(ctx context.Context, email, redirectTo string) error {
	if email == "" {
		return apperrors.ValidationField("email", "email is required")
	}

	q := url.Values{}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	body := map[string]any{
		"email":       email,
		"create_user": true,
	}
	return p.do(ctx, http.MethodPost, "/otp", q, body, "", nil)
}

// ExchangeCode completes a PKCE flow with the code from the callback URL.
func (p *Provider) ExchangeCode(ctx context.Context, code, verifier string) (*domainauth.Session, error) {
	if code == "" {
		return nil, apperrors.Validation("authorization code is required")
	}
	return p.grant(ctx, "pkce", map[string]any{
		"auth_code":     code,
		"code_verifier": verifier,
	}, domainauth.EventSignedIn)
}

// SignInWithPassword authenticates with email and password credentials.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*domainauth.Session, error) {
	if email == "" || password == "" {
		return nil, apperrors.Validation("email and password are required")
	}
	return p.grant(ctx, "password", map[string]any{
		"email":    email,
		"password": password,
	}, domainauth.EventSignedIn)
}

// SignUp registers an email/password account. Projects with autoconfirm on
// answer with a full session, which is installed like any sign-in; projects
// requiring confirmation answer with a bare user object, and no session
// exists until the address is confirmed.
func (p *Provider) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domainauth.Session, error) {
	if email == "" || password == "" {
		return nil, apperrors.Validation("email and password are required")
	}
	body := map[string]any{
		"email":    email,
		"password": password,
	}
	if len(metadata) > 0 {
		body["data"] = metadata
	}

	// The Session and Identity JSON tags are disjoint, so one decode covers
	// both response shapes.
	var res struct {
		domainauth.Session
		domainauth.Identity
	}
	if err := p.do(ctx, http.MethodPost, "/signup", nil, body, "", &res); err != nil {
		return nil, err
	}
	if res.Session.AccessToken == "" {
		p.logger.Info("signup pending email confirmation", "user_id", res.Identity.ID)
		return nil, nil
	}

	sess := res.Session
	p.normalize(&sess)
	p.storage.Store(&sess)
	cp := sess
	p.hub.emit(domainauth.Event{Type: domainauth.EventSignedIn, Session: &cp})
	return &sess, nil
}

// Refresh trades a refresh token for a new session. GoTrue rotates the
// refresh token, so the stored session is replaced.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*domainauth.Session, error) {
	if refreshToken == "" {
		return nil, apperrors.Validation("refresh token is required")
	}
	return p.grant(ctx, "refresh_token", map[string]any{
		"refresh_token": refreshToken,
	}, domainauth.EventTokenRefreshed)
}

// CurrentSession returns the stored session, refreshing it when it is
// within the skew window of expiry. When a refresh fails but the current
// token is still valid, the current token is served and the failure logged.
func (p *Provider) CurrentSession(ctx context.Context) (*domainauth.Session, error) {
	s := p.storage.Load()
	if s == nil {
		return nil, ports.ErrNoSession
	}

	now := p.now()
	if s.RefreshToken == "" || !s.ExpiresWithin(now, p.refreshSkew) {
		return s, nil
	}

	res, err, _ := p.refreshGroup.Do(s.RefreshToken, func() (any, error) {
		return p.Refresh(ctx, s.RefreshToken)
	})
	if err != nil {
		if !s.Expired(now) {
			p.logger.Warn("session refresh failed, serving current token",
				"expires_at", s.ExpiresAt,
				"error", err)
			return s, nil
		}
		return nil, err
	}

	out := *(res.(*domainauth.Session))
	return &out, nil
}

// GetUser fetches the identity behind an access token.
func (p *Provider) GetUser(ctx context.Context, accessToken string) (*domainauth.Identity, error) {
	if accessToken == "" {
		return nil, apperrors.Unauthorized("access token is required")
	}
	var ident domainauth.Identity
	if err := p.do(ctx, http.MethodGet, "/user", nil, nil, accessToken, &ident); err != nil {
		return nil, err
	}
	return &ident, nil
}

// SignOut revokes the session server-side and clears local storage. Local
// state clears regardless of the revoke outcome.
func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	p.storage.Clear()
	defer p.hub.emit(domainauth.Event{Type: domainauth.EventSignedOut})

	if accessToken == "" {
		return nil
	}

	err := p.do(ctx, http.MethodPost, "/logout", nil, nil, accessToken, nil)
	if err == nil {
		return nil
	}
	// A dead token means the server already forgot the session.
	if apperrors.IsUnauthorized(err) || apperrors.IsNotFound(err) {
		return nil
	}
	return err
}

// VerifyToken validates a raw JWT and returns its claims.
func (p *Provider) VerifyToken(ctx context.Context, raw string) (*ports.TokenClaims, error) {
	if raw == "" {
		return nil, apperrors.Unauthorized("token is required")
	}
	return p.verifier.Verify(ctx, raw)
}

// OnAuthChange registers a listener for session change events.
func (p *Provider) OnAuthChange(fn func(domainauth.Event)) func() {
	return p.hub.subscribe(fn)
}

// grant posts to the token endpoint and installs the resulting session.
func (p *Provider) grant(ctx context.Context, grantType string, body map[string]any, event domainauth.EventType) (*domainauth.Session, error) {
	q := url.Values{}
	q.Set("grant_type", grantType)

	var sess domainauth.Session
	if err := p.do(ctx, http.MethodPost, "/token", q, body, "", &sess); err != nil {
		return nil, err
	}
	if sess.AccessToken == "" {
		return nil, apperrors.Provider("token response missing access_token")
	}
	p.normalize(&sess)

	p.storage.Store(&sess)
	cp := sess
	p.hub.emit(domainauth.Event{Type: event, Session: &cp})
	return &sess, nil
}

// normalize fills fields GoTrue leaves implicit.
func (p *Provider) normalize(s *domainauth.Session) {
	if s.TokenType == "" {
		s.TokenType = "bearer"
	}
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = p.now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
}

// do performs one HTTP call against the auth API. Every request carries the
// apikey header; bearer adds an Authorization header when non-empty.
func (p *Provider) do(ctx context.Context, method, path string, q url.Values, body any, bearer string, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode request body")
		}
		rd = bytes.NewReader(buf)
	}

	u := p.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "build request")
	}
	req.Header.Set("apikey", p.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return mapTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return mapTransportError(err)
	}
	if resp.StatusCode >= 400 {
		return apiError(resp.StatusCode, data)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeProvider, "decode provider response")
		}
	}
	return nil
}

// apiErrorBody covers the error shapes GoTrue returns. Newer endpoints use
// error_code plus msg; the OAuth-style ones use error plus error_description.
type apiErrorBody struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorSlug        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// apiError maps a non-2xx response to an application error. Domain errors
// keep the provider's message; infrastructure failures do not, so transport
// detail never reaches users.
func apiError(status int, body []byte) error {
	var eb apiErrorBody
	_ = json.Unmarshal(body, &eb)

	msg := firstNonEmpty(eb.Msg, eb.Message, eb.ErrorDescription, eb.ErrorSlug)
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case status == http.StatusTooManyRequests || strings.Contains(eb.ErrorCode, "rate_limit"):
		return apperrors.RateLimited(msg)
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(msg)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(msg)
	case status == http.StatusNotFound:
		return apperrors.NotFound(msg)
	case status >= 500:
		return apperrors.Unavailable(msg)
	default:
		return apperrors.Provider(msg)
	}
}

// mapTransportError classifies errors from the HTTP client itself.
func mapTransportError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.ErrCodeCanceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "request timed out")
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return apperrors.Wrap(err, apperrors.ErrCodeTimeout, "request timed out")
	}
	return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "identity provider unreachable")
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
