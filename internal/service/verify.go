package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
	apperrors "github.com/consorcio10demayo/canalero-auth/internal/errors"
	"github.com/consorcio10demayo/canalero-auth/internal/observability/statsd"
	"github.com/consorcio10demayo/canalero-auth/internal/ports"
)

// FlowResult is the uniform outcome of verification flow operations.
// Message carries the user-facing Spanish text; Err the technical cause.
// RedirectURL is set by StartGoogle with the provider authorize URL.
type FlowResult struct {
	OK          bool
	RedirectURL string
	Err         error
	Message     string
}

// VerificationFlowOptions groups dependencies for VerificationFlow.
type VerificationFlowOptions struct {
	Provider     ports.IdentityProvider // Required: identity provider client
	Manager      *SessionManager        // Required: session adoption target
	Policy       *AccessPolicy          // Required: verified-state source
	FrontendURL  string                 // Required: public origin of the citizen app
	CallbackPath string                 // Optional: callback route on the frontend, default /auth/callback
	Metrics      statsd.Sink            // Optional: metrics sink
	Logger       *slog.Logger           // Optional: structured logger
}

// VerificationFlow drives contact verification for public forms: Google
// OAuth or a magic-link email. Verified status is never set here; it is
// derived from the session the manager observes once the flow completes.
type VerificationFlow struct {
	provider     ports.IdentityProvider
	manager      *SessionManager
	policy       *AccessPolicy
	frontend     *url.URL
	callbackPath string
	metrics      statsd.Sink
	logger       *slog.Logger

	mu          sync.Mutex
	state       domainauth.VerificationState
	verifier    string
	onVerified  func(email, name string)
	fired       bool
	unsubscribe func()
}

// NewVerificationFlow constructs the flow and watches the manager so the
// verified callback fires as soon as a confirmed session lands.
func NewVerificationFlow(opts VerificationFlowOptions) (*VerificationFlow, error) {
	if opts.Provider == nil {
		return nil, errors.New("identity provider is required")
	}
	if opts.Manager == nil {
		return nil, errors.New("session manager is required")
	}
	if opts.Policy == nil {
		return nil, errors.New("access policy is required")
	}
	frontend, err := url.Parse(strings.TrimSpace(opts.FrontendURL))
	if err != nil || !frontend.IsAbs() || frontend.Hostname() == "" {
		return nil, fmt.Errorf("frontend URL must be absolute: %q", opts.FrontendURL)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	callbackPath := strings.TrimSpace(opts.CallbackPath)
	if callbackPath == "" {
		callbackPath = "/auth/callback"
	}
	if !strings.HasPrefix(callbackPath, "/") {
		callbackPath = "/" + callbackPath
	}

	f := &VerificationFlow{
		provider:     opts.Provider,
		manager:      opts.Manager,
		policy:       opts.Policy,
		frontend:     frontend,
		callbackPath: callbackPath,
		metrics:      opts.Metrics,
		logger:       logger,
		state:        domainauth.VerificationState{Method: domainauth.MethodGoogle},
	}
	f.unsubscribe = opts.Manager.Subscribe(func(domainauth.AuthState) {
		f.maybeFireVerified()
	})
	return f, nil
}

// Close detaches the flow from the manager.
func (f *VerificationFlow) Close() {
	f.mu.Lock()
	unsub := f.unsubscribe
	f.unsubscribe = nil
	f.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// State returns the current verification state.
func (f *VerificationFlow) State() domainauth.VerificationState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// StartGoogle builds the Google OAuth redirect. The browser must be sent
// to RedirectURL; the provider returns it to the frontend callback, which
// completes the exchange with CompleteCode.
func (f *VerificationFlow) StartGoogle(ctx context.Context, returnTo string) FlowResult {
	attempt := uuid.NewString()

	redirectTo, err := f.callbackURL(returnTo)
	if err != nil {
		f.count("verify.google.rejected")
		f.logger.Warn("rejected return URL", "attempt", attempt, "error", err)
		return FlowResult{OK: false, Err: err, Message: apperrors.MsgGeneric}
	}

	f.mu.Lock()
	f.state.Method = domainauth.MethodGoogle
	f.state.Loading = true
	f.mu.Unlock()

	res, err := f.provider.AuthorizeURL(ctx, ports.AuthorizeInput{
		Provider:   "google",
		RedirectTo: redirectTo,
	})
	if err != nil {
		f.mu.Lock()
		f.state.Loading = false
		f.mu.Unlock()
		f.count("verify.google.error")
		return f.fail("start_google", attempt, err)
	}

	f.mu.Lock()
	f.state.Loading = false
	f.verifier = res.Verifier
	f.mu.Unlock()

	f.count("verify.google.started")
	f.logger.Info("google verification started", "attempt", attempt)
	return FlowResult{OK: true, RedirectURL: res.URL}
}

// SendMagicLink emails a one-time sign-in link. The address is validated
// locally first; malformed input never reaches the provider.
func (f *VerificationFlow) SendMagicLink(ctx context.Context, email string) FlowResult {
	attempt := uuid.NewString()
	email = strings.TrimSpace(email)

	if err := validation.Validate(email, validation.Required, validation.Length(6, 254), is.Email); err != nil {
		f.count("verify.magiclink.invalid")
		return FlowResult{
			OK:      false,
			Err:     apperrors.ValidationField("email", "invalid email address"),
			Message: apperrors.MsgInvalidEmail,
		}
	}

	f.mu.Lock()
	f.state.Method = domainauth.MethodEmail
	f.state.Loading = true
	f.mu.Unlock()

	redirectTo, err := f.callbackURL("")
	if err != nil {
		f.mu.Lock()
		f.state.Loading = false
		f.state.Method = domainauth.MethodGoogle
		f.mu.Unlock()
		return f.fail("send_magic_link", attempt, err)
	}

	if err := f.provider.SendMagicLink(ctx, email, redirectTo); err != nil {
		f.mu.Lock()
		f.state.Loading = false
		f.state.Method = domainauth.MethodGoogle
		f.mu.Unlock()
		if apperrors.IsRateLimited(err) {
			f.count("verify.magiclink.ratelimited")
			f.logger.Warn("magic link rate limited", "attempt", attempt)
			return FlowResult{OK: false, Err: err, Message: apperrors.MsgRateLimited}
		}
		f.count("verify.magiclink.error")
		return f.fail("send_magic_link", attempt, err)
	}

	f.mu.Lock()
	f.state.Loading = false
	f.state.MagicLinkSent = true
	f.state.MagicLinkEmail = email
	f.mu.Unlock()

	f.count("verify.magiclink.sent")
	f.logger.Info("magic link sent", "attempt", attempt)
	return FlowResult{OK: true, Message: apperrors.MsgMagicLinkSent}
}

// CompleteCode finishes the OAuth return trip: PKCE exchange, then session
// adoption through the manager, the same transition a SIGNED_IN event runs.
func (f *VerificationFlow) CompleteCode(ctx context.Context, code string) FlowResult {
	attempt := uuid.NewString()
	code = strings.TrimSpace(code)
	if code == "" {
		return FlowResult{
			OK:      false,
			Err:     apperrors.Validation("authorization code is required"),
			Message: apperrors.MsgGeneric,
		}
	}

	f.mu.Lock()
	f.state.Loading = true
	verifier := f.verifier
	f.mu.Unlock()

	sess, err := f.provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		f.mu.Lock()
		f.state.Loading = false
		f.mu.Unlock()
		f.count("verify.exchange.error")
		return f.fail("complete_code", attempt, err)
	}

	adoptErr := f.manager.AdoptSession(ctx, sess)

	f.mu.Lock()
	f.state.Loading = false
	f.verifier = ""
	f.mu.Unlock()

	if adoptErr != nil {
		return f.fail("complete_code", attempt, adoptErr)
	}
	f.count("verify.exchange.ok")
	return FlowResult{OK: true}
}

// OnVerified registers a callback fired at most once per transition into
// the verified state, with the verified email and best-effort display name.
// ResetFlow and signing out re-arm it. When the user is already verified at
// registration time the callback fires immediately, so a slow-mounting form
// never misses the signal. The callback runs on the manager's notification
// path; call back into the manager or provider from a new goroutine only.
func (f *VerificationFlow) OnVerified(fn func(email, name string)) {
	f.mu.Lock()
	f.onVerified = fn
	f.fired = false
	f.mu.Unlock()
	f.maybeFireVerified()
}

// Logout signs the user out through the manager. The local state clears
// either way, so a provider failure is logged and reported as success.
func (f *VerificationFlow) Logout(ctx context.Context) FlowResult {
	if err := f.manager.SignOut(ctx); err != nil {
		f.count("verify.logout.degraded")
		f.logger.Warn("provider sign-out failed, local session cleared", "error", err)
	} else {
		f.count("verify.logout.ok")
	}
	return FlowResult{OK: true, Message: apperrors.MsgSignedOut}
}

// ResetFlow returns to the method-selection step and re-arms OnVerified.
func (f *VerificationFlow) ResetFlow() {
	f.mu.Lock()
	f.state = domainauth.VerificationState{Method: domainauth.MethodGoogle}
	f.verifier = ""
	f.fired = false
	f.mu.Unlock()
}

func (f *VerificationFlow) maybeFireVerified() {
	id := f.policy.VerifiedIdentity()

	f.mu.Lock()
	if id == nil {
		// Leaving the verified state re-arms the callback for the next
		// transition into it.
		f.fired = false
		f.mu.Unlock()
		return
	}
	fn := f.onVerified
	if fn == nil || f.fired {
		f.mu.Unlock()
		return
	}
	f.fired = true
	f.mu.Unlock()
	fn(id.Email, id.DisplayName())
}

// callbackURL builds the frontend callback carrying the page to return to.
// An absolute returnTo must share its registrable domain with the frontend
// origin; anything else is rejected as an open redirect.
func (f *VerificationFlow) callbackURL(returnTo string) (string, error) {
	target := f.frontend
	if strings.TrimSpace(returnTo) != "" {
		parsed, err := url.Parse(strings.TrimSpace(returnTo))
		if err != nil {
			return "", apperrors.Validation("malformed return URL")
		}
		if parsed.IsAbs() {
			if !sameSite(f.frontend, parsed) {
				return "", apperrors.Validationf("return URL outside %s", f.frontend.Hostname())
			}
			target = parsed
		} else {
			target = f.frontend.ResolveReference(parsed)
		}
	}

	callback := *f.frontend
	callback.Path = strings.TrimRight(callback.Path, "/") + f.callbackPath
	q := url.Values{}
	q.Set("return_to", target.String())
	q.Set("verified", "1")
	callback.RawQuery = q.Encode()
	return callback.String(), nil
}

func (f *VerificationFlow) fail(operation, attempt string, err error) FlowResult {
	f.logger.Warn("verification step failed", "operation", operation, "attempt", attempt, "error", err)
	return FlowResult{OK: false, Err: err, Message: apperrors.UserMessage(err)}
}

func (f *VerificationFlow) count(name string) {
	if f.metrics == nil {
		return
	}
	f.metrics.Count(name, 1, nil)
}

// sameSite reports whether both URLs resolve to the same registrable
// domain (eTLD+1). Hosts without one, localhost included, must match
// exactly.
func sameSite(a, b *url.URL) bool {
	ha, errA := publicsuffix.EffectiveTLDPlusOne(a.Hostname())
	hb, errB := publicsuffix.EffectiveTLDPlusOne(b.Hostname())
	if errA != nil || errB != nil {
		return strings.EqualFold(a.Hostname(), b.Hostname())
	}
	return strings.EqualFold(ha, hb)
}
