package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
	"github.com/consorcio10demayo/canalero-auth/internal/observability/statsd"
)

const (
	// DefaultTokenTTL bounds how long a cached token is reused.
	DefaultTokenTTL = 5 * time.Minute
	// DefaultTokenSafetyMargin is how far ahead of the JWT expiry the
	// cache stops serving a token.
	DefaultTokenSafetyMargin = 30 * time.Second
)

// TokenSource yields fresh access tokens and announces auth state changes.
// *SessionManager satisfies it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Subscribe(fn func(domainauth.AuthState)) func()
}

// TokenCacheOptions groups dependencies for TokenCache.
type TokenCacheOptions struct {
	Source       TokenSource      // Required: token origin, usually the session manager
	TTL          time.Duration    // Optional: fixed reuse window (default 5m)
	SafetyMargin time.Duration    // Optional: slack before JWT expiry (default 30s)
	Metrics      statsd.Sink      // Optional: metrics sink
	Logger       *slog.Logger     // Optional: structured logger
	Now          func() time.Time // Optional: clock override for tests
}

// TokenCache holds a single verified access token so request paths avoid a
// provider round-trip per call. The slot empties the moment the source
// reports a signed-out state or a refreshed session with a rotated token.
type TokenCache struct {
	source       TokenSource
	ttl          time.Duration
	safetyMargin time.Duration
	metrics      statsd.Sink
	logger       *slog.Logger
	now          func() time.Time

	mu          sync.Mutex
	slot        domainauth.CachedToken
	unsubscribe func()

	group singleflight.Group
}

// NewTokenCache constructs the cache and subscribes to the source so a
// sign-out or token refresh immediately drops the cached token.
func NewTokenCache(opts TokenCacheOptions) (*TokenCache, error) {
	if opts.Source == nil {
		return nil, errors.New("token source is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	margin := opts.SafetyMargin
	if margin <= 0 {
		margin = DefaultTokenSafetyMargin
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &TokenCache{
		source:       opts.Source,
		ttl:          ttl,
		safetyMargin: margin,
		metrics:      opts.Metrics,
		logger:       logger,
		now:          now,
	}
	c.unsubscribe = opts.Source.Subscribe(c.observeState)
	return c, nil
}

// observeState empties the slot when the source signs out or when a token
// refresh rotates the session's access token past the cached one. Without
// the rotation check a refreshed session would keep serving the pre-refresh
// token until the fixed TTL lapsed.
func (c *TokenCache) observeState(state domainauth.AuthState) {
	if !state.Authenticated() {
		c.Invalidate()
		return
	}
	c.mu.Lock()
	if c.slot.Token != "" && state.Session.AccessToken != c.slot.Token {
		c.slot = domainauth.CachedToken{}
	}
	c.mu.Unlock()
}

// Close detaches the cache from the source.
func (c *TokenCache) Close() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Get returns the cached token when it is still usable at the given instant.
func (c *TokenCache) Get(now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.slot.Valid(now) {
		return "", false
	}
	return c.slot.Token, true
}

// Put stores a token. The slot expires at the earlier of now+TTL and the
// JWT's own expiry minus the safety margin; tokens without a readable
// expiry claim use the fixed TTL alone.
func (c *TokenCache) Put(token string, now time.Time) {
	if token == "" {
		return
	}
	expiry := now.Add(c.ttl)
	if jwtExp, ok := tokenExpiry(token); ok {
		if capped := jwtExp.Add(-c.safetyMargin); capped.Before(expiry) {
			expiry = capped
		}
	}

	c.mu.Lock()
	c.slot = domainauth.CachedToken{Token: token, ExpiresAt: expiry}
	c.mu.Unlock()
}

// Invalidate empties the slot.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.slot = domainauth.CachedToken{}
	c.mu.Unlock()
}

// Fetch returns a usable access token, consulting the cache first and
// falling back to the source. Concurrent callers on a cold cache share a
// single source call.
func (c *TokenCache) Fetch(ctx context.Context) (string, error) {
	if token, ok := c.Get(c.now()); ok {
		c.count("auth.token.cache.hit")
		return token, nil
	}
	c.count("auth.token.cache.miss")

	v, err, _ := c.group.Do("token", func() (any, error) {
		// A waiter may arrive just after a previous flight filled the slot.
		if token, ok := c.Get(c.now()); ok {
			return token, nil
		}
		// The shared result must not die with the first caller's context.
		token, err := c.source.AccessToken(context.WithoutCancel(ctx))
		if err != nil {
			return "", err
		}
		c.Put(token, c.now())
		return token, nil
	})
	if err != nil {
		c.logger.Warn("access token fetch failed", "error", err)
		return "", err
	}
	return v.(string), nil
}

func (c *TokenCache) count(name string) {
	if c.metrics == nil {
		return
	}
	c.metrics.Count(name, 1, nil)
}

// tokenExpiry reads the exp claim without verifying the signature. The
// cache only needs the deadline; verification stays with the provider.
func tokenExpiry(raw string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
