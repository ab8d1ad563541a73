package devauth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
	apperrors "github.com/consorcio10demayo/canalero-auth/internal/errors"
	"github.com/consorcio10demayo/canalero-auth/internal/ports"
)

func newTestProvider(t *testing.T, mutate ...func(*Config)) *Provider {
	t.Helper()
	cfg := Config{
		UserID: "dev-user-1",
		Email:  "dev@consorcio.local",
		Nombre: "Dev Vecino",
		Role:   domainauth.RoleOperador,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	p, err := NewProvider(cfg)
	require.NoError(t, err)
	return p
}

func TestNewProvider_Validation(t *testing.T) {
	_, err := NewProvider(Config{Email: "dev@consorcio.local"})
	assert.Error(t, err)

	_, err = NewProvider(Config{UserID: "dev-user-1"})
	assert.Error(t, err)
}

func TestProvider_AuthorizeURL(t *testing.T) {
	p := newTestProvider(t)

	res, err := p.AuthorizeURL(context.Background(), ports.AuthorizeInput{RedirectTo: "/"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.URL, "/auth/callback?code=dev-"))
	assert.NotEmpty(t, res.Verifier)

	_, err = p.AuthorizeURL(context.Background(), ports.AuthorizeInput{})
	assert.True(t, apperrors.IsValidation(err))
}

func TestProvider_SignInCycle(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	var events []domainauth.EventType
	unsubscribe := p.OnAuthChange(func(ev domainauth.Event) {
		events = append(events, ev.Type)
	})
	defer unsubscribe()

	sess, err := p.ExchangeCode(ctx, "dev-anything", "verifier")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.True(t, strings.HasPrefix(sess.AccessToken, "dev-access-"))
	assert.Equal(t, "dev@consorcio.local", sess.User.Email)

	current, err := p.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess.AccessToken, current.AccessToken)

	identity, err := p.GetUser(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "dev-user-1", identity.ID)
	assert.Equal(t, "Dev Vecino", identity.DisplayName())

	claims, err := p.VerifyToken(ctx, sess.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "dev-user-1", claims.Subject)
	assert.Equal(t, "operador", claims.Role)

	require.NoError(t, p.SignOut(ctx, sess.AccessToken))
	_, err = p.CurrentSession(ctx)
	assert.ErrorIs(t, err, ports.ErrNoSession)

	assert.Equal(t, []domainauth.EventType{domainauth.EventSignedIn, domainauth.EventSignedOut}, events)
}

func TestProvider_ExchangeCode_EmptyCode(t *testing.T) {
	p := newTestProvider(t)

	_, err := p.ExchangeCode(context.Background(), "", "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestProvider_SignInWithPassword(t *testing.T) {
	p := newTestProvider(t, func(cfg *Config) { cfg.Password = "s3cret" })
	ctx := context.Background()

	_, err := p.SignInWithPassword(ctx, "dev@consorcio.local", "wrong")
	assert.True(t, apperrors.IsProvider(err))

	_, err = p.SignInWithPassword(ctx, "otra@example.com", "s3cret")
	assert.True(t, apperrors.IsProvider(err))

	sess, err := p.SignInWithPassword(ctx, "DEV@consorcio.local", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.AccessToken)
}

func TestProvider_SignUp(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	sess, err := p.SignUp(ctx, "nueva@example.com", "s3cret", map[string]any{"full_name": "Nueva Vecina"})
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, "nueva@example.com", sess.User.Email)

	_, err = p.SignUp(ctx, "nueva@example.com", "", nil)
	assert.True(t, apperrors.IsValidation(err))

	// The configured identity already owns its address.
	_, err = p.SignUp(ctx, "DEV@consorcio.local", "s3cret", nil)
	assert.True(t, apperrors.IsProvider(err))
	assert.Equal(t, apperrors.MsgAlreadySignedUp, apperrors.UserMessage(err))
}

func TestProvider_MagicLinkPendingEmail(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	require.NoError(t, p.SendMagicLink(ctx, "invitada@example.com", "/panel"))

	sess, err := p.ExchangeCode(ctx, "dev-code", "")
	require.NoError(t, err)
	assert.Equal(t, "invitada@example.com", sess.User.Email)

	// The pending address is consumed by the exchange.
	sess, err = p.ExchangeCode(ctx, "dev-code", "")
	require.NoError(t, err)
	assert.Equal(t, "dev@consorcio.local", sess.User.Email)
}

func TestProvider_SendMagicLink_EmptyEmail(t *testing.T) {
	p := newTestProvider(t)

	err := p.SendMagicLink(context.Background(), "  ", "/")
	assert.True(t, apperrors.IsValidation(err))
}

func TestProvider_Refresh(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	sess, err := p.ExchangeCode(ctx, "dev-code", "")
	require.NoError(t, err)

	refreshed, err := p.Refresh(ctx, sess.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, sess.AccessToken, refreshed.AccessToken)
	assert.NotEqual(t, sess.RefreshToken, refreshed.RefreshToken)

	_, err = p.Refresh(ctx, "bogus")
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestProvider_CurrentSession_RenewsExpired(t *testing.T) {
	clock := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	p := newTestProvider(t, func(cfg *Config) {
		cfg.SessionDuration = time.Hour
		cfg.Now = func() time.Time { return clock }
	})
	ctx := context.Background()

	sess, err := p.ExchangeCode(ctx, "dev-code", "")
	require.NoError(t, err)

	clock = clock.Add(2 * time.Hour)

	current, err := p.CurrentSession(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, sess.AccessToken, current.AccessToken)
	assert.False(t, current.Expired(clock))
}

func TestProvider_VerifyToken_WrongToken(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	_, err := p.VerifyToken(ctx, "nope")
	assert.True(t, apperrors.IsUnauthorized(err))

	_, err = p.GetUser(ctx, "nope")
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestProvider_Unsubscribe(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	var calls int
	unsubscribe := p.OnAuthChange(func(domainauth.Event) { calls++ })
	unsubscribe()

	_, err := p.ExchangeCode(ctx, "dev-code", "")
	require.NoError(t, err)
	assert.Zero(t, calls)
}
