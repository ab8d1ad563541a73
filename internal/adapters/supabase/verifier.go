package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/consorcio10demayo/canalero-auth/internal/errors"
	"github.com/consorcio10demayo/canalero-auth/internal/ports"
)

// tokenVerifier validates access tokens locally, without a round trip per
// check. Projects on asymmetric signing keys are verified against the
// published JWKS; projects still on the legacy shared secret fall back to
// HS256 with that secret.
type tokenVerifier struct {
	keys   *gooidc.RemoteKeySet
	secret string
	client *http.Client
	now    func() time.Time
}

func newTokenVerifier(jwksURL, secret string, client *http.Client, now func() time.Time) *tokenVerifier {
	ctx := gooidc.ClientContext(context.Background(), client)
	return &tokenVerifier{
		keys:   gooidc.NewRemoteKeySet(ctx, jwksURL),
		secret: secret,
		client: client,
		now:    now,
	}
}

// Verify checks signature and expiry of raw and returns its claims.
// Failures of any kind surface as unauthorized.
func (v *tokenVerifier) Verify(ctx context.Context, raw string) (*ports.TokenClaims, error) {
	alg, err := tokenAlg(raw)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "malformed token")
	}
	if alg == "HS256" {
		return v.verifySecret(raw)
	}
	return v.verifyJWKS(ctx, raw)
}

func (v *tokenVerifier) verifyJWKS(ctx context.Context, raw string) (*ports.TokenClaims, error) {
	payload, err := v.keys.VerifySignature(gooidc.ClientContext(ctx, v.client), raw)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "token signature rejected")
	}

	var claims struct {
		Subject string `json:"sub"`
		Email   string `json:"email"`
		Role    string `json:"role"`
		Expiry  int64  `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "malformed token claims")
	}
	if claims.Expiry != 0 && v.now().Unix() >= claims.Expiry {
		return nil, apperrors.Unauthorized("token expired")
	}

	return &ports.TokenClaims{
		Subject:   claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		ExpiresAt: claims.Expiry,
	}, nil
}

func (v *tokenVerifier) verifySecret(raw string) (*ports.TokenClaims, error) {
	if v.secret == "" {
		return nil, apperrors.Unauthorized("HS256 token but no JWT secret configured")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(v.now),
	)
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(v.secret), nil
	}); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnauthorized, "token rejected")
	}

	out := &ports.TokenClaims{}
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	if role, ok := claims["role"].(string); ok {
		out.Role = role
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Unix()
	}
	return out, nil
}

// tokenAlg reads the signing algorithm from the token header without
// verifying anything.
func tokenAlg(raw string) (string, error) {
	tok, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return "", err
	}
	return tok.Method.Alg(), nil
}
