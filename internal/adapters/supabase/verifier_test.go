package supabase

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/consorcio10demayo/canalero-auth/internal/errors"
)

func TestTokenVerifier_JWKS(t *testing.T) {
	key, srv := newJWKSServer(t)
	v := newTokenVerifier(srv.URL, "", srv.Client(), time.Now)

	raw := signES256(t, key, jwt.MapClaims{
		"sub":   "user-1",
		"email": "vecina@example.com",
		"role":  "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	claims, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "vecina@example.com", claims.Email)
	assert.Equal(t, "authenticated", claims.Role)
	assert.Greater(t, claims.ExpiresAt, time.Now().Unix())
}

func TestTokenVerifier_JWKS_Expired(t *testing.T) {
	key, srv := newJWKSServer(t)
	v := newTokenVerifier(srv.URL, "", srv.Client(), time.Now)

	raw := signES256(t, key, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := v.Verify(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
	assert.Contains(t, err.Error(), "expired")
}

func TestTokenVerifier_JWKS_WrongKey(t *testing.T) {
	_, srv := newJWKSServer(t)
	v := newTokenVerifier(srv.URL, "", srv.Client(), time.Now)

	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	raw := signES256(t, other, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err = v.Verify(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestTokenVerifier_HS256(t *testing.T) {
	v := newTokenVerifier("http://unused.invalid", "legacy-secret", http.DefaultClient, time.Now)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "user-1",
		"email": "vecina@example.com",
		"role":  "authenticated",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	raw, err := tok.SignedString([]byte("legacy-secret"))
	require.NoError(t, err)

	claims, err := v.Verify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "vecina@example.com", claims.Email)
	assert.Equal(t, "authenticated", claims.Role)
}

func TestTokenVerifier_HS256_WrongSecret(t *testing.T) {
	v := newTokenVerifier("http://unused.invalid", "legacy-secret", http.DefaultClient, time.Now)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	raw, err := tok.SignedString([]byte("other-secret"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestTokenVerifier_HS256_NoSecretConfigured(t *testing.T) {
	v := newTokenVerifier("http://unused.invalid", "", http.DefaultClient, time.Now)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	raw, err := tok.SignedString([]byte("whatever"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestTokenVerifier_HS256_Expired(t *testing.T) {
	v := newTokenVerifier("http://unused.invalid", "legacy-secret", http.DefaultClient, time.Now)

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	raw, err := tok.SignedString([]byte("legacy-secret"))
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), raw)
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestTokenVerifier_Garbage(t *testing.T) {
	v := newTokenVerifier("http://unused.invalid", "legacy-secret", http.DefaultClient, time.Now)

	_, err := v.Verify(context.Background(), "not-a-jwt")
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
}

// newJWKSServer generates an ES256 signing key and serves its public half
// as a JWKS document.
func newJWKSServer(t *testing.T) (*ecdsa.PrivateKey, *httptest.Server) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	xb := make([]byte, 32)
	yb := make([]byte, 32)
	key.PublicKey.X.FillBytes(xb)
	key.PublicKey.Y.FillBytes(yb)

	doc, err := json.Marshal(map[string]any{
		"keys": []map[string]any{{
			"kty": "EC",
			"crv": "P-256",
			"alg": "ES256",
			"use": "sig",
			"kid": "key-1",
			"x":   base64.RawURLEncoding.EncodeToString(xb),
			"y":   base64.RawURLEncoding.EncodeToString(yb),
		}},
	})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}))
	t.Cleanup(srv.Close)
	return key, srv
}

func signES256(t *testing.T, key *ecdsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()

	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["kid"] = "key-1"
	raw, err := tok.SignedString(key)
	require.NoError(t, err)
	return raw
}
