package config

import (
	"strings"
	"time"
)

// SupabaseConfig contains connection settings for the hosted Supabase project.
//
// The publishable/secret key pair follows the 2025+ API key naming. The
// legacy anon and service_role keys are honored as fallbacks so existing
// deployments keep working without env changes.
type SupabaseConfig struct {
	// URL is the project base URL, e.g. https://xyzcompany.supabase.co.
	URL string `env:"URL"`

	PublishableKey string `env:"PUBLISHABLE_KEY"`
	AnonKey        string `env:"ANON_KEY"`

	SecretKey      string `env:"SECRET_KEY"`
	ServiceRoleKey string `env:"SERVICE_ROLE_KEY"`

	// JWTSecret enables verification of legacy HS256 tokens. Projects on
	// asymmetric signing keys can leave it empty; JWKS covers those.
	JWTSecret string `env:"JWT_SECRET"`

	// RequestTimeout bounds every HTTP call to the project APIs.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`

	// UsePKCE controls whether OAuth flows attach a PKCE challenge.
	UsePKCE bool `env:"PKCE" envDefault:"true"`
}

// Sanitize normalises values loaded from env.
func (c *SupabaseConfig) Sanitize() {
	c.URL = strings.TrimRight(strings.TrimSpace(c.URL), "/")
	c.PublishableKey = strings.TrimSpace(c.PublishableKey)
	c.AnonKey = strings.TrimSpace(c.AnonKey)
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.ServiceRoleKey = strings.TrimSpace(c.ServiceRoleKey)
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
}

// EffectivePublishableKey returns the client-side API key, preferring the new
// publishable key over the legacy anon key.
func (c *SupabaseConfig) EffectivePublishableKey() string {
	if c.PublishableKey != "" {
		return c.PublishableKey
	}
	return c.AnonKey
}

// EffectiveSecretKey returns the server-side API key, preferring the new
// secret key over the legacy service_role key.
func (c *SupabaseConfig) EffectiveSecretKey() string {
	if c.SecretKey != "" {
		return c.SecretKey
	}
	return c.ServiceRoleKey
}

// AuthURL returns the GoTrue base endpoint for the project.
func (c *SupabaseConfig) AuthURL() string {
	return c.URL + "/auth/v1"
}

// RestURL returns the PostgREST base endpoint for the project.
func (c *SupabaseConfig) RestURL() string {
	return c.URL + "/rest/v1"
}

// JWKSURL returns the published JSON Web Key Set location.
func (c *SupabaseConfig) JWKSURL() string {
	return c.AuthURL() + "/.well-known/jwks.json"
}

// Configured reports whether the minimum client settings are present.
func (c *SupabaseConfig) Configured() bool {
	return c.URL != "" && c.EffectivePublishableKey() != ""
}
