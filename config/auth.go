package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication backend for the application.
type AuthMode string

const (
	// AuthModeSupabase talks to a hosted Supabase project.
	AuthModeSupabase AuthMode = "supabase"
	// AuthModeMock uses an in-memory provider (for development and tests only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "supabase", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: supabase, mock)", v)
	}
}

// SnapshotBackend selects where the partial auth state snapshot is persisted.
type SnapshotBackend string

const (
	SnapshotMemory SnapshotBackend = "memory"
	SnapshotFile   SnapshotBackend = "file"
	SnapshotRedis  SnapshotBackend = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for SnapshotBackend.
func (s *SnapshotBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "memory", "file", "redis":
		*s = SnapshotBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid SnapshotBackend: %q (valid options: memory, file, redis)", v)
	}
}

// ProfileBackend selects how perfiles rows are read and written.
type ProfileBackend string

const (
	// ProfilePostgREST goes through the project's data API (default).
	ProfilePostgREST ProfileBackend = "postgrest"
	// ProfilePostgres connects straight to the database; used by
	// server-side embeddings that already hold a connection.
	ProfilePostgres ProfileBackend = "postgres"
)

// UnmarshalText implements encoding.TextUnmarshaler for ProfileBackend.
func (p *ProfileBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "postgrest", "postgres":
		*p = ProfileBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid ProfileBackend: %q (valid options: postgrest, postgres)", v)
	}
}

// DevAuthConfig controls the mock provider identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID string `env:"USER_ID" envDefault:"dev-user"`
	Email  string `env:"EMAIL"   envDefault:"dev@consorcio10demayo.gob.ar"`
	Nombre string `env:"NOMBRE"  envDefault:"Usuario Dev"`
	Rol    string `env:"ROL"     envDefault:"ciudadano"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which identity backend to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"supabase"`

	// FrontendURL is the public origin of the citizen portal. OAuth and
	// magic-link redirects must land on this origin.
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	// CallbackPath is appended to FrontendURL for auth return trips.
	CallbackPath string `env:"AUTH_CALLBACK_PATH" envDefault:"/auth/callback"`

	// TokenTTL is the fixed lifetime of a cached access token.
	TokenTTL time.Duration `env:"AUTH_TOKEN_TTL" envDefault:"5m"`

	// TokenSafetyMargin is subtracted from the JWT expiry when caching so a
	// token is never served within its final moments.
	TokenSafetyMargin time.Duration `env:"AUTH_TOKEN_SAFETY_MARGIN" envDefault:"30s"`

	// RefreshSkew refreshes sessions that expire within this window.
	RefreshSkew time.Duration `env:"AUTH_REFRESH_SKEW" envDefault:"60s"`

	// RoleExpression is a JMESPath over the identity metadata that yields
	// the application role. The default prefers app metadata, which only
	// privileged backend jobs can write.
	RoleExpression string `env:"AUTH_ROLE_EXPRESSION" envDefault:"app_metadata.rol || user_metadata.rol"`

	// DefaultRole is assigned when the role expression yields nothing usable
	// and seeds first-login profile rows.
	DefaultRole string `env:"AUTH_DEFAULT_ROLE" envDefault:"ciudadano"`

	// Snapshot selects the rehydration snapshot backend.
	Snapshot     SnapshotBackend `env:"AUTH_SNAPSHOT_BACKEND" envDefault:"memory"`
	SnapshotPath string          `env:"AUTH_SNAPSHOT_PATH"    envDefault:".canalero-auth.json"`

	// Profiles selects the perfiles persistence backend.
	Profiles ProfileBackend `env:"AUTH_PROFILE_BACKEND" envDefault:"postgrest"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`
}

// Sanitize applies guardrails to auth configuration values.
func (c *AuthConfig) Sanitize() {
	if c.Mode == "" {
		c.Mode = AuthModeSupabase
	}
	c.FrontendURL = strings.TrimRight(strings.TrimSpace(c.FrontendURL), "/")
	if c.CallbackPath == "" {
		c.CallbackPath = "/auth/callback"
	}
	if !strings.HasPrefix(c.CallbackPath, "/") {
		c.CallbackPath = "/" + c.CallbackPath
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 5 * time.Minute
	}
	if c.TokenSafetyMargin < 0 {
		c.TokenSafetyMargin = 0
	}
	if c.RefreshSkew <= 0 {
		c.RefreshSkew = time.Minute
	}
	if c.Snapshot == "" {
		c.Snapshot = SnapshotMemory
	}
	if strings.TrimSpace(c.SnapshotPath) == "" {
		c.SnapshotPath = ".canalero-auth.json"
	}
	if c.Profiles == "" {
		c.Profiles = ProfilePostgREST
	}
	if strings.TrimSpace(c.DefaultRole) == "" {
		c.DefaultRole = "ciudadano"
	}
}

// CallbackURL returns the absolute auth callback URL on the portal origin.
func (c *AuthConfig) CallbackURL() string {
	return c.FrontendURL + c.CallbackPath
}
