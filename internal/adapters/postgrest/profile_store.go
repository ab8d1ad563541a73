package postgrest

// Package postgrest implements the profile store against the hosted data
// API. Requests run as the signed-in user so row level security applies.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
	apperrors "github.com/consorcio10demayo/canalero-auth/internal/errors"
	"github.com/consorcio10demayo/canalero-auth/internal/ports"
)

const maxResponseBytes = 1 << 20

// TokenSource supplies the access token attached to data API requests.
type TokenSource func(ctx context.Context) (string, error)

// Config holds settings for the data API client.
type Config struct {
	// ProjectURL is the Supabase project base URL.
	ProjectURL string
	// APIKey is the publishable (or legacy anon) key sent on every request.
	APIKey string
	// TokenSource supplies the signed-in user's access token. When nil the
	// API key doubles as the bearer token, which only works for tables
	// readable by the anon role.
	TokenSource TokenSource

	HTTPClient *http.Client // Optional, defaults to a 10s-timeout client
}

// ProfileStore reads and writes perfiles rows through PostgREST.
type ProfileStore struct {
	baseURL string
	apiKey  string
	token   TokenSource
	client  *http.Client
}

var _ ports.ProfileStore = (*ProfileStore)(nil)

// NewProfileStore creates a data API client for the configured project.
func NewProfileStore(cfg Config) (*ProfileStore, error) {
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

	return &ProfileStore{
		baseURL: strings.TrimRight(cfg.ProjectURL, "/") + "/rest/v1",
		apiKey:  cfg.APIKey,
		token:   cfg.TokenSource,
		client:  httpClient,
	}, nil
}

// Get loads a profile by provider user ID.
func (s *ProfileStore) Get(ctx context.Context, userID string) (*domainauth.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user ID is required")
	}

	q := url.Values{}
	q.Set("id", "eq."+userID)
	q.Set("select", "id,email,nombre,rol")
	q.Set("limit", "1")

	var rows []domainauth.Profile
	if err := s.do(ctx, http.MethodGet, "/perfiles", q, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperrors.NotFoundf("perfil %s not found", userID)
	}
	return &rows[0], nil
}

// Insert creates a profile row.
func (s *ProfileStore) Insert(ctx context.Context, p domainauth.Profile) error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("profile ID is required")
	}
	if strings.TrimSpace(p.Email) == "" {
		return errors.New("profile email is required")
	}

	rol := p.Rol
	if !rol.Valid() {
		rol = domainauth.RoleCiudadano
	}

	body := map[string]any{
		"id":     strings.TrimSpace(p.ID),
		"email":  strings.TrimSpace(p.Email),
		"nombre": strings.TrimSpace(p.Nombre),
		"rol":    string(rol),
	}
	return s.do(ctx, http.MethodPost, "/perfiles", nil, body, nil)
}

func (s *ProfileStore) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode request body")
		}
		rd = bytes.NewReader(buf)
	}

	u := s.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "build request")
	}

	bearer := s.apiKey
	if s.token != nil {
		tok, tokenErr := s.token(ctx)
		if tokenErr != nil {
			return tokenErr
		}
		if tok != "" {
			bearer = tok
		}
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=minimal")
	}

	resp, err := s.client.Do(req)
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
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode data API response")
		}
	}
	return nil
}

// apiErrorBody is the PostgREST error shape. Code carries the SQLSTATE for
// database-raised errors, or a PGRST-prefixed code for API-level ones.
type apiErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func apiError(status int, body []byte) error {
	var eb apiErrorBody
	_ = json.Unmarshal(body, &eb)

	msg := eb.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch {
	case eb.Code == apperrors.UniqueViolationCode:
		return &apperrors.AppError{Code: apperrors.ErrCodeConflict, Message: msg}
	case eb.Code == apperrors.ForeignKeyViolationCode:
		return &apperrors.AppError{Code: apperrors.ErrCodeForeignKey, Message: msg}
	case status == http.StatusUnauthorized:
		return apperrors.Unauthorized(msg)
	case status == http.StatusForbidden:
		return apperrors.Forbidden(msg)
	case status == http.StatusNotFound:
		return apperrors.NotFound(msg)
	case status == http.StatusTooManyRequests:
		return apperrors.RateLimited(msg)
	case status >= 500:
		return apperrors.Unavailable(msg)
	default:
		return apperrors.Internal(msg)
	}
}

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
	return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "data API unreachable")
}
