package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
	apperrors "github.com/consorcio10demayo/canalero-auth/internal/errors"
	"github.com/consorcio10demayo/canalero-auth/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider = (*MockIdentityProvider)(nil)
	_ ports.ProfileStore     = (*MemoryProfileStore)(nil)
	_ ports.SnapshotStore    = (*MemorySnapshotStore)(nil)
	_ ports.ErrorReporter    = (*MockReporter)(nil)
)

var mockConfirmedAt = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

// MockIdentityProvider simulates the hosted provider for tests. Every
// method can be overridden through its Func field; the defaults behave
// like a provider holding DefaultSession.
type MockIdentityProvider struct {
	AuthorizeURLFunc       func(ctx context.Context, in ports.AuthorizeInput) (ports.AuthorizeResult, error)
	SendMagicLinkFunc      func(ctx context.Context, email, redirectTo string) error
	ExchangeCodeFunc       func(ctx context.Context, code, verifier string) (*domainauth.Session, error)
	SignInWithPasswordFunc func(ctx context.Context, email, password string) (*domainauth.Session, error)
	SignUpFunc             func(ctx context.Context, email, password string, metadata map[string]any) (*domainauth.Session, error)
	RefreshFunc            func(ctx context.Context, refreshToken string) (*domainauth.Session, error)
	CurrentSessionFunc     func(ctx context.Context) (*domainauth.Session, error)
	GetUserFunc            func(ctx context.Context, accessToken string) (*domainauth.Identity, error)
	SignOutFunc            func(ctx context.Context, accessToken string) error
	VerifyTokenFunc        func(ctx context.Context, raw string) (*ports.TokenClaims, error)

	// DefaultIdentity backs GetUser and generated sessions.
	DefaultIdentity domainauth.Identity

	mu        sync.Mutex
	session   *domainauth.Session
	listeners []*mockListener
	counts    map[string]int
	exchanges int
}

type mockListener struct {
	fn func(domainauth.Event)
}

// NewMockIdentityProvider creates a provider double with a deterministic
// identity and no stored session.
func NewMockIdentityProvider() *MockIdentityProvider {
	confirmed := mockConfirmedAt
	return &MockIdentityProvider{
		DefaultIdentity: domainauth.Identity{
			ID:               "mock-user-1",
			Email:            "mock.user@example.com",
			EmailConfirmedAt: &confirmed,
			UserMetadata:     map[string]any{"full_name": "Mock User"},
		},
		counts: make(map[string]int),
	}
}

// SetSession seeds the stored session, as if the user had signed in earlier.
func (m *MockIdentityProvider) SetSession(sess *domainauth.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess == nil {
		m.session = nil
		return
	}
	clone := sess.Clone()
	m.session = &clone
}

// NewSession builds a session for the default identity. Successive calls
// rotate the token values.
func (m *MockIdentityProvider) NewSession() *domainauth.Session {
	m.mu.Lock()
	m.exchanges++
	n := m.exchanges
	identity := m.DefaultIdentity.Clone()
	m.mu.Unlock()

	return &domainauth.Session{
		AccessToken:  fmt.Sprintf("mock-access-%d", n),
		TokenType:    "bearer",
		ExpiresIn:    3600,
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		RefreshToken: fmt.Sprintf("mock-refresh-%d", n),
		User:         identity,
	}
}

// Calls reports how many times the named method ran.
func (m *MockIdentityProvider) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[method]
}

func (m *MockIdentityProvider) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[method]++
}

// Emit delivers an event to registered listeners in registration order.
func (m *MockIdentityProvider) Emit(ev domainauth.Event) {
	m.mu.Lock()
	snapshot := make([]*mockListener, len(m.listeners))
	copy(snapshot, m.listeners)
	m.mu.Unlock()

	for _, l := range snapshot {
		l.fn(ev)
	}
}

func (m *MockIdentityProvider) AuthorizeURL(ctx context.Context, in ports.AuthorizeInput) (ports.AuthorizeResult, error) {
	m.record("AuthorizeURL")
	if m.AuthorizeURLFunc != nil {
		return m.AuthorizeURLFunc(ctx, in)
	}
	provider := in.Provider
	if provider == "" {
		provider = "google"
	}
	return ports.AuthorizeResult{
		URL:      "https://mock-provider/authorize?provider=" + provider,
		Verifier: "mock-verifier",
	}, nil
}

func (m *MockIdentityProvider) SendMagicLink(ctx context.Context, email, redirectTo string) error {
	m.record("SendMagicLink")
	if m.SendMagicLinkFunc != nil {
		return m.SendMagicLinkFunc(ctx, email, redirectTo)
	}
	return nil
}

func (m *MockIdentityProvider) ExchangeCode(ctx context.Context, code, verifier string) (*domainauth.Session, error) {
	m.record("ExchangeCode")
	if m.ExchangeCodeFunc != nil {
		return m.ExchangeCodeFunc(ctx, code, verifier)
	}
	sess := m.NewSession()
	m.SetSession(sess)
	ev := sess.Clone()
	m.Emit(domainauth.Event{Type: domainauth.EventSignedIn, Session: &ev})
	out := sess.Clone()
	return &out, nil
}

func (m *MockIdentityProvider) SignInWithPassword(ctx context.Context, email, password string) (*domainauth.Session, error) {
	m.record("SignInWithPassword")
	if m.SignInWithPasswordFunc != nil {
		return m.SignInWithPasswordFunc(ctx, email, password)
	}
	return m.ExchangeCode(ctx, "password-grant", "")
}

func (m *MockIdentityProvider) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domainauth.Session, error) {
	m.record("SignUp")
	if m.SignUpFunc != nil {
		return m.SignUpFunc(ctx, email, password, metadata)
	}
	return m.ExchangeCode(ctx, "signup-grant", "")
}

func (m *MockIdentityProvider) Refresh(ctx context.Context, refreshToken string) (*domainauth.Session, error) {
	m.record("Refresh")
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, refreshToken)
	}
	sess := m.NewSession()
	m.SetSession(sess)
	ev := sess.Clone()
	m.Emit(domainauth.Event{Type: domainauth.EventTokenRefreshed, Session: &ev})
	out := sess.Clone()
	return &out, nil
}

func (m *MockIdentityProvider) CurrentSession(ctx context.Context) (*domainauth.Session, error) {
	m.record("CurrentSession")
	if m.CurrentSessionFunc != nil {
		return m.CurrentSessionFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, ports.ErrNoSession
	}
	out := m.session.Clone()
	return &out, nil
}

func (m *MockIdentityProvider) GetUser(ctx context.Context, accessToken string) (*domainauth.Identity, error) {
	m.record("GetUser")
	if m.GetUserFunc != nil {
		return m.GetUserFunc(ctx, accessToken)
	}
	if accessToken == "" {
		return nil, apperrors.Unauthorized("access token is required")
	}
	out := m.DefaultIdentity.Clone()
	return &out, nil
}

func (m *MockIdentityProvider) SignOut(ctx context.Context, accessToken string) error {
	m.record("SignOut")
	if m.SignOutFunc != nil {
		return m.SignOutFunc(ctx, accessToken)
	}
	m.SetSession(nil)
	m.Emit(domainauth.Event{Type: domainauth.EventSignedOut})
	return nil
}

func (m *MockIdentityProvider) VerifyToken(ctx context.Context, raw string) (*ports.TokenClaims, error) {
	m.record("VerifyToken")
	if m.VerifyTokenFunc != nil {
		return m.VerifyTokenFunc(ctx, raw)
	}
	if raw == "" {
		return nil, apperrors.Unauthorized("token is required")
	}
	return &ports.TokenClaims{
		Subject:   m.DefaultIdentity.ID,
		Email:     m.DefaultIdentity.Email,
		Role:      string(domainauth.RoleCiudadano),
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}, nil
}

func (m *MockIdentityProvider) OnAuthChange(fn func(domainauth.Event)) func() {
	l := &mockListener{fn: fn}
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, cur := range m.listeners {
			if cur == l {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

// MemoryProfileStore is an in-memory profile store for unit tests.
// Insert reports a conflict on duplicate IDs, like the real stores.
type MemoryProfileStore struct {
	GetFunc    func(ctx context.Context, userID string) (*domainauth.Profile, error)
	InsertFunc func(ctx context.Context, p domainauth.Profile) error

	mu       sync.Mutex
	profiles map[string]domainauth.Profile
	gets     int
	inserts  int
}

// NewMemoryProfileStore creates an empty in-memory profile store.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]domainauth.Profile)}
}

// Seed stores a profile without counting as an insert.
func (m *MemoryProfileStore) Seed(p domainauth.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
}

func (m *MemoryProfileStore) Get(ctx context.Context, userID string) (*domainauth.Profile, error) {
	m.mu.Lock()
	m.gets++
	m.mu.Unlock()
	if m.GetFunc != nil {
		return m.GetFunc(ctx, userID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, apperrors.NotFoundf("perfil %s not found", userID)
	}
	out := p
	return &out, nil
}

func (m *MemoryProfileStore) Insert(ctx context.Context, p domainauth.Profile) error {
	m.mu.Lock()
	m.inserts++
	m.mu.Unlock()
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, p)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.profiles[p.ID]; exists {
		return apperrors.Conflictf("perfil %s already exists", p.ID)
	}
	m.profiles[p.ID] = p
	return nil
}

// GetCalls reports how many Get calls ran.
func (m *MemoryProfileStore) GetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

// InsertCalls reports how many Insert calls ran.
func (m *MemoryProfileStore) InsertCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inserts
}

// MemorySnapshotStore is an in-memory snapshot store for unit tests.
type MemorySnapshotStore struct {
	SaveFunc  func(ctx context.Context, snap domainauth.Snapshot) error
	LoadFunc  func(ctx context.Context) (*domainauth.Snapshot, error)
	ClearFunc func(ctx context.Context) error

	mu     sync.Mutex
	snap   *domainauth.Snapshot
	saves  int
	clears int
}

// NewMemorySnapshotStore creates an empty in-memory snapshot store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{}
}

func (m *MemorySnapshotStore) Save(ctx context.Context, snap domainauth.Snapshot) error {
	m.mu.Lock()
	m.saves++
	m.mu.Unlock()
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, snap)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	clone := snap
	if snap.Profile != nil {
		p := *snap.Profile
		clone.Profile = &p
	}
	m.snap = &clone
	return nil
}

func (m *MemorySnapshotStore) Load(ctx context.Context) (*domainauth.Snapshot, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, nil
	}
	out := *m.snap
	if m.snap.Profile != nil {
		p := *m.snap.Profile
		out.Profile = &p
	}
	return &out, nil
}

func (m *MemorySnapshotStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.clears++
	m.mu.Unlock()
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
	return nil
}

// Current returns the stored snapshot, or nil.
func (m *MemorySnapshotStore) Current() *domainauth.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil
	}
	out := *m.snap
	return &out
}

// SaveCalls reports how many Save calls ran.
func (m *MemorySnapshotStore) SaveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// ClearCalls reports how many Clear calls ran.
func (m *MemorySnapshotStore) ClearCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clears
}

// CapturedError is one reported failure with its tags.
type CapturedError struct {
	Err  error
	Tags map[string]string
}

// MockReporter records reported errors for assertions.
type MockReporter struct {
	mu       sync.Mutex
	captured []CapturedError
}

// NewMockReporter creates an empty reporter double.
func NewMockReporter() *MockReporter {
	return &MockReporter{}
}

func (m *MockReporter) CaptureError(err error, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := make(map[string]string, len(tags))
	for k, v := range tags {
		copied[k] = v
	}
	m.captured = append(m.captured, CapturedError{Err: err, Tags: copied})
}

// Errors returns a copy of everything captured so far.
func (m *MockReporter) Errors() []CapturedError {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CapturedError, len(m.captured))
	copy(out, m.captured)
	return out
}
