// Package service orchestrates the auth domain: session lifecycle, profile
// sync, role selectors, token caching, and the contact-verification flow.
// It depends only on ports; concrete providers and stores are wired in
// bootstrap.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
	apperrors "github.com/consorcio10demayo/canalero-auth/internal/errors"
	obsmetrics "github.com/consorcio10demayo/canalero-auth/internal/observability/metrics"
	"github.com/consorcio10demayo/canalero-auth/internal/observability/statsd"
	"github.com/consorcio10demayo/canalero-auth/internal/ports"
)

// StateSource exposes the current auth state. Selectors read through this
// so they stay decoupled from the manager's mutation surface.
type StateSource interface {
	State() domainauth.AuthState
}

// SessionManagerOptions groups dependencies for SessionManager.
type SessionManagerOptions struct {
	Provider    ports.IdentityProvider // Required: hosted identity provider
	Profiles    ports.ProfileStore     // Required: perfiles persistence
	Snapshots   ports.SnapshotStore    // Optional: rehydration snapshots (in-memory default)
	Reporter    ports.ErrorReporter    // Optional: external error reporting
	Metrics     statsd.Sink            // Optional: metrics sink (StatsD-compatible)
	Logger      *slog.Logger           // Optional: structured logger
	DefaultRole domainauth.Role        // Optional: role for first-login inserts (default ciudadano)
	Now         func() time.Time       // Optional: clock override for tests
}

// SessionManager is the single authority over authentication state. All
// reads go through State or a StateSource selector; all mutations funnel
// through the manager so observers see every transition exactly once.
type SessionManager struct {
	provider    ports.IdentityProvider
	profiles    ports.ProfileStore
	snapshots   ports.SnapshotStore
	reporter    ports.ErrorReporter
	metrics     statsd.Sink
	logger      *slog.Logger
	defaultRole domainauth.Role
	now         func() time.Time

	mu             sync.Mutex
	state          domainauth.AuthState
	listening      bool
	removeListener func()

	// dispatchMu serializes observer fan-out so subscribers see
	// transitions in the order they happened.
	dispatchMu  sync.Mutex
	subscribers []*stateSubscriber

	initGroup singleflight.Group
}

type stateSubscriber struct {
	fn func(domainauth.AuthState)
}

var _ StateSource = (*SessionManager)(nil)

// NewSessionManager constructs a SessionManager.
func NewSessionManager(opts SessionManagerOptions) (*SessionManager, error) {
	if opts.Provider == nil {
		return nil, errors.New("identity provider is required")
	}
	if opts.Profiles == nil {
		return nil, errors.New("profile store is required")
	}
	snapshots := opts.Snapshots
	if snapshots == nil {
		snapshots = &memorySnapshots{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaultRole := opts.DefaultRole
	if defaultRole == "" {
		defaultRole = domainauth.RoleCiudadano
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &SessionManager{
		provider:    opts.Provider,
		profiles:    opts.Profiles,
		snapshots:   snapshots,
		reporter:    opts.Reporter,
		metrics:     opts.Metrics,
		logger:      logger,
		defaultRole: defaultRole,
		now:         now,
	}, nil
}

// State returns a copy of the current auth state.
func (m *SessionManager) State() domainauth.AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Subscribe registers an observer called after every state transition, in
// registration order. Observers run synchronously on the mutating
// goroutine; an observer that needs to call back into a mutating manager
// method must do so from a new goroutine. The returned function removes
// the observer.
func (m *SessionManager) Subscribe(fn func(domainauth.AuthState)) func() {
	sub := &stateSubscriber{fn: fn}
	m.dispatchMu.Lock()
	m.subscribers = append(m.subscribers, sub)
	m.dispatchMu.Unlock()

	return func() {
		m.dispatchMu.Lock()
		defer m.dispatchMu.Unlock()
		for i, cur := range m.subscribers {
			if cur == sub {
				m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
				return
			}
		}
	}
}

// Initialize resolves the stored session into a full auth state. Concurrent
// callers coalesce into one provider call; once it has completed, further
// calls are no-ops until Reset. An initialization failure is recorded in
// the state and returned, and still counts as completed.
func (m *SessionManager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	initialized := m.state.Initialized
	m.mu.Unlock()
	if initialized {
		return nil
	}

	_, err, _ := m.initGroup.Do("initialize", func() (any, error) {
		// A caller cancelling mid-flight must not tear down a transition
		// shared with other callers.
		return nil, m.initialize(context.WithoutCancel(ctx))
	})
	return err
}

func (m *SessionManager) initialize(ctx context.Context) error {
	// A caller may pass the fast path just before a previous flight
	// settles and reach here after it; recheck under the lock so the
	// provider is consulted once per initialization cycle.
	m.mu.Lock()
	if m.state.Initialized {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	start := m.now()
	m.setState(func(s *domainauth.AuthState) {
		s.Loading = true
		s.Err = nil
	})

	sess, err := m.provider.CurrentSession(ctx)
	if errors.Is(err, ports.ErrNoSession) {
		m.setState(func(s *domainauth.AuthState) {
			s.User, s.Session, s.Profile = nil, nil, nil
			s.Loading = false
			s.Initialized = true
		})
		m.observe("initialize", obsmetrics.ResultNoop, start, nil)
		return nil
	}
	if err != nil {
		err = fmt.Errorf("resolve session: %w", err)
		m.report(err, map[string]string{"operation": "initialize"})
		m.setState(func(s *domainauth.AuthState) {
			s.Loading = false
			s.Initialized = true
			s.Err = err
		})
		m.observe("initialize", obsmetrics.ResultError, start, err)
		return err
	}

	user, err := m.resolveUser(ctx, sess)
	if err != nil {
		m.report(err, map[string]string{"operation": "initialize"})
		m.setState(func(s *domainauth.AuthState) {
			clone := sess.Clone()
			s.Session = &clone
			s.Loading = false
			s.Initialized = true
			s.Err = err
		})
		m.observe("initialize", obsmetrics.ResultError, start, err)
		return err
	}

	m.setState(func(s *domainauth.AuthState) {
		clone := sess.Clone()
		s.User = user
		s.Session = &clone
		s.Err = nil
	})

	syncErr := m.SyncProfile(ctx, user)
	if syncErr != nil {
		m.report(syncErr, map[string]string{"operation": "initialize", "stage": "profile_sync"})
	}

	m.setState(func(s *domainauth.AuthState) {
		s.Loading = false
		s.Initialized = true
		s.Err = syncErr
	})
	m.saveSnapshot(ctx)
	m.observe("initialize", obsmetrics.ResultFor(syncErr), start, syncErr)
	return syncErr
}

// EnsureListener registers the provider auth-change listener exactly once.
// Later calls are no-ops, so any entry point may call it defensively.
func (m *SessionManager) EnsureListener() {
	m.mu.Lock()
	if m.listening {
		m.mu.Unlock()
		return
	}
	m.listening = true
	m.mu.Unlock()

	remove := m.provider.OnAuthChange(m.handleEvent)
	m.mu.Lock()
	m.removeListener = remove
	m.mu.Unlock()
}

// Close detaches the provider listener. The manager remains usable; a
// subsequent EnsureListener re-registers.
func (m *SessionManager) Close() {
	m.mu.Lock()
	remove := m.removeListener
	m.removeListener = nil
	m.listening = false
	m.mu.Unlock()
	if remove != nil {
		remove()
	}
}

func (m *SessionManager) handleEvent(ev domainauth.Event) {
	ctx := context.Background()

	switch ev.Type {
	case domainauth.EventSignedIn:
		if ev.Session == nil {
			return
		}
		if err := m.AdoptSession(ctx, ev.Session); err != nil {
			m.logger.Warn("sign-in event handling failed", "error", err)
		}

	case domainauth.EventTokenRefreshed:
		if ev.Session == nil {
			return
		}
		m.setState(func(s *domainauth.AuthState) {
			clone := ev.Session.Clone()
			s.Session = &clone
		})

	case domainauth.EventSignedOut:
		m.setState(func(s *domainauth.AuthState) {
			s.User, s.Session, s.Profile = nil, nil, nil
			s.Loading = false
			s.Initialized = true
			s.Err = nil
		})
		m.clearSnapshot(ctx)

	case domainauth.EventUserUpdated:
		if ev.Session == nil || ev.Session.User.ID == "" {
			return
		}
		m.setState(func(s *domainauth.AuthState) {
			clone := ev.Session.Clone()
			user := clone.User
			s.User = &user
			s.Session = &clone
		})

	default:
		m.logger.Debug("ignoring auth event", "event", ev.Type)
	}
}

// AdoptSession installs a session obtained outside the listener path, such
// as a PKCE exchange completed by the verification flow. It runs the same
// transition as a SIGNED_IN event: resolve the user, sync the profile,
// save a snapshot.
func (m *SessionManager) AdoptSession(ctx context.Context, sess *domainauth.Session) error {
	if sess == nil {
		return apperrors.Validation("session is required")
	}

	user, err := m.resolveUser(ctx, sess)
	if err != nil {
		m.report(err, map[string]string{"operation": "adopt_session"})
		m.setState(func(s *domainauth.AuthState) {
			clone := sess.Clone()
			s.Session = &clone
			s.Initialized = true
			s.Loading = false
			s.Err = err
		})
		return err
	}

	m.setState(func(s *domainauth.AuthState) {
		clone := sess.Clone()
		s.User = user
		s.Session = &clone
		s.Initialized = true
		s.Loading = false
		s.Err = nil
	})

	syncErr := m.SyncProfile(ctx, user)
	if syncErr != nil {
		m.report(syncErr, map[string]string{"operation": "adopt_session", "stage": "profile_sync"})
		m.setState(func(s *domainauth.AuthState) { s.Err = syncErr })
	}
	m.saveSnapshot(ctx)
	return syncErr
}

// SyncProfile loads the perfiles row for the user, creating it on first
// login. When a concurrent first login wins the insert race, the stored
// row is re-read and wins; a role is never downgraded locally.
func (m *SessionManager) SyncProfile(ctx context.Context, user *domainauth.Identity) error {
	if user == nil || user.ID == "" {
		return apperrors.Validation("user is required")
	}

	profile, err := m.profiles.Get(ctx, user.ID)
	if apperrors.IsNotFound(err) {
		fresh := domainauth.Profile{
			ID:     user.ID,
			Email:  user.Email,
			Nombre: user.DisplayName(),
			Rol:    m.defaultRole,
		}
		insertErr := m.profiles.Insert(ctx, fresh)
		switch {
		case insertErr == nil:
			profile, err = &fresh, nil
		case apperrors.IsConflict(insertErr):
			// Another tab won the first-login race; their row wins.
			profile, err = m.profiles.Get(ctx, user.ID)
		default:
			profile, err = nil, insertErr
		}
	}
	if err != nil {
		return fmt.Errorf("sync profile: %w", err)
	}

	m.setState(func(s *domainauth.AuthState) {
		p := *profile
		s.Profile = &p
	})
	return nil
}

// SignOut revokes the provider session and clears local state. The local
// clear is unconditional: whatever the provider answered, this process is
// signed out when SignOut returns.
func (m *SessionManager) SignOut(ctx context.Context) error {
	start := m.now()

	m.mu.Lock()
	var token string
	if m.state.Session != nil {
		token = m.state.Session.AccessToken
	}
	m.mu.Unlock()

	err := m.provider.SignOut(ctx, token)
	if err != nil {
		err = fmt.Errorf("provider sign-out: %w", err)
		m.report(err, map[string]string{"operation": "sign_out"})
	}

	m.setState(func(s *domainauth.AuthState) {
		s.User, s.Session, s.Profile = nil, nil, nil
		s.Loading = false
		s.Err = nil
	})
	m.clearSnapshot(ctx)
	m.observe("sign_out", obsmetrics.ResultFor(err), start, err)
	return err
}

// Reset returns the manager to its zero state. The provider listener, if
// registered, stays registered.
func (m *SessionManager) Reset() {
	m.setState(func(s *domainauth.AuthState) {
		*s = domainauth.AuthState{}
	})
}

// Hydrate pre-populates user identity and profile from the last snapshot
// so the UI can render a likely-signed-in shell before Initialize has
// confirmed the session. It never sets Initialized and is a no-op once a
// session is known.
func (m *SessionManager) Hydrate(ctx context.Context) error {
	m.mu.Lock()
	skip := m.state.Initialized || m.state.Session != nil
	m.mu.Unlock()
	if skip {
		return nil
	}

	snap, err := m.snapshots.Load(ctx)
	if err != nil {
		err = fmt.Errorf("load snapshot: %w", err)
		m.report(err, map[string]string{"operation": "hydrate"})
		return err
	}
	if snap == nil {
		return nil
	}

	m.setState(func(s *domainauth.AuthState) {
		if s.Initialized || s.Session != nil {
			return
		}
		s.User = &domainauth.Identity{ID: snap.UserID, Email: snap.Email}
		if snap.Profile != nil {
			p := *snap.Profile
			s.Profile = &p
		}
		s.Hydrated = true
	})
	return nil
}

// AccessToken returns the current session's access token, refreshed
// through the provider when stale. TokenCache uses this on cache misses.
func (m *SessionManager) AccessToken(ctx context.Context) (string, error) {
	sess, err := m.provider.CurrentSession(ctx)
	if err != nil {
		return "", err
	}
	return sess.AccessToken, nil
}

func (m *SessionManager) resolveUser(ctx context.Context, sess *domainauth.Session) (*domainauth.Identity, error) {
	if sess.User.ID != "" {
		u := sess.User.Clone()
		return &u, nil
	}
	user, err := m.provider.GetUser(ctx, sess.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	return user, nil
}

// setState applies a mutation under the state lock, then fans the new
// state out to subscribers under the dispatch lock.
func (m *SessionManager) setState(mutate func(*domainauth.AuthState)) {
	m.mu.Lock()
	mutate(&m.state)
	next := m.state.Clone()
	m.mu.Unlock()

	m.dispatchMu.Lock()
	defer m.dispatchMu.Unlock()
	for _, sub := range m.subscribers {
		sub.fn(next.Clone())
	}
}

func (m *SessionManager) saveSnapshot(ctx context.Context) {
	m.mu.Lock()
	var snap *domainauth.Snapshot
	if m.state.User != nil {
		snap = &domainauth.Snapshot{
			UserID:  m.state.User.ID,
			Email:   m.state.User.Email,
			SavedAt: m.now().UTC(),
		}
		if m.state.Profile != nil {
			p := *m.state.Profile
			snap.Profile = &p
		}
	}
	m.mu.Unlock()
	if snap == nil {
		return
	}

	if err := m.snapshots.Save(ctx, *snap); err != nil {
		m.logger.Warn("snapshot save failed", "error", err)
		m.report(err, map[string]string{"operation": "snapshot_save"})
	}
}

func (m *SessionManager) clearSnapshot(ctx context.Context) {
	if err := m.snapshots.Clear(ctx); err != nil {
		m.logger.Warn("snapshot clear failed", "error", err)
		m.report(err, map[string]string{"operation": "snapshot_clear"})
	}
}

func (m *SessionManager) report(err error, tags map[string]string) {
	if m.reporter == nil || err == nil {
		return
	}
	m.reporter.CaptureError(err, tags)
}

func (m *SessionManager) observe(operation, result string, start time.Time, err error) {
	obsmetrics.EmitAuthOperation(m.metrics, obsmetrics.AuthMetric{
		Operation: operation,
		Result:    result,
		Duration:  m.now().Sub(start),
		Err:       err,
	})
}

// memorySnapshots is the default snapshot store when none is configured.
type memorySnapshots struct {
	mu   sync.Mutex
	snap *domainauth.Snapshot
}

func (m *memorySnapshots) Save(_ context.Context, snap domainauth.Snapshot) error {
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

func (m *memorySnapshots) Load(_ context.Context) (*domainauth.Snapshot, error) {
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

func (m *memorySnapshots) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
	return nil
}
