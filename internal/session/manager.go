package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/weatherdeck/weatherdeck/internal/api"
	"github.com/weatherdeck/weatherdeck/internal/models"
	"github.com/weatherdeck/weatherdeck/internal/observability"
)

// State is the session lifecycle state.
type State int

const (
	// StateUnknown is the pre-bootstrap state: loading, no user yet.
	StateUnknown State = iota
	// StateAuthenticated means a profile was fetched with valid credentials.
	StateAuthenticated
	// StateAnonymous means no session exists (never logged in, logged out,
	// or the server invalidated us).
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "invalid"
	}
}

// Snapshot is one consistent view of the session handed to subscribers.
type Snapshot struct {
	State State
	User  *models.UserProfile
}

// Loading reports whether the session is still bootstrapping.
func (s Snapshot) Loading() bool { return s.State == StateUnknown }

// Manager owns the authenticated-user lifecycle: silent restore on bootstrap,
// login, logout, profile refresh, and forced teardown when the HTTP core
// detects an invalidated session. All other components read session state
// through Current/Subscribe and never mutate it.
type Manager struct {
	client *api.Client
	logger *zap.Logger

	mu     sync.Mutex
	state  State
	user   *models.UserProfile
	nextID int
	subs   map[int]func(Snapshot)
}

// NewManager creates a Manager in the Unknown state and registers its
// auth-error teardown with the client. Construct the Manager before issuing
// any authenticated request so early auth errors are not missed.
func NewManager(client *api.Client, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		client: client,
		logger: logger,
		state:  StateUnknown,
		subs:   make(map[int]func(Snapshot)),
	}
	client.OnAuthError(m.handleAuthError)
	return m
}

// Current returns the latest session snapshot.
func (m *Manager) Current() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{State: m.state, User: m.user}
}

// Subscribe registers fn for session changes and returns its unsubscribe
// func. fn fires once per completed operation; subscribers never see
// intermediate flicker.
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Bootstrap attempts a silent session restore: load persisted credentials,
// and if present probe the profile endpoint. Without persisted credentials
// (cookie mode still may have a live jar cookie after a same-process login,
// but not across restarts) the probe still runs and the backend decides.
// Bootstrap never fails; the worst case is Anonymous.
func (m *Manager) Bootstrap(ctx context.Context) {
	creds := m.client.Credentials()
	if creds != nil {
		restored, err := creds.Load()
		if err != nil {
			m.logger.Warn("credential restore failed", zap.Error(err))
		}
		if !restored {
			m.transition(StateAnonymous, nil)
			return
		}
	}
	m.fetchProfile(ctx)
}

// Login starts a session with the given credentials, installs the returned
// token pair, and fetches the profile. The backend's message is surfaced on
// failure so forms can show it. When both email and password are empty this
// is the re-entry path and behaves like Bootstrap.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	if email == "" && password == "" {
		m.Bootstrap(ctx)
		return nil
	}

	pair, err := m.client.Login(ctx, email, password)
	if err != nil {
		m.transition(StateAnonymous, nil)
		return err
	}
	if creds := m.client.Credentials(); creds != nil && pair.AccessToken != "" {
		if err := creds.Set(pair.AccessToken, pair.RefreshToken); err != nil {
			m.logger.Warn("credential persist failed", zap.Error(err))
		}
	}
	m.fetchProfile(ctx)
	if m.Current().State != StateAuthenticated {
		return &api.APIError{Message: "login succeeded but profile fetch failed"}
	}
	return nil
}

// Register creates an account. It does not log in; callers follow up with
// Login on success.
func (m *Manager) Register(ctx context.Context, req api.RegisterRequest) error {
	return m.client.Register(ctx, req)
}

// Refresh re-fetches the profile for the current credentials.
func (m *Manager) Refresh(ctx context.Context) {
	m.fetchProfile(ctx)
}

// fetchProfile probes /users/profile and transitions to Authenticated or
// Anonymous. It never propagates errors; failures degrade to no session.
func (m *Manager) fetchProfile(ctx context.Context) {
	profile, err := m.client.Profile(ctx)
	if err != nil {
		m.logger.Debug("profile fetch failed", zap.Error(err))
		m.transition(StateAnonymous, nil)
		return
	}
	m.transition(StateAuthenticated, &profile)
}

// Logout ends the session. The backend call is best-effort; local teardown is
// unconditional.
func (m *Manager) Logout(ctx context.Context) {
	if err := m.client.Logout(ctx); err != nil {
		m.logger.Warn("server logout failed, clearing local session anyway", zap.Error(err))
	}
	m.teardown()
}

// handleAuthError is the forced-logout path: the server already invalidated
// the session, so only local teardown remains.
func (m *Manager) handleAuthError() {
	m.logger.Info("session invalidated by server, logging out")
	m.teardown()
}

func (m *Manager) teardown() {
	if creds := m.client.Credentials(); creds != nil {
		if err := creds.Clear(); err != nil {
			m.logger.Warn("credential clear failed", zap.Error(err))
		}
	}
	m.transition(StateAnonymous, nil)
}

// transition commits a new state and notifies subscribers outside the lock.
func (m *Manager) transition(state State, user *models.UserProfile) {
	m.mu.Lock()
	changed := m.state != state || m.user != user
	m.state = state
	m.user = user
	snap := Snapshot{State: state, User: user}
	fns := make([]func(Snapshot), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	if !changed {
		return
	}
	observability.SessionTransitionsTotal.WithLabelValues(state.String()).Inc()
	for _, fn := range fns {
		fn(snap)
	}
}
