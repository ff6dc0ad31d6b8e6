// Package session owns the authentication token and the identity of the
// logged-in operator.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/lojaerp/erp-console/internal/shared"
)

// LoginPath is where an expired session sends the operator.
const LoginPath = "/login"

// ErrNotAuthenticated is returned by guards when no session is active.
var ErrNotAuthenticated = errors.New("session: not authenticated")

// State is the lifecycle position of the session.
type State int

const (
	Initializing State = iota
	Authenticated
	Anonymous
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Authenticated:
		return "authenticated"
	case Anonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Snapshot is the observable session state.
type Snapshot struct {
	State    State
	Username string
	Token    string
}

// Authenticator exchanges credentials for a bearer token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// Navigator moves the operator between views.
type Navigator interface {
	CurrentPath() string
	Navigate(path string)
}

// Options configures a Manager.
type Options struct {
	Store         Store
	Authenticator Authenticator
	Navigator     Navigator
	Notifier      shared.Notifier
	Logger        *slog.Logger
}

// Manager is the single source of truth for who is logged in.
type Manager struct {
	store    Store
	auth     Authenticator
	nav      Navigator
	notifier shared.Notifier
	logger   *slog.Logger

	mu       sync.RWMutex
	state    State
	token    string
	username string

	ready     chan struct{}
	readyOnce sync.Once

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// NewManager constructs a Manager in the Initializing state.
func NewManager(opts Options) *Manager {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = shared.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    opts.Store,
		auth:     opts.Authenticator,
		nav:      opts.Navigator,
		notifier: notifier,
		logger:   logger,
		state:    Initializing,
		ready:    make(chan struct{}),
		subs:     make(map[int]func(Snapshot)),
	}
}

// SetAuthenticator wires the authenticator after construction, for the
// common case where the HTTP client itself depends on the manager.
func (m *Manager) SetAuthenticator(auth Authenticator) {
	m.mu.Lock()
	m.auth = auth
	m.mu.Unlock()
}

// Init restores a persisted session. It never touches the network. Partial
// or corrupt persisted state is deleted and leaves the session anonymous.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.state != Initializing {
		m.mu.Unlock()
		return nil
	}
	token, username, restoreErr := m.restore(ctx)
	if restoreErr == nil && token != "" {
		m.state, m.token, m.username = Authenticated, token, username
	} else {
		m.state, m.token, m.username = Anonymous, "", ""
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.readyOnce.Do(func() { close(m.ready) })
	m.publish(snap)
	return restoreErr
}

func (m *Manager) restore(ctx context.Context) (string, string, error) {
	if m.store == nil {
		return "", "", nil
	}
	token, hasToken, err := m.store.Get(ctx, TokenKey)
	if err != nil {
		m.clearStore(ctx)
		return "", "", fmt.Errorf("session: restore token: %w", err)
	}
	rawUser, hasUser, err := m.store.Get(ctx, UserKey)
	if err != nil {
		m.clearStore(ctx)
		return "", "", fmt.Errorf("session: restore user: %w", err)
	}
	if !hasToken && !hasUser {
		return "", "", nil
	}
	var user storedUser
	if !hasToken || !hasUser || strings.TrimSpace(token) == "" ||
		json.Unmarshal([]byte(rawUser), &user) != nil || strings.TrimSpace(user.Username) == "" {
		m.logger.Warn("discarding corrupt persisted session",
			slog.Bool("has_token", hasToken), slog.Bool("has_user", hasUser))
		m.clearStore(ctx)
		return "", "", nil
	}
	return token, user.Username, nil
}

// WaitReady blocks until Init has completed.
func (m *Manager) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RequireAuth is the route guard: it waits for initialisation and fails
// with ErrNotAuthenticated when nobody is logged in.
func (m *Manager) RequireAuth(ctx context.Context) error {
	if err := m.WaitReady(ctx); err != nil {
		return err
	}
	if !m.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

// Login authenticates against the backend and persists the session.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	if m.State() == Initializing {
		if err := m.Init(ctx); err != nil {
			m.logger.Warn("session init before login", slog.Any("error", err))
		}
	}
	m.mu.RLock()
	auth := m.auth
	m.mu.RUnlock()
	if auth == nil {
		return errors.New("session: authenticator not configured")
	}

	token, err := auth.Login(ctx, username, password)
	if err == nil && strings.TrimSpace(token) == "" {
		err = &shared.APIError{Kind: shared.ErrServerError, Op: "login", Message: "Token não recebido do servidor"}
	}
	if err == nil {
		err = m.persist(ctx, token, username)
	}
	if err != nil {
		m.reset(ctx)
		return classifyLoginError(err)
	}

	m.mu.Lock()
	m.state, m.token, m.username = Authenticated, token, username
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notifier.Notify(ctx, shared.Notice{Kind: shared.NoticeSuccess, Message: fmt.Sprintf("Bem-vindo, %s!", username)})
	m.publish(snap)
	return nil
}

func (m *Manager) persist(ctx context.Context, token, username string) error {
	if m.store == nil {
		return nil
	}
	rawUser, err := json.Marshal(storedUser{Username: username})
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, TokenKey, token); err != nil {
		return err
	}
	return m.store.Set(ctx, UserKey, string(rawUser))
}

func classifyLoginError(err error) error {
	for _, kind := range []error{
		shared.ErrInvalidCredentials,
		shared.ErrTimeout,
		shared.ErrNetworkUnavailable,
		shared.ErrServerError,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return &shared.APIError{Kind: shared.ErrServerError, Op: "login", Message: err.Error()}
}

// Logout clears the session unconditionally.
func (m *Manager) Logout(ctx context.Context) {
	m.reset(ctx)
	m.notifier.Notify(ctx, shared.Notice{Kind: shared.NoticeInfo, Message: "Você foi desconectado"})
}

// Expire handles an authorization failure reported for token. Only the first
// report for the active token transitions the session; later or stale
// reports are ignored. It returns whether the session was expired.
func (m *Manager) Expire(ctx context.Context, token string) bool {
	m.mu.Lock()
	if m.state != Authenticated || token != m.token {
		m.mu.Unlock()
		return false
	}
	m.state, m.token, m.username = Anonymous, "", ""
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.clearStore(ctx)
	m.notifier.Notify(ctx, shared.Notice{Kind: shared.NoticeWarn, Message: "Sessão expirada. Faça login novamente."})
	if m.nav != nil && m.nav.CurrentPath() != LoginPath {
		m.nav.Navigate(LoginPath)
	}
	m.publish(snap)
	return true
}

func (m *Manager) reset(ctx context.Context) {
	m.clearStore(ctx)
	m.mu.Lock()
	m.state, m.token, m.username = Anonymous, "", ""
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.readyOnce.Do(func() { close(m.ready) })
	m.publish(snap)
}

func (m *Manager) clearStore(ctx context.Context) {
	if m.store == nil {
		return
	}
	if err := m.store.Delete(ctx, TokenKey, UserKey); err != nil {
		m.logger.Warn("clear persisted session", slog.Any("error", err))
	}
}

// IsAuthenticated reports whether both token and username are present.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == Authenticated && m.token != "" && m.username != ""
}

// Token returns the bearer token, or "" when anonymous.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Username returns the logged-in username, or "".
func (m *Manager) Username() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.username
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Snapshot returns the current observable state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Subscribe registers fn to be called synchronously after each transition.
func (m *Manager) Subscribe(fn func(Snapshot)) (cancel func()) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()
	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{State: m.state, Username: m.username, Token: m.token}
}

func (m *Manager) publish(snap Snapshot) {
	m.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
