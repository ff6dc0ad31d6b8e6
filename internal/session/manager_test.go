package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojaerp/erp-console/internal/shared"
)

type fakeAuth struct {
	token string
	err   error
	calls atomic.Int32
}

func (a *fakeAuth) Login(context.Context, string, string) (string, error) {
	a.calls.Add(1)
	return a.token, a.err
}

type fakeNav struct {
	mu    sync.Mutex
	path  string
	moves []string
}

func (n *fakeNav) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *fakeNav) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
	n.moves = append(n.moves, path)
}

func newManager(t *testing.T, auth Authenticator) (*Manager, *FileStore, *fakeNav, *shared.RecordingNotifier) {
	t.Helper()
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	nav := &fakeNav{path: "/clientes"}
	notifier := &shared.RecordingNotifier{}
	m := NewManager(Options{Store: store, Authenticator: auth, Navigator: nav, Notifier: notifier})
	return m, store, nav, notifier
}

func TestInitRestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	m, store, _, _ := newManager(t, nil)
	require.NoError(t, store.Set(ctx, TokenKey, "tok"))
	require.NoError(t, store.Set(ctx, UserKey, `{"username":"admin"}`))

	assert.Equal(t, Initializing, m.State())
	require.NoError(t, m.Init(ctx))

	assert.True(t, m.IsAuthenticated())
	assert.Equal(t, "tok", m.Token())
	assert.Equal(t, "admin", m.Username())
	require.NoError(t, m.RequireAuth(ctx))
}

func TestInitDiscardsPartialOrCorruptState(t *testing.T) {
	cases := map[string]map[string]string{
		"token only":   {TokenKey: "tok"},
		"user only":    {UserKey: `{"username":"admin"}`},
		"corrupt user": {TokenKey: "tok", UserKey: "{"},
		"blank name":   {TokenKey: "tok", UserKey: `{"username":" "}`},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m, store, _, _ := newManager(t, nil)
			for k, v := range values {
				require.NoError(t, store.Set(ctx, k, v))
			}

			require.NoError(t, m.Init(ctx))

			assert.Equal(t, Anonymous, m.State())
			assert.ErrorIs(t, m.RequireAuth(ctx), ErrNotAuthenticated)
			_, ok, err := store.Get(ctx, TokenKey)
			require.NoError(t, err)
			assert.False(t, ok)
			_, ok, err = store.Get(ctx, UserKey)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestRequireAuthWaitsForInit(t *testing.T) {
	m, _, _, _ := newManager(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, m.RequireAuth(ctx), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- m.RequireAuth(context.Background()) }()
	require.NoError(t, m.Init(context.Background()))
	assert.ErrorIs(t, <-done, ErrNotAuthenticated)
}

func TestLoginPersistsAndNotifies(t *testing.T) {
	ctx := context.Background()
	m, store, _, notifier := newManager(t, &fakeAuth{token: "tok-1"})
	var seen []Snapshot
	cancel := m.Subscribe(func(s Snapshot) { seen = append(seen, s) })
	defer cancel()

	require.NoError(t, m.Login(ctx, "admin", "secret"))

	assert.True(t, m.IsAuthenticated())
	token, ok, err := store.Get(ctx, TokenKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, []shared.Notice{{Kind: shared.NoticeSuccess, Message: "Bem-vindo, admin!"}}, notifier.Notices())
	require.NotEmpty(t, seen)
	assert.Equal(t, Snapshot{State: Authenticated, Username: "admin", Token: "tok-1"}, seen[len(seen)-1])
}

func TestLoginFailures(t *testing.T) {
	ctx := context.Background()

	m, store, _, notifier := newManager(t, &fakeAuth{err: &shared.APIError{Kind: shared.ErrInvalidCredentials, Status: 401}})
	require.NoError(t, store.Set(ctx, TokenKey, "stale"))
	require.NoError(t, store.Set(ctx, UserKey, `{"username":"old"}`))
	require.NoError(t, m.Init(ctx))

	err := m.Login(ctx, "admin", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
	assert.Equal(t, Anonymous, m.State())
	assert.Empty(t, m.Token())
	_, ok, _ := store.Get(ctx, TokenKey)
	assert.False(t, ok)
	assert.Empty(t, notifier.Notices())

	m2, _, _, _ := newManager(t, &fakeAuth{token: "  "})
	err = m2.Login(ctx, "admin", "x")
	require.ErrorIs(t, err, shared.ErrServerError)
	assert.False(t, m2.IsAuthenticated())

	m3, _, _, _ := newManager(t, &fakeAuth{err: errors.New("boom")})
	err = m3.Login(ctx, "admin", "x")
	require.ErrorIs(t, err, shared.ErrServerError)

	m4, _, _, _ := newManager(t, nil)
	require.Error(t, m4.Login(ctx, "admin", "x"))
}

func TestLogoutClearsEverything(t *testing.T) {
	ctx := context.Background()
	m, store, _, notifier := newManager(t, &fakeAuth{token: "tok"})
	require.NoError(t, m.Login(ctx, "admin", "secret"))

	m.Logout(ctx)

	assert.Equal(t, Anonymous, m.State())
	assert.Empty(t, m.Username())
	_, ok, _ := store.Get(ctx, UserKey)
	assert.False(t, ok)
	assert.Equal(t, 1, notifier.Count(shared.NoticeInfo))
}

func TestExpireRunsOnceUnderConcurrentFailures(t *testing.T) {
	ctx := context.Background()
	m, store, nav, notifier := newManager(t, &fakeAuth{token: "tok"})
	require.NoError(t, m.Login(ctx, "admin", "secret"))

	var expired atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Expire(ctx, "tok") {
				expired.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), expired.Load())
	assert.Equal(t, Anonymous, m.State())
	assert.Equal(t, []string{LoginPath}, nav.moves)
	assert.Equal(t, 1, notifier.Count(shared.NoticeWarn))
	_, ok, _ := store.Get(ctx, TokenKey)
	assert.False(t, ok)
}

func TestExpireIgnoresStaleToken(t *testing.T) {
	ctx := context.Background()
	auth := &fakeAuth{token: "old"}
	m, _, nav, _ := newManager(t, auth)
	require.NoError(t, m.Login(ctx, "admin", "secret"))
	auth.token = "new"
	require.NoError(t, m.Login(ctx, "admin", "secret"))

	assert.False(t, m.Expire(ctx, "old"))
	assert.True(t, m.IsAuthenticated())
	assert.Empty(t, nav.moves)
}

func TestExpireOnLoginPageDoesNotNavigate(t *testing.T) {
	ctx := context.Background()
	m, _, nav, _ := newManager(t, &fakeAuth{token: "tok"})
	require.NoError(t, m.Login(ctx, "admin", "secret"))
	nav.path = LoginPath

	assert.True(t, m.Expire(ctx, "tok"))
	assert.Empty(t, nav.moves)
}

func TestSubscribeCancel(t *testing.T) {
	ctx := context.Background()
	m, _, _, _ := newManager(t, &fakeAuth{token: "tok"})
	var calls atomic.Int32
	cancel := m.Subscribe(func(Snapshot) { calls.Add(1) })

	require.NoError(t, m.Init(ctx))
	cancel()
	require.NoError(t, m.Login(ctx, "admin", "secret"))

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "anonymous", Anonymous.String())
}
