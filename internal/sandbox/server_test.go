package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojaerp/erp-console/internal/apiclient"
	"github.com/lojaerp/erp-console/internal/erp"
	"github.com/lojaerp/erp-console/internal/observability"
	"github.com/lojaerp/erp-console/internal/session"
	"github.com/lojaerp/erp-console/internal/shared"
)

var testNow = time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	if opts.Users == nil {
		opts.Users = map[string]string{"admin": "admin123"}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}
	srv, err := New(opts)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func login(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(ts.URL+"/login", "application/json", strings.NewReader(`{"username":"admin","password":"admin123"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func authGet(t *testing.T, ts *httptest.Server, token, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp, err := http.Post(ts.URL+"/login", "application/json", strings.NewReader(`{"username":"admin","password":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
}

func TestLoginIsRateLimited(t *testing.T) {
	_, ts := newTestServer(t, Options{LoginRate: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := http.Post(ts.URL+"/login", "application/json", strings.NewReader(`{"username":"admin","password":"x"}`))
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{401, 401, 429}, codes)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv, ts := newTestServer(t, Options{})

	resp, err := http.Get(ts.URL + "/clientes")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token := login(t, ts)
	assert.Equal(t, http.StatusOK, authGet(t, ts, token, "/clientes").StatusCode)

	srv.Auth().Expire(token)
	assert.Equal(t, http.StatusUnauthorized, authGet(t, ts, token, "/clientes").StatusCode)
}

func TestListShapes(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	token := login(t, ts)

	var bare []erp.Produto
	require.NoError(t, json.NewDecoder(authGet(t, ts, token, "/produtos").Body).Decode(&bare))
	assert.Len(t, bare, 3)

	var page shared.Page[erp.Produto]
	require.NoError(t, json.NewDecoder(authGet(t, ts, token, "/produtos?page=1&size=2").Body).Decode(&page))
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 3, page.TotalElements)
	require.Len(t, page.Content, 1)
	assert.Equal(t, "INF-001", page.Content[0].Codigo)

	var beyond shared.Page[erp.Produto]
	require.NoError(t, json.NewDecoder(authGet(t, ts, token, "/produtos?page=9&size=2").Body).Decode(&beyond))
	assert.Empty(t, beyond.Content)

	assert.Equal(t, http.StatusBadRequest, authGet(t, ts, token, "/produtos?page=-1&size=2").StatusCode)
	assert.Equal(t, http.StatusBadRequest, authGet(t, ts, token, "/vendas?valorMin=abc").StatusCode)
}

func TestSecurityHeadersAndMetrics(t *testing.T) {
	metrics := observability.NewMetrics("sandbox_test")
	_, ts := newTestServer(t, Options{Metrics: metrics})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Contains(t, buf.String(), "sandbox_test_http_requests_total")
}

func TestExportEndpoint(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	token := login(t, ts)

	resp := authGet(t, ts, token, "/relatorios/produtos/exportar")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "relatorio_produtos_20240215.csv")

	assert.Equal(t, http.StatusNotFound, authGet(t, ts, token, "/relatorios/outros/exportar").StatusCode)
}

type recordingNavigator struct {
	mu    sync.Mutex
	path  string
	moves []string
}

func (n *recordingNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *recordingNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.path = path
	n.moves = append(n.moves, path)
}

// TestConsoleAgainstSandbox drives the client stack end to end: login,
// paginated listing, a priced sale and a server-side token revocation.
func TestConsoleAgainstSandbox(t *testing.T) {
	srv, ts := newTestServer(t, Options{})
	ctx := context.Background()

	notifier := &shared.RecordingNotifier{}
	nav := &recordingNavigator{path: "/vendas"}
	store := session.NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	manager := session.NewManager(session.Options{Store: store, Navigator: nav, Notifier: notifier})
	client, err := apiclient.New(apiclient.Options{BaseURL: ts.URL, Tokens: manager, Expirer: manager, Notifier: notifier})
	require.NoError(t, err)
	manager.SetAuthenticator(client)
	api := erp.NewAPI(client, notifier)

	require.NoError(t, manager.Init(ctx))
	require.NoError(t, manager.Login(ctx, "admin", "admin123"))
	token := manager.Token()

	page, err := api.Clientes.List(ctx, erp.ListParams{Page: 0, Size: 1, Search: "maria"})
	require.NoError(t, err)
	require.Len(t, page.Content, 1)
	assert.Equal(t, "Maria Oliveira", page.Content[0].Nome)

	produtos, err := api.Produtos.All(ctx)
	require.NoError(t, err)
	estoque, err := api.Estoque.All(ctx)
	require.NoError(t, err)

	venda, err := api.Vendas.Register(ctx, erp.VendaDraft{ClienteID: 2, Itens: []erp.VendaDraftItem{{ProdutoID: 3, Quantidade: 2}}},
		erp.IndexProdutos(produtos), erp.IndexEstoque(estoque))
	require.NoError(t, err)
	assert.Equal(t, "90.00", venda.Total.StringFixed(2))
	row, err := srv.Store().EstoqueRow(3)
	require.NoError(t, err)
	assert.Equal(t, 45, row.Quantidade)

	// Stale local stock lets the request through; the backend answers 409.
	_, err = api.Vendas.Register(ctx, erp.VendaDraft{ClienteID: 2, Itens: []erp.VendaDraftItem{{ProdutoID: 3, Quantidade: 46}}},
		erp.IndexProdutos(produtos), erp.IndexEstoque(estoque))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	srv.Auth().Expire(token)
	_, err = api.Vendas.All(ctx)
	require.ErrorIs(t, err, shared.ErrSessionExpired)
	assert.Equal(t, session.Anonymous, manager.State())
	assert.Equal(t, []string{session.LoginPath}, nav.moves)
	assert.Equal(t, 1, notifier.Count(shared.NoticeWarn))

	_, ok, err := store.Get(ctx, session.TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)
}
