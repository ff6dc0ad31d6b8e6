package observability

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics("erp_sandbox")

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics("erp_sandbox")

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/clientes/{id}")
	req := httptest.NewRequest(http.MethodGet, "/clientes/4", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.requestsTotal.WithLabelValues("/clientes/{id}", "418")))
	assert.Zero(t, testutil.ToFloat64(metrics.inFlight))

	body := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(body, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(body.Body.String(), "erp_sandbox_http_request_duration_seconds"))
}

func TestRegistererAcceptsComponentCollectors(t *testing.T) {
	metrics := NewMetrics("erp_console")
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "erp_client_requests_total", Help: "x"})

	require.NoError(t, metrics.Registerer().Register(counter))

	var nilMetrics *Metrics
	assert.Nil(t, nilMetrics.Registerer())
	rr := httptest.NewRecorder()
	nilMetrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServeExposesMetricsAndLogsBindFailure(t *testing.T) {
	metrics := NewMetrics("erp_console")
	logs := &lockedBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := metrics.Serve(addr, logger)
	t.Cleanup(func() { _ = srv.Close() })
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	busy := metrics.Serve(addr, logger)
	t.Cleanup(func() { _ = busy.Close() })
	require.Eventually(t, func() bool {
		return strings.Contains(logs.String(), "metrics server")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, logs.String(), addr)

	require.NoError(t, srv.Close())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, strings.Count(logs.String(), "metrics server"))
}
