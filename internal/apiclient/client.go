// Package apiclient is the shared HTTP client for the ERP REST backend. It
// attaches the session token to every request and turns HTTP failures into
// the typed errors of package shared.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lojaerp/erp-console/internal/shared"
)

const (
	// DefaultTimeout is the per-request deadline.
	DefaultTimeout = 10 * time.Second

	maxErrorBody = 64 << 10
)

// TokenSource supplies the bearer token for outbound requests.
type TokenSource interface {
	Token() string
}

// Expirer is told when an authenticated request came back 401.
type Expirer interface {
	Expire(ctx context.Context, token string) bool
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Tokens     TokenSource
	Expirer    Expirer
	Notifier   shared.Notifier
	Logger     *slog.Logger
	Registerer prometheus.Registerer
	HTTPClient *http.Client
}

// Client performs JSON requests against the backend.
type Client struct {
	baseURL    *url.URL
	timeout    time.Duration
	tokens     TokenSource
	expirer    Expirer
	notifier   shared.Notifier
	logger     *slog.Logger
	httpClient *http.Client
	metrics    *clientMetrics
}

// New constructs a Client.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("apiclient: invalid base url %q", opts.BaseURL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = shared.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics, err := newClientMetrics(opts.Registerer)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:    base,
		timeout:    timeout,
		tokens:     opts.Tokens,
		expirer:    opts.Expirer,
		notifier:   notifier,
		logger:     logger,
		httpClient: httpClient,
		metrics:    metrics,
	}, nil
}

// call describes one outbound request.
type call struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	login  bool
}

// Login exchanges credentials for a token. A 401 here means bad credentials
// and never expires the session.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	payload := map[string]string{"username": username, "password": password}
	raw, err := c.do(ctx, call{op: "login", method: http.MethodPost, path: "/login", body: payload, login: true})
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &shared.APIError{Kind: shared.ErrServerError, Op: "login", Message: "resposta inválida: " + err.Error()}
	}
	return out.Token, nil
}

// GetJSON performs a GET and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, op, path string, query url.Values, out any) error {
	raw, err := c.do(ctx, call{op: op, method: http.MethodGet, path: path, query: query})
	if err != nil {
		return err
	}
	return decode(op, raw, out)
}

// PostJSON performs a POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, op, path string, body, out any) error {
	raw, err := c.do(ctx, call{op: op, method: http.MethodPost, path: path, body: body})
	if err != nil {
		return err
	}
	return decode(op, raw, out)
}

// PutJSON performs a PUT replacing the whole resource.
func (c *Client) PutJSON(ctx context.Context, op, path string, body, out any) error {
	raw, err := c.do(ctx, call{op: op, method: http.MethodPut, path: path, body: body})
	if err != nil {
		return err
	}
	return decode(op, raw, out)
}

// Delete performs a DELETE.
func (c *Client) Delete(ctx context.Context, op, path string) error {
	_, err := c.do(ctx, call{op: op, method: http.MethodDelete, path: path})
	return err
}

// Download performs a GET and returns the raw body, for file exports.
func (c *Client) Download(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, call{op: op, method: http.MethodGet, path: path, query: query})
}

func decode(op string, raw []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &shared.APIError{Kind: shared.ErrServerError, Op: op, Message: "resposta inválida: " + err.Error()}
	}
	return nil
}

func (c *Client) do(ctx context.Context, cl call) ([]byte, error) {
	start := time.Now()
	token := ""
	if c.tokens != nil {
		token = c.tokens.Token()
	}

	req, cancel, err := c.newRequest(ctx, cl, token)
	if err != nil {
		return nil, err
	}
	defer cancel()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = c.transportError(ctx, cl, err)
		c.metrics.observe(cl.op, outcomeOf(err), time.Since(start))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			err = c.transportError(ctx, cl, err)
			c.metrics.observe(cl.op, outcomeOf(err), time.Since(start))
			return nil, err
		}
		c.metrics.observe(cl.op, "ok", time.Since(start))
		return body, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	err = c.statusError(ctx, cl, token, resp.StatusCode, errorMessage(body))
	c.metrics.observe(cl.op, outcomeOf(err), time.Since(start))
	c.logger.Debug("api call failed",
		slog.String("op", cl.op),
		slog.String("method", cl.method),
		slog.String("path", cl.path),
		slog.Int("status", resp.StatusCode),
		slog.Any("error", err))
	return nil, err
}

func (c *Client) newRequest(ctx context.Context, cl call, token string) (*http.Request, context.CancelFunc, error) {
	target := *c.baseURL
	target.Path = c.baseURL.Path + cl.path
	if len(cl.query) > 0 {
		target.RawQuery = cl.query.Encode()
	}

	var body io.Reader
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return nil, nil, fmt.Errorf("apiclient: %s: encode body: %w", cl.op, err)
		}
		body = bytes.NewReader(payload)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	req, err := http.NewRequestWithContext(reqCtx, cl.method, target.String(), body)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("apiclient: %s: %w", cl.op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, cancel, nil
}

func (c *Client) transportError(ctx context.Context, cl call, err error) error {
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		// The caller gave up; nothing to tell the operator.
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		if !cl.login {
			c.notify(ctx, shared.NoticeError, "Tempo de conexão esgotado")
		}
		return &shared.APIError{Kind: shared.ErrTimeout, Op: cl.op}
	}
	if !cl.login {
		c.notify(ctx, shared.NoticeError, "Erro de conexão com o servidor")
	}
	return &shared.APIError{Kind: shared.ErrNetworkUnavailable, Op: cl.op, Message: err.Error()}
}

func (c *Client) statusError(ctx context.Context, cl call, token string, status int, message string) error {
	switch {
	case status == http.StatusUnauthorized && cl.login:
		return &shared.APIError{Kind: shared.ErrInvalidCredentials, Op: cl.op, Status: status, Message: message}
	case status == http.StatusUnauthorized:
		if c.expirer != nil && token != "" {
			c.expirer.Expire(context.WithoutCancel(ctx), token)
		}
		return &shared.APIError{Kind: shared.ErrSessionExpired, Op: cl.op, Status: status, Message: message}
	case status == http.StatusForbidden:
		c.notify(ctx, shared.NoticeError, "Você não tem permissão para esta ação")
		return &shared.APIError{Kind: shared.ErrPermissionDenied, Op: cl.op, Status: status, Message: message}
	case status == http.StatusNotFound:
		return &shared.APIError{Kind: shared.ErrNotFound, Op: cl.op, Status: status, Message: message}
	case status == http.StatusBadRequest || status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		return &shared.APIError{Kind: shared.ErrValidation, Op: cl.op, Status: status, Message: message}
	default:
		if !cl.login {
			c.notify(ctx, shared.NoticeError, "Erro no servidor. Tente novamente mais tarde.")
		}
		return &shared.APIError{Kind: shared.ErrServerError, Op: cl.op, Status: status, Message: message}
	}
}

func (c *Client) notify(ctx context.Context, kind shared.NoticeKind, message string) {
	c.notifier.Notify(ctx, shared.Notice{Kind: kind, Message: message})
}

// errorMessage extracts a human message from common backend error bodies.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.Error != "":
			return payload.Error
		case payload.Detail != "":
			return payload.Detail
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
