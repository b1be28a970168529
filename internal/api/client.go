// Package api is the single point of outbound HTTP to the routine service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/claude/rutinas/internal/credstore"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Client calls the routine service. It holds no session state of its own:
// the token source is consulted before every request.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         oauth2.TokenSource
	log            *slog.Logger
	onUnauthorized func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (30s timeout). Used to route
// requests through a tailnet.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the request logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithUnauthorizedHook registers fn to run when a request that carried a
// bearer token is answered with 401.
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// New creates a Client targeting baseURL. tokens may be nil for a client
// that never authenticates.
func New(baseURL string, tokens oauth2.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		log:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetUnauthorizedHook replaces the 401 hook after construction; the session
// controller is built after the client it depends on.
func (c *Client) SetUnauthorizedHook(fn func()) {
	c.onUnauthorized = fn
}

// Do sends one request and returns the raw response body. body may be nil,
// url.Values (sent form-encoded) or any JSON-marshalable value. There are
// no retries.
func (c *Client) Do(ctx context.Context, method, path string, body any, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, method, path, body, query, true)
}

// doAnonymous is Do without credentials. Auth endpoints use it so a
// rejected login never looks like an expired session.
func (c *Client) doAnonymous(ctx context.Context, method, path string, body any, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, method, path, body, query, false)
}

func (c *Client) do(ctx context.Context, method, path string, body any, query url.Values, withAuth bool) (json.RawMessage, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var (
		reader      io.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
	case url.Values:
		reader = strings.NewReader(b.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("api: encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("api: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	requestID := uuid.NewString()
	req.Header.Set("X-Request-ID", requestID)

	authed := false
	if withAuth {
		if authed, err = c.authorize(req); err != nil {
			return nil, &Error{Kind: KindTransport, Method: method, Path: path, Err: err}
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("request failed", "method", method, "path", path, "request_id", requestID, "error", err)
		return nil, &Error{Kind: KindTransport, Method: method, Path: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Method: method, Path: path, Err: fmt.Errorf("read body: %w", err)}
	}

	c.log.Debug("request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start).String(),
		"request_id", requestID,
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{
			Kind:   kindForStatus(resp.StatusCode),
			Status: resp.StatusCode,
			Detail: serviceDetail(data),
			Method: method,
			Path:   path,
		}
		if apiErr.Kind == KindUnauthorized && authed && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return nil, apiErr
	}
	return data, nil
}

// authorize attaches the bearer header when a token is stored.
func (c *Client) authorize(req *http.Request) (bool, error) {
	if c.tokens == nil {
		return false, nil
	}
	tok, err := c.tokens.Token()
	if errors.Is(err, credstore.ErrNoToken) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading credentials: %w", err)
	}
	tok.SetAuthHeader(req)
	return true, nil
}

func decode[T any](data json.RawMessage, what string) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("api: decode %s: %w", what, err)
	}
	return v, nil
}
