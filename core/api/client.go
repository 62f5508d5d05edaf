package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Bastien2203/pi-medias/config"
	"github.com/Bastien2203/pi-medias/logger"

	"github.com/google/uuid"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "pi-medias/1.0"

	headerRequestID = "X-Request-ID"
	headerFilename  = "Filename"
)

// Client talks to the media service. It holds no per-call state and is safe
// for concurrent use; the session token is passed to every operation.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	timeout       time.Duration
	uploadTimeout time.Duration
	userAgent     string
	metrics       *Metrics
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Timeout should be
// zero: a client-wide timeout would also cut long uploads.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds every request except upload bodies and streams.
// Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithUploadTimeout bounds uploads and media streams. Zero means no bound
// other than the caller's context.
func WithUploadTimeout(d time.Duration) Option {
	return func(c *Client) { c.uploadTimeout = d }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithMetrics instruments the transport with the given collectors.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a client for the service at baseURL
// ({protocol}://{host}:{port}).
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics != nil {
		hc := *c.httpClient
		hc.Transport = c.metrics.InstrumentRoundTripper(hc.Transport)
		c.httpClient = &hc
	}
	return c
}

// NewFromConfig creates a client from the loaded configuration.
func NewFromConfig(cfg *config.Config, opts ...Option) *Client {
	base := []Option{
		WithTimeout(cfg.APITimeout),
		WithUploadTimeout(cfg.APIUploadTimeout),
	}
	return NewClient(cfg.BaseURL(), append(base, opts...)...)
}

// BaseURL returns the service address the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) streamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.uploadTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.uploadTimeout)
}

// newRequest builds a request against the service. A malformed base address
// surfaces here and is reported as a transport failure.
func (c *Client) newRequest(ctx context.Context, op, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	c.decorate(req)
	return req, nil
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set(headerRequestID, uuid.NewString())
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
}

func setBearer(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
}

// do sends the request. The caller owns resp.Body on success.
func (c *Client) do(op string, req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn("[api] 请求失败",
			logger.String("op", op),
			logger.String("request_id", req.Header.Get(headerRequestID)),
			logger.ErrorField(err))
		return nil, &TransportError{Op: op, Err: err}
	}
	logger.Debug("[api] response",
		logger.String("op", op),
		logger.String("method", req.Method),
		logger.String("path", req.URL.Path),
		logger.Int("status", resp.StatusCode),
		logger.String("request_id", req.Header.Get(headerRequestID)),
		logger.Duration("elapsed", time.Since(start)))
	return resp, nil
}

func success(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// decodeJSON parses a success body. Anything unparseable is a transport
// failure.
func decodeJSON(op string, body io.Reader, v any) error {
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// drain reads and returns at most 4KiB of the body so the connection can be
// reused and the service's reason can be logged.
func drain(body io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(body, 4<<10))
	_, _ = io.CopyN(io.Discard, body, 64<<10)
	return strings.TrimSpace(string(b))
}
