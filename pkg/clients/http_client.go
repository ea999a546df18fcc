// Package clients provides the HTTP client used to talk to the remote API:
// HTTP/2 transport, client-side rate limiting, gzip decoding, retries for
// transient failures and request metrics.
package clients

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/oauth2"

	"github.com/ajitpratap0/crmtap/pkg/errors"
)

// maxErrorBody caps how much of a failed response body is kept in the error.
const maxErrorBody = 4 << 10

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	// Connection settings
	MaxIdleConns        int           `json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout"`
	DisableCompression  bool          `json:"disable_compression"`
	EnableHTTP2         bool          `json:"enable_http2"`

	// Timeouts
	DialTimeout           time.Duration `json:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration `json:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `json:"response_header_timeout"`
	RequestTimeout        time.Duration `json:"request_timeout"`
	KeepAlive             time.Duration `json:"keep_alive"`

	// Rate limiting. Zero disables it.
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`

	// Retries for transient failures
	RetryAttempts int           `json:"retry_attempts"`
	RetryDelay    time.Duration `json:"retry_delay"`

	UserAgent string `json:"user_agent"`
}

// DefaultHTTPConfig returns the default configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		EnableHTTP2:           true,
		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		RequestTimeout:        60 * time.Second,
		KeepAlive:             30 * time.Second,
		RetryAttempts:         3,
		RetryDelay:            time.Second,
		UserAgent:             "crmtap/1.0",
	}
}

// HTTPClient is the remote API client. Requests go through an instrumented
// transport; once a token source is installed they are also authenticated.
type HTTPClient struct {
	config      *HTTPConfig
	logger      *zap.Logger
	transport   *http.Transport
	base        *http.Client
	rateLimiter RateLimiter
	retry       *RetryPolicy
	metrics     *HTTPMetrics

	mu     sync.RWMutex
	authed *http.Client
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(config *HTTPConfig, logger *zap.Logger) *HTTPClient {
	if config == nil {
		config = DefaultHTTPConfig()
	}

	client := &HTTPClient{
		config:  config,
		logger:  logger.With(zap.String("component", "http_client")),
		metrics: NewHTTPMetrics(),
		retry:   NewRetryPolicy(config.RetryAttempts, config.RetryDelay),
	}

	client.transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: config.KeepAlive,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		DisableCompression:    true, // gzip is negotiated and decoded in roundTrip
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}

	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(client.transport); err != nil {
			client.logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	if config.RateLimit > 0 {
		burst := config.RateBurst
		if burst <= 0 {
			burst = int(config.RateLimit)
		}
		client.rateLimiter = NewTokenBucketRateLimiter(config.RateLimit, burst)
	}

	client.base = &http.Client{
		Transport: roundTripperFunc(client.roundTrip),
		Timeout:   config.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	return client
}

// BaseClient returns the instrumented client without authentication. The
// OAuth token endpoint is called through it.
func (c *HTTPClient) BaseClient() *http.Client {
	return c.base
}

// UseTokenSource authenticates every later request with tokens from ts.
func (c *HTTPClient) UseTokenSource(ts oauth2.TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authed = &http.Client{
		Transport:     &oauth2.Transport{Source: ts, Base: c.base.Transport},
		Timeout:       c.base.Timeout,
		CheckRedirect: c.base.CheckRedirect,
	}
}

func (c *HTTPClient) client() *http.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authed != nil {
		return c.authed
	}
	return c.base
}

// GetJSON performs a GET and decodes the JSON body into out. Transient
// failures are retried. The response headers of the final attempt are returned.
func (c *HTTPClient) GetJSON(ctx context.Context, url string, headers map[string]string, out any) (http.Header, error) {
	var respHeader http.Header

	err := c.retry.Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to build request")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client().Do(req)
		if err != nil {
			return classifyTransportError(ctx, err)
		}
		defer resp.Body.Close()
		respHeader = resp.Header

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return statusError(resp)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, errors.ErrorTypeAPI, "failed to decode response").
				WithDetail("url", url)
		}
		return nil
	}, func(err error) bool {
		if errors.IsRetryable(err) {
			c.logger.Warn("retrying request", zap.String("url", url), zap.Error(err))
			return true
		}
		return false
	})

	return respHeader, err
}

// Stats returns request statistics
func (c *HTTPClient) Stats() HTTPStats {
	stats := c.metrics.Stats()
	if c.rateLimiter != nil {
		rl := c.rateLimiter.GetStats()
		stats.RateLimiter = &rl
	}
	return stats
}

// Close releases idle connections
func (c *HTTPClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

// roundTrip applies rate limiting, negotiates gzip and records metrics.
func (c *HTTPClient) roundTrip(req *http.Request) (*http.Response, error) {
	if c.rateLimiter != nil {
		if err := c.rateLimiter.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req = req.Clone(req.Context())
	if !c.config.DisableCompression && req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip")
	}
	if req.Header.Get("User-Agent") == "" && c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	start := time.Now()
	resp, err := c.transport.RoundTrip(req)
	c.metrics.RecordRequest(req.Method, req.URL.Host, time.Since(start), resp, err)
	if err != nil {
		return nil, err
	}

	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("gzip response: %w", err)
		}
		resp.Body = &gzipBody{Reader: zr, raw: resp.Body}
		resp.Header.Del("Content-Encoding")
		resp.Header.Del("Content-Length")
		resp.ContentLength = -1
		resp.Uncompressed = true
	}
	return resp, nil
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

type gzipBody struct {
	*gzip.Reader
	raw io.ReadCloser
}

func (b *gzipBody) Close() error {
	_ = b.Reader.Close()
	return b.raw.Close()
}

// statusError maps a non-2xx response to a typed error.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := fmt.Sprintf("remote returned %d", resp.StatusCode)

	var errType errors.ErrorType
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		errType = errors.ErrorTypeAuthentication
	case resp.StatusCode == http.StatusTooManyRequests:
		errType = errors.ErrorTypeRateLimit
	case resp.StatusCode >= 500:
		errType = errors.ErrorTypeConnection
	default:
		errType = errors.ErrorTypeAPI
	}

	return errors.New(errType, msg).
		WithDetail("status", resp.StatusCode).
		WithDetail("body", strings.TrimSpace(string(body))).
		WithDetail("url", resp.Request.URL.String())
}

// classifyTransportError maps a failed round trip to a typed error.
func classifyTransportError(ctx context.Context, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if stderrors.As(err, &retrieveErr) {
		return errors.Wrap(err, errors.ErrorTypeAuthentication, "token refresh rejected")
	}
	if ctx.Err() != nil {
		return errors.Wrap(err, errors.ErrorTypeTimeout, "request cancelled")
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.Wrap(err, errors.ErrorTypeTimeout, "request timed out")
	}
	return errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
}
