package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// Retry and backoff defaults.
const (
	defaultMaxRetries = 5
	baseBackoff       = 1 * time.Second
	maxBackoff        = 60 * time.Second
	backoffFactor     = 2.0
	jitterFraction    = 0.25

	defaultRequestIDHeader = "X-Request-Id"
)

// ErrTokenUnavailable is returned when the TokenSource cannot produce a
// bearer token. It is never retried.
var ErrTokenUnavailable = errors.New("httpapi: token unavailable")

// TokenSource provides OAuth2 bearer tokens. Defined at the consumer
// per Go convention "accept interfaces, return structs".
type TokenSource interface {
	Token() (string, error)
}

// Client is an authenticated HTTP client for a single API host. It handles
// request construction, bearer authentication, retry with exponential
// backoff, and error classification.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	token           TokenSource
	logger          *slog.Logger
	userAgent       string
	requestIDHeader string
	maxRetries      int
	retryable       func(code int, body []byte) bool

	// sleepFunc is called to wait between retries. Tests override this to
	// avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

// WithMaxRetries sets how many times a retryable failure is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithRetryable replaces the status-code retry policy. The response body is
// passed so providers can retry errors that reuse a generic status, such
// as Drive's 403 rateLimitExceeded.
func WithRetryable(fn func(code int, body []byte) bool) Option {
	return func(c *Client) {
		if fn != nil {
			c.retryable = fn
		}
	}
}

// WithSleepFunc replaces the wait between retries.
func WithSleepFunc(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleepFunc = fn
		}
	}
}

// WithRequestIDHeader names the response header carrying the server's
// request ID, recorded on APIError.
func WithRequestIDHeader(name string) Option {
	return func(c *Client) {
		c.requestIDHeader = name
	}
}

// NewClient creates a client rooted at baseURL. token must not be nil.
func NewClient(
	baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, userAgent string, opts ...Option,
) *Client {
	if token == nil {
		panic("httpapi: NewClient called with nil TokenSource")
	}

	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	c := &Client{
		baseURL:         baseURL,
		httpClient:      httpClient,
		token:           token,
		logger:          logger,
		userAgent:       userAgent,
		requestIDHeader: defaultRequestIDHeader,
		maxRetries:      defaultMaxRetries,
		retryable:       DefaultRetryable,
		sleepFunc:       timeSleep,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the URL prefix requests are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// UserAgent returns the User-Agent sent on every request.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Do executes an authenticated request. The path is appended to the base
// URL. For non-nil bodies, Content-Type is set to application/json.
// The caller is responsible for closing the response body on success.
func (c *Client) Do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	var headers http.Header
	if body != nil {
		headers = http.Header{"Content-Type": {"application/json"}}
	}

	return c.DoWithHeaders(ctx, method, path, body, headers)
}

// DoWithHeaders is Do with caller-supplied headers. No Content-Type is
// implied; set it in headers when sending a body.
func (c *Client) DoWithHeaders(
	ctx context.Context, method, path string, body io.Reader, headers http.Header,
) (*http.Response, error) {
	url := c.baseURL + path

	return c.doRetry(ctx, method+" "+path, body, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		tok, err := c.token.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
		}

		for k, vals := range headers {
			for _, v := range vals {
				req.Header.Add(k, v)
			}
		}

		req.Header.Set("Authorization", "Bearer "+tok)
		req.Header.Set("User-Agent", c.userAgent)

		return req, nil
	})
}

// DoPreAuth retries requests against pre-authenticated URLs (upload
// session URIs) that must not carry the bearer token. makeReq builds a
// fresh request per attempt. A 308 Resume Incomplete counts as success.
func (c *Client) DoPreAuth(
	ctx context.Context, desc string, makeReq func() (*http.Request, error),
) (*http.Response, error) {
	return c.doRetry(ctx, desc, nil, func() (*http.Request, error) {
		req, err := makeReq()
		if err != nil {
			return nil, err
		}

		if req.Header.Get("User-Agent") == "" && c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		return req, nil
	})
}

// doRetry runs makeReq/httpClient.Do until success, a non-retryable
// failure, or retries are exhausted. Seekable bodies are rewound before
// every attempt.
func (c *Client) doRetry(
	ctx context.Context, desc string, body io.Reader, makeReq func() (*http.Request, error),
) (*http.Response, error) {
	var attempt int

	for {
		if err := rewindBody(body); err != nil {
			return nil, err
		}

		req, err := makeReq()
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("httpapi: request canceled: %w", ctx.Err())
			}

			if attempt < c.maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("request", desc),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("httpapi: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("httpapi: %s failed after %d retries: %w", desc, c.maxRetries, err)
		}

		if isSuccess(resp.StatusCode) {
			c.logger.Debug("request succeeded",
				slog.String("request", desc),
				slog.Int("status", resp.StatusCode),
			)

			return resp, nil
		}

		errBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		if c.retryable(resp.StatusCode, errBody) && attempt < c.maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("request", desc),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("httpapi: request canceled: %w", err)
			}

			attempt++

			continue
		}

		apiErr := NewAPIError(resp, errBody, c.requestIDHeader)
		if c.retryable(resp.StatusCode, errBody) && Classify(apiErr) != ClassTransient {
			// Provider-specific throttling on a generic status.
			apiErr.Err = ErrThrottled
		}

		if attempt > 0 {
			c.logger.Error("request failed after retries",
				slog.String("request", desc),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempts", attempt+1),
			)
		}

		return nil, apiErr
	}
}

// isSuccess reports whether a status ends the retry loop successfully.
// 308 is Google's "Resume Incomplete" for resumable uploads.
func isSuccess(code int) bool {
	return (code >= http.StatusOK && code < http.StatusMultipleChoices) || code == http.StatusPermanentRedirect
}

// rewindBody seeks body back to the start when it supports seeking.
func rewindBody(body io.Reader) error {
	seeker, ok := body.(io.Seeker)
	if !ok {
		return nil
	}

	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("httpapi: rewinding request body for retry: %w", err)
	}

	return nil
}

// retryBackoff returns the backoff for a retryable response. A numeric
// Retry-After header on 429 or 503 takes precedence.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
