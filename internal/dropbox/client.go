// Package dropbox is a client for the Dropbox v2 HTTP API, limited to what
// a read-only migration needs: recursive listing, downloads, sharing
// metadata, and the current account.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tonimelisma/drive-migrate/internal/httpapi"
)

// Production hosts. RPC endpoints live on the API host, content
// endpoints on the content host.
const (
	DefaultAPIURL     = "https://api.dropboxapi.com/2"
	DefaultContentURL = "https://content.dropboxapi.com/2"

	requestIDHeader = "X-Dropbox-Request-Id"
)

// ErrPathNotFound is returned when the addressed path does not exist.
var ErrPathNotFound = errors.New("dropbox: path not found")

// Client talks to the API and content hosts with the same credentials.
type Client struct {
	api     *httpapi.Client
	content *httpapi.Client
	logger  *slog.Logger
}

// NewClient creates a client. Empty URLs select the production hosts.
func NewClient(
	apiURL, contentURL string, httpClient *http.Client, token httpapi.TokenSource, logger *slog.Logger, userAgent string,
	opts ...httpapi.Option,
) *Client {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}

	if contentURL == "" {
		contentURL = DefaultContentURL
	}

	if logger == nil {
		logger = slog.Default()
	}

	opts = append([]httpapi.Option{httpapi.WithRequestIDHeader(requestIDHeader)}, opts...)

	return &Client{
		api:     httpapi.NewClient(apiURL, httpClient, token, logger, userAgent, opts...),
		content: httpapi.NewClient(contentURL, httpClient, token, logger, userAgent, opts...),
		logger:  logger,
	}
}

// rpc posts arg as JSON to an API endpoint and decodes the result into out.
// A nil arg sends no body.
func (c *Client) rpc(ctx context.Context, endpoint string, arg, out any) error {
	var (
		resp *http.Response
		err  error
	)

	if arg == nil {
		resp, err = c.api.Do(ctx, http.MethodPost, endpoint, nil)
	} else {
		body, marshalErr := json.Marshal(arg)
		if marshalErr != nil {
			return fmt.Errorf("dropbox: encoding %s arguments: %w", endpoint, marshalErr)
		}

		resp, err = c.api.Do(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	}

	if err != nil {
		return translateError(endpoint, err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("dropbox: decoding %s response: %w", endpoint, err)
	}

	return nil
}

// endpointError is the body of a 409 endpoint-specific error.
type endpointError struct {
	ErrorSummary string `json:"error_summary"`
}

// errorSummary extracts error_summary from a Dropbox 409 response, e.g.
// "path/not_found/..".
func errorSummary(err error) string {
	var apiErr *httpapi.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		return ""
	}

	var ee endpointError
	if json.Unmarshal([]byte(apiErr.Message), &ee) != nil {
		return ""
	}

	return ee.ErrorSummary
}

// translateError marks lookup failures with ErrPathNotFound.
func translateError(endpoint string, err error) error {
	summary := errorSummary(err)
	if strings.Contains(summary, "not_found/") || strings.HasSuffix(summary, "not_found") {
		return fmt.Errorf("%w: %s: %w", ErrPathNotFound, summary, err)
	}

	return fmt.Errorf("dropbox: %s: %w", endpoint, err)
}

// apiPath converts a slash path to Dropbox form: the root is "", every
// other path starts with "/".
func apiPath(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}

	if !strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "id:") {
		p = "/" + p
	}

	return p
}
