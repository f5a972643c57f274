// Package gdrive is a client for the Google Drive v3 REST API covering
// folder lookup and creation, shared drives, resumable uploads, and
// permissions.
package gdrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/tonimelisma/drive-migrate/internal/httpapi"
)

// Production endpoints.
const (
	DefaultBaseURL   = "https://www.googleapis.com/drive/v3"
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3"

	// FolderMimeType marks a Drive file as a folder.
	FolderMimeType = "application/vnd.google-apps.folder"
)

// rateLimitReasons are 403 error reasons Drive uses for throttling.
var rateLimitReasons = []string{"rateLimitExceeded", "userRateLimitExceeded"}

// Client talks to the metadata and upload endpoints with the same
// credentials.
type Client struct {
	api    *httpapi.Client
	upload *httpapi.Client
	logger *slog.Logger
}

// NewClient creates a client. Empty URLs select the production endpoints.
func NewClient(
	baseURL, uploadURL string, httpClient *http.Client, token httpapi.TokenSource, logger *slog.Logger, userAgent string,
	opts ...httpapi.Option,
) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if uploadURL == "" {
		uploadURL = DefaultUploadURL
	}

	if logger == nil {
		logger = slog.Default()
	}

	opts = append([]httpapi.Option{httpapi.WithRetryable(retryable)}, opts...)

	return &Client{
		api:    httpapi.NewClient(baseURL, httpClient, token, logger, userAgent, opts...),
		upload: httpapi.NewClient(uploadURL, httpClient, token, logger, userAgent, opts...),
		logger: logger,
	}
}

// errorResponse is Drive's JSON error envelope.
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// errorReasons extracts the reason codes from a Drive error body.
func errorReasons(body []byte) []string {
	var er errorResponse
	if json.Unmarshal(body, &er) != nil {
		return nil
	}

	reasons := make([]string, 0, len(er.Error.Errors))
	for _, e := range er.Error.Errors {
		reasons = append(reasons, e.Reason)
	}

	return reasons
}

// retryable extends the default policy with Drive's 403 rate limiting.
func retryable(code int, body []byte) bool {
	if httpapi.DefaultRetryable(code, body) {
		return true
	}

	if code != http.StatusForbidden {
		return false
	}

	for _, r := range errorReasons(body) {
		if slices.Contains(rateLimitReasons, r) {
			return true
		}
	}

	return false
}

// doJSON sends v as a JSON body (nil for none) and decodes the response
// into out (nil to discard).
func doJSON(ctx context.Context, c *httpapi.Client, method, path string, v, out any) error {
	var body *bytes.Reader

	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("gdrive: encoding request for %s: %w", path, err)
		}

		body = bytes.NewReader(data)
	}

	var (
		resp *http.Response
		err  error
	)

	if body == nil {
		resp, err = c.Do(ctx, method, path, nil)
	} else {
		resp, err = c.Do(ctx, method, path, body)
	}

	if err != nil {
		return fmt.Errorf("gdrive: %s %s: %w", method, trimQuery(path), err)
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gdrive: decoding %s response: %w", trimQuery(path), err)
	}

	return nil
}

func trimQuery(path string) string {
	p, _, _ := strings.Cut(path, "?")
	return p
}
