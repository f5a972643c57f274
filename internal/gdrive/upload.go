package gdrive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tonimelisma/drive-migrate/internal/httpapi"
)

// ChunkAlignment is the required multiple for every chunk but the last.
const ChunkAlignment = 256 * 1024

// statusClientClosed is what Drive answers to a canceled upload session.
const statusClientClosed = 499

// maxStalledChunks bounds consecutive chunks that make no progress.
const maxStalledChunks = 3

const uploadFields = "id,name,mimeType,md5Checksum,size"

// ErrUploadStalled is returned when the server keeps refusing to advance.
var ErrUploadStalled = errors.New("gdrive: upload session made no progress")

// UploadSession is a resumable upload in progress. URL is
// pre-authenticated and must not be logged.
type UploadSession struct {
	URL  string
	Size int64
}

// UploadMetadata describes the file an upload creates.
type UploadMetadata struct {
	Name         string
	ParentID     string
	MimeType     string
	ModifiedTime time.Time
}

// CreateUploadSession starts a resumable upload of size bytes.
func (c *Client) CreateUploadSession(ctx context.Context, meta UploadMetadata, size int64) (*UploadSession, error) {
	c.logger.Debug("creating upload session",
		slog.String("name", meta.Name),
		slog.String("parent_id", meta.ParentID),
		slog.Int64("size", size),
	)

	req := createFileRequest{Name: meta.Name, MimeType: meta.MimeType, Parents: []string{meta.ParentID}}
	if !meta.ModifiedTime.IsZero() {
		req.ModifiedTime = meta.ModifiedTime.UTC().Format(time.RFC3339Nano)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gdrive: encoding upload metadata: %w", err)
	}

	mimeType := meta.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	resp, err := c.upload.DoWithHeaders(ctx, http.MethodPost,
		"/files?uploadType=resumable&supportsAllDrives=true&fields="+uploadFields,
		bytes.NewReader(body), http.Header{
			"Content-Type":            {"application/json; charset=UTF-8"},
			"X-Upload-Content-Type":   {mimeType},
			"X-Upload-Content-Length": {strconv.FormatInt(size, 10)},
		})
	if err != nil {
		return nil, fmt.Errorf("gdrive: creating upload session for %s: %w", meta.Name, err)
	}
	defer resp.Body.Close()

	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	loc := resp.Header.Get("Location")
	if loc == "" {
		return nil, fmt.Errorf("gdrive: upload session response for %s has no Location", meta.Name)
	}

	return &UploadSession{URL: loc, Size: size}, nil
}

// UploadChunk sends length bytes of content starting at offset. It returns
// the offset the server expects next and, once the upload is complete, the
// created file.
func (c *Client) UploadChunk(
	ctx context.Context, session *UploadSession, content io.ReaderAt, offset, length int64,
) (int64, *File, error) {
	contentRange := fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, session.Size)
	if length == 0 {
		contentRange = fmt.Sprintf("bytes */%d", session.Size)
	}

	resp, err := c.upload.DoPreAuth(ctx, "upload chunk", func() (*http.Request, error) {
		var body io.Reader = http.NoBody
		if length > 0 {
			body = io.NewSectionReader(content, offset, length)
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPut, session.URL, body)
		if reqErr != nil {
			return nil, fmt.Errorf("gdrive: creating chunk request: %w", reqErr)
		}

		req.ContentLength = length
		req.Header.Set("Content-Range", contentRange)

		return req, nil
	})
	if err != nil {
		return offset, nil, fmt.Errorf("gdrive: uploading chunk at %d: %w", offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusPermanentRedirect {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

		return nextOffset(resp.Header.Get("Range")), nil, nil
	}

	var f File
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return offset, nil, fmt.Errorf("gdrive: decoding completed upload: %w", err)
	}

	return session.Size, &f, nil
}

// nextOffset parses a "bytes=0-N" Range header. No header means nothing
// was persisted.
func nextOffset(rangeHeader string) int64 {
	_, last, ok := strings.Cut(strings.TrimPrefix(rangeHeader, "bytes="), "-")
	if !ok {
		return 0
	}

	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0
	}

	return n + 1
}

// UploadFromSession sends content in chunkSize pieces until Drive reports
// the file created. progress may be nil.
func (c *Client) UploadFromSession(
	ctx context.Context, session *UploadSession, content io.ReaderAt, chunkSize int64,
	progress func(uploaded, total int64),
) (*File, error) {
	if chunkSize <= 0 {
		chunkSize = ChunkAlignment
	}

	var (
		offset  int64
		stalled int
	)

	for {
		length := min(chunkSize, session.Size-offset)

		next, f, err := c.UploadChunk(ctx, session, content, offset, length)
		if err != nil {
			return nil, err
		}

		if progress != nil {
			progress(next, session.Size)
		}

		if f != nil {
			return f, nil
		}

		if next <= offset {
			stalled++
			if stalled >= maxStalledChunks {
				return nil, fmt.Errorf("%w at offset %d", ErrUploadStalled, offset)
			}
		} else {
			stalled = 0
		}

		if next > session.Size {
			return nil, fmt.Errorf("gdrive: server acknowledged %d of %d bytes", next, session.Size)
		}

		offset = next
	}
}

// CancelUploadSession abandons an upload session.
func (c *Client) CancelUploadSession(ctx context.Context, session *UploadSession) error {
	resp, err := c.upload.DoPreAuth(ctx, "cancel upload session", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodDelete, session.URL, http.NoBody)
	})
	if err != nil {
		var apiErr *httpapi.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == statusClientClosed {
			return nil
		}

		return fmt.Errorf("gdrive: canceling upload session: %w", err)
	}

	resp.Body.Close()

	return nil
}

// Upload creates a file from content via a resumable session, canceling
// the session if the upload fails.
func (c *Client) Upload(
	ctx context.Context, meta UploadMetadata, content io.ReaderAt, size, chunkSize int64,
	progress func(uploaded, total int64),
) (*File, error) {
	session, err := c.CreateUploadSession(ctx, meta, size)
	if err != nil {
		return nil, err
	}

	f, err := c.UploadFromSession(ctx, session, content, chunkSize, progress)
	if err != nil {
		if cancelErr := c.CancelUploadSession(context.WithoutCancel(ctx), session); cancelErr != nil {
			c.logger.Warn("canceling failed upload session",
				slog.String("name", meta.Name),
				slog.String("error", cancelErr.Error()),
			)
		}

		return nil, err
	}

	c.logger.Debug("upload complete",
		slog.String("name", meta.Name),
		slog.String("file_id", f.ID),
		slog.Int64("size", size),
	)

	return f, nil
}

func parseInt64(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}

	return n
}
