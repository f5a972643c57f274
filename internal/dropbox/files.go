package dropbox

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/tonimelisma/drive-migrate/pkg/contenthash"
)

// ErrHashMismatch is returned when downloaded content does not match the
// content hash Dropbox reported.
var ErrHashMismatch = errors.New("dropbox: content hash mismatch")

// FileMetadata is a file entry as returned by list_folder and download.
type FileMetadata struct {
	ID             string
	Name           string
	PathDisplay    string
	PathLower      string
	Size           int64
	Rev            string
	ContentHash    string
	ClientModified time.Time
	ServerModified time.Time
	// SharedMembers is nil when Dropbox did not say whether the file has
	// explicit members.
	SharedMembers *bool
}

// entryResponse mirrors a list_folder entry; folders and deleted entries
// share the shape and are told apart by .tag.
type entryResponse struct {
	Tag            string `json:".tag"`
	ID             string `json:"id"`
	Name           string `json:"name"`
	PathDisplay    string `json:"path_display"`
	PathLower      string `json:"path_lower"`
	Size           int64  `json:"size"`
	Rev            string `json:"rev"`
	ContentHash    string `json:"content_hash"`
	ClientModified string `json:"client_modified"`
	ServerModified string `json:"server_modified"`
	IsDownloadable *bool  `json:"is_downloadable"`
	SharedMembers  *bool  `json:"has_explicit_shared_members"`
}

func (e *entryResponse) toFile(logger *slog.Logger) FileMetadata {
	return FileMetadata{
		ID:             e.ID,
		Name:           e.Name,
		PathDisplay:    e.PathDisplay,
		PathLower:      e.PathLower,
		Size:           e.Size,
		Rev:            e.Rev,
		ContentHash:    e.ContentHash,
		ClientModified: parseTimestamp(e.ClientModified, "client_modified", e.PathDisplay, logger),
		ServerModified: parseTimestamp(e.ServerModified, "server_modified", e.PathDisplay, logger),
		SharedMembers:  e.SharedMembers,
	}
}

// parseTimestamp parses a Dropbox timestamp. Unparseable values yield the
// zero time.
func parseTimestamp(raw, field, p string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("unparseable timestamp",
			slog.String("field", field),
			slog.String("path", p),
			slog.String("value", raw),
		)

		return time.Time{}
	}

	return t.UTC()
}

type listFolderArg struct {
	Path                            string `json:"path"`
	Recursive                       bool   `json:"recursive"`
	IncludeNonDownloadableFiles     bool   `json:"include_non_downloadable_files"`
	IncludeHasExplicitSharedMembers bool   `json:"include_has_explicit_shared_members"`
	Limit                           int    `json:"limit,omitempty"`
}

type listFolderContinueArg struct {
	Cursor string `json:"cursor"`
}

type listFolderResponse struct {
	Entries []entryResponse `json:"entries"`
	Cursor  string          `json:"cursor"`
	HasMore bool            `json:"has_more"`
}

// listFolderPageSize is the page size requested from list_folder.
const listFolderPageSize = 2000

// ListFolder returns every downloadable file under p, recursively,
// following cursor continuations. Folders are not returned.
func (c *Client) ListFolder(ctx context.Context, p string) ([]FileMetadata, error) {
	c.logger.Info("listing folder", slog.String("path", p))

	var page listFolderResponse

	err := c.rpc(ctx, "/files/list_folder", listFolderArg{
		Path:                            apiPath(p),
		Recursive:                       true,
		IncludeHasExplicitSharedMembers: true,
		Limit:                           listFolderPageSize,
	}, &page)
	if err != nil {
		return nil, err
	}

	var files []FileMetadata

	for n := 1; ; n++ {
		for i := range page.Entries {
			e := &page.Entries[i]
			if e.Tag != "file" || (e.IsDownloadable != nil && !*e.IsDownloadable) {
				continue
			}

			files = append(files, e.toFile(c.logger))
		}

		c.logger.Debug("fetched folder page",
			slog.Int("page", n),
			slog.Int("entries", len(page.Entries)),
			slog.Bool("has_more", page.HasMore),
		)

		if !page.HasMore {
			break
		}

		cursor := page.Cursor
		page = listFolderResponse{}

		if err := c.rpc(ctx, "/files/list_folder/continue", listFolderContinueArg{Cursor: cursor}, &page); err != nil {
			return nil, err
		}
	}

	c.logger.Info("listed folder", slog.String("path", p), slog.Int("files", len(files)))

	return files, nil
}

type downloadArg struct {
	Path string `json:"path"`
}

// Download streams the content of p to w and returns the file metadata and
// the number of bytes written. When Dropbox reports a content hash the
// stream is verified against it.
func (c *Client) Download(ctx context.Context, p string, w io.Writer) (*FileMetadata, int64, error) {
	arg, err := json.Marshal(downloadArg{Path: apiPath(p)})
	if err != nil {
		return nil, 0, fmt.Errorf("dropbox: encoding download arguments: %w", err)
	}

	c.logger.Debug("downloading file", slog.String("path", p))

	resp, err := c.content.DoWithHeaders(ctx, http.MethodPost, "/files/download", nil, http.Header{
		"Dropbox-API-Arg": {headerSafe(arg)},
	})
	if err != nil {
		return nil, 0, translateError("/files/download", err)
	}
	defer resp.Body.Close()

	var meta entryResponse
	if raw := resp.Header.Get("Dropbox-API-Result"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return nil, 0, fmt.Errorf("dropbox: decoding download result header: %w", err)
		}
	}

	hasher := contenthash.New()

	n, err := io.Copy(io.MultiWriter(w, hasher), resp.Body)
	if err != nil {
		return nil, n, fmt.Errorf("dropbox: reading download of %s: %w", p, err)
	}

	file := meta.toFile(c.logger)

	if file.ContentHash != "" {
		if got := hex.EncodeToString(hasher.Sum(nil)); got != file.ContentHash {
			return nil, n, fmt.Errorf("%w: %s: got %s, want %s", ErrHashMismatch, p, got, file.ContentHash)
		}
	}

	c.logger.Debug("download complete", slog.String("path", p), slog.Int64("bytes", n))

	return &file, n, nil
}

// headerSafe escapes non-ASCII characters in a JSON argument as \uXXXX so
// it can travel in an HTTP header.
func headerSafe(arg []byte) string {
	var b strings.Builder

	for _, r := range string(arg) {
		switch {
		case r < 0x80:
			b.WriteRune(r)
		case r > 0xFFFF:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&b, "\\u%04x\\u%04x", hi, lo)
		default:
			fmt.Fprintf(&b, "\\u%04x", r)
		}
	}

	return b.String()
}
