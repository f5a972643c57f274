package gdrive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// ErrSharedDriveNotFound is returned when no accessible shared drive has
// the requested name.
var ErrSharedDriveNotFound = errors.New("gdrive: shared drive not found")

// File is the subset of Drive file metadata the migration reads.
type File struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MimeType    string `json:"mimeType"`
	MD5Checksum string `json:"md5Checksum"`
	Size        string `json:"size"`
}

type fileListResponse struct {
	Files         []File `json:"files"`
	NextPageToken string `json:"nextPageToken"`
}

// escapeQuery escapes a value for a single-quoted Drive query literal.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

// FindFolder returns the id of a non-trashed folder named name directly
// under parentID. driveID scopes the search to a shared drive when set.
func (c *Client) FindFolder(ctx context.Context, name, parentID, driveID string) (string, bool, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeQuery(name), escapeQuery(parentID), FolderMimeType)

	params := url.Values{
		"q":                         {q},
		"fields":                    {"files(id,name)"},
		"pageSize":                  {"10"},
		"supportsAllDrives":         {"true"},
		"includeItemsFromAllDrives": {"true"},
	}

	if driveID != "" {
		params.Set("corpora", "drive")
		params.Set("driveId", driveID)
	}

	var resp fileListResponse
	if err := doJSON(ctx, c.api, http.MethodGet, "/files?"+params.Encode(), nil, &resp); err != nil {
		return "", false, err
	}

	if len(resp.Files) == 0 {
		return "", false, nil
	}

	if len(resp.Files) > 1 {
		c.logger.Warn("several folders share a name, using the first",
			slog.String("name", name),
			slog.String("parent_id", parentID),
			slog.Int("matches", len(resp.Files)),
		)
	}

	return resp.Files[0].ID, true, nil
}

type createFileRequest struct {
	Name         string   `json:"name"`
	MimeType     string   `json:"mimeType,omitempty"`
	Parents      []string `json:"parents,omitempty"`
	ModifiedTime string   `json:"modifiedTime,omitempty"`
}

// CreateFolder creates a folder named name under parentID.
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (string, error) {
	c.logger.Info("creating folder", slog.String("name", name), slog.String("parent_id", parentID))

	var f File

	err := doJSON(ctx, c.api, http.MethodPost, "/files?supportsAllDrives=true&fields=id,name",
		createFileRequest{Name: name, MimeType: FolderMimeType, Parents: []string{parentID}}, &f)
	if err != nil {
		return "", err
	}

	return f.ID, nil
}

// Drive is a shared drive.
type Drive struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type driveListResponse struct {
	Drives        []Drive `json:"drives"`
	NextPageToken string  `json:"nextPageToken"`
}

// ListDrives returns every shared drive the account can access.
func (c *Client) ListDrives(ctx context.Context) ([]Drive, error) {
	var (
		drives []Drive
		token  string
	)

	for {
		params := url.Values{"pageSize": {"100"}, "fields": {"nextPageToken,drives(id,name)"}}
		if token != "" {
			params.Set("pageToken", token)
		}

		var resp driveListResponse
		if err := doJSON(ctx, c.api, http.MethodGet, "/drives?"+params.Encode(), nil, &resp); err != nil {
			return nil, err
		}

		drives = append(drives, resp.Drives...)

		if resp.NextPageToken == "" {
			return drives, nil
		}

		token = resp.NextPageToken
	}
}

// FindSharedDrive returns the id of the shared drive named name.
func (c *Client) FindSharedDrive(ctx context.Context, name string) (string, error) {
	drives, err := c.ListDrives(ctx)
	if err != nil {
		return "", err
	}

	for _, d := range drives {
		if d.Name == name {
			c.logger.Info("found shared drive", slog.String("name", name), slog.String("drive_id", d.ID))
			return d.ID, nil
		}
	}

	return "", fmt.Errorf("%w: %q (%d accessible)", ErrSharedDriveNotFound, name, len(drives))
}

type permissionRequest struct {
	Type         string `json:"type"`
	Role         string `json:"role"`
	EmailAddress string `json:"emailAddress"`
}

// CreatePermission grants role to the user with the given email, without
// sending a notification email.
func (c *Client) CreatePermission(ctx context.Context, fileID, email, role string) error {
	path := fmt.Sprintf("/files/%s/permissions?sendNotificationEmail=false&supportsAllDrives=true&fields=id",
		url.PathEscape(fileID))

	return doJSON(ctx, c.api, http.MethodPost, path,
		permissionRequest{Type: "user", Role: role, EmailAddress: email}, nil)
}

// About describes the authenticated account.
type About struct {
	EmailAddress string
	DisplayName  string
	// QuotaLimit is 0 for unlimited storage.
	QuotaLimit int64
	QuotaUsage int64
}

type aboutResponse struct {
	User struct {
		EmailAddress string `json:"emailAddress"`
		DisplayName  string `json:"displayName"`
	} `json:"user"`
	StorageQuota struct {
		Limit string `json:"limit"`
		Usage string `json:"usage"`
	} `json:"storageQuota"`
}

// About returns the account identity and storage quota.
func (c *Client) About(ctx context.Context) (*About, error) {
	var resp aboutResponse

	err := doJSON(ctx, c.api, http.MethodGet, "/about?fields=user(emailAddress,displayName),storageQuota(limit,usage)",
		nil, &resp)
	if err != nil {
		return nil, err
	}

	return &About{
		EmailAddress: resp.User.EmailAddress,
		DisplayName:  resp.User.DisplayName,
		QuotaLimit:   parseInt64(resp.StorageQuota.Limit),
		QuotaUsage:   parseInt64(resp.StorageQuota.Usage),
	}, nil
}
