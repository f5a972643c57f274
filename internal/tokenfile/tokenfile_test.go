package tokenfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func sampleFile() *File {
	return &File{
		Provider: "google",
		Token: &oauth2.Token{
			AccessToken:  "access-123",
			RefreshToken: "refresh-456",
			TokenType:    "Bearer",
			Expiry:       time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Account: &Account{Email: "alice@example.com", DisplayName: "Alice"},
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Nil(t, f)
	assert.NoError(t, err)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "google.json")

	require.NoError(t, Save(path, sampleFile()))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "google", f.Provider)
	assert.Equal(t, "access-123", f.Token.AccessToken)
	assert.Equal(t, "refresh-456", f.Token.RefreshToken)
	assert.Equal(t, "alice@example.com", f.Account.Email)
	assert.False(t, f.SavedAt.IsZero())
}

func TestLoad_MissingTokenField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"provider":"dropbox"}`), 0o600))

	f, err := Load(path)
	assert.Nil(t, f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing token field")
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding")
}

func TestSave_CreatesDirectoryWithOwnerOnlyPerms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "creds", "dropbox.json")

	require.NoError(t, Save(path, sampleFile()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestSave_NilToken(t *testing.T) {
	err := Save(filepath.Join(t.TempDir(), "x.json"), &File{Provider: "google"})
	require.Error(t, err)
}

func TestUpdateToken_KeepsAccount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "google.json")
	require.NoError(t, Save(path, sampleFile()))

	require.NoError(t, UpdateToken(path, &oauth2.Token{AccessToken: "new-access", RefreshToken: "refresh-456"}))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "new-access", f.Token.AccessToken)
	assert.Equal(t, "Alice", f.Account.DisplayName)
}

func TestUpdateToken_NoFile(t *testing.T) {
	err := UpdateToken(filepath.Join(t.TempDir(), "none.json"), &oauth2.Token{AccessToken: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no credentials")
}

func TestDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "google.json")
	require.NoError(t, Save(path, sampleFile()))

	removed, err := Delete(path)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = Delete(path)
	require.NoError(t, err)
	assert.False(t, removed)
}
