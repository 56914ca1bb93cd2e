package credfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileNotFound(t *testing.T) {
	rec, err := Load("/nonexistent/path/credentials.json")
	assert.Nil(t, rec)
	assert.NoError(t, err)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")

	original := &Record{
		AccessToken:  "access-123",
		RefreshToken: "refresh-456",
		ExpiresAt:    4102444800,
		APIURL:       "https://api.example.com",
		ClientID:     "client_abc",
	}

	require.NoError(t, Save(path, original))

	rec, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, original, rec)
}

func TestSave_OwnerOnlyPermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")

	require.NoError(t, Save(path, &Record{AccessToken: "a", ExpiresAt: 1}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestSave_CreatesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "credentials.json")

	require.NoError(t, Save(path, &Record{AccessToken: "a", ExpiresAt: 1}))

	rec, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "a", rec.AccessToken)
}

func TestSave_ReplacesExistingRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")

	require.NoError(t, Save(path, &Record{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    100,
		APIURL:       "https://api.example.com",
	}))
	require.NoError(t, Save(path, &Record{
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
		ExpiresAt:    200,
		APIURL:       "https://api.example.com",
	}))

	rec, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "new-access", rec.AccessToken)
	assert.Equal(t, "new-refresh", rec.RefreshToken)
	assert.Equal(t, int64(200), rec.ExpiresAt)
}

func TestSave_NoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")

	require.NoError(t, Save(path, &Record{AccessToken: "a", ExpiresAt: 1}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "credentials.json", entries[0].Name())
}

func TestLoad_CorruptJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	rec, err := Load(path)
	assert.Nil(t, rec)
	assert.Error(t, err)
}

func TestLoad_MissingAccessToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")

	require.NoError(t, os.WriteFile(path, []byte(`{"refresh_token":"r"}`), 0o600))

	rec, err := Load(path)
	assert.Nil(t, rec)
	assert.ErrorContains(t, err, "missing access_token")
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")

	require.NoError(t, Save(path, &Record{AccessToken: "a", ExpiresAt: 1}))
	require.NoError(t, Delete(path))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Second delete is a no-op.
	assert.NoError(t, Delete(path))
}
