// Package credfile handles reading and writing the credentials file for
// interactive (device-flow) sessions. The file holds the access token, the
// current refresh token, and enough context to know which backend issued
// them. This is a leaf package imported by both auth/ and the CLI to avoid
// an auth→config import cycle.
//
// M2M sessions never touch this package — machine tokens live only in memory.
package credfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FilePerms restricts the credentials file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the config directory.
const DirPerms = 0o700

// Record is the on-disk format of the credentials file. Wire casing is
// snake_case — the same convention the backend's token endpoint uses.
type Record struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at"`
	APIURL       string `json:"api_url"`
	ClientID     string `json:"client_id,omitempty"`
}

// Load reads the credentials file at path. Returns (nil, nil) if the file
// does not exist. A file without an access token is treated as corrupt.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("credfile: reading %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("credfile: decoding %s: %w", path, err)
	}

	if rec.AccessToken == "" {
		return nil, fmt.Errorf("credfile: %s missing access_token (re-login required)", path)
	}

	return &rec, nil
}

// Save writes the credentials file atomically (write-to-temp + rename) with
// 0600 permissions. The record fully replaces any previous contents — partial
// merges would risk pairing a new access token with a stale rotated refresh
// token. Never logs token values.
func Save(path string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("credfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("credfile: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("credfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	// Clean up temp file on any error path.
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credfile: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credfile: writing: %w", err)
	}

	// Flush to stable storage before rename so a crash between close and
	// rename cannot leave an empty or partial file at the final path. Losing
	// a rotated refresh token means forced re-login.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credfile: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("credfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Delete removes the credentials file. Returns nil if the file does not
// exist (already logged out).
func Delete(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}
