package upload

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrCorruptJournal is returned when a journal file cannot be parsed as JSON.
// The corrupt file is deleted automatically.
var ErrCorruptJournal = errors.New("corrupt upload journal file")

// journalSubdir is the subdirectory within the data dir for journal files.
const journalSubdir = "uploads"

// journalFilePerms restricts journal files to owner-only; a record names a
// live upload session that anyone holding the ID could complete.
const journalFilePerms = 0o600

// journalDirPerms for the journal directory itself.
const journalDirPerms = 0o700

// StaleJournalAge is the default TTL for journal files. Presigned URLs
// expire within hours; 7 days covers any plausible resume window.
const StaleJournalAge = 7 * 24 * time.Hour

// cleanThrottle prevents excessive directory scans. CleanStale is
// a no-op if called again within this interval.
const cleanThrottle = 1 * time.Hour

// JournalRecord is the on-disk JSON format for an in-flight upload. It binds
// a server-side upload session to the local file it was initiated from, so a
// later resume can re-read the same byte ranges.
type JournalRecord struct {
	UploadID      string    `json:"upload_id"`
	ProjectID     string    `json:"project_id"`
	LocalPath     string    `json:"local_path"`
	FileName      string    `json:"file_name"`
	FileSizeBytes int64     `json:"file_size_bytes"`
	PartSizeBytes int64     `json:"part_size_bytes"`
	TotalParts    int       `json:"total_parts"`
	CreatedAt     time.Time `json:"created_at"`
}

// Journal manages file-based persistence of in-flight uploads. Records are
// JSON files keyed by sha256(uploadID), stored in a dedicated directory.
// Thread-safe for concurrent Save/Load/Delete.
type Journal struct {
	dir    string
	logger *slog.Logger

	cleanMu   sync.Mutex
	lastClean time.Time
}

// NewJournal creates a Journal rooted at dataDir/uploads.
func NewJournal(dataDir string, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}

	return &Journal{
		dir:    filepath.Join(dataDir, journalSubdir),
		logger: logger,
	}
}

// Load reads the journal record for an upload ID.
// Returns nil, nil if no record exists.
func (j *Journal) Load(uploadID string) (*JournalRecord, error) {
	path := j.filePath(uploadID)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading journal file: %w", err)
	}

	var rec JournalRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		// Corrupt file — delete and treat as absent.
		j.logger.Warn("corrupt journal file, deleting",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			j.logger.Warn("failed to remove corrupt journal file",
				slog.String("path", path),
				slog.String("error", rmErr.Error()),
			)
		}

		return nil, fmt.Errorf("%w: %w", ErrCorruptJournal, err)
	}

	return &rec, nil
}

// Lookup finds the most recent record for a local path, optionally scoped to
// a project (empty projectID matches any). Returns nil, nil when no record
// matches. Used by `upload --resume` where the caller knows the file but not
// the upload ID.
func (j *Journal) Lookup(projectID, localPath string) (*JournalRecord, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading journal dir: %w", err)
	}

	var newest *JournalRecord

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		data, err := os.ReadFile(filepath.Join(j.dir, e.Name()))
		if err != nil {
			continue
		}

		var rec JournalRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}

		if rec.LocalPath != localPath {
			continue
		}

		if projectID != "" && rec.ProjectID != projectID {
			continue
		}

		if newest == nil || rec.CreatedAt.After(newest.CreatedAt) {
			newest = &rec
		}
	}

	return newest, nil
}

// Save persists a journal record. Creates the journal directory if needed.
// Triggers lazy stale-record cleanup (throttled to once per hour).
func (j *Journal) Save(rec *JournalRecord) error {
	if rec.UploadID == "" {
		return errors.New("journal record missing upload ID")
	}

	if err := os.MkdirAll(j.dir, journalDirPerms); err != nil {
		return fmt.Errorf("creating journal dir: %w", err)
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling journal record: %w", err)
	}

	path := j.filePath(rec.UploadID)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, journalFilePerms); err != nil {
		return fmt.Errorf("writing journal temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) // best-effort cleanup
		return fmt.Errorf("renaming journal temp file: %w", err)
	}

	// Lazy cleanup — non-blocking, errors logged but not propagated.
	// Pre-check throttle to avoid spawning a goroutine on every Save.
	j.cleanMu.Lock()
	due := time.Since(j.lastClean) >= cleanThrottle
	j.cleanMu.Unlock()

	if due {
		go j.cleanIfDue()
	}

	return nil
}

// Delete removes the journal record for an upload ID.
// No error if the file doesn't exist.
func (j *Journal) Delete(uploadID string) error {
	if err := os.Remove(j.filePath(uploadID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting journal file: %w", err)
	}

	return nil
}

// CleanStale removes journal files older than maxAge. Returns the number
// of files deleted. Safe to call concurrently.
func (j *Journal) CleanStale(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, fmt.Errorf("reading journal dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			path := filepath.Join(j.dir, e.Name())
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				j.logger.Warn("failed to clean stale journal record",
					slog.String("file", e.Name()),
					slog.String("error", err.Error()),
				)

				continue
			}

			j.logger.Info("deleted stale upload journal record",
				slog.String("file", e.Name()),
				slog.Duration("age", time.Since(info.ModTime())),
			)

			deleted++
		}
	}

	return deleted, nil
}

// cleanIfDue runs CleanStale if at least cleanThrottle has elapsed since
// the last run. Thread-safe; no-op if throttled. Runs in a goroutine so
// panic recovery prevents crashing the entire process.
func (j *Journal) cleanIfDue() {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("panic in journal cleanup", slog.Any("panic", r))
		}
	}()

	j.cleanMu.Lock()
	if time.Since(j.lastClean) < cleanThrottle {
		j.cleanMu.Unlock()
		return
	}

	j.lastClean = time.Now()
	j.cleanMu.Unlock()

	n, err := j.CleanStale(StaleJournalAge)
	if err != nil {
		j.logger.Warn("stale journal cleanup failed", slog.String("error", err.Error()))
		return
	}

	if n > 0 {
		j.logger.Info("cleaned stale upload journal records", slog.Int("count", n))
	}
}

// filePath returns the absolute path to the record for an upload ID.
func (j *Journal) filePath(uploadID string) string {
	h := sha256.Sum256([]byte(uploadID))
	return filepath.Join(j.dir, fmt.Sprintf("%x.json", h))
}
