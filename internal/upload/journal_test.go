package upload

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(uploadID, localPath string) *JournalRecord {
	return &JournalRecord{
		UploadID:      uploadID,
		ProjectID:     "proj-1",
		LocalPath:     localPath,
		FileName:      filepath.Base(localPath),
		FileSizeBytes: 1 << 20,
		PartSizeBytes: 1 << 18,
		TotalParts:    4,
	}
}

func TestJournal_SaveLoadDelete(t *testing.T) {
	j := NewJournal(t.TempDir(), testLogger(t))

	rec := testRecord("u-1", "/data/report.pdf")
	require.NoError(t, j.Save(rec))

	loaded, err := j.Load("u-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "u-1", loaded.UploadID)
	assert.Equal(t, "/data/report.pdf", loaded.LocalPath)
	assert.Equal(t, int64(1<<18), loaded.PartSizeBytes)
	assert.False(t, loaded.CreatedAt.IsZero(), "Save should stamp CreatedAt")

	require.NoError(t, j.Delete("u-1"))

	loaded, err = j.Load("u-1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestJournal_LoadAbsent(t *testing.T) {
	j := NewJournal(t.TempDir(), testLogger(t))

	rec, err := j.Load("never-saved")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestJournal_DeleteAbsent(t *testing.T) {
	j := NewJournal(t.TempDir(), testLogger(t))
	assert.NoError(t, j.Delete("never-saved"))
}

func TestJournal_FilePermissions(t *testing.T) {
	dataDir := t.TempDir()
	j := NewJournal(dataDir, testLogger(t))

	require.NoError(t, j.Save(testRecord("u-1", "/data/a.pdf")))

	entries, err := os.ReadDir(filepath.Join(dataDir, journalSubdir))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(journalFilePerms), info.Mode().Perm())
}

func TestJournal_CorruptFileDeleted(t *testing.T) {
	dataDir := t.TempDir()
	j := NewJournal(dataDir, testLogger(t))

	require.NoError(t, j.Save(testRecord("u-1", "/data/a.pdf")))

	// Corrupt the file on disk.
	path := j.filePath("u-1")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), journalFilePerms))

	_, err := j.Load("u-1")
	require.ErrorIs(t, err, ErrCorruptJournal)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "corrupt file should be removed")

	// Subsequent loads treat the record as absent.
	rec, err := j.Load("u-1")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestJournal_LookupByPath(t *testing.T) {
	j := NewJournal(t.TempDir(), testLogger(t))

	older := testRecord("u-old", "/data/a.pdf")
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, j.Save(older))

	newer := testRecord("u-new", "/data/a.pdf")
	require.NoError(t, j.Save(newer))

	other := testRecord("u-other", "/data/b.pdf")
	require.NoError(t, j.Save(other))

	rec, err := j.Lookup("proj-1", "/data/a.pdf")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "u-new", rec.UploadID, "Lookup should prefer the newest record")

	rec, err = j.Lookup("other-project", "/data/a.pdf")
	require.NoError(t, err)
	assert.Nil(t, rec, "project scope should filter")

	rec, err = j.Lookup("", "/data/b.pdf")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "u-other", rec.UploadID)
}

func TestJournal_CleanStale(t *testing.T) {
	dataDir := t.TempDir()
	j := NewJournal(dataDir, testLogger(t))

	require.NoError(t, j.Save(testRecord("u-old", "/data/a.pdf")))
	require.NoError(t, j.Save(testRecord("u-new", "/data/b.pdf")))

	// Age one file past the cutoff.
	oldTime := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(j.filePath("u-old"), oldTime, oldTime))

	n, err := j.CleanStale(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, err := j.Load("u-old")
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = j.Load("u-new")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}
