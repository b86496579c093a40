package storage

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"
	"go.uber.org/zap/zaptest"
)

func openTestDB(t *testing.T) *BoltDB {
	db, err := NewBoltDB(t.TempDir(), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewBoltDBWritesSchemaVersion(t *testing.T) {
	db := openTestDB(t)

	version, err := db.GetSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, uint64(CurrentSchemaVersion), version)
	assert.Equal(t, DatabaseFileName, filepath.Base(db.Path()))
}

func TestPing(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Ping())

	require.NoError(t, db.Close())
	assert.Error(t, db.Ping())
}

func TestOpenReadOnly(t *testing.T) {
	dir := t.TempDir()

	_, err := OpenReadOnly(dir, 50*time.Millisecond, nil)
	assert.Error(t, err, "missing database")

	db, err := NewBoltDB(dir, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	require.NoError(t, db.SaveUpdateRecord(&UpdateRecord{State: "idle", CurrentVersion: "v1.0.0"}))

	_, err = OpenReadOnly(dir, 50*time.Millisecond, nil)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, db.Close())

	ro, err := OpenReadOnly(dir, 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer ro.Close()
	history, err := ro.UpdateHistory(0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "v1.0.0", history[0].CurrentVersion)
}

func TestLastUpdateRecord(t *testing.T) {
	db := openTestDB(t)

	_, err := db.LastUpdateRecord()
	assert.ErrorIs(t, err, ErrNotFound)

	checked := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.SaveUpdateRecord(&UpdateRecord{
		CheckedAt:      checked,
		CurrentVersion: "v1.0.0",
		LatestVersion:  "v1.1.0",
		State:          "deferred",
	}))
	require.NoError(t, db.SaveUpdateRecord(&UpdateRecord{
		CheckedAt:      checked.Add(time.Hour),
		CurrentVersion: "v1.0.0",
		State:          "idle",
		ErrorClass:     "network",
	}))

	last, err := db.LastUpdateRecord()
	require.NoError(t, err)
	assert.Equal(t, "idle", last.State)
	assert.Equal(t, "network", last.ErrorClass)
	assert.True(t, last.CheckedAt.Equal(checked.Add(time.Hour)))
	assert.False(t, last.Updated.IsZero())
}

func TestUpdateHistoryIsBounded(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < MaxUpdateHistory+5; i++ {
		require.NoError(t, db.SaveUpdateRecord(&UpdateRecord{State: fmt.Sprintf("s%d", i)}))
	}

	all, err := db.UpdateHistory(0)
	require.NoError(t, err)
	assert.Len(t, all, MaxUpdateHistory)
	assert.Equal(t, fmt.Sprintf("s%d", MaxUpdateHistory+4), all[0].State, "newest first")

	recent, err := db.UpdateHistory(3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, fmt.Sprintf("s%d", MaxUpdateHistory+2), recent[2].State)
}

func TestReopenKeepsRecords(t *testing.T) {
	dir := t.TempDir()
	logger := zaptest.NewLogger(t).Sugar()

	db, err := NewBoltDB(dir, logger)
	require.NoError(t, err)
	require.NoError(t, db.SaveUpdateRecord(&UpdateRecord{State: "deferred", PendingArtifact: "/tmp/a.zip"}))
	require.NoError(t, db.Close())

	db, err = NewBoltDB(dir, logger)
	require.NoError(t, err)
	defer db.Close()

	last, err := db.LastUpdateRecord()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.zip", last.PendingArtifact)
}

func TestBackup(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SaveUpdateRecord(&UpdateRecord{State: "idle"}))

	dest := filepath.Join(t.TempDir(), "backup.db")
	require.NoError(t, db.Backup(dest))

	backup, err := bbolt.Open(dest, 0600, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
	require.NoError(t, err)
	defer backup.Close()

	require.NoError(t, backup.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(UpdatesBucket))
		require.NotNil(t, bucket)
		var record UpdateRecord
		require.NoError(t, record.UnmarshalBinary(bucket.Get([]byte(lastUpdateKey))))
		assert.Equal(t, "idle", record.State)
		return nil
	}))
}
