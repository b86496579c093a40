// Package storage persists update controller state in a bbolt database inside
// the data directory.
package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
	bolterrors "go.etcd.io/bbolt/errors"
	"go.uber.org/zap"
)

// DatabaseFileName is the bbolt file inside the data directory.
const DatabaseFileName = "deskhost.db"

// BoltDB wraps bolt database operations
type BoltDB struct {
	db     *bbolt.DB
	logger *zap.SugaredLogger
}

// NewBoltDB opens (or creates) the database in dataDir. A database left
// locked by a dead process is backed up and recreated.
func NewBoltDB(dataDir string, logger *zap.SugaredLogger) (*BoltDB, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, DatabaseFileName)

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		logger.Warnf("Failed to open database on first attempt: %v", err)

		if err == bolterrors.ErrTimeout {
			logger.Info("Database timeout detected, attempting recovery...")

			if _, statErr := os.Stat(dbPath); statErr == nil {
				backupPath := dbPath + ".backup." + time.Now().Format("20060102-150405")
				logger.Infof("Creating backup at %s", backupPath)
				if cpErr := copyFile(dbPath, backupPath); cpErr != nil {
					logger.Warnf("Failed to create backup: %v", cpErr)
				}
				if rmErr := os.Remove(dbPath); rmErr != nil {
					logger.Warnf("Failed to remove locked database file: %v", rmErr)
				}
			}

			db, err = bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 5 * time.Second})
		}

		if err != nil {
			return nil, fmt.Errorf("failed to open bolt database after recovery attempt: %w", err)
		}
	}

	boltDB := &BoltDB{db: db, logger: logger}
	if err := boltDB.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}
	return boltDB, nil
}

// ErrLocked is returned by OpenReadOnly while another process holds the database.
var ErrLocked = errors.New("database is locked by another process")

// OpenReadOnly opens an existing database for inspection. Unlike NewBoltDB it
// never recovers a locked file; it fails with ErrLocked after timeout.
func OpenReadOnly(dataDir string, timeout time.Duration, logger *zap.SugaredLogger) (*BoltDB, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	dbPath := filepath.Join(dataDir, DatabaseFileName)
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", dbPath, err)
	}

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: timeout, ReadOnly: true})
	if errors.Is(err, bolterrors.ErrTimeout) {
		return nil, fmt.Errorf("%s: %w", dbPath, ErrLocked)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	return &BoltDB{db: db, logger: logger}, nil
}

// Close closes the database
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// Ping verifies that a read transaction can be opened and the schema is present.
func (b *BoltDB) Ping() error {
	return b.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(MetaBucket)) == nil {
			return fmt.Errorf("bucket %s missing", MetaBucket)
		}
		return nil
	})
}

// Path returns the database file path.
func (b *BoltDB) Path() string {
	return b.db.Path()
}

func (b *BoltDB) initBuckets() error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range []string{UpdatesBucket, UpdateHistoryBucket, MetaBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		versionBytes := make([]byte, 8)
		binary.LittleEndian.PutUint64(versionBytes, CurrentSchemaVersion)
		return tx.Bucket([]byte(MetaBucket)).Put([]byte(SchemaVersionKey), versionBytes)
	})
}

// GetSchemaVersion returns the current schema version
func (b *BoltDB) GetSchemaVersion() (uint64, error) {
	var version uint64
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(MetaBucket)).Get([]byte(SchemaVersionKey))
		if data != nil {
			version = binary.LittleEndian.Uint64(data)
		}
		return nil
	})
	return version, err
}

// Update records

// SaveUpdateRecord stores record as the latest outcome and appends it to the
// bounded history.
func (b *BoltDB) SaveUpdateRecord(record *UpdateRecord) error {
	record.Updated = time.Now()
	data, err := record.MarshalBinary()
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(UpdatesBucket)).Put([]byte(lastUpdateKey), data); err != nil {
			return err
		}

		history := tx.Bucket([]byte(UpdateHistoryBucket))
		seq, err := history.NextSequence()
		if err != nil {
			return err
		}
		if err := history.Put(itob(seq), data); err != nil {
			return err
		}
		return pruneHistory(history)
	})
}

// LastUpdateRecord returns the most recent outcome or ErrNotFound.
func (b *BoltDB) LastUpdateRecord() (*UpdateRecord, error) {
	var record *UpdateRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(UpdatesBucket)).Get([]byte(lastUpdateKey))
		if data == nil {
			return ErrNotFound
		}
		record = &UpdateRecord{}
		return record.UnmarshalBinary(data)
	})
	return record, err
}

// UpdateHistory returns up to limit records, newest first. limit <= 0 returns all.
func (b *BoltDB) UpdateHistory(limit int) ([]*UpdateRecord, error) {
	var records []*UpdateRecord
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(UpdateHistoryBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}
			record := &UpdateRecord{}
			if err := record.UnmarshalBinary(v); err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

func pruneHistory(bucket *bbolt.Bucket) error {
	c := bucket.Cursor()
	count := 0
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		count++
	}
	excess := count - MaxUpdateHistory
	if excess <= 0 {
		return nil
	}

	var stale [][]byte
	for k, _ := c.First(); k != nil && len(stale) < excess; k, _ = c.Next() {
		stale = append(stale, append([]byte(nil), k...))
	}
	for _, k := range stale {
		if err := bucket.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Backup creates a backup of the database
func (b *BoltDB) Backup(destPath string) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		return tx.CopyFile(destPath, 0600)
	})
}

// copyFile copies a file from src to dst
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	_, err = io.Copy(destFile, sourceFile)
	return err
}
