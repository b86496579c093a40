package main

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/deskhost/deskhost/internal/appctx"
	"github.com/deskhost/deskhost/internal/bootstrap"
	"github.com/deskhost/deskhost/internal/storage"
)

var errStoreNotOpen = errors.New("storage is not open")

// lazyStore defers opening the database until the single-instance guard has
// run, so a second launch never contends for the owner's database file.
type lazyStore struct {
	dataDir string
	logger  *zap.Logger

	mu sync.RWMutex
	db *storage.BoltDB
}

func newLazyStore(dataDir string, logger *zap.Logger) *lazyStore {
	return &lazyStore{dataDir: dataDir, logger: logger}
}

// loader opens the database as a bootstrap step.
func (s *lazyStore) loader() bootstrap.Loader {
	return bootstrap.LoaderFunc{
		LoaderName: "storage",
		Fn: func(context.Context, *appctx.Context) error {
			db, err := storage.NewBoltDB(s.dataDir, s.logger.Sugar())
			if err != nil {
				return err
			}
			s.mu.Lock()
			s.db = db
			s.mu.Unlock()
			return nil
		},
	}
}

func (s *lazyStore) get() *storage.BoltDB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

func (s *lazyStore) SaveUpdateRecord(record *storage.UpdateRecord) error {
	db := s.get()
	if db == nil {
		return errStoreNotOpen
	}
	return db.SaveUpdateRecord(record)
}

func (s *lazyStore) UpdateHistory(limit int) ([]*storage.UpdateRecord, error) {
	db := s.get()
	if db == nil {
		return nil, errStoreNotOpen
	}
	return db.UpdateHistory(limit)
}

func (s *lazyStore) Ping() error {
	db := s.get()
	if db == nil {
		return errStoreNotOpen
	}
	return db.Ping()
}

// Close is a no-op when the database was never opened.
func (s *lazyStore) Close() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}
