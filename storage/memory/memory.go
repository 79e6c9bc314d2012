// Package memory provides an in-memory implementation of the storage
// interfaces. It is suitable for tests and single-process use where lockout
// state does not need to survive a restart.
package memory

import (
	"context"
	"sync"

	"github.com/God-Lion/seeker-authcore/storage"
)

// Store is an in-memory implementation of storage.RecordStore.
type Store struct {
	mu           sync.RWMutex
	records      map[string]*storage.LoginSecurityRecord
	redirectPath string
}

// NewStore creates a new in-memory record store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]*storage.LoginSecurityRecord),
	}
}

// SaveRecord stores a copy of the record keyed by its identifier.
func (s *Store) SaveRecord(_ context.Context, record *storage.LoginSecurityRecord) error {
	if record == nil || record.Identifier == "" {
		return storage.ErrRecordNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Identifier] = record.Clone()
	return nil
}

// GetRecord returns a copy of the record for the identifier.
func (s *Store) GetRecord(_ context.Context, identifier string) (*storage.LoginSecurityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[identifier]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	return record.Clone(), nil
}

// DeleteRecord removes the record for the identifier.
func (s *Store) DeleteRecord(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identifier)
	return nil
}

// SaveRedirectPath stores the post-login redirect path.
func (s *Store) SaveRedirectPath(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirectPath = path
	return nil
}

// ConsumeRedirectPath returns the stored redirect path and clears it.
func (s *Store) ConsumeRedirectPath(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.redirectPath
	s.redirectPath = ""
	return path, nil
}
