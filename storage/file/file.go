// Package file provides a file-backed implementation of the storage
// interfaces. State is kept in a single JSON document and rewritten
// atomically on every change, so lockout state survives process restarts.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/God-Lion/seeker-authcore/security"
	"github.com/God-Lion/seeker-authcore/storage"
)

// state is the on-disk document.
type state struct {
	Records      map[string]*storage.LoginSecurityRecord `json:"records"`
	RedirectPath string                                  `json:"redirect_path,omitempty"`
}

// staleLockAge is how old a lock file must be before takeover
const staleLockAge = 10 * time.Second

// Store is a file-backed implementation of storage.RecordStore.
// All operations load and rewrite the whole document; the mutex serializes
// them within the process and a lock file next to the state file
// serializes them across processes sharing it. The document is small (one
// record per account identifier seen on this device), so this is cheaper
// than it sounds.
type Store struct {
	mu        sync.Mutex
	path      string
	encryptor *security.Encryptor
	logger    *slog.Logger
}

// Config configures a file store.
type Config struct {
	// Path is the location of the state file. The parent directory must
	// exist and be writable.
	Path string

	// Encryptor, when set, encrypts the document at rest.
	Encryptor *security.Encryptor

	// Logger for operational messages. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewStore creates a file store and verifies the path is usable.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file store: path is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dir := filepath.Dir(cfg.Path)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("file store: directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("file store: %s is not a directory", dir)
	}

	s := &Store{
		path:      cfg.Path,
		encryptor: cfg.Encryptor,
		logger:    cfg.Logger,
	}

	// Fail fast on an unreadable or corrupt existing file.
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// SaveRecord stores the record, replacing any existing one.
func (s *Store) SaveRecord(ctx context.Context, record *storage.LoginSecurityRecord) error {
	if record == nil || record.Identifier == "" {
		return storage.ErrRecordNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Records[record.Identifier] = record.Clone()
	return s.save(doc)
}

// GetRecord returns the record for the identifier, or ErrRecordNotFound.
func (s *Store) GetRecord(ctx context.Context, identifier string) (*storage.LoginSecurityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	record, ok := doc.Records[identifier]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	return record.Clone(), nil
}

// DeleteRecord removes the record for the identifier.
func (s *Store) DeleteRecord(ctx context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Records[identifier]; !ok {
		return nil
	}
	delete(doc.Records, identifier)
	return s.save(doc)
}

// SaveRedirectPath stores the post-login redirect path.
func (s *Store) SaveRedirectPath(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.acquireLock()
	if err != nil {
		return err
	}
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.RedirectPath = path
	return s.save(doc)
}

// ConsumeRedirectPath returns the stored redirect path and clears it.
func (s *Store) ConsumeRedirectPath(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.acquireLock()
	if err != nil {
		return "", err
	}
	defer unlock()

	doc, err := s.load()
	if err != nil {
		return "", err
	}
	path := doc.RedirectPath
	if path == "" {
		return "", nil
	}
	doc.RedirectPath = ""
	return path, s.save(doc)
}

// acquireLock takes an exclusive lock file next to the state file, so a
// sibling process cannot interleave its own load-and-rewrite between ours.
// Locks left behind by crashed writers are taken over once stale.
func (s *Store) acquireLock() (func(), error) {
	lockPath := s.path + ".lock"
	retryDelay := 10 * time.Millisecond

	for i := 0; i < 100; i++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}

		if os.IsExist(err) {
			if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
				if remErr := os.Remove(lockPath); remErr != nil && !os.IsNotExist(remErr) {
					return nil, fmt.Errorf("file store: remove stale lock: %w", remErr)
				}
				continue
			}
			time.Sleep(retryDelay)
			continue
		}

		return nil, fmt.Errorf("file store: acquire lock: %w", err)
	}

	return nil, fmt.Errorf("file store: timed out waiting for lock %s", lockPath)
}

// load reads and decodes the state file. A missing file yields an empty
// document.
func (s *Store) load() (*state, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &state{Records: make(map[string]*storage.LoginSecurityRecord)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file store: read %s: %w", s.path, err)
	}
	if len(raw) == 0 {
		return &state{Records: make(map[string]*storage.LoginSecurityRecord)}, nil
	}

	data := string(raw)
	if s.encryptor != nil {
		plain, err := s.encryptor.Decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("file store: decrypt %s: %w", s.path, err)
		}
		data = plain
	}

	var doc state
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("file store: parse %s: %w", s.path, err)
	}
	if doc.Records == nil {
		doc.Records = make(map[string]*storage.LoginSecurityRecord)
	}
	return &doc, nil
}

// save encodes and atomically rewrites the state file. The document is
// written to a temp file in the same directory and renamed into place so
// concurrent readers never observe a partial write.
func (s *Store) save(doc *state) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("file store: encode: %w", err)
	}

	data := raw
	if s.encryptor != nil {
		enc, err := s.encryptor.Encrypt(string(raw))
		if err != nil {
			return fmt.Errorf("file store: encrypt: %w", err)
		}
		data = []byte(enc)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".authstate-*")
	if err != nil {
		return fmt.Errorf("file store: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file store: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file store: close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file store: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file store: replace %s: %w", s.path, err)
	}
	return nil
}
