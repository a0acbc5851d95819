package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"
	"github.com/tidwall/jsonc"
	"go.uber.org/zap"
)

// Store persists the full registration set. Save always overwrites.
type Store interface {
	Load() ([]Registration, error)
	Save(registrations []Registration) error
	Close() error
}

// Locker is implemented by stores that can hold a cross-process lock
// for the duration of a read-modify-write cycle.
type Locker interface {
	Lock() (unlock func() error, err error)
}

// document is the on-disk layout of the JSON store
type document struct {
	Registrations []Registration `json:"registrations"`
}

// FileStore keeps registrations in a single JSON document
type FileStore struct {
	path string
	log  *zap.Logger
}

// NewFileStore creates a JSON document store at path, creating parent directories
func NewFileStore(path string, log *zap.Logger) (*FileStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{path: path, log: log}, nil
}

// Load reads the document. A missing document is initialized to the empty set
// and an unparseable one is treated as empty.
func (s *FileStore) Load() ([]Registration, error) {
	content, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		if err := s.Save(nil); err != nil {
			return nil, err
		}
		return []Registration{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}

	var doc document
	if err := json.Unmarshal(jsonc.ToJSON(content), &doc); err != nil {
		s.log.Warn("registry document is corrupted, starting empty",
			zap.String("path", s.path), zap.Error(err))
		return []Registration{}, nil
	}
	if doc.Registrations == nil {
		doc.Registrations = []Registration{}
	}
	return doc.Registrations, nil
}

// Save overwrites the document atomically
func (s *FileStore) Save(registrations []Registration) error {
	if registrations == nil {
		registrations = []Registration{}
	}
	content, err := json.MarshalIndent(document{Registrations: registrations}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}
	if err := atomicwriter.WriteFile(s.path, append(content, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	return nil
}

// Lock takes the advisory lock next to the document
func (s *FileStore) Lock() (func() error, error) {
	return lockFile(s.path + ".lock")
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}
