package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"beeftrace/internal/cache"
	"beeftrace/pkg/platform/sentinel"
)

// document is the on-disk shape: one map per mirrored entity type.
type document struct {
	Animals      map[string]json.RawMessage `json:"animals"`
	Batches      map[string]json.RawMessage `json:"batches"`
	Roles        map[string]json.RawMessage `json:"roles"`
	Transactions map[string]json.RawMessage `json:"transactions"`
}

func newDocument() document {
	return document{
		Animals:      make(map[string]json.RawMessage),
		Batches:      make(map[string]json.RawMessage),
		Roles:        make(map[string]json.RawMessage),
		Transactions: make(map[string]json.RawMessage),
	}
}

func (d *document) section(entityType string) (map[string]json.RawMessage, error) {
	switch entityType {
	case cache.TypeAnimals:
		return d.Animals, nil
	case cache.TypeBatches:
		return d.Batches, nil
	case cache.TypeRoles:
		return d.Roles, nil
	case cache.TypeTransactions:
		return d.Transactions, nil
	}
	return nil, fmt.Errorf("unknown entity type %q", entityType)
}

// FileStore keeps the whole mirror document in memory and writes it to a
// single JSON file on every mutation. Suited to development and single-node
// deployments; RedisStore is the shared-state implementation.
type FileStore struct {
	mu   sync.RWMutex
	path string
	doc  document
}

// NewFileStore loads the document at path, starting empty if the file does
// not exist yet.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, doc: newDocument()}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mirror file: %w", err)
	}
	if err := json.Unmarshal(raw, &s.doc); err != nil {
		return nil, fmt.Errorf("parse mirror file %s: %w", path, err)
	}
	// Sections absent from an older file stay usable.
	if s.doc.Animals == nil {
		s.doc.Animals = make(map[string]json.RawMessage)
	}
	if s.doc.Batches == nil {
		s.doc.Batches = make(map[string]json.RawMessage)
	}
	if s.doc.Roles == nil {
		s.doc.Roles = make(map[string]json.RawMessage)
	}
	if s.doc.Transactions == nil {
		s.doc.Transactions = make(map[string]json.RawMessage)
	}
	return s, nil
}

func (s *FileStore) Get(ctx context.Context, entityType, id string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	section, err := s.doc.section(entityType)
	if err != nil {
		return nil, err
	}
	payload, ok := section[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return payload, nil
}

func (s *FileStore) List(ctx context.Context, entityType string) (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	section, err := s.doc.section(entityType)
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(section))
	for id, payload := range section {
		out[id] = payload
	}
	return out, nil
}

func (s *FileStore) BulkUpsert(ctx context.Context, entityType string, data map[string]json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	section, err := s.doc.section(entityType)
	if err != nil {
		return err
	}
	for id, payload := range data {
		section[id] = payload
	}
	return s.persist()
}

func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc = newDocument()
	return s.persist()
}

func (s *FileStore) Stats(ctx context.Context) (cache.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cache.Stats{
		Animals:      len(s.doc.Animals),
		Batches:      len(s.doc.Batches),
		Roles:        len(s.doc.Roles),
		Transactions: len(s.doc.Transactions),
	}, nil
}

func (s *FileStore) Close() error { return nil }

// persist writes the document atomically. Callers hold the write lock.
func (s *FileStore) persist() error {
	raw, err := json.Marshal(s.doc)
	if err != nil {
		return fmt.Errorf("encode mirror document: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create mirror dir: %w", err)
	}
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write mirror file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace mirror file: %w", err)
	}
	return nil
}
