package payment

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"beeftrace/internal/domain"
	"beeftrace/pkg/platform/sentinel"
)

// MemoryStore is the in-process record store used in development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]domain.PaymentRecord
}

// NewMemoryStore creates an empty in-memory payment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]domain.PaymentRecord)}
}

func (s *MemoryStore) Create(ctx context.Context, rec domain.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return sentinel.ErrConflict
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, rec domain.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (domain.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return domain.PaymentRecord{}, sentinel.ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) ListBySubject(ctx context.Context, subjectType domain.SubjectType, subjectID domain.EntityID) ([]domain.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PaymentRecord
	for _, rec := range s.records {
		if rec.SubjectType == subjectType && rec.SubjectID == subjectID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
