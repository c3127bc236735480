package memory

import (
	"context"
	"sort"
	"sync"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/storage"
)

// AuditRunStore is an in-memory implementation of storage.AuditRunStore.
type AuditRunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.AuditRun
}

// NewAuditRunStore creates a new in-memory audit run store.
func NewAuditRunStore() *AuditRunStore {
	return &AuditRunStore{
		data: make(map[string]*domain.AuditRun),
	}
}

// Insert adds a new run. Returns ErrDuplicateKey if the id exists.
func (s *AuditRunStore) Insert(_ context.Context, r *domain.AuditRun) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}
	copy := *r
	s.data[r.ID] = &copy
	return nil
}

// ListRecent retrieves the latest runs for an action, newest first.
func (s *AuditRunStore) ListRecent(_ context.Context, action string, limit int) ([]*domain.AuditRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.AuditRun
	for _, r := range s.data {
		if action == "" || r.Action == action {
			copy := *r
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ storage.AuditRunStore = (*AuditRunStore)(nil)
