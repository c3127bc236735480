package memory

import (
	"context"
	"sort"
	"sync"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/storage"
)

// SnapshotStore is an in-memory implementation of storage.SnapshotStore.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Snapshot // keyed by snapshot id

	// Err, when set, is returned by every read. Used to simulate an
	// unreachable snapshot source.
	Err error
}

// NewSnapshotStore creates a new in-memory snapshot store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		data: make(map[string]*domain.Snapshot),
	}
}

// Insert adds a new snapshot. Returns ErrDuplicateKey if the id exists.
func (s *SnapshotStore) Insert(_ context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[snap.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[snap.ID] = cloneSnapshot(snap)
	return nil
}

// GetByID retrieves a snapshot. Returns ErrNotFound if not exists.
func (s *SnapshotStore) GetByID(_ context.Context, snapshotID string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Err != nil {
		return nil, s.Err
	}
	snap, exists := s.data[snapshotID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneSnapshot(snap), nil
}

// ListPaged returns one page of snapshots within the filter, newest first.
func (s *SnapshotStore) ListPaged(_ context.Context, f storage.SnapshotFilter, page, pageSize int) (*storage.SnapshotPage, error) {
	if page < 1 || pageSize < 1 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.Err != nil {
		return nil, s.Err
	}

	var matched []*domain.Snapshot
	for _, snap := range s.data {
		if !f.From.IsZero() && snap.SnapshotTime.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && snap.SnapshotTime.After(f.To) {
			continue
		}
		matched = append(matched, snap)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].SnapshotTime.Equal(matched[j].SnapshotTime) {
			return matched[i].SnapshotTime.After(matched[j].SnapshotTime)
		}
		return matched[i].ID < matched[j].ID
	})

	result := &storage.SnapshotPage{Total: len(matched)}
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return result, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	for _, snap := range matched[start:end] {
		result.Snapshots = append(result.Snapshots, cloneSnapshot(snap))
	}
	return result, nil
}

func cloneSnapshot(snap *domain.Snapshot) *domain.Snapshot {
	c := *snap
	c.Setups = make([]domain.Setup, len(snap.Setups))
	copy(c.Setups, snap.Setups)
	return &c
}

var _ storage.SnapshotStore = (*SnapshotStore)(nil)
