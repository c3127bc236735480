package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/storage"
)

// OutcomeStore is an in-memory implementation of storage.OutcomeStore.
type OutcomeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SetupOutcome // keyed by snapshot_id|setup_id
}

// NewOutcomeStore creates a new in-memory outcome store.
func NewOutcomeStore() *OutcomeStore {
	return &OutcomeStore{
		data: make(map[string]*domain.SetupOutcome),
	}
}

func outcomeKey(snapshotID, setupID string) string {
	return fmt.Sprintf("%s|%s", snapshotID, setupID)
}

// Upsert inserts the verdict or updates a stored open verdict in place.
func (s *OutcomeStore) Upsert(_ context.Context, o *domain.SetupOutcome) (storage.UpsertResult, error) {
	if o == nil || o.SnapshotID == "" || o.SetupID == "" {
		return "", storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := outcomeKey(o.SnapshotID, o.SetupID)
	existing, exists := s.data[key]
	if exists && existing.Status.IsTerminal() {
		return storage.UpsertUnchanged, nil
	}

	copy := cloneOutcome(o)
	if exists {
		copy.ID = existing.ID
		s.data[key] = copy
		return storage.UpsertUpdated, nil
	}
	s.data[key] = copy
	return storage.UpsertInserted, nil
}

// GetByKey retrieves a verdict by its natural key. Returns ErrNotFound if not exists.
func (s *OutcomeStore) GetByKey(_ context.Context, snapshotID, setupID string) (*domain.SetupOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.data[outcomeKey(snapshotID, setupID)]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return cloneOutcome(o), nil
}

// GetBySetupIDs returns the preferred prior verdict per setup id.
func (s *OutcomeStore) GetBySetupIDs(_ context.Context, setupIDs []string) (map[string]*domain.SetupOutcome, error) {
	result := make(map[string]*domain.SetupOutcome)
	if len(setupIDs) == 0 {
		return result, nil
	}

	wanted := make(map[string]struct{}, len(setupIDs))
	for _, id := range setupIDs {
		wanted[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.data {
		if _, ok := wanted[o.SetupID]; !ok {
			continue
		}
		if storage.PreferPrior(result[o.SetupID], o) {
			result[o.SetupID] = cloneOutcome(o)
		}
	}
	return result, nil
}

// ListForWindow retrieves verdicts matching the filter, newest evaluation first.
func (s *OutcomeStore) ListForWindow(_ context.Context, f storage.OutcomeFilter) ([]*domain.SetupOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SetupOutcome
	for _, o := range s.data {
		if matchesOutcomeFilter(o, f) {
			result = append(result, cloneOutcome(o))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].EvaluatedAt.Equal(result[j].EvaluatedAt) {
			return result[i].EvaluatedAt.After(result[j].EvaluatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

// Count returns the number of stored verdicts.
func (s *OutcomeStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func matchesOutcomeFilter(o *domain.SetupOutcome, f storage.OutcomeFilter) bool {
	if !f.From.IsZero() && o.EvaluatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && o.EvaluatedAt.After(f.To) {
		return false
	}
	if f.AssetID != "" && !strings.EqualFold(o.AssetID, f.AssetID) {
		return false
	}
	if f.PlaybookID != "" && o.PlaybookID != f.PlaybookID {
		return false
	}
	if f.Profile != "" && !strings.EqualFold(string(o.Profile), f.Profile) {
		return false
	}
	if f.Timeframe != "" && !strings.EqualFold(o.Timeframe, f.Timeframe) {
		return false
	}
	if f.EngineVersion != "" && o.EngineVersion != f.EngineVersion {
		return false
	}
	return true
}

func cloneOutcome(o *domain.SetupOutcome) *domain.SetupOutcome {
	c := *o
	if o.OutcomeAt != nil {
		t := *o.OutcomeAt
		c.OutcomeAt = &t
	}
	if o.BarsToOutcome != nil {
		n := *o.BarsToOutcome
		c.BarsToOutcome = &n
	}
	if o.Reason != nil {
		r := *o.Reason
		c.Reason = &r
	}
	if o.RiskReward != nil {
		rr := *o.RiskReward
		c.RiskReward = &rr
	}
	return &c
}

var _ storage.OutcomeStore = (*OutcomeStore)(nil)
