package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/storage"
)

type candleKey struct {
	assetID   string
	timeframe string
	unixMs    int64
	source    string
}

// CandleStore is an in-memory implementation of storage.CandleStore.
type CandleStore struct {
	mu   sync.RWMutex
	data map[candleKey]*domain.PriceBar

	// Err, when set, is returned by GetCandles for matching assets
	// ("" matches every asset).
	Err      error
	ErrAsset string
	calls    int
}

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{
		data: make(map[candleKey]*domain.PriceBar),
	}
}

func keyOf(b *domain.PriceBar) candleKey {
	return candleKey{
		assetID:   strings.ToUpper(b.AssetID),
		timeframe: strings.ToUpper(b.Timeframe),
		unixMs:    b.Timestamp.UnixMilli(),
		source:    b.Source,
	}
}

// InsertBulk adds multiple bars atomically. Fails entire batch on any duplicate.
func (s *CandleStore) InsertBulk(_ context.Context, bars []*domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[candleKey]struct{}, len(bars))
	for _, b := range bars {
		if b == nil || b.AssetID == "" || b.Timeframe == "" {
			return storage.ErrInvalidInput
		}
		k := keyOf(b)
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, b := range bars {
		copy := *b
		s.data[keyOf(b)] = &copy
	}
	return nil
}

// GetCandles retrieves bars within [From, To], ordered by timestamp ASC.
func (s *CandleStore) GetCandles(_ context.Context, q storage.CandleQuery) ([]*domain.PriceBar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.Err != nil && (s.ErrAsset == "" || strings.EqualFold(s.ErrAsset, q.AssetID)) {
		return nil, s.Err
	}

	var result []*domain.PriceBar
	for k, b := range s.data {
		if k.assetID != strings.ToUpper(q.AssetID) || k.timeframe != strings.ToUpper(q.Timeframe) {
			continue
		}
		if !q.From.IsZero() && b.Timestamp.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && b.Timestamp.After(q.To) {
			continue
		}
		copy := *b
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.Before(result[j].Timestamp)
		}
		return result[i].Source < result[j].Source
	})
	return result, nil
}

// Calls returns how many times GetCandles was invoked.
func (s *CandleStore) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

var _ storage.CandleStore = (*CandleStore)(nil)
