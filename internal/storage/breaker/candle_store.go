// Package breaker guards remote stores with a circuit breaker so that an
// unreachable candle backend fails fast instead of stalling every setup
// of a batch on its own timeout.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/storage"
)

// Observer receives query timings and breaker transitions.
type Observer interface {
	RecordDBQuery(database, operation string, seconds float64, err error)
	SetBreakerState(name string, state int)
}

// Settings configures the breaker around a store.
type Settings struct {
	Name                string
	Database            string // metric label, e.g. "clickhouse"
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
	MinRequests         uint32
	FailureRatio        float64
}

// DefaultSettings returns the breaker defaults used for candle backends.
func DefaultSettings(name string) Settings {
	return Settings{
		Name:                name,
		Database:            "clickhouse",
		Interval:            60 * time.Second,
		Timeout:             60 * time.Second,
		ConsecutiveFailures: 3,
		MinRequests:         20,
		FailureRatio:        0.05,
	}
}

// CandleStore wraps a storage.CandleStore with a circuit breaker.
type CandleStore struct {
	next     storage.CandleStore
	cb       *gobreaker.CircuitBreaker
	observer Observer
	database string
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// NewCandleStore creates a breaker-guarded candle store. observer may be nil.
func NewCandleStore(next storage.CandleStore, s Settings, observer Observer) *CandleStore {
	st := gobreaker.Settings{
		Name:     s.Name,
		Interval: s.Interval,
		Timeout:  s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= s.ConsecutiveFailures {
				return true
			}
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > s.FailureRatio
		},
		// A missing row or bad query is the caller's problem, not the backend's.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, storage.ErrNotFound) ||
				errors.Is(err, storage.ErrInvalidInput) ||
				errors.Is(err, storage.ErrDuplicateKey) ||
				errors.Is(err, context.Canceled)
		},
	}
	if observer != nil {
		st.OnStateChange = func(name string, _, to gobreaker.State) {
			observer.SetBreakerState(name, int(to))
		}
		observer.SetBreakerState(s.Name, int(gobreaker.StateClosed))
	}
	return &CandleStore{
		next:     next,
		cb:       gobreaker.NewCircuitBreaker(st),
		observer: observer,
		database: s.Database,
	}
}

// State returns the current breaker state.
func (s *CandleStore) State() gobreaker.State {
	return s.cb.State()
}

// InsertBulk passes through the breaker.
func (s *CandleStore) InsertBulk(ctx context.Context, bars []*domain.PriceBar) error {
	_, err := s.execute("insert_bulk", func() (interface{}, error) {
		return nil, s.next.InsertBulk(ctx, bars)
	})
	return err
}

// GetCandles passes through the breaker. An open breaker returns
// gobreaker.ErrOpenState without touching the backend.
func (s *CandleStore) GetCandles(ctx context.Context, q storage.CandleQuery) ([]*domain.PriceBar, error) {
	v, err := s.execute("get_candles", func() (interface{}, error) {
		return s.next.GetCandles(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	bars, _ := v.([]*domain.PriceBar)
	return bars, nil
}

func (s *CandleStore) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	start := time.Now()
	v, err := s.cb.Execute(fn)
	if s.observer != nil {
		s.observer.RecordDBQuery(s.database, op, time.Since(start).Seconds(), err)
	}
	return v, err
}
