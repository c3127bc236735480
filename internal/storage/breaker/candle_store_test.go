package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/storage"
	"setup-outcome-lab/internal/storage/memory"
)

type recordingObserver struct {
	mu      sync.Mutex
	queries int
	errors  int
	states  []int
}

func (o *recordingObserver) RecordDBQuery(_, _ string, _ float64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queries++
	if err != nil {
		o.errors++
	}
}

func (o *recordingObserver) SetBreakerState(_ string, state int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func query() storage.CandleQuery {
	return storage.CandleQuery{AssetID: "GC=F", Timeframe: domain.Timeframe1D}
}

func TestCandleStore_PassThrough(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewCandleStore()
	obs := &recordingObserver{}
	store := NewCandleStore(mem, DefaultSettings("candles"), obs)

	bar := &domain.PriceBar{
		AssetID:   "GC=F",
		Timeframe: domain.Timeframe1D,
		Timestamp: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
		Open:      2000, High: 2010, Low: 1990, Close: 2005,
		Source: "yahoo",
	}
	require.NoError(t, store.InsertBulk(ctx, []*domain.PriceBar{bar}))

	bars, err := store.GetCandles(ctx, query())
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	assert.Equal(t, 2, obs.queries)
	assert.Equal(t, 0, obs.errors)
	assert.Equal(t, []int{int(gobreaker.StateClosed)}, obs.states)
}

func TestCandleStore_OpensAfterConsecutiveFailures(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewCandleStore()
	mem.Err = errors.New("connection refused")
	obs := &recordingObserver{}
	store := NewCandleStore(mem, DefaultSettings("candles"), obs)

	for i := 0; i < 3; i++ {
		_, err := store.GetCandles(ctx, query())
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, store.State())
	assert.Equal(t, int(gobreaker.StateOpen), obs.states[len(obs.states)-1])

	_, err := store.GetCandles(ctx, query())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, mem.Calls(), "open breaker must not reach the backend")
}

func TestCandleStore_CallerErrorsDoNotTrip(t *testing.T) {
	ctx := context.Background()
	store := NewCandleStore(memory.NewCandleStore(), DefaultSettings("candles"), nil)

	for i := 0; i < 5; i++ {
		err := store.InsertBulk(ctx, []*domain.PriceBar{{}})
		assert.ErrorIs(t, err, storage.ErrInvalidInput)
	}
	assert.Equal(t, gobreaker.StateClosed, store.State())
}
