package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/idhash"
	"setup-outcome-lab/internal/storage"
)

var evalTime = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

func newOutcome(snapshotID, setupID string, status domain.OutcomeStatus) *domain.SetupOutcome {
	return &domain.SetupOutcome{
		ID:               idhash.ComputeOutcomeID(snapshotID, setupID),
		SnapshotID:       snapshotID,
		SetupID:          setupID,
		AssetID:          "GC=F",
		Symbol:           "GC=F",
		Profile:          domain.ProfileSwing,
		Timeframe:        domain.Timeframe1D,
		Direction:        domain.DirectionLong,
		PlaybookID:       "gold-swing-v0.2",
		SetupGrade:       "A",
		GradeDebugReason: "engine=v1",
		RiskReward:       ptr(2.4),
		EngineVersion:    "v1",
		EvaluatedAt:      evalTime,
		WindowBars:       10,
		Status:           status,
	}
}

func TestOutcomeStore_RoundTrip(t *testing.T) {
	pool := newTestPool(t)

	store := NewOutcomeStore(pool)
	ctx := context.Background()

	o := newOutcome("snap-1", "setup-1", domain.OutcomeHitTP)
	o.OutcomeAt = ptr(time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC))
	o.BarsToOutcome = ptr(3)
	o.Reason = ptr(domain.ReasonSameCandleResolved)

	res, err := store.Upsert(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, storage.UpsertInserted, res)

	got, err := store.GetByKey(ctx, "snap-1", "setup-1")
	require.NoError(t, err)
	assert.Equal(t, o, got)

	_, err = store.GetByKey(ctx, "snap-1", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOutcomeStore_UpsertGuard(t *testing.T) {
	pool := newTestPool(t)

	store := NewOutcomeStore(pool)
	ctx := context.Background()

	open := newOutcome("snap-1", "setup-1", domain.OutcomeOpen)
	open.Reason = ptr(domain.ReasonInsufficientCandles)
	res, err := store.Upsert(ctx, open)
	require.NoError(t, err)
	assert.Equal(t, storage.UpsertInserted, res)

	settled := newOutcome("snap-1", "setup-1", domain.OutcomeHitSL)
	settled.BarsToOutcome = ptr(4)
	settled.EvaluatedAt = evalTime.Add(24 * time.Hour)
	res, err = store.Upsert(ctx, settled)
	require.NoError(t, err)
	assert.Equal(t, storage.UpsertUpdated, res)

	// A terminal row is never overwritten.
	again := newOutcome("snap-1", "setup-1", domain.OutcomeHitTP)
	res, err = store.Upsert(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, storage.UpsertUnchanged, res)

	got, err := store.GetByKey(ctx, "snap-1", "setup-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeHitSL, got.Status)
	assert.Nil(t, got.Reason)
	require.NotNil(t, got.BarsToOutcome)
	assert.Equal(t, 4, *got.BarsToOutcome)
}

func TestOutcomeStore_ConcurrentUpsertsSingleRow(t *testing.T) {
	pool := newTestPool(t)

	store := NewOutcomeStore(pool)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Upsert(ctx, newOutcome("snap-1", "setup-1", domain.OutcomeOpen))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM setup_outcomes`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestOutcomeStore_GetBySetupIDs(t *testing.T) {
	pool := newTestPool(t)

	store := NewOutcomeStore(pool)
	ctx := context.Background()

	older := newOutcome("snap-1", "setup-1", domain.OutcomeExpired)
	newerOpen := newOutcome("snap-2", "setup-1", domain.OutcomeOpen)
	newerOpen.EvaluatedAt = evalTime.Add(time.Hour)
	other := newOutcome("snap-2", "setup-2", domain.OutcomeOpen)
	for _, o := range []*domain.SetupOutcome{older, newerOpen, other} {
		_, err := store.Upsert(ctx, o)
		require.NoError(t, err)
	}

	got, err := store.GetBySetupIDs(ctx, []string{"setup-1", "setup-2", "setup-3"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.OutcomeExpired, got["setup-1"].Status, "terminal verdict wins")
	assert.Equal(t, "snap-2", got["setup-2"].SnapshotID)

	empty, err := store.GetBySetupIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOutcomeStore_ListForWindow(t *testing.T) {
	pool := newTestPool(t)

	store := NewOutcomeStore(pool)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		o := newOutcome("snap-1", fmt.Sprintf("setup-%d", i), domain.OutcomeHitTP)
		o.EvaluatedAt = evalTime.Add(time.Duration(i) * time.Hour)
		if i == 4 {
			o.PlaybookID = "fx-swing-v0.1"
			o.AssetID = "EURUSD=X"
		}
		_, err := store.Upsert(ctx, o)
		require.NoError(t, err)
	}

	all, err := store.ListForWindow(ctx, storage.OutcomeFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "setup-4", all[0].SetupID, "newest first")

	gold, err := store.ListForWindow(ctx, storage.OutcomeFilter{
		From:       evalTime.Add(time.Hour),
		AssetID:    "gc=f",
		PlaybookID: "gold-swing-v0.2",
		Profile:    "swing",
		Timeframe:  "1d",
		Limit:      2,
	})
	require.NoError(t, err)
	require.Len(t, gold, 2)
	assert.Equal(t, "setup-3", gold[0].SetupID)
	assert.Equal(t, "setup-2", gold[1].SetupID)
}

func TestOutcomeStore_InvalidInput(t *testing.T) {
	pool := newTestPool(t)

	store := NewOutcomeStore(pool)
	_, err := store.Upsert(context.Background(), &domain.SetupOutcome{SetupID: "x"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestOutcomeStore_UnknownStatusRejected(t *testing.T) {
	pool := newTestPool(t)

	store := NewOutcomeStore(pool)
	_, err := store.Upsert(context.Background(), newOutcome("snap-1", "setup-1", domain.OutcomeStatus("won")))
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
