package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/idhash"
	"setup-outcome-lab/internal/storage"
)

var evalTime = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T {
	return &v
}

func newTestStore(t *testing.T) *OutcomeStore {
	t.Helper()
	store, err := NewOutcomeStore(filepath.Join(t.TempDir(), "data", "outcomes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newOutcome(snapshotID, setupID string, status domain.OutcomeStatus) *domain.SetupOutcome {
	return &domain.SetupOutcome{
		ID:            idhash.ComputeOutcomeID(snapshotID, setupID),
		SnapshotID:    snapshotID,
		SetupID:       setupID,
		AssetID:       "GC=F",
		Symbol:        "GC=F",
		Profile:       domain.ProfileSwing,
		Timeframe:     domain.Timeframe1D,
		Direction:     domain.DirectionLong,
		PlaybookID:    "gold-swing-v0.2",
		SetupGrade:    "A",
		RiskReward:    ptr(2.4),
		EngineVersion: "v1",
		EvaluatedAt:   evalTime,
		WindowBars:    10,
		Status:        status,
	}
}

func TestNewOutcomeStore_EmptyPath(t *testing.T) {
	_, err := NewOutcomeStore("  ")
	assert.Error(t, err)
}

func TestOutcomeStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
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
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, domain.OutcomeHitTP, got.Status)
	assert.Equal(t, domain.DirectionLong, got.Direction)
	assert.True(t, evalTime.Equal(got.EvaluatedAt))
	require.NotNil(t, got.OutcomeAt)
	assert.True(t, o.OutcomeAt.Equal(*got.OutcomeAt))
	require.NotNil(t, got.BarsToOutcome)
	assert.Equal(t, 3, *got.BarsToOutcome)
	require.NotNil(t, got.Reason)
	assert.Equal(t, domain.ReasonSameCandleResolved, *got.Reason)
	require.NotNil(t, got.RiskReward)
	assert.InDelta(t, 2.4, *got.RiskReward, 1e-9)

	_, err = store.GetByKey(ctx, "snap-1", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestOutcomeStore_UpsertGuard(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	open := newOutcome("snap-1", "setup-1", domain.OutcomeOpen)
	res, err := store.Upsert(ctx, open)
	require.NoError(t, err)
	assert.Equal(t, storage.UpsertInserted, res)

	settled := newOutcome("snap-1", "setup-1", domain.OutcomeHitSL)
	settled.BarsToOutcome = ptr(4)
	res, err = store.Upsert(ctx, settled)
	require.NoError(t, err)
	assert.Equal(t, storage.UpsertUpdated, res)

	again := newOutcome("snap-1", "setup-1", domain.OutcomeHitTP)
	res, err = store.Upsert(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, storage.UpsertUnchanged, res)

	got, err := store.GetByKey(ctx, "snap-1", "setup-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeHitSL, got.Status)
	require.NotNil(t, got.BarsToOutcome)
	assert.Equal(t, 4, *got.BarsToOutcome)
}

func TestOutcomeStore_UpsertInvalidInput(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Upsert(context.Background(), &domain.SetupOutcome{SnapshotID: "snap-1"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestOutcomeStore_GetBySetupIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	olderTerminal := newOutcome("snap-1", "setup-1", domain.OutcomeExpired)
	newerOpen := newOutcome("snap-2", "setup-1", domain.OutcomeOpen)
	newerOpen.EvaluatedAt = evalTime.Add(48 * time.Hour)
	other := newOutcome("snap-2", "setup-2", domain.OutcomeOpen)

	for _, o := range []*domain.SetupOutcome{olderTerminal, newerOpen, other} {
		_, err := store.Upsert(ctx, o)
		require.NoError(t, err)
	}

	got, err := store.GetBySetupIDs(ctx, []string{"setup-1", "setup-2", "setup-3"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "snap-1", got["setup-1"].SnapshotID)
	assert.Equal(t, domain.OutcomeOpen, got["setup-2"].Status)

	empty, err := store.GetBySetupIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOutcomeStore_ListForWindow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		o := newOutcome("snap-1", id, domain.OutcomeHitTP)
		o.EvaluatedAt = evalTime.Add(time.Duration(i) * 24 * time.Hour)
		if id == "c" {
			o.AssetID = "EURUSD=X"
			o.PlaybookID = "fx-swing-v0.1"
		}
		_, err := store.Upsert(ctx, o)
		require.NoError(t, err)
	}

	all, err := store.ListForWindow(ctx, storage.OutcomeFilter{From: evalTime})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].SetupID)
	assert.Equal(t, "a", all[2].SetupID)

	gold, err := store.ListForWindow(ctx, storage.OutcomeFilter{AssetID: "gc=f", Profile: "swing"})
	require.NoError(t, err)
	assert.Len(t, gold, 2)

	fx, err := store.ListForWindow(ctx, storage.OutcomeFilter{PlaybookID: "fx-swing-v0.1"})
	require.NoError(t, err)
	require.Len(t, fx, 1)
	assert.Equal(t, "c", fx[0].SetupID)

	limited, err := store.ListForWindow(ctx, storage.OutcomeFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	late, err := store.ListForWindow(ctx, storage.OutcomeFilter{From: evalTime.Add(36 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, late, 1)
	assert.Equal(t, "c", late[0].SetupID)
}
