package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/storage"
)

func newOutcome(snapshotID, setupID string, status domain.OutcomeStatus, evaluatedAt time.Time) *domain.SetupOutcome {
	return &domain.SetupOutcome{
		ID:          snapshotID + "-" + setupID,
		SnapshotID:  snapshotID,
		SetupID:     setupID,
		AssetID:     "GC=F",
		Profile:     domain.ProfileSwing,
		Timeframe:   "1D",
		Direction:   domain.DirectionLong,
		EvaluatedAt: evaluatedAt,
		WindowBars:  10,
		Status:      status,
	}
}

func TestOutcomeStore_UpsertAndGet(t *testing.T) {
	store := NewOutcomeStore()
	ctx := context.Background()

	at := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	bars := 3
	o := newOutcome("snap1", "setup1", domain.OutcomeHitTP, at)
	o.OutcomeAt = &at
	o.BarsToOutcome = &bars

	res, err := store.Upsert(ctx, o)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if res != storage.UpsertInserted {
		t.Errorf("Upsert result: got %s, want %s", res, storage.UpsertInserted)
	}

	got, err := store.GetByKey(ctx, "snap1", "setup1")
	if err != nil {
		t.Fatalf("GetByKey failed: %v", err)
	}
	if got.Status != domain.OutcomeHitTP {
		t.Errorf("Status mismatch: got %s, want %s", got.Status, domain.OutcomeHitTP)
	}
	if got.OutcomeAt == nil || !got.OutcomeAt.Equal(at) {
		t.Errorf("OutcomeAt mismatch: got %v, want %v", got.OutcomeAt, at)
	}
	if got.BarsToOutcome == nil || *got.BarsToOutcome != 3 {
		t.Errorf("BarsToOutcome mismatch: got %v, want 3", got.BarsToOutcome)
	}

	// Mutating the returned copy must not leak into the store
	*got.BarsToOutcome = 99
	again, _ := store.GetByKey(ctx, "snap1", "setup1")
	if *again.BarsToOutcome != 3 {
		t.Errorf("store shares memory with caller: got %d", *again.BarsToOutcome)
	}
}

func TestOutcomeStore_UpdatesOpenInPlace(t *testing.T) {
	store := NewOutcomeStore()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := store.Upsert(ctx, newOutcome("snap1", "setup1", domain.OutcomeOpen, t0)); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	next := newOutcome("snap1", "setup1", domain.OutcomeHitSL, t0.Add(24*time.Hour))
	next.ID = "other-id"
	res, err := store.Upsert(ctx, next)
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if res != storage.UpsertUpdated {
		t.Errorf("Upsert result: got %s, want %s", res, storage.UpsertUpdated)
	}
	if store.Count() != 1 {
		t.Errorf("expected 1 row, got %d", store.Count())
	}

	got, _ := store.GetByKey(ctx, "snap1", "setup1")
	if got.Status != domain.OutcomeHitSL {
		t.Errorf("Status mismatch: got %s", got.Status)
	}
	if got.ID != "snap1-setup1" {
		t.Errorf("row id must be kept on update, got %s", got.ID)
	}
}

func TestOutcomeStore_TerminalNeverOverwritten(t *testing.T) {
	store := NewOutcomeStore()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, err := store.Upsert(ctx, newOutcome("snap1", "setup1", domain.OutcomeExpired, t0)); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	res, err := store.Upsert(ctx, newOutcome("snap1", "setup1", domain.OutcomeOpen, t0.Add(time.Hour)))
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if res != storage.UpsertUnchanged {
		t.Errorf("Upsert result: got %s, want %s", res, storage.UpsertUnchanged)
	}

	got, _ := store.GetByKey(ctx, "snap1", "setup1")
	if got.Status != domain.OutcomeExpired {
		t.Errorf("terminal verdict overwritten: got %s", got.Status)
	}
}

func TestOutcomeStore_InvalidInput(t *testing.T) {
	store := NewOutcomeStore()
	ctx := context.Background()

	if _, err := store.Upsert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}
	if _, err := store.Upsert(ctx, &domain.SetupOutcome{SetupID: "x"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for missing snapshot id, got %v", err)
	}
}

func TestOutcomeStore_NotFound(t *testing.T) {
	store := NewOutcomeStore()

	_, err := store.GetByKey(context.Background(), "snap", "nonexistent")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestOutcomeStore_GetBySetupIDs_PrefersTerminal(t *testing.T) {
	store := NewOutcomeStore()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// setup1: terminal under old snapshot, open under newer one
	store.Upsert(ctx, newOutcome("snapA", "setup1", domain.OutcomeHitTP, t0))
	store.Upsert(ctx, newOutcome("snapB", "setup1", domain.OutcomeOpen, t0.Add(time.Hour)))
	// setup2: two open rows, later wins
	store.Upsert(ctx, newOutcome("snapA", "setup2", domain.OutcomeOpen, t0))
	store.Upsert(ctx, newOutcome("snapB", "setup2", domain.OutcomeOpen, t0.Add(time.Hour)))
	// unrelated
	store.Upsert(ctx, newOutcome("snapA", "setup3", domain.OutcomeOpen, t0))

	got, err := store.GetBySetupIDs(ctx, []string{"setup1", "setup2", "missing"})
	if err != nil {
		t.Fatalf("GetBySetupIDs failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 priors, got %d", len(got))
	}
	if got["setup1"].Status != domain.OutcomeHitTP {
		t.Errorf("setup1: expected terminal prior, got %s", got["setup1"].Status)
	}
	if got["setup2"].SnapshotID != "snapB" {
		t.Errorf("setup2: expected latest evaluation, got %s", got["setup2"].SnapshotID)
	}

	empty, err := store.GetBySetupIDs(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("expected empty result for no ids, got %v, %v", empty, err)
	}
}

func TestOutcomeStore_ListForWindow(t *testing.T) {
	store := NewOutcomeStore()
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	o1 := newOutcome("s1", "a", domain.OutcomeHitTP, t0)
	o1.PlaybookID = "gold-swing-v0.2"
	o2 := newOutcome("s1", "b", domain.OutcomeHitSL, t0.Add(48*time.Hour))
	o2.PlaybookID = "gold-swing-v0.2"
	o3 := newOutcome("s1", "c", domain.OutcomeExpired, t0.Add(24*time.Hour))
	o3.AssetID = "^GSPC"
	o3.PlaybookID = "index-swing-v0.1"
	for _, o := range []*domain.SetupOutcome{o1, o2, o3} {
		if _, err := store.Upsert(ctx, o); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	all, _ := store.ListForWindow(ctx, storage.OutcomeFilter{})
	if len(all) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(all))
	}
	if all[0].SetupID != "b" || all[2].SetupID != "a" {
		t.Errorf("expected newest first, got %s..%s", all[0].SetupID, all[2].SetupID)
	}

	gold, _ := store.ListForWindow(ctx, storage.OutcomeFilter{PlaybookID: "gold-swing-v0.2"})
	if len(gold) != 2 {
		t.Errorf("expected 2 gold rows, got %d", len(gold))
	}

	windowed, _ := store.ListForWindow(ctx, storage.OutcomeFilter{From: t0.Add(time.Hour)})
	if len(windowed) != 2 {
		t.Errorf("expected 2 rows after From, got %d", len(windowed))
	}

	limited, _ := store.ListForWindow(ctx, storage.OutcomeFilter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("expected limit 1, got %d", len(limited))
	}
}
