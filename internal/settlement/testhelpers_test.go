package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/outcome"
	"setup-outcome-lab/internal/storage"
	"setup-outcome-lab/internal/storage/memory"
)

var (
	testNow  = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	snapTime = time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)
)

func dayBar(asset string, d int, open, high, low, close float64) *domain.PriceBar {
	return &domain.PriceBar{
		AssetID:   asset,
		Timeframe: domain.Timeframe1D,
		Timestamp: time.Date(2026, 3, 2+d, 0, 0, 0, 0, time.UTC),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Source:    "yahoo",
	}
}

func goldSetup(id string) domain.Setup {
	return domain.Setup{
		ID:               id,
		AssetID:          "GC=F",
		Symbol:           "GC=F",
		Name:             "Gold Futures",
		Timeframe:        domain.Timeframe1D,
		Profile:          domain.ProfileSwing,
		Direction:        domain.DirectionLong,
		EntryZone:        "99-101",
		StopLoss:         "95",
		TakeProfit:       "112",
		SetupGrade:       "A",
		GradeDebugReason: "trend=up",
	}
}

func fxSetup(id string) domain.Setup {
	return domain.Setup{
		ID:         id,
		AssetID:    "EURUSD=X",
		Symbol:     "EURUSD=X",
		Timeframe:  domain.Timeframe1D,
		Profile:    domain.ProfileSwing,
		Direction:  domain.DirectionLong,
		EntryZone:  "1.09-1.11",
		StopLoss:   "1.05",
		TakeProfit: "1.20",
	}
}

// fixture wires a runner over memory stores seeded with:
//   - snap-new: gold (hits TP on bar 3), fx (3 quiet bars, stays open),
//     an intraday setup and a gold setup without a target
//   - snap-old: the same gold setup again
type fixture struct {
	snapshots *memory.SnapshotStore
	candles   *memory.CandleStore
	outcomes  *memory.OutcomeStore
	audit     *memory.AuditRunStore
	runner    *Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		snapshots: memory.NewSnapshotStore(),
		candles:   memory.NewCandleStore(),
		outcomes:  memory.NewOutcomeStore(),
		audit:     memory.NewAuditRunStore(),
	}

	intraday := goldSetup("setup-intraday")
	intraday.Profile = domain.ProfileIntraday
	noTarget := goldSetup("setup-no-target")
	noTarget.TakeProfit = ""

	require.NoError(t, f.snapshots.Insert(ctx, &domain.Snapshot{
		ID:           "snap-new",
		SnapshotTime: snapTime,
		Setups:       []domain.Setup{goldSetup("setup-gold"), fxSetup("setup-fx"), intraday, noTarget},
	}))
	require.NoError(t, f.snapshots.Insert(ctx, &domain.Snapshot{
		ID:           "snap-old",
		SnapshotTime: snapTime.Add(-24 * time.Hour),
		Setups:       []domain.Setup{goldSetup("setup-gold")},
	}))

	var bars []*domain.PriceBar
	bars = append(bars,
		dayBar("GC=F", 1, 100, 104, 97, 101),
		dayBar("GC=F", 2, 101, 105, 98, 103),
		dayBar("GC=F", 3, 101, 113, 96, 108),
		dayBar("GC=F", 4, 108, 110, 90, 92),
	)
	for d := 1; d <= 3; d++ {
		bars = append(bars, dayBar("EURUSD=X", d, 1.10, 1.12, 1.07, 1.10))
	}
	require.NoError(t, f.candles.InsertBulk(ctx, bars))

	f.runner = newRunner(f.snapshots, f.candles, f.outcomes)
	return f
}

func newRunner(snaps storage.SnapshotStore, candles storage.CandleStore, outcomes storage.OutcomeStore) *Runner {
	now := func() time.Time { return testNow }
	return NewRunner(RunnerOptions{
		Selector: NewSelector(SelectorOptions{
			Snapshots: snaps,
			PageSize:  1,
			Now:       now,
			Logger:    zerolog.Nop(),
		}),
		Evaluator: outcome.NewEvaluator(outcome.Options{
			Candles:   candles,
			Guardrail: outcome.Guardrail{EngineVersion: "test-1"},
			Logger:    zerolog.Nop(),
		}),
		Outcomes: outcomes,
		Now:      now,
		Logger:   zerolog.Nop(),
	})
}

// failingOutcomeStore rejects every upsert.
type failingOutcomeStore struct {
	*memory.OutcomeStore
	err error
}

func (s *failingOutcomeStore) Upsert(context.Context, *domain.SetupOutcome) (storage.UpsertResult, error) {
	return "", s.err
}
