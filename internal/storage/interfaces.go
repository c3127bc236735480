package storage

import (
	"context"
	"time"

	"setup-outcome-lab/internal/domain"
)

// SnapshotStore provides read access to perception snapshots.
type SnapshotStore interface {
	// Insert adds a new snapshot. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, s *domain.Snapshot) error

	// GetByID retrieves a snapshot. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, snapshotID string) (*domain.Snapshot, error)

	// ListPaged returns one page (1-based) of snapshots matching the filter,
	// newest first, together with the total count.
	ListPaged(ctx context.Context, filter SnapshotFilter, page, pageSize int) (*SnapshotPage, error)
}

// CandleStore provides access to stored price bars.
type CandleStore interface {
	// InsertBulk adds multiple bars. Fails entire batch on duplicate
	// (asset_id, timeframe, timestamp, source).
	InsertBulk(ctx context.Context, bars []*domain.PriceBar) error

	// GetCandles retrieves bars for an asset/timeframe within [From, To]
	// (inclusive), ordered by timestamp ASC.
	GetCandles(ctx context.Context, q CandleQuery) ([]*domain.PriceBar, error)
}

// OutcomeStore persists verdicts keyed by (snapshot_id, setup_id).
type OutcomeStore interface {
	// Upsert inserts the verdict if absent and updates it in place only
	// while the stored verdict is still open. Terminal rows are left as is.
	Upsert(ctx context.Context, o *domain.SetupOutcome) (UpsertResult, error)

	// GetByKey retrieves one verdict. Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, snapshotID, setupID string) (*domain.SetupOutcome, error)

	// GetBySetupIDs returns the prior verdict per setup id. When a setup has
	// verdicts under several snapshots a terminal one wins, then the most
	// recently evaluated.
	GetBySetupIDs(ctx context.Context, setupIDs []string) (map[string]*domain.SetupOutcome, error)

	// ListForWindow retrieves verdicts evaluated within the filter window,
	// ordered by evaluated_at DESC.
	ListForWindow(ctx context.Context, filter OutcomeFilter) ([]*domain.SetupOutcome, error)
}

// AuditRunStore persists job trigger records.
type AuditRunStore interface {
	// Insert adds a new run record. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, r *domain.AuditRun) error

	// ListRecent retrieves the latest runs for an action, newest first.
	ListRecent(ctx context.Context, action string, limit int) ([]*domain.AuditRun, error)
}

// SnapshotFilter bounds a snapshot scan by snapshot time (inclusive).
type SnapshotFilter struct {
	From time.Time
	To   time.Time // zero means open-ended
}

// SnapshotPage is one page of a snapshot scan.
type SnapshotPage struct {
	Snapshots []*domain.Snapshot
	Total     int
}

// CandleQuery selects bars for one asset and timeframe.
type CandleQuery struct {
	AssetID   string
	Timeframe string
	From      time.Time
	To        time.Time
}

// OutcomeFilter selects stored verdicts. Empty fields do not filter.
type OutcomeFilter struct {
	From          time.Time
	To            time.Time
	AssetID       string
	PlaybookID    string
	Profile       string
	Timeframe     string
	EngineVersion string
	Limit         int
}

// UpsertResult reports what an upsert did.
type UpsertResult string

const (
	UpsertInserted  UpsertResult = "inserted"
	UpsertUpdated   UpsertResult = "updated"
	UpsertUnchanged UpsertResult = "unchanged"
)

// PreferPrior reports whether candidate should replace current as the
// prior verdict of a setup: terminal beats open, then later evaluation wins.
func PreferPrior(current, candidate *domain.SetupOutcome) bool {
	if current == nil {
		return true
	}
	ct, nt := current.Status.IsTerminal(), candidate.Status.IsTerminal()
	if ct != nt {
		return nt
	}
	return candidate.EvaluatedAt.After(current.EvaluatedAt)
}
