package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/storage"
)

// OutcomeStore implements storage.OutcomeStore using PostgreSQL.
// Uniqueness of (snapshot_id, setup_id) is enforced by the table constraint.
type OutcomeStore struct {
	pool *Pool
}

// NewOutcomeStore creates a new OutcomeStore.
func NewOutcomeStore(pool *Pool) *OutcomeStore {
	return &OutcomeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OutcomeStore = (*OutcomeStore)(nil)

const outcomeColumns = `
	id, snapshot_id, setup_id, asset_id, symbol, profile, timeframe, direction, playbook_id,
	setup_grade, setup_type, grade_rationale, no_trade_reason, grade_debug_reason, risk_reward,
	engine_version, evaluated_at, window_bars, outcome_status, outcome_at, bars_to_outcome, reason
`

// Upsert inserts the verdict or updates a stored open verdict in place.
// Terminal rows are left untouched and reported as UpsertUnchanged.
func (s *OutcomeStore) Upsert(ctx context.Context, o *domain.SetupOutcome) (storage.UpsertResult, error) {
	if o == nil || o.ID == "" || o.SnapshotID == "" || o.SetupID == "" {
		return "", storage.ErrInvalidInput
	}

	query := `
		INSERT INTO setup_outcomes (` + outcomeColumns + `) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22
		)
		ON CONFLICT (snapshot_id, setup_id) DO UPDATE SET
			asset_id = EXCLUDED.asset_id,
			symbol = EXCLUDED.symbol,
			profile = EXCLUDED.profile,
			timeframe = EXCLUDED.timeframe,
			direction = EXCLUDED.direction,
			playbook_id = EXCLUDED.playbook_id,
			setup_grade = EXCLUDED.setup_grade,
			setup_type = EXCLUDED.setup_type,
			grade_rationale = EXCLUDED.grade_rationale,
			no_trade_reason = EXCLUDED.no_trade_reason,
			grade_debug_reason = EXCLUDED.grade_debug_reason,
			risk_reward = EXCLUDED.risk_reward,
			engine_version = EXCLUDED.engine_version,
			evaluated_at = EXCLUDED.evaluated_at,
			window_bars = EXCLUDED.window_bars,
			outcome_status = EXCLUDED.outcome_status,
			outcome_at = EXCLUDED.outcome_at,
			bars_to_outcome = EXCLUDED.bars_to_outcome,
			reason = EXCLUDED.reason
		WHERE setup_outcomes.outcome_status = 'open'
		RETURNING (xmax = 0) AS inserted
	`

	var inserted bool
	err := s.pool.QueryRow(ctx, query,
		o.ID, o.SnapshotID, o.SetupID, o.AssetID, o.Symbol, string(o.Profile), o.Timeframe, string(o.Direction), o.PlaybookID,
		o.SetupGrade, o.SetupType, o.GradeRationale, o.NoTradeReason, o.GradeDebugReason, o.RiskReward,
		o.EngineVersion, o.EvaluatedAt, o.WindowBars, string(o.Status), o.OutcomeAt, o.BarsToOutcome, o.Reason,
	).Scan(&inserted)
	if err != nil {
		// The conflict guard filtered the update: the stored verdict is final.
		if isNotFoundError(err) {
			return storage.UpsertUnchanged, nil
		}
		if isDuplicateKeyError(err) {
			return "", storage.ErrDuplicateKey
		}
		if isCheckViolation(err) {
			return "", fmt.Errorf("upsert outcome %s: %w", o.Status, storage.ErrInvalidInput)
		}
		return "", fmt.Errorf("upsert outcome: %w", err)
	}

	if inserted {
		return storage.UpsertInserted, nil
	}
	return storage.UpsertUpdated, nil
}

// GetByKey retrieves one verdict. Returns ErrNotFound if not exists.
func (s *OutcomeStore) GetByKey(ctx context.Context, snapshotID, setupID string) (*domain.SetupOutcome, error) {
	query := `SELECT ` + outcomeColumns + `
		FROM setup_outcomes
		WHERE snapshot_id = $1 AND setup_id = $2
	`

	o, err := scanOutcome(s.pool.QueryRow(ctx, query, snapshotID, setupID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get outcome by key: %w", err)
	}
	return o, nil
}

// GetBySetupIDs returns the prior verdict per setup id.
func (s *OutcomeStore) GetBySetupIDs(ctx context.Context, setupIDs []string) (map[string]*domain.SetupOutcome, error) {
	result := make(map[string]*domain.SetupOutcome)
	if len(setupIDs) == 0 {
		return result, nil
	}

	query := `SELECT ` + outcomeColumns + `
		FROM setup_outcomes
		WHERE setup_id = ANY($1)
	`

	rows, err := s.pool.Query(ctx, query, setupIDs)
	if err != nil {
		return nil, fmt.Errorf("query outcomes by setup ids: %w", err)
	}
	defer rows.Close()

	outcomes, err := scanOutcomes(rows)
	if err != nil {
		return nil, err
	}
	for _, o := range outcomes {
		if storage.PreferPrior(result[o.SetupID], o) {
			result[o.SetupID] = o
		}
	}
	return result, nil
}

// ListForWindow retrieves verdicts within the filter, ordered by evaluated_at DESC.
func (s *OutcomeStore) ListForWindow(ctx context.Context, f storage.OutcomeFilter) ([]*domain.SetupOutcome, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !f.From.IsZero() {
		add("evaluated_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("evaluated_at <= $%d", f.To)
	}
	if f.AssetID != "" {
		add("upper(asset_id) = upper($%d)", f.AssetID)
	}
	if f.PlaybookID != "" {
		add("playbook_id = $%d", f.PlaybookID)
	}
	if f.Profile != "" {
		add("upper(profile) = upper($%d)", f.Profile)
	}
	if f.Timeframe != "" {
		add("upper(timeframe) = upper($%d)", f.Timeframe)
	}
	if f.EngineVersion != "" {
		add("engine_version = $%d", f.EngineVersion)
	}

	query := `SELECT ` + outcomeColumns + ` FROM setup_outcomes`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY evaluated_at DESC, id ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	return scanOutcomes(rows)
}

// scanOutcome scans a single row into a SetupOutcome.
func scanOutcome(row pgx.Row) (*domain.SetupOutcome, error) {
	var o domain.SetupOutcome
	var profile, direction, status string

	err := row.Scan(
		&o.ID, &o.SnapshotID, &o.SetupID, &o.AssetID, &o.Symbol, &profile, &o.Timeframe, &direction, &o.PlaybookID,
		&o.SetupGrade, &o.SetupType, &o.GradeRationale, &o.NoTradeReason, &o.GradeDebugReason, &o.RiskReward,
		&o.EngineVersion, &o.EvaluatedAt, &o.WindowBars, &status, &o.OutcomeAt, &o.BarsToOutcome, &o.Reason,
	)
	if err != nil {
		return nil, err
	}

	o.Profile = domain.Profile(profile)
	o.Direction = domain.Direction(direction)
	o.Status = domain.OutcomeStatus(status)
	o.EvaluatedAt = o.EvaluatedAt.UTC()
	if o.OutcomeAt != nil {
		t := o.OutcomeAt.UTC()
		o.OutcomeAt = &t
	}
	return &o, nil
}

// scanOutcomes scans multiple rows into a slice of SetupOutcome.
func scanOutcomes(rows pgx.Rows) ([]*domain.SetupOutcome, error) {
	var outcomes []*domain.SetupOutcome

	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outcome row: %w", err)
		}
		outcomes = append(outcomes, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcome rows: %w", err)
	}

	return outcomes, nil
}
