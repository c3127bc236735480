package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
// Setups are stored as a JSONB array on the snapshot row.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert adds a new snapshot. Returns ErrDuplicateKey if the id exists.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.ID == "" {
		return storage.ErrInvalidInput
	}

	setups := snap.Setups
	if setups == nil {
		setups = []domain.Setup{}
	}
	payload, err := json.Marshal(setups)
	if err != nil {
		return fmt.Errorf("marshal setups: %w", err)
	}

	query := `
		INSERT INTO perception_snapshots (id, snapshot_time, setups)
		VALUES ($1, $2, $3)
	`

	_, err = s.pool.Exec(ctx, query, snap.ID, snap.SnapshotTime, payload)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetByID retrieves a snapshot. Returns ErrNotFound if not exists.
func (s *SnapshotStore) GetByID(ctx context.Context, snapshotID string) (*domain.Snapshot, error) {
	query := `
		SELECT id, snapshot_time, setups
		FROM perception_snapshots
		WHERE id = $1
	`

	snap, err := scanSnapshot(s.pool.QueryRow(ctx, query, snapshotID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot by id: %w", err)
	}
	return snap, nil
}

// ListPaged returns one page of snapshots within the filter, newest first.
func (s *SnapshotStore) ListPaged(ctx context.Context, f storage.SnapshotFilter, page, pageSize int) (*storage.SnapshotPage, error) {
	if page < 1 || pageSize < 1 {
		return nil, storage.ErrInvalidInput
	}

	from := f.From
	to := f.To
	if to.IsZero() {
		to = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM perception_snapshots
		WHERE snapshot_time >= $1 AND snapshot_time <= $2
	`, from, to).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count snapshots: %w", err)
	}

	query := `
		SELECT id, snapshot_time, setups
		FROM perception_snapshots
		WHERE snapshot_time >= $1 AND snapshot_time <= $2
		ORDER BY snapshot_time DESC, id ASC
		LIMIT $3 OFFSET $4
	`

	rows, err := s.pool.Query(ctx, query, from, to, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	result := &storage.SnapshotPage{Total: total}
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		result.Snapshots = append(result.Snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}

	return result, nil
}

// scanSnapshot scans a single row into a Snapshot.
func scanSnapshot(row pgx.Row) (*domain.Snapshot, error) {
	var snap domain.Snapshot
	var payload []byte

	if err := row.Scan(&snap.ID, &snap.SnapshotTime, &payload); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &snap.Setups); err != nil {
		return nil, fmt.Errorf("unmarshal setups: %w", err)
	}

	snap.SnapshotTime = snap.SnapshotTime.UTC()
	return &snap, nil
}
