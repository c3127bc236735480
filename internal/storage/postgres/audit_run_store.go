package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/storage"
)

// AuditRunStore implements storage.AuditRunStore using PostgreSQL.
type AuditRunStore struct {
	pool *Pool
}

// NewAuditRunStore creates a new AuditRunStore.
func NewAuditRunStore(pool *Pool) *AuditRunStore {
	return &AuditRunStore{pool: pool}
}

// Compile-time interface check.
var _ storage.AuditRunStore = (*AuditRunStore)(nil)

// Insert adds a new run record. Returns ErrDuplicateKey if the id exists.
func (s *AuditRunStore) Insert(ctx context.Context, r *domain.AuditRun) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	var meta []byte
	if r.Meta != nil {
		var err error
		if meta, err = json.Marshal(r.Meta); err != nil {
			return fmt.Errorf("marshal audit meta: %w", err)
		}
	}

	query := `
		INSERT INTO audit_runs (id, action, source, ok, duration_ms, message, error, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		r.ID, r.Action, r.Source, r.OK, r.DurationMs, r.Message, r.Error, meta, r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert audit run: %w", err)
	}
	return nil
}

// ListRecent retrieves the latest runs for an action, newest first.
// An empty action lists every action.
func (s *AuditRunStore) ListRecent(ctx context.Context, action string, limit int) ([]*domain.AuditRun, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, action, source, ok, duration_ms, message, error, meta, created_at
		FROM audit_runs
		WHERE $1 = '' OR action = $1
		ORDER BY created_at DESC, id ASC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, action, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.AuditRun
	for rows.Next() {
		var r domain.AuditRun
		var meta []byte
		err := rows.Scan(&r.ID, &r.Action, &r.Source, &r.OK, &r.DurationMs, &r.Message, &r.Error, &meta, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit run row: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &r.Meta); err != nil {
				return nil, fmt.Errorf("unmarshal audit meta: %w", err)
			}
		}
		r.CreatedAt = r.CreatedAt.UTC()
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit run rows: %w", err)
	}

	return runs, nil
}
