// Package sqlite provides a single-file OutcomeStore on top of gorm, for
// local runs that have no PostgreSQL at hand.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/storage"
)

type outcomeModel struct {
	ID               string     `gorm:"column:id;primaryKey"`
	SnapshotID       string     `gorm:"column:snapshot_id;uniqueIndex:idx_outcome_key,priority:1"`
	SetupID          string     `gorm:"column:setup_id;uniqueIndex:idx_outcome_key,priority:2;index"`
	AssetID          string     `gorm:"column:asset_id;index"`
	Symbol           string     `gorm:"column:symbol"`
	Profile          string     `gorm:"column:profile"`
	Timeframe        string     `gorm:"column:timeframe"`
	Direction        string     `gorm:"column:direction"`
	PlaybookID       string     `gorm:"column:playbook_id"`
	SetupGrade       string     `gorm:"column:setup_grade"`
	SetupType        string     `gorm:"column:setup_type"`
	GradeRationale   string     `gorm:"column:grade_rationale"`
	NoTradeReason    string     `gorm:"column:no_trade_reason"`
	GradeDebugReason string     `gorm:"column:grade_debug_reason"`
	RiskReward       *float64   `gorm:"column:risk_reward"`
	EngineVersion    string     `gorm:"column:engine_version"`
	EvaluatedAt      time.Time  `gorm:"column:evaluated_at;index"`
	WindowBars       int        `gorm:"column:window_bars"`
	OutcomeStatus    string     `gorm:"column:outcome_status"`
	OutcomeAt        *time.Time `gorm:"column:outcome_at"`
	BarsToOutcome    *int       `gorm:"column:bars_to_outcome"`
	Reason           *string    `gorm:"column:reason"`
}

func (outcomeModel) TableName() string { return "setup_outcomes" }

// OutcomeStore implements storage.OutcomeStore on SQLite.
type OutcomeStore struct {
	db *gorm.DB
}

// Compile-time interface check.
var _ storage.OutcomeStore = (*OutcomeStore)(nil)

// NewOutcomeStore opens (creating if needed) the database file at path.
func NewOutcomeStore(path string) (*OutcomeStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return NewOutcomeStoreFromDB(db)
}

// NewOutcomeStoreFromDB wraps an existing gorm handle and migrates the schema.
func NewOutcomeStoreFromDB(db *gorm.DB) (*OutcomeStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	if err := db.AutoMigrate(&outcomeModel{}); err != nil {
		return nil, fmt.Errorf("migrate setup_outcomes: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &OutcomeStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *OutcomeStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Upsert inserts the verdict or updates a stored open verdict in place.
// Terminal rows are left untouched and reported as UpsertUnchanged.
func (s *OutcomeStore) Upsert(ctx context.Context, o *domain.SetupOutcome) (storage.UpsertResult, error) {
	if o == nil || o.ID == "" || o.SnapshotID == "" || o.SetupID == "" {
		return "", storage.ErrInvalidInput
	}

	var result storage.UpsertResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing outcomeModel
		err := tx.Where("snapshot_id = ? AND setup_id = ?", o.SnapshotID, o.SetupID).Take(&existing).Error
		switch {
		case err == nil:
			if domain.OutcomeStatus(existing.OutcomeStatus).IsTerminal() {
				result = storage.UpsertUnchanged
				return nil
			}
			result = storage.UpsertUpdated
		case errors.Is(err, gorm.ErrRecordNotFound):
			result = storage.UpsertInserted
		default:
			return err
		}

		m := newOutcomeModel(o)
		if result == storage.UpsertUpdated {
			m.ID = existing.ID
		}
		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "snapshot_id"}, {Name: "setup_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"asset_id", "symbol", "profile", "timeframe", "direction", "playbook_id",
				"setup_grade", "setup_type", "grade_rationale", "no_trade_reason", "grade_debug_reason",
				"risk_reward", "engine_version", "evaluated_at", "window_bars", "outcome_status",
				"outcome_at", "bars_to_outcome", "reason",
			}),
		}).Create(&m).Error
	})
	if err != nil {
		return "", fmt.Errorf("upsert outcome: %w", err)
	}
	return result, nil
}

// GetByKey retrieves one verdict. Returns ErrNotFound if not exists.
func (s *OutcomeStore) GetByKey(ctx context.Context, snapshotID, setupID string) (*domain.SetupOutcome, error) {
	var m outcomeModel
	err := s.db.WithContext(ctx).
		Where("snapshot_id = ? AND setup_id = ?", snapshotID, setupID).
		Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get outcome: %w", err)
	}
	return m.toDomain(), nil
}

// GetBySetupIDs returns the preferred prior verdict per setup id.
func (s *OutcomeStore) GetBySetupIDs(ctx context.Context, setupIDs []string) (map[string]*domain.SetupOutcome, error) {
	result := make(map[string]*domain.SetupOutcome)
	if len(setupIDs) == 0 {
		return result, nil
	}

	var rows []outcomeModel
	if err := s.db.WithContext(ctx).Where("setup_id IN ?", setupIDs).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get outcomes by setup ids: %w", err)
	}
	for i := range rows {
		o := rows[i].toDomain()
		if storage.PreferPrior(result[o.SetupID], o) {
			result[o.SetupID] = o
		}
	}
	return result, nil
}

// ListForWindow retrieves verdicts matching the filter, newest evaluation first.
func (s *OutcomeStore) ListForWindow(ctx context.Context, f storage.OutcomeFilter) ([]*domain.SetupOutcome, error) {
	q := s.db.WithContext(ctx).Model(&outcomeModel{})
	if !f.From.IsZero() {
		q = q.Where("evaluated_at >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("evaluated_at <= ?", f.To.UTC())
	}
	if f.AssetID != "" {
		q = q.Where("UPPER(asset_id) = ?", strings.ToUpper(f.AssetID))
	}
	if f.PlaybookID != "" {
		q = q.Where("playbook_id = ?", f.PlaybookID)
	}
	if f.Profile != "" {
		q = q.Where("UPPER(profile) = ?", strings.ToUpper(f.Profile))
	}
	if f.Timeframe != "" {
		q = q.Where("UPPER(timeframe) = ?", strings.ToUpper(f.Timeframe))
	}
	if f.EngineVersion != "" {
		q = q.Where("engine_version = ?", f.EngineVersion)
	}
	q = q.Order("evaluated_at DESC").Order("id ASC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var rows []outcomeModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	out := make([]*domain.SetupOutcome, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func newOutcomeModel(o *domain.SetupOutcome) outcomeModel {
	m := outcomeModel{
		ID:               o.ID,
		SnapshotID:       o.SnapshotID,
		SetupID:          o.SetupID,
		AssetID:          o.AssetID,
		Symbol:           o.Symbol,
		Profile:          string(o.Profile),
		Timeframe:        o.Timeframe,
		Direction:        string(o.Direction),
		PlaybookID:       o.PlaybookID,
		SetupGrade:       o.SetupGrade,
		SetupType:        o.SetupType,
		GradeRationale:   o.GradeRationale,
		NoTradeReason:    o.NoTradeReason,
		GradeDebugReason: o.GradeDebugReason,
		RiskReward:       o.RiskReward,
		EngineVersion:    o.EngineVersion,
		EvaluatedAt:      o.EvaluatedAt.UTC(),
		WindowBars:       o.WindowBars,
		OutcomeStatus:    string(o.Status),
		BarsToOutcome:    o.BarsToOutcome,
		Reason:           o.Reason,
	}
	if o.OutcomeAt != nil {
		t := o.OutcomeAt.UTC()
		m.OutcomeAt = &t
	}
	return m
}

func (m *outcomeModel) toDomain() *domain.SetupOutcome {
	o := &domain.SetupOutcome{
		ID:               m.ID,
		SnapshotID:       m.SnapshotID,
		SetupID:          m.SetupID,
		AssetID:          m.AssetID,
		Symbol:           m.Symbol,
		Profile:          domain.Profile(m.Profile),
		Timeframe:        m.Timeframe,
		Direction:        domain.Direction(m.Direction),
		PlaybookID:       m.PlaybookID,
		SetupGrade:       m.SetupGrade,
		SetupType:        m.SetupType,
		GradeRationale:   m.GradeRationale,
		NoTradeReason:    m.NoTradeReason,
		GradeDebugReason: m.GradeDebugReason,
		RiskReward:       m.RiskReward,
		EngineVersion:    m.EngineVersion,
		EvaluatedAt:      m.EvaluatedAt.UTC(),
		WindowBars:       m.WindowBars,
		Status:           domain.OutcomeStatus(m.OutcomeStatus),
		BarsToOutcome:    m.BarsToOutcome,
		Reason:           m.Reason,
	}
	if m.OutcomeAt != nil {
		t := m.OutcomeAt.UTC()
		o.OutcomeAt = &t
	}
	return o
}
