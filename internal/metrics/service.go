package metrics

import (
	"context"
	"fmt"
	"time"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/storage"
)

// Query defaults.
const (
	DefaultStatsDays  = 30
	DefaultStatsLimit = 300
)

// Query selects the cohort for Service.Load. Profile and timeframe
// default to SWING and 1D.
type Query struct {
	Days          int
	AssetID       string
	PlaybookID    string
	EngineVersion string
	Profile       string
	Timeframe     string
	Limit         int
}

// Service loads stored verdicts and summarizes them.
type Service struct {
	outcomes storage.OutcomeStore
	now      func() time.Time
}

// NewService creates a statistics service.
func NewService(outcomes storage.OutcomeStore) *Service {
	return &Service{outcomes: outcomes, now: time.Now}
}

// Load summarizes verdicts evaluated within the last q.Days days.
func (s *Service) Load(ctx context.Context, q Query) (*Stats, error) {
	if q.Days <= 0 {
		q.Days = DefaultStatsDays
	}
	if q.Limit <= 0 {
		q.Limit = DefaultStatsLimit
	}
	if q.Profile == "" {
		q.Profile = string(domain.ProfileSwing)
	}
	if q.Timeframe == "" {
		q.Timeframe = domain.Timeframe1D
	}

	rows, err := s.outcomes.ListForWindow(ctx, storage.OutcomeFilter{
		From:          s.now().Add(-time.Duration(q.Days) * 24 * time.Hour),
		AssetID:       q.AssetID,
		PlaybookID:    q.PlaybookID,
		Profile:       q.Profile,
		Timeframe:     q.Timeframe,
		EngineVersion: q.EngineVersion,
		Limit:         q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	return Summarize(rows), nil
}
