package domain

import (
	"strings"
	"time"
)

// Direction is the trade direction of a setup.
type Direction string

const (
	DirectionLong  Direction = "Long"
	DirectionShort Direction = "Short"
)

// ParseDirection normalizes free-form direction labels ("long", "BUY", "short").
// Unknown values are returned unchanged and fail IsValid.
func ParseDirection(s string) Direction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return DirectionLong
	case "short", "sell":
		return DirectionShort
	}
	return Direction(s)
}

// IsValid checks if the direction is a valid value.
func (d Direction) IsValid() bool {
	return d == DirectionLong || d == DirectionShort
}

// Profile is the holding-horizon classification of a setup.
type Profile string

const (
	ProfileSwing    Profile = "SWING"
	ProfileIntraday Profile = "INTRADAY"
	ProfilePosition Profile = "POSITION"
)

// IsSwing reports whether the profile is SWING, case-insensitively.
func (p Profile) IsSwing() bool {
	return strings.EqualFold(string(p), string(ProfileSwing))
}

// Timeframe codes used for stored price bars.
const (
	Timeframe1H = "1H"
	Timeframe4H = "4H"
	Timeframe1D = "1D"
	Timeframe1W = "1W"
)

// IsDaily reports whether a timeframe code denotes daily bars.
func IsDaily(timeframe string) bool {
	return strings.EqualFold(strings.TrimSpace(timeframe), Timeframe1D)
}

// Setup is a trading setup produced by the upstream perception pipeline.
// Level fields are free-form strings such as "1900-1950" or "2345,5".
type Setup struct {
	ID         string    `json:"id"`
	AssetID    string    `json:"assetId"`
	Symbol     string    `json:"symbol"`
	Name       string    `json:"name,omitempty"`
	Timeframe  string    `json:"timeframe"`
	Profile    Profile   `json:"profile"`
	Direction  Direction `json:"direction"`
	EntryZone  string    `json:"entryZone"`
	StopLoss   string    `json:"stopLoss"`
	TakeProfit string    `json:"takeProfit"`
	PlaybookID string    `json:"playbookId,omitempty"`

	// GeneratedAt overrides the snapshot time as evaluation anchor when set.
	GeneratedAt *time.Time `json:"generatedAt,omitempty"`

	// Grading metadata copied verbatim into the verdict.
	SetupGrade       string   `json:"setupGrade,omitempty"`
	SetupType        string   `json:"setupType,omitempty"`
	GradeRationale   string   `json:"gradeRationale,omitempty"`
	NoTradeReason    string   `json:"noTradeReason,omitempty"`
	GradeDebugReason string   `json:"gradeDebugReason,omitempty"`
	RiskReward       *float64 `json:"riskReward,omitempty"`
}

// HasLevels reports whether entry, stop and target are all present.
func (s *Setup) HasLevels() bool {
	return strings.TrimSpace(s.EntryZone) != "" &&
		strings.TrimSpace(s.StopLoss) != "" &&
		strings.TrimSpace(s.TakeProfit) != ""
}

// Snapshot is one generation run of the perception pipeline.
type Snapshot struct {
	ID           string    `json:"id"`
	SnapshotTime time.Time `json:"snapshotTime"`
	Setups       []Setup   `json:"setups"`
}

// AnchorTime returns the evaluation anchor for a setup of this snapshot:
// the setup's own generation time if set, else the snapshot time.
func (s *Snapshot) AnchorTime(setup *Setup) time.Time {
	if setup.GeneratedAt != nil && !setup.GeneratedAt.IsZero() {
		return *setup.GeneratedAt
	}
	return s.SnapshotTime
}
