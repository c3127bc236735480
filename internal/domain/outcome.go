package domain

import "time"

// OutcomeStatus is the settlement state of a setup.
type OutcomeStatus string

const (
	OutcomeOpen      OutcomeStatus = "open"
	OutcomeHitTP     OutcomeStatus = "hit_tp"
	OutcomeHitSL     OutcomeStatus = "hit_sl"
	OutcomeExpired   OutcomeStatus = "expired"
	OutcomeAmbiguous OutcomeStatus = "ambiguous"
	OutcomeInvalid   OutcomeStatus = "invalid"
)

// AllOutcomeStatuses lists every status in reporting order.
var AllOutcomeStatuses = []OutcomeStatus{
	OutcomeHitTP, OutcomeHitSL, OutcomeExpired, OutcomeAmbiguous, OutcomeInvalid, OutcomeOpen,
}

// String returns the string representation of OutcomeStatus.
func (s OutcomeStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a known value.
func (s OutcomeStatus) IsValid() bool {
	for _, v := range AllOutcomeStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the verdict is final. Only open verdicts
// may be re-evaluated.
func (s OutcomeStatus) IsTerminal() bool {
	return s != OutcomeOpen
}

// Verdict reason codes.
const (
	ReasonMissingLevels          = "missing_levels"
	ReasonInsufficientCandles    = "insufficient_candles"
	ReasonSameCandle             = "tp_and_sl_same_candle"
	ReasonSameCandleResolved     = "tp_and_sl_same_candle_resolved"
	ReasonPriceScaleMismatch     = "price_scale_mismatch"
	ReasonMissingAnchorTime      = "missing_anchor_time"
	ReasonEvaluationError        = "evaluation_error"
	ReasonAssetMismatch          = "asset_mismatch"
	ReasonPlaybookMismatch       = "playbook_mismatch"
	ReasonInsufficientForwardBar = "insufficient_forward_candles"
	ReasonPersistError           = "persist_error"
)

// SetupOutcome is the persisted verdict for one (snapshot, setup) pair.
type SetupOutcome struct {
	ID         string `json:"id"` // deterministic hash of the natural key
	SnapshotID string `json:"snapshotId"`
	SetupID    string `json:"setupId"`

	AssetID    string    `json:"assetId"`
	Symbol     string    `json:"symbol,omitempty"`
	Profile    Profile   `json:"profile"`
	Timeframe  string    `json:"timeframe"`
	Direction  Direction `json:"direction"`
	PlaybookID string    `json:"playbookId,omitempty"`

	SetupGrade       string   `json:"setupGrade,omitempty"`
	SetupType        string   `json:"setupType,omitempty"`
	GradeRationale   string   `json:"gradeRationale,omitempty"`
	NoTradeReason    string   `json:"noTradeReason,omitempty"`
	GradeDebugReason string   `json:"gradeDebugReason,omitempty"`
	RiskReward       *float64 `json:"riskReward,omitempty"`

	EngineVersion string        `json:"engineVersion,omitempty"`
	EvaluatedAt   time.Time     `json:"evaluatedAt"`
	WindowBars    int           `json:"windowBars"`
	Status        OutcomeStatus `json:"outcomeStatus"`
	OutcomeAt     *time.Time    `json:"outcomeAt,omitempty"`
	BarsToOutcome *int          `json:"barsToOutcome,omitempty"`
	Reason        *string       `json:"reason,omitempty"`
}
