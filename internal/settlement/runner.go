package settlement

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/idhash"
	"setup-outcome-lab/internal/outcome"
	"setup-outcome-lab/internal/storage"
)

const (
	topReasonsLimit = 5
	sampleIDsLimit  = 5
)

// Metrics counts verdicts produced by one batch.
type Metrics struct {
	Evaluated     int `json:"evaluated"`
	HitTP         int `json:"hit_tp"`
	HitSL         int `json:"hit_sl"`
	Expired       int `json:"expired"`
	Ambiguous     int `json:"ambiguous"`
	Invalid       int `json:"invalid"`
	StillOpen     int `json:"still_open"`
	Errors        int `json:"errors"`
	SkippedClosed int `json:"skippedClosed"`
}

// Settled returns the number of evaluated verdicts that are terminal.
func (m Metrics) Settled() int {
	return m.HitTP + m.HitSL + m.Expired + m.Ambiguous + m.Invalid
}

func (m *Metrics) count(status domain.OutcomeStatus) {
	m.Evaluated++
	switch status {
	case domain.OutcomeHitTP:
		m.HitTP++
	case domain.OutcomeHitSL:
		m.HitSL++
	case domain.OutcomeExpired:
		m.Expired++
	case domain.OutcomeAmbiguous:
		m.Ambiguous++
	case domain.OutcomeInvalid:
		m.Invalid++
	case domain.OutcomeOpen:
		m.StillOpen++
	}
}

// ReasonCount is one entry of the top rejection reasons.
type ReasonCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// BatchResult is the outcome of one Runner.Run.
type BatchResult struct {
	Metrics             Metrics             `json:"metrics"`
	Processed           int                 `json:"processed"`
	DryRun              bool                `json:"dryRun"`
	Inserted            int                 `json:"inserted"`
	Updated             int                 `json:"updated"`
	Unchanged           int                 `json:"unchanged"`
	Reasons             map[string]int      `json:"reasons"`
	TopReasons          []ReasonCount       `json:"topReasons"`
	ReasonSamples       map[string][]string `json:"reasonSamples,omitempty"`
	Stats               SelectionStats      `json:"stats"`
	SampleSetupIDs      []string            `json:"sampleSetupIds"`
	MismatchedAssets    map[string]int      `json:"mismatchedAssets,omitempty"`
	MismatchedPlaybooks map[string]int      `json:"mismatchedPlaybooks,omitempty"`
	PlaybookMatchStats  PlaybookMatchStats  `json:"playbookMatchStats"`
	PlaybookSamples     []PlaybookSample    `json:"playbookSamples,omitempty"`
	CandlesFetched      int                 `json:"candlesFetched"`
}

func (r *BatchResult) addReason(reason, setupID string) {
	r.Reasons[reason]++
	if len(r.ReasonSamples[reason]) < maxReasonSamples {
		r.ReasonSamples[reason] = append(r.ReasonSamples[reason], setupID)
	}
}

// RunParams configures one batch.
type RunParams struct {
	SelectParams
	DryRun     bool `json:"dryRun"`
	Debug      bool `json:"debug"`
	WindowBars int  `json:"windowBars,omitempty"`
}

// Recorder receives batch telemetry.
type Recorder interface {
	RecordBatch(res *BatchResult, duration time.Duration, err error)
	RecordCandlesFetched(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordBatch(*BatchResult, time.Duration, error) {}
func (nopRecorder) RecordCandlesFetched(int) {}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Selector  *Selector
	Evaluator *outcome.Evaluator
	Outcomes  storage.OutcomeStore
	Recorder  Recorder
	Now       func() time.Time
	Logger    zerolog.Logger
}

// Runner settles eligible setups one after another and persists verdicts.
type Runner struct {
	selector  *Selector
	evaluator *outcome.Evaluator
	outcomes  storage.OutcomeStore
	recorder  Recorder
	now       func() time.Time
	logger    zerolog.Logger
}

// NewRunner creates a Runner.
func NewRunner(opts RunnerOptions) *Runner {
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{
		selector:  opts.Selector,
		evaluator: opts.Evaluator,
		outcomes:  opts.Outcomes,
		recorder:  opts.Recorder,
		now:       opts.Now,
		logger:    opts.Logger.With().Str("component", "runner").Logger(),
	}
}

// Run selects candidates and settles them sequentially. Per-candidate
// failures are counted and skipped; selection and prior lookup failures
// abort the batch.
func (r *Runner) Run(ctx context.Context, params RunParams) (*BatchResult, error) {
	sel, err := r.selector.Select(ctx, params.SelectParams)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}

	res := &BatchResult{
		Processed:           len(sel.Candidates),
		DryRun:              params.DryRun,
		Reasons:             sel.Reasons,
		ReasonSamples:       sel.ReasonSamples,
		Stats:               sel.Stats,
		SampleSetupIDs:      make([]string, 0, sampleIDsLimit),
		MismatchedAssets:    sel.MismatchedAssets,
		MismatchedPlaybooks: sel.MismatchedPlaybooks,
		PlaybookMatchStats:  sel.PlaybookMatchStats,
		PlaybookSamples:     sel.PlaybookSamples,
	}

	ids := make([]string, 0, len(sel.Candidates))
	for _, c := range sel.Candidates {
		ids = append(ids, c.Setup.ID)
		if len(res.SampleSetupIDs) < sampleIDsLimit {
			res.SampleSetupIDs = append(res.SampleSetupIDs, c.Setup.ID)
		}
	}

	priors := map[string]*domain.SetupOutcome{}
	if len(ids) > 0 {
		priors, err = r.outcomes.GetBySetupIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load prior outcomes: %w", err)
		}
	}

	for _, c := range sel.Candidates {
		r.settle(ctx, c, priors[c.Setup.ID], params, res)
	}

	res.TopReasons = RankReasons(res.Reasons, topReasonsLimit)

	r.logger.Info().
		Int("days_back", params.Normalize().DaysBack).
		Int("processed", res.Processed).
		Int("evaluated", res.Metrics.Evaluated).
		Int("skipped_closed", res.Metrics.SkippedClosed).
		Int("errors", res.Metrics.Errors).
		Bool("dry_run", params.DryRun).
		Msg("outcome batch finished")

	return res, nil
}

func (r *Runner) settle(ctx context.Context, c *Candidate, prior *domain.SetupOutcome, params RunParams, res *BatchResult) {
	log := r.logger.With().
		Str("setup_id", c.Setup.ID).
		Str("snapshot_id", c.SnapshotID).
		Str("asset_id", c.Setup.AssetID).
		Logger()

	if c.AnchorTime.IsZero() {
		res.addReason(domain.ReasonMissingAnchorTime, c.Setup.ID)
		return
	}
	if prior != nil && prior.Status.IsTerminal() {
		res.Metrics.SkippedClosed++
		return
	}

	ev, err := r.evaluator.Evaluate(ctx, &c.Setup, c.AnchorTime, params.WindowBars)
	if err != nil {
		res.Metrics.Errors++
		reason := domain.ReasonEvaluationError
		if errors.Is(err, outcome.ErrCandleFetch) {
			reason = domain.ReasonInsufficientForwardBar
		}
		res.addReason(reason, c.Setup.ID)
		log.Error().Err(err).Msg("failed to evaluate outcome")
		return
	}
	res.CandlesFetched += ev.CandleCount
	r.recorder.RecordCandlesFetched(ev.CandleCount)
	res.Metrics.count(ev.Result.Status)

	if params.DryRun {
		return
	}

	// An open verdict stored under an older snapshot is settled in place
	// so a republished setup never holds two rows.
	snapshotID := c.SnapshotID
	if prior != nil && prior.Status == domain.OutcomeOpen && prior.SnapshotID != "" {
		snapshotID = prior.SnapshotID
	}
	verdict := r.buildOutcome(c, snapshotID, ev)
	result, err := r.outcomes.Upsert(ctx, verdict)
	if err != nil {
		res.Metrics.Errors++
		res.addReason(domain.ReasonPersistError, c.Setup.ID)
		log.Error().Err(err).Msg("failed to persist outcome")
		return
	}
	switch result {
	case storage.UpsertInserted:
		res.Inserted++
	case storage.UpsertUpdated:
		res.Updated++
	default:
		res.Unchanged++
	}
}

func (r *Runner) buildOutcome(c *Candidate, snapshotID string, ev *outcome.Evaluation) *domain.SetupOutcome {
	s := &c.Setup
	engine := r.evaluator.EngineVersion()
	profile := domain.Profile(strings.ToUpper(string(s.Profile)))
	if profile == "" {
		profile = domain.ProfileSwing
	}
	return &domain.SetupOutcome{
		ID:               idhash.ComputeOutcomeID(snapshotID, s.ID),
		SnapshotID:       snapshotID,
		SetupID:          s.ID,
		AssetID:          s.AssetID,
		Symbol:           s.Symbol,
		Profile:          profile,
		Timeframe:        s.Timeframe,
		Direction:        domain.ParseDirection(string(s.Direction)),
		PlaybookID:       c.EffectivePlaybookID,
		SetupGrade:       s.SetupGrade,
		SetupType:        s.SetupType,
		GradeRationale:   s.GradeRationale,
		NoTradeReason:    s.NoTradeReason,
		GradeDebugReason: withEngineTag(s.GradeDebugReason, engine),
		RiskReward:       s.RiskReward,
		EngineVersion:    engine,
		EvaluatedAt:      r.now().UTC(),
		WindowBars:       ev.WindowBars,
		Status:           ev.Result.Status,
		OutcomeAt:        ev.Result.OutcomeAt,
		BarsToOutcome:    ev.Result.BarsToOutcome,
		Reason:           ev.Result.Reason,
	}
}

// withEngineTag appends "engine=<version>" to a debug reason unless one
// is already present.
func withEngineTag(reason, engine string) string {
	if strings.Contains(reason, "engine=") {
		return reason
	}
	tag := "engine=" + engine
	if strings.TrimSpace(reason) == "" {
		return tag
	}
	return reason + ";" + tag
}

// RankReasons returns the n most frequent reasons, ties broken by name.
func RankReasons(reasons map[string]int, n int) []ReasonCount {
	out := make([]ReasonCount, 0, len(reasons))
	for reason, count := range reasons {
		out = append(out, ReasonCount{Reason: reason, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
