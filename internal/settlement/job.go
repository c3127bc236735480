package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/lock"
	"setup-outcome-lab/internal/storage"
)

// ErrBatchInProgress is returned when another batch holds the advisory lock.
var ErrBatchInProgress = errors.New("outcome batch already in progress")

// LockKey is the advisory lock key for outcome batches.
const LockKey = "outcomes:evaluate"

// Locker obtains advisory locks. The returned unlock func is idempotent.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// JobOptions configures a Job.
type JobOptions struct {
	Runner   *Runner
	Locker   Locker // optional
	LockTTL  time.Duration
	Audit    storage.AuditRunStore // optional
	Recorder Recorder
	Now      func() time.Time
	Logger   zerolog.Logger
}

// Job wraps a Runner with locking, auditing and telemetry. It is what
// schedulers and HTTP triggers invoke.
type Job struct {
	runner   *Runner
	locker   Locker
	lockTTL  time.Duration
	audit    storage.AuditRunStore
	recorder Recorder
	now      func() time.Time
	logger   zerolog.Logger
}

// NewJob creates a Job.
func NewJob(opts JobOptions) *Job {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Job{
		runner:   opts.Runner,
		locker:   opts.Locker,
		lockTTL:  opts.LockTTL,
		audit:    opts.Audit,
		recorder: opts.Recorder,
		now:      opts.Now,
		logger:   opts.Logger.With().Str("component", "job").Logger(),
	}
}

// Run executes one batch. source names the trigger ("cron", "cli", "http")
// and is stored on the audit record.
func (j *Job) Run(ctx context.Context, source string, params RunParams) (*BatchResult, error) {
	if j.locker != nil {
		unlock, err := j.locker.Acquire(ctx, LockKey, j.lockTTL)
		if errors.Is(err, lock.ErrLockHeld) {
			return nil, ErrBatchInProgress
		}
		if err != nil {
			return nil, fmt.Errorf("acquire batch lock: %w", err)
		}
		defer unlock()
	}

	start := j.now()
	res, err := j.runner.Run(ctx, params)
	duration := j.now().Sub(start)

	j.recorder.RecordBatch(res, duration, err)
	j.writeAudit(ctx, source, params, res, duration, err)

	if err != nil {
		return nil, err
	}
	return res, nil
}

func (j *Job) writeAudit(ctx context.Context, source string, params RunParams, res *BatchResult, duration time.Duration, runErr error) {
	if j.audit == nil {
		return
	}
	p := params.Normalize()
	run := &domain.AuditRun{
		ID:         uuid.New().String(),
		Action:     domain.AuditActionOutcomesEvaluate,
		Source:     source,
		OK:         runErr == nil,
		DurationMs: duration.Milliseconds(),
		CreatedAt:  j.now().UTC(),
		Meta: map[string]any{
			"daysBack":   p.DaysBack,
			"limit":      p.Limit,
			"assetId":    p.AssetID,
			"playbookId": p.PlaybookID,
			"dryRun":     params.DryRun,
		},
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if res != nil {
		run.Message = fmt.Sprintf("processed=%d evaluated=%d skippedClosed=%d errors=%d",
			res.Processed, res.Metrics.Evaluated, res.Metrics.SkippedClosed, res.Metrics.Errors)
		run.Meta["metrics"] = res.Metrics
	}
	if err := j.audit.Insert(ctx, run); err != nil {
		j.logger.Warn().Err(err).Str("audit_id", run.ID).Msg("failed to write audit run")
	}
}
