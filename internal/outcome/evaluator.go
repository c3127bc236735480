package outcome

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/storage"
)

var (
	// ErrUnsupportedTimeframe is returned for timeframe codes without a known bar length.
	ErrUnsupportedTimeframe = errors.New("unsupported timeframe")

	// ErrCandleFetch wraps candle store failures.
	ErrCandleFetch = errors.New("candle fetch failed")
)

// lookaheadSlack adds bars to the fetch range to absorb weekends and gaps.
const lookaheadSlack = 3

// TimeframeDuration returns the bar length of a timeframe code.
func TimeframeDuration(timeframe string) (time.Duration, error) {
	switch strings.ToUpper(strings.TrimSpace(timeframe)) {
	case domain.Timeframe1H:
		return time.Hour, nil
	case domain.Timeframe4H:
		return 4 * time.Hour, nil
	case domain.Timeframe1D:
		return 24 * time.Hour, nil
	case domain.Timeframe1W:
		return 7 * 24 * time.Hour, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedTimeframe, timeframe)
}

// Options configures an Evaluator.
type Options struct {
	Candles    storage.CandleStore
	WindowBars int
	Resolver   SameBarResolver
	Guardrail  Guardrail
	Logger     zerolog.Logger
}

// Evaluator fetches forward bars for a setup and computes its verdict.
type Evaluator struct {
	candles    storage.CandleStore
	windowBars int
	resolver   SameBarResolver
	guardrail  Guardrail
	logger     zerolog.Logger
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(opts Options) *Evaluator {
	if opts.WindowBars <= 0 {
		opts.WindowBars = DefaultWindowBars
	}
	if opts.Resolver == nil {
		opts.Resolver = OpenCloseResolver{Doji: DojiAmbiguous}
	}
	return &Evaluator{
		candles:    opts.Candles,
		windowBars: opts.WindowBars,
		resolver:   opts.Resolver,
		guardrail:  opts.Guardrail.withDefaults(),
		logger:     opts.Logger.With().Str("component", "evaluator").Logger(),
	}
}

// WindowBars returns the configured scan window.
func (e *Evaluator) WindowBars() int {
	return e.windowBars
}

// EngineVersion returns the version stamped into verdicts.
func (e *Evaluator) EngineVersion() string {
	return e.guardrail.EngineVersion
}

// Evaluation is the outcome of one Evaluate call.
type Evaluation struct {
	Result      Result
	WindowBars  int
	CandleCount int // bars returned by the store
}

// Evaluate settles setup using bars strictly after anchor.
// windowBars <= 0 uses the evaluator default.
func (e *Evaluator) Evaluate(ctx context.Context, setup *domain.Setup, anchor time.Time, windowBars int) (*Evaluation, error) {
	if windowBars <= 0 {
		windowBars = e.windowBars
	}
	timeframe := setup.Timeframe
	if timeframe == "" {
		timeframe = domain.Timeframe1D
	}
	unit, err := TimeframeDuration(timeframe)
	if err != nil {
		return nil, err
	}

	q := storage.CandleQuery{
		AssetID:   setup.AssetID,
		Timeframe: timeframe,
		From:      anchor.Add(time.Millisecond),
		To:        anchor.Add(time.Duration(windowBars+lookaheadSlack) * unit),
	}
	bars, err := e.candles.GetCandles(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrCandleFetch, setup.AssetID, err)
	}

	// The setup bar itself never counts.
	forward := make([]*domain.PriceBar, 0, len(bars))
	for _, b := range bars {
		if b.Timestamp.After(anchor) {
			forward = append(forward, b)
		}
	}

	res := Compute(Input{
		Setup:      setup,
		Bars:       forward,
		WindowBars: windowBars,
		Timeframe:  timeframe,
		Resolver:   e.resolver,
		Guardrail:  e.guardrail,
	})

	e.logger.Debug().
		Str("setup_id", setup.ID).
		Str("asset_id", setup.AssetID).
		Int("candles", len(bars)).
		Str("status", res.Status.String()).
		Msg("setup evaluated")

	return &Evaluation{Result: res, WindowBars: windowBars, CandleCount: len(bars)}, nil
}
