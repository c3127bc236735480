package outcome

import (
	"time"

	"setup-outcome-lab/internal/domain"
)

// DefaultWindowBars is the number of forward bars scanned per setup.
const DefaultWindowBars = 10

// Input is everything needed to settle one setup against forward bars.
type Input struct {
	Setup      *domain.Setup
	Bars       []*domain.PriceBar // forward bars, any order
	WindowBars int
	Timeframe  string // defaults to the setup's timeframe
	Resolver   SameBarResolver
	Guardrail  Guardrail
}

// Result is a computed verdict.
type Result struct {
	Status        domain.OutcomeStatus
	OutcomeAt     *time.Time
	BarsToOutcome *int
	Reason        *string
	UsedCandles   int
}

// Compute classifies a setup by replaying its forward bars. It is pure:
// the same input always yields the same result.
func Compute(in Input) Result {
	windowBars := in.WindowBars
	if windowBars <= 0 {
		windowBars = DefaultWindowBars
	}
	resolver := in.Resolver
	if resolver == nil {
		resolver = OpenCloseResolver{Doji: DojiAmbiguous}
	}
	guard := in.Guardrail.withDefaults()
	timeframe := in.Timeframe
	if timeframe == "" {
		timeframe = in.Setup.Timeframe
	}

	// 1. Levels
	tpZone := ParseZone(in.Setup.TakeProfit)
	slZone := ParseZone(in.Setup.StopLoss)
	dir := domain.ParseDirection(string(in.Setup.Direction))
	lv, ok := ResolveThresholds(dir, tpZone, slZone)
	if !ok {
		return Result{Status: domain.OutcomeOpen, Reason: reasonPtr(domain.ReasonMissingLevels)}
	}

	// 2. Order and dedupe
	bars := SortBars(in.Bars)
	if domain.IsDaily(timeframe) {
		bars = DedupeDaily(bars)
	}

	// 3. Window
	window := bars
	if len(window) > windowBars {
		window = window[:windowBars]
	}
	used := len(window)

	// 4. Price-scale guardrail
	if reason := guard.check(in.Setup, window, tpZone, slZone); reason != nil {
		return Result{Status: domain.OutcomeInvalid, Reason: reason, UsedCandles: used}
	}

	// 5. Scan
	for i, bar := range window {
		if !bar.HasFiniteRange() {
			continue
		}

		var tpHit, slHit bool
		if dir == domain.DirectionLong {
			tpHit = bar.High >= lv.TakeProfit
			slHit = bar.Low <= lv.StopLoss
		} else {
			tpHit = bar.Low <= lv.TakeProfit
			slHit = bar.High >= lv.StopLoss
		}
		if !tpHit && !slHit {
			continue
		}

		res := Result{UsedCandles: used}
		at := bar.Timestamp
		n := i + 1
		res.OutcomeAt = &at
		res.BarsToOutcome = &n

		switch {
		case tpHit && slHit:
			if status, ok := resolver.Resolve(dir, bar, lv); ok {
				res.Status = status
				res.Reason = reasonPtr(domain.ReasonSameCandleResolved)
			} else {
				res.Status = domain.OutcomeAmbiguous
				res.Reason = reasonPtr(domain.ReasonSameCandle)
			}
		case tpHit:
			res.Status = domain.OutcomeHitTP
		default:
			res.Status = domain.OutcomeHitSL
		}
		return res
	}

	// 6. Nothing settled
	if used < windowBars {
		return Result{Status: domain.OutcomeOpen, Reason: reasonPtr(domain.ReasonInsufficientCandles), UsedCandles: used}
	}
	return Result{Status: domain.OutcomeExpired, UsedCandles: used}
}

func reasonPtr(s string) *string {
	return &s
}
