package outcome

import (
	"fmt"
	"sort"
	"strconv"

	"setup-outcome-lab/internal/domain"
)

// Default guardrail bounds for entry-midpoint / reference-price.
const (
	DefaultMinRatio      = 0.8
	DefaultMaxRatio      = 1.2
	DefaultEngineVersion = "unknown"
)

// Guardrail rejects setups whose entry zone is on a different price scale
// than the bars (wrong instrument, missing decimal shift). The engine
// version is stamped into the rejection reason.
type Guardrail struct {
	MinRatio      float64
	MaxRatio      float64
	EngineVersion string
}

// DefaultGuardrail returns the standard [0.8, 1.2] guardrail.
func DefaultGuardrail() Guardrail {
	return Guardrail{
		MinRatio:      DefaultMinRatio,
		MaxRatio:      DefaultMaxRatio,
		EngineVersion: DefaultEngineVersion,
	}
}

func (g Guardrail) withDefaults() Guardrail {
	if g.MinRatio <= 0 {
		g.MinRatio = DefaultMinRatio
	}
	if g.MaxRatio <= 0 {
		g.MaxRatio = DefaultMaxRatio
	}
	if g.EngineVersion == "" {
		g.EngineVersion = DefaultEngineVersion
	}
	return g
}

// check returns a mismatch reason, or nil when the setup passes or
// there is nothing to compare against. Bounds are inclusive.
func (g Guardrail) check(setup *domain.Setup, window []*domain.PriceBar, tp, sl Zone) *string {
	ref, ok := ReferencePrice(window)
	if !ok || ref == 0 {
		return nil
	}
	entryMid, ok := ParseZone(setup.EntryZone).Mid()
	if !ok || entryMid == 0 {
		return nil
	}

	ratio := entryMid / ref
	if ratio >= g.MinRatio && ratio <= g.MaxRatio {
		return nil
	}

	symbol := setup.Symbol
	if symbol == "" {
		symbol = setup.AssetID
	}
	reason := fmt.Sprintf("%s entryToRef=%.3f ref=%.2f entry=%.2f sl=%s tp=%s symbol=%s engine=%s",
		domain.ReasonPriceScaleMismatch, ratio, ref, entryMid,
		formatLevel(firstSet(sl.Min, sl.Max)), formatLevel(firstSet(tp.Max, tp.Min)),
		symbol, g.EngineVersion)
	return &reason
}

// ReferencePrice is the median (upper middle for even counts) of the bar
// midpoints (high+low)/2. Falls back to the first bar's close.
func ReferencePrice(window []*domain.PriceBar) (float64, bool) {
	mids := make([]float64, 0, len(window))
	for _, b := range window {
		if b.HasFiniteRange() {
			mids = append(mids, (b.High+b.Low)/2)
		}
	}
	if len(mids) > 0 {
		sort.Float64s(mids)
		return mids[len(mids)/2], true
	}
	if len(window) > 0 && finite(window[0].Close) {
		return window[0].Close, true
	}
	return 0, false
}

func formatLevel(v *float64) string {
	if v == nil {
		return "?"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
