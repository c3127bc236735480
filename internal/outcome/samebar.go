package outcome

import (
	"fmt"
	"math"

	"setup-outcome-lab/internal/domain"
)

// SameBarResolver decides which level was reached first when a single bar
// touches both take-profit and stop-loss. ok is false when the bar is ambiguous.
type SameBarResolver interface {
	Resolve(dir domain.Direction, bar *domain.PriceBar, lv Levels) (status domain.OutcomeStatus, ok bool)
}

// Same-bar policy names accepted by NewSameBarResolver.
const (
	PolicyOpenClose    = "open_close"
	PolicyConservative = "conservative"
	PolicyNone         = "none"
)

// DojiPolicy controls OpenCloseResolver when close equals open.
type DojiPolicy string

const (
	DojiAmbiguous DojiPolicy = "ambiguous"
	DojiStopLoss  DojiPolicy = "stop_loss"
)

// NewSameBarResolver builds a resolver from its configured policy name.
func NewSameBarResolver(policy string, doji DojiPolicy) (SameBarResolver, error) {
	switch policy {
	case "", PolicyOpenClose:
		switch doji {
		case "", DojiAmbiguous, DojiStopLoss:
		default:
			return nil, fmt.Errorf("unknown doji policy %q", doji)
		}
		return OpenCloseResolver{Doji: doji}, nil
	case PolicyConservative:
		return ConservativeResolver{}, nil
	case PolicyNone:
		return NoResolver{}, nil
	}
	return nil, fmt.Errorf("unknown same-bar policy %q", policy)
}

// OpenCloseResolver uses the bar's open first, then its body direction.
//
//  1. open already beyond stop-loss: hit_sl (unresolved if also beyond target)
//  2. open already beyond take-profit: hit_tp
//  3. body toward the target: hit_tp, body against it: hit_sl
//  4. close == open: governed by Doji
type OpenCloseResolver struct {
	Doji DojiPolicy
}

func (r OpenCloseResolver) Resolve(dir domain.Direction, bar *domain.PriceBar, lv Levels) (domain.OutcomeStatus, bool) {
	if !finite(bar.Open) || !finite(bar.Close) {
		return "", false
	}

	long := dir == domain.DirectionLong
	var beyondSL, beyondTP bool
	if long {
		beyondSL = bar.Open <= lv.StopLoss
		beyondTP = bar.Open >= lv.TakeProfit
	} else {
		beyondSL = bar.Open >= lv.StopLoss
		beyondTP = bar.Open <= lv.TakeProfit
	}

	switch {
	case beyondSL && beyondTP:
		return "", false
	case beyondSL:
		return domain.OutcomeHitSL, true
	case beyondTP:
		return domain.OutcomeHitTP, true
	}

	switch {
	case bar.Close > bar.Open:
		if long {
			return domain.OutcomeHitTP, true
		}
		return domain.OutcomeHitSL, true
	case bar.Close < bar.Open:
		if long {
			return domain.OutcomeHitSL, true
		}
		return domain.OutcomeHitTP, true
	}

	if r.Doji == DojiStopLoss {
		return domain.OutcomeHitSL, true
	}
	return "", false
}

// ConservativeResolver always assumes the stop was hit first.
type ConservativeResolver struct{}

func (ConservativeResolver) Resolve(domain.Direction, *domain.PriceBar, Levels) (domain.OutcomeStatus, bool) {
	return domain.OutcomeHitSL, true
}

// NoResolver leaves every double touch ambiguous.
type NoResolver struct{}

func (NoResolver) Resolve(domain.Direction, *domain.PriceBar, Levels) (domain.OutcomeStatus, bool) {
	return "", false
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
