package outcome

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"setup-outcome-lab/internal/domain"
)

// numberToken matches an unsigned number with an optional "." or "," decimal part.
// Signs are handled separately so that "1900-1950" reads as a range.
var numberToken = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// Zone is the numeric span of a free-form price level such as "1900-1950".
// Both bounds are nil when the text contains no number.
type Zone struct {
	Min *float64
	Max *float64
}

// IsEmpty reports whether no number was found.
func (z Zone) IsEmpty() bool {
	return z.Min == nil && z.Max == nil
}

// Mid returns the midpoint of the zone.
func (z Zone) Mid() (float64, bool) {
	if z.Min == nil || z.Max == nil {
		return 0, false
	}
	return (*z.Min + *z.Max) / 2, true
}

// ParseZone extracts the numeric tokens of s and returns their min and max.
func ParseZone(s string) Zone {
	locs := numberToken.FindAllStringIndex(s, -1)
	values := make([]float64, 0, len(locs))
	for _, loc := range locs {
		tok := strings.Replace(s[loc[0]:loc[1]], ",", ".", 1)
		if hasNegativeSign(s, loc[0]) {
			tok = "-" + tok
		}
		d, err := decimal.NewFromString(tok)
		if err != nil {
			continue
		}
		values = append(values, d.InexactFloat64())
	}
	if len(values) == 0 {
		return Zone{}
	}

	sort.Float64s(values)
	lo, hi := values[0], values[len(values)-1]
	return Zone{Min: &lo, Max: &hi}
}

// hasNegativeSign reports whether the token starting at start carries a minus sign.
// A dash that follows another number (ignoring blanks) is a range separator.
func hasNegativeSign(s string, start int) bool {
	if start == 0 || s[start-1] != '-' {
		return false
	}
	for i := start - 2; i >= 0; i-- {
		switch c := s[i]; {
		case c == ' ' || c == '\t':
			continue
		case c >= '0' && c <= '9':
			return false
		default:
			return true
		}
	}
	return true
}

// Levels are the resolved take-profit and stop-loss thresholds of a setup.
type Levels struct {
	TakeProfit float64
	StopLoss   float64
}

// ResolveThresholds picks the nearer target edge and the farther stop edge
// for the given direction. ok is false when either level is missing.
func ResolveThresholds(dir domain.Direction, tp, sl Zone) (Levels, bool) {
	var tpv, slv *float64
	if dir == domain.DirectionLong {
		tpv = firstSet(tp.Min, tp.Max)
		slv = firstSet(sl.Max, sl.Min)
	} else {
		tpv = firstSet(tp.Max, tp.Min)
		slv = firstSet(sl.Min, sl.Max)
	}
	if tpv == nil || slv == nil {
		return Levels{}, false
	}
	return Levels{TakeProfit: *tpv, StopLoss: *slv}, true
}

func firstSet(a, b *float64) *float64 {
	if a != nil {
		return a
	}
	return b
}
