package domain

import (
	"math"
	"time"
)

// PriceBar is a stored OHLC bar for one asset and timeframe.
// Several providers may store a bar for the same period.
type PriceBar struct {
	AssetID   string
	Timeframe string
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Source    string // data provider
}

// HasFiniteRange reports whether high and low are usable numbers.
func (b *PriceBar) HasFiniteRange() bool {
	return isFinite(b.High) && isFinite(b.Low)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
