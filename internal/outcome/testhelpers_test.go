package outcome

import (
	"time"

	"setup-outcome-lab/internal/domain"
)

var anchor = time.Date(2026, 3, 2, 6, 0, 0, 0, time.UTC)

// dayBar returns a daily bar d days after the anchor day.
func dayBar(d int, open, high, low, close float64) *domain.PriceBar {
	return &domain.PriceBar{
		AssetID:   "GC=F",
		Timeframe: "1D",
		Timestamp: time.Date(2026, 3, 2+d, 0, 0, 0, 0, time.UTC),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Source:    "yahoo",
	}
}

// quietBars returns n bars from day start that touch neither 95 nor 112.
func quietBars(start, n int) []*domain.PriceBar {
	bars := make([]*domain.PriceBar, 0, n)
	for i := 0; i < n; i++ {
		bars = append(bars, dayBar(start+i, 100, 104, 97, 101))
	}
	return bars
}

func longSetup() *domain.Setup {
	return &domain.Setup{
		ID:         "setup-1",
		AssetID:    "GC=F",
		Symbol:     "GC=F",
		Timeframe:  "1D",
		Profile:    domain.ProfileSwing,
		Direction:  domain.DirectionLong,
		EntryZone:  "99-101",
		StopLoss:   "95",
		TakeProfit: "112",
	}
}
