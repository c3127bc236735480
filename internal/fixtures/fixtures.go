// Package fixtures seeds snapshot and candle stores for local runs without
// databases.
package fixtures

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/storage"
)

// File is the on-disk fixture format.
type File struct {
	Snapshots []*domain.Snapshot `json:"snapshots"`
	Bars      []Bar              `json:"bars"`
}

// Bar is a price bar as written in fixture files.
type Bar struct {
	AssetID   string    `json:"assetId"`
	Timeframe string    `json:"timeframe"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume,omitempty"`
	Source    string    `json:"source,omitempty"`
}

func (b Bar) toDomain() *domain.PriceBar {
	tf := b.Timeframe
	if tf == "" {
		tf = domain.Timeframe1D
	}
	src := b.Source
	if src == "" {
		src = "fixture"
	}
	return &domain.PriceBar{
		AssetID:   b.AssetID,
		Timeframe: tf,
		Timestamp: b.Timestamp.UTC(),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
		Source:    src,
	}
}

// LoadFile reads a JSON fixture file into the stores.
func LoadFile(ctx context.Context, path string, snaps storage.SnapshotStore, candles storage.CandleStore) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fixtures: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode fixtures %s: %w", path, err)
	}
	return Load(ctx, &f, snaps, candles)
}

// Load inserts the fixture contents into the stores.
func Load(ctx context.Context, f *File, snaps storage.SnapshotStore, candles storage.CandleStore) error {
	for _, s := range f.Snapshots {
		if err := snaps.Insert(ctx, s); err != nil {
			return fmt.Errorf("insert snapshot %s: %w", s.ID, err)
		}
	}
	if len(f.Bars) == 0 {
		return nil
	}
	bars := make([]*domain.PriceBar, 0, len(f.Bars))
	for _, b := range f.Bars {
		bars = append(bars, b.toDomain())
	}
	if err := candles.InsertBulk(ctx, bars); err != nil {
		return fmt.Errorf("insert bars: %w", err)
	}
	return nil
}

// Demo returns a small dataset anchored a week before now: a gold long that
// reaches its target on the third bar, an FX long still running, and an
// intraday setup the selector skips.
func Demo(now time.Time) *File {
	day := now.UTC().Truncate(24*time.Hour).AddDate(0, 0, -7)
	snapTime := day.Add(-6 * time.Hour)

	gold := domain.Setup{
		ID:         "demo-gold-1",
		AssetID:    "GC=F",
		Symbol:     "GC=F",
		Name:       "Gold Futures",
		Timeframe:  domain.Timeframe1D,
		Profile:    domain.ProfileSwing,
		Direction:  domain.DirectionLong,
		EntryZone:  "2380-2400",
		StopLoss:   "2350",
		TakeProfit: "2460",
		SetupGrade: "A",
	}
	fx := domain.Setup{
		ID:         "demo-eurusd-1",
		AssetID:    "EURUSD=X",
		Symbol:     "EURUSD=X",
		Timeframe:  domain.Timeframe1D,
		Profile:    domain.ProfileSwing,
		Direction:  domain.DirectionShort,
		EntryZone:  "1.0850-1.0870",
		StopLoss:   "1.0950",
		TakeProfit: "1.0700",
		SetupGrade: "B",
	}
	intraday := gold
	intraday.ID = "demo-gold-intraday"
	intraday.Profile = domain.ProfileIntraday

	f := &File{
		Snapshots: []*domain.Snapshot{{
			ID:           "demo-snapshot-1",
			SnapshotTime: snapTime,
			Setups:       []domain.Setup{gold, fx, intraday},
		}},
	}

	goldBars := [][4]float64{
		{2392, 2410, 2378, 2405},
		{2405, 2431, 2396, 2428},
		{2428, 2466, 2420, 2455},
		{2455, 2470, 2440, 2462},
	}
	for i, p := range goldBars {
		f.Bars = append(f.Bars, Bar{
			AssetID: "GC=F", Timeframe: domain.Timeframe1D, Timestamp: day.AddDate(0, 0, i),
			Open: p[0], High: p[1], Low: p[2], Close: p[3], Source: "demo",
		})
	}
	for i := 0; i < 4; i++ {
		f.Bars = append(f.Bars, Bar{
			AssetID: "EURUSD=X", Timeframe: domain.Timeframe1D, Timestamp: day.AddDate(0, 0, i),
			Open: 1.0860, High: 1.0890, Low: 1.0820, Close: 1.0850, Source: "demo",
		})
	}
	return f
}
