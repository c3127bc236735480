package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"setup-outcome-lab/internal/domain"
	"setup-outcome-lab/internal/storage"
)

// CandleStore implements storage.CandleStore using ClickHouse.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

type candleKey struct {
	assetID   string
	timeframe string
	unixMs    int64
	source    string
}

// InsertBulk adds multiple bars. Fails entire batch on duplicate
// (asset_id, timeframe, timestamp, source).
func (s *CandleStore) InsertBulk(ctx context.Context, bars []*domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[candleKey]struct{}, len(bars))
	for _, b := range bars {
		if b == nil || b.AssetID == "" || b.Timeframe == "" {
			return storage.ErrInvalidInput
		}
		k := candleKey{strings.ToUpper(b.AssetID), strings.ToUpper(b.Timeframe), b.Timestamp.UnixMilli(), b.Source}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
	}

	// Check for duplicates against existing DB rows
	for _, b := range bars {
		exists, err := s.exists(ctx, b)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_bars (
			asset_id, timeframe, timestamp, source,
			open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(
			strings.ToUpper(b.AssetID), strings.ToUpper(b.Timeframe), b.Timestamp.UTC(), b.Source,
			b.Open, b.High, b.Low, b.Close, b.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetCandles retrieves bars within [From, To] (inclusive), ordered by
// timestamp then source. FINAL collapses replayed provider rows.
func (s *CandleStore) GetCandles(ctx context.Context, q storage.CandleQuery) ([]*domain.PriceBar, error) {
	query := `
		SELECT asset_id, timeframe, timestamp, source, open, high, low, close, volume
		FROM price_bars FINAL
		WHERE asset_id = ? AND timeframe = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, source ASC
	`

	to := q.To
	if to.IsZero() {
		to = time.Date(2262, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	rows, err := s.conn.Query(ctx, query,
		strings.ToUpper(q.AssetID), strings.ToUpper(q.Timeframe), q.From.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	return scanPriceBars(rows)
}

// exists checks if a bar with the same key exists.
func (s *CandleStore) exists(ctx context.Context, b *domain.PriceBar) (bool, error) {
	query := `
		SELECT count(*) FROM price_bars
		WHERE asset_id = ? AND timeframe = ? AND timestamp = ? AND source = ?
	`

	var count uint64
	err := s.conn.QueryRow(ctx, query,
		strings.ToUpper(b.AssetID), strings.ToUpper(b.Timeframe), b.Timestamp.UTC(), b.Source,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// rowScanner is the part of driver.Rows the scan helpers need.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanPriceBars(rows rowScanner) ([]*domain.PriceBar, error) {
	var bars []*domain.PriceBar

	for rows.Next() {
		var b domain.PriceBar
		err := rows.Scan(
			&b.AssetID, &b.Timeframe, &b.Timestamp, &b.Source,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
		)
		if err != nil {
			return nil, fmt.Errorf("scan price bar row: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		bars = append(bars, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price bar rows: %w", err)
	}

	return bars, nil
}
