package metrics

import (
	"sort"

	"setup-outcome-lab/internal/domain"
)

// recentLimit caps Stats.Recent.
const recentLimit = 10

// StatusCounts counts verdicts per status.
type StatusCounts map[domain.OutcomeStatus]int

func newStatusCounts() StatusCounts {
	c := make(StatusCounts, len(domain.AllOutcomeStatuses))
	for _, s := range domain.AllOutcomeStatuses {
		c[s] = 0
	}
	return c
}

// PlaybookStats summarizes verdicts of one (playbook, engine version) pair.
type PlaybookStats struct {
	PlaybookID    string       `json:"playbookId"`
	EngineVersion string       `json:"engineVersion"`
	Count         int          `json:"count"`
	Totals        StatusCounts `json:"totals"`
	WinRate       *float64     `json:"winRate"`
	ExpiryRate    *float64     `json:"expiryRate"`
	Samples       []string     `json:"samples"`
}

// Stats summarizes a cohort of stored verdicts.
type Stats struct {
	Count          int                     `json:"count"`
	Totals         StatusCounts            `json:"totals"`
	ByGrade        map[string]StatusCounts `json:"byGrade"`
	ByPlaybook     []*PlaybookStats        `json:"byPlaybook"`
	WinRate        *float64                `json:"winRate"`
	ExpiredShare   *float64                `json:"expiredShare"`
	AmbiguousShare *float64                `json:"ambiguousShare"`
	InvalidRate    *float64                `json:"invalidRate"`

	// Bars-to-outcome distribution over settled hits.
	BarsMedian *float64 `json:"barsToOutcomeMedian"`
	BarsP25    *float64 `json:"barsToOutcomeP25"`
	BarsP75    *float64 `json:"barsToOutcomeP75"`

	Recent []*domain.SetupOutcome `json:"recent"`
}

// Summarize computes statistics for rows. Rows are expected newest first;
// Recent keeps that order.
func Summarize(rows []*domain.SetupOutcome) *Stats {
	stats := &Stats{
		Totals:  newStatusCounts(),
		ByGrade: make(map[string]StatusCounts),
	}

	byPlaybook := make(map[string]*PlaybookStats)
	var bars []float64

	for _, row := range rows {
		if row == nil {
			continue
		}
		stats.Count++
		stats.Totals[row.Status]++

		grade := row.SetupGrade
		if grade == "" {
			grade = "unknown"
		}
		bucket, ok := stats.ByGrade[grade]
		if !ok {
			bucket = newStatusCounts()
			stats.ByGrade[grade] = bucket
		}
		bucket[row.Status]++

		pb := playbookBucket(byPlaybook, row)
		pb.Count++
		pb.Totals[row.Status]++
		if len(pb.Samples) < recentLimit {
			pb.Samples = append(pb.Samples, row.ID)
		}

		if row.BarsToOutcome != nil && (row.Status == domain.OutcomeHitTP || row.Status == domain.OutcomeHitSL) {
			bars = append(bars, float64(*row.BarsToOutcome))
		}
		if len(stats.Recent) < recentLimit {
			stats.Recent = append(stats.Recent, row)
		}
	}

	stats.WinRate = computeWinRate(stats.Totals)
	stats.ExpiredShare = computeShare(stats.Totals[domain.OutcomeExpired], stats.Count)
	stats.AmbiguousShare = computeShare(stats.Totals[domain.OutcomeAmbiguous], stats.Count)
	stats.InvalidRate = computeShare(stats.Totals[domain.OutcomeInvalid], stats.Count)

	if len(bars) > 0 {
		sort.Float64s(bars)
		median := computePercentile(bars, 0.50)
		p25 := computePercentile(bars, 0.25)
		p75 := computePercentile(bars, 0.75)
		stats.BarsMedian, stats.BarsP25, stats.BarsP75 = &median, &p25, &p75
	}

	for _, pb := range byPlaybook {
		pb.WinRate = computeWinRate(pb.Totals)
		pb.ExpiryRate = computeShare(pb.Totals[domain.OutcomeExpired], pb.Count)
		stats.ByPlaybook = append(stats.ByPlaybook, pb)
	}
	sort.Slice(stats.ByPlaybook, func(i, j int) bool {
		a, b := stats.ByPlaybook[i], stats.ByPlaybook[j]
		if a.PlaybookID != b.PlaybookID {
			return a.PlaybookID < b.PlaybookID
		}
		return a.EngineVersion < b.EngineVersion
	})

	return stats
}

func playbookBucket(m map[string]*PlaybookStats, row *domain.SetupOutcome) *PlaybookStats {
	id, engine := row.PlaybookID, row.EngineVersion
	if id == "" {
		id = "unknown"
	}
	if engine == "" {
		engine = "unknown"
	}
	key := id + "|" + engine
	pb, ok := m[key]
	if !ok {
		pb = &PlaybookStats{PlaybookID: id, EngineVersion: engine, Totals: newStatusCounts()}
		m[key] = pb
	}
	return pb
}

// computeWinRate is hit_tp / (hit_tp + hit_sl), nil without closed trades.
func computeWinRate(c StatusCounts) *float64 {
	closed := c[domain.OutcomeHitTP] + c[domain.OutcomeHitSL]
	return computeShare(c[domain.OutcomeHitTP], closed)
}

// computeShare returns n/total, nil when total is zero.
func computeShare(n, total int) *float64 {
	if total == 0 {
		return nil
	}
	v := float64(n) / float64(total)
	return &v
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is percentile (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	// Index for percentile (0-based, continuous)
	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	// Linear interpolation
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}
