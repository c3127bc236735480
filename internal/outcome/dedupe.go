package outcome

import (
	"sort"

	"setup-outcome-lab/internal/domain"
)

// SortBars returns a copy of bars ordered by timestamp ASC, source ASC.
func SortBars(bars []*domain.PriceBar) []*domain.PriceBar {
	sorted := make([]*domain.PriceBar, 0, len(bars))
	for _, b := range bars {
		if b != nil {
			sorted = append(sorted, b)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].Source < sorted[j].Source
	})
	return sorted
}

// DedupeDaily keeps the first bar of each UTC calendar day.
// Input must already be sorted.
func DedupeDaily(sorted []*domain.PriceBar) []*domain.PriceBar {
	seen := make(map[string]struct{}, len(sorted))
	out := make([]*domain.PriceBar, 0, len(sorted))
	for _, b := range sorted {
		day := b.Timestamp.UTC().Format("2006-01-02")
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, b)
	}
	return out
}
