package outcome

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"setup-outcome-lab/internal/domain"
)

func TestParseZone(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantMin float64
		wantMax float64
		empty   bool
	}{
		{name: "single", in: "1950", wantMin: 1950, wantMax: 1950},
		{name: "dash range", in: "1900-1950", wantMin: 1900, wantMax: 1950},
		{name: "spaced range", in: "1950 - 1900", wantMin: 1900, wantMax: 1950},
		{name: "comma decimal", in: "2345,5", wantMin: 2345.5, wantMax: 2345.5},
		{name: "no thousands separator", in: "2.345,5", wantMin: 2.345, wantMax: 5},
		{name: "dot decimals", in: "1.0850 / 1.0870", wantMin: 1.085, wantMax: 1.087},
		{name: "negative value", in: "-5.5 to 2", wantMin: -5.5, wantMax: 2},
		{name: "text around", in: "TP around 4120 (weekly high)", wantMin: 4120, wantMax: 4120},
		{name: "no number", in: "n/a", empty: true},
		{name: "empty", in: "", empty: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z := ParseZone(tt.in)
			if tt.empty {
				assert.True(t, z.IsEmpty())
				return
			}
			require.NotNil(t, z.Min)
			require.NotNil(t, z.Max)
			assert.InDelta(t, tt.wantMin, *z.Min, 1e-9)
			assert.InDelta(t, tt.wantMax, *z.Max, 1e-9)
		})
	}
}

func TestZone_Mid(t *testing.T) {
	mid, ok := ParseZone("99-101").Mid()
	require.True(t, ok)
	assert.Equal(t, 100.0, mid)

	_, ok = ParseZone("").Mid()
	assert.False(t, ok)
}

func TestResolveThresholds(t *testing.T) {
	tp := ParseZone("110-112")
	sl := ParseZone("94-96")

	long, ok := ResolveThresholds(domain.DirectionLong, tp, sl)
	require.True(t, ok)
	assert.Equal(t, 110.0, long.TakeProfit, "long takes the nearer target edge")
	assert.Equal(t, 96.0, long.StopLoss, "long takes the upper stop edge")

	short, ok := ResolveThresholds(domain.DirectionShort, ParseZone("88-90"), ParseZone("104-106"))
	require.True(t, ok)
	assert.Equal(t, 90.0, short.TakeProfit)
	assert.Equal(t, 104.0, short.StopLoss)

	_, ok = ResolveThresholds(domain.DirectionLong, ParseZone(""), sl)
	assert.False(t, ok)
	_, ok = ResolveThresholds(domain.DirectionShort, tp, ParseZone("none"))
	assert.False(t, ok)
}
