package playbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(DefaultCatalog())

	tests := []struct {
		name    string
		asset   Asset
		profile string
		want    string
		reason  string
	}{
		{name: "gold id", asset: Asset{ID: "gold", Symbol: "GC=F"}, profile: "SWING", want: "gold-swing-v0.2", reason: "gold id"},
		{name: "gold futures", asset: Asset{ID: "gc", Symbol: "GC=F"}, profile: "SWING", want: "gold-swing-v0.2", reason: "gold via GC symbol"},
		{name: "gold spot", asset: Asset{Symbol: "XAUUSD=X"}, profile: "swing", want: "gold-swing-v0.2", reason: "gold via XAU symbol"},
		{name: "gold by name", asset: Asset{Symbol: "XYZ", Name: "Gold Trust"}, profile: "SWING", want: "gold-swing-v0.2", reason: "gold name"},
		{name: "caret index", asset: Asset{Symbol: "^GSPC"}, profile: "SWING", want: "index-swing-v0.1", reason: "index caret symbol"},
		{name: "index keyword", asset: Asset{Symbol: "NDX100"}, profile: "SWING", want: "index-swing-v0.1", reason: "index keyword symbol"},
		{name: "crypto hyphen", asset: Asset{Symbol: "BTC-USD"}, profile: "SWING", want: "crypto-swing-v0.1", reason: "crypto hyphen USD"},
		{name: "crypto tail", asset: Asset{Symbol: "ETHUSDT"}, profile: "SWING", want: "crypto-swing-v0.1", reason: "crypto USD/USDT tail"},
		{name: "fx yahoo", asset: Asset{Symbol: "EURUSD=X"}, profile: "SWING", want: "fx-swing-v0.1", reason: "fx yahoo =X"},
		{name: "fx six letters", asset: Asset{Symbol: "USDJPY"}, profile: "SWING", want: "fx-swing-v0.1", reason: "fx 6-letter with USD"},
		{name: "generic", asset: Asset{Symbol: "AAPL"}, profile: "SWING", want: "generic-swing-v0.1", reason: "fallback generic"},
		{name: "non swing", asset: Asset{Symbol: "GC=F"}, profile: "INTRADAY", want: "generic-swing-v0.1", reason: "non-swing profile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Resolve(tt.asset, tt.profile)
			require.NotNil(t, got.Playbook)
			assert.Equal(t, tt.want, got.Playbook.ID)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestCatalog_Compatible(t *testing.T) {
	c := DefaultCatalog()

	assert.True(t, c.Compatible("gold-swing-v0.2", "gold-swing-v0.2"))
	assert.True(t, c.Compatible("gold-swing-v0.1", "gold-swing-v0.2"), "same family")
	assert.True(t, c.Compatible("gold-swing-v0.2", "gold-swing-v0.1"), "same family")
	assert.False(t, c.Compatible("gold-swing-v0.2", "index-swing-v0.1"))
	assert.False(t, c.Compatible("gold-swing-v0.2", ""))
	assert.True(t, c.Compatible("custom-x", "custom-x"), "unknown ids match exactly")
	assert.False(t, c.Compatible("gold-swing-v9", "gold-swing-v0.2"), "no prefix inference")
}

func TestParseCatalog_Validation(t *testing.T) {
	_, err := ParseCatalog([]byte("playbooks:\n  - id: a\n    asset_class: gold\n    active: true\n"))
	assert.Error(t, err, "missing generic playbook")

	_, err = ParseCatalog([]byte(`playbooks:
  - {id: g, asset_class: generic, active: true}
  - {id: g, asset_class: gold, active: true}
`))
	assert.Error(t, err, "duplicate id")

	_, err = ParseCatalog([]byte(`playbooks:
  - {id: g, asset_class: generic, active: true}
  - {id: h, asset_class: generic, active: true}
`))
	assert.Error(t, err, "two active generic playbooks")

	_, err = ParseCatalog([]byte("playbooks: [unclosed"))
	assert.Error(t, err)

	c, err := ParseCatalog([]byte(`playbooks:
  - {id: g, asset_class: generic, active: true, families: [x]}
`))
	require.NoError(t, err)
	assert.Equal(t, "g", c.ForClass(ClassGold).ID, "unknown class falls back to generic")
	assert.Equal(t, []string{"g"}, c.IDs())
}
