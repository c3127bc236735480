package playbook

import (
	"regexp"
	"strings"
)

// Asset identifies the instrument a setup trades.
type Asset struct {
	ID     string
	Symbol string
	Name   string
}

// Resolution is the playbook chosen for an asset and the rule that chose it.
type Resolution struct {
	Playbook *Playbook
	Reason   string
}

// Resolver maps assets to their active playbook.
type Resolver struct {
	catalog *Catalog
}

// NewResolver creates a Resolver over a catalog.
func NewResolver(c *Catalog) *Resolver {
	return &Resolver{catalog: c}
}

// Catalog returns the underlying catalog.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Resolve picks the playbook for an asset. Rules apply in order
// gold, index, crypto, fx; anything else and non-swing profiles get generic.
func (r *Resolver) Resolve(a Asset, profile string) Resolution {
	if !strings.Contains(strings.ToLower(profile), "swing") {
		return Resolution{Playbook: r.catalog.ForClass(ClassGeneric), Reason: "non-swing profile"}
	}

	matchers := []struct {
		class string
		match func(Asset) (bool, string)
	}{
		{ClassGold, matchGold},
		{ClassIndex, matchIndex},
		{ClassCrypto, matchCrypto},
		{ClassFX, matchFX},
	}
	for _, m := range matchers {
		if ok, reason := m.match(a); ok {
			return Resolution{Playbook: r.catalog.ForClass(m.class), Reason: reason}
		}
	}
	return Resolution{Playbook: r.catalog.ForClass(ClassGeneric), Reason: "fallback generic"}
}

// ResolveID is Resolve returning only the playbook id.
func (r *Resolver) ResolveID(a Asset, profile string) string {
	return r.Resolve(a, profile).Playbook.ID
}

func matchGold(a Asset) (bool, string) {
	id, symbol, name := strings.ToUpper(a.ID), strings.ToUpper(a.Symbol), strings.ToUpper(a.Name)
	switch {
	case id == "GOLD":
		return true, "gold id"
	case strings.HasPrefix(symbol, "GC"):
		return true, "gold via GC symbol"
	case strings.Contains(symbol, "XAU"):
		return true, "gold via XAU symbol"
	case symbol == "GOLD":
		return true, "gold symbol"
	case strings.Contains(name, "GOLD"):
		return true, "gold name"
	}
	return false, ""
}

var indexKeywords = []string{"GSPC", "NDX", "DJI", "GDAXI", "FTSE", "STOXX", "HSI", "NIKKEI", "IBEX"}

func matchIndex(a Asset) (bool, string) {
	symbol, name := strings.ToUpper(a.Symbol), strings.ToUpper(a.Name)
	if strings.HasPrefix(symbol, "^") {
		return true, "index caret symbol"
	}
	for _, k := range indexKeywords {
		if strings.Contains(symbol, k) {
			return true, "index keyword symbol"
		}
	}
	if strings.Contains(name, "INDEX") {
		return true, "index name"
	}
	return false, ""
}

func matchCrypto(a Asset) (bool, string) {
	symbol := strings.ToUpper(a.Symbol)
	switch {
	case strings.Contains(symbol, "=X"):
		return false, ""
	case strings.Contains(symbol, "-USD"):
		return true, "crypto hyphen USD"
	case strings.HasSuffix(symbol, "USDT") || strings.HasSuffix(symbol, "USD"):
		return true, "crypto USD/USDT tail"
	}
	return false, ""
}

var sixLetters = regexp.MustCompile(`^[A-Z]{6}$`)

func matchFX(a Asset) (bool, string) {
	symbol := strings.ToUpper(a.Symbol)
	if strings.HasSuffix(symbol, "=X") {
		return true, "fx yahoo =X"
	}
	if sixLetters.MatchString(symbol) && strings.Contains(symbol, "USD") {
		return true, "fx 6-letter with USD"
	}
	return false, ""
}
