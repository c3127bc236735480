// Package playbook maps assets to playbook definitions and decides
// playbook compatibility through explicit family tags.
package playbook

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Asset classes recognised by the resolver.
const (
	ClassGold    = "gold"
	ClassIndex   = "index"
	ClassCrypto  = "crypto"
	ClassFX      = "fx"
	ClassGeneric = "generic"
)

// Playbook is one catalog entry.
type Playbook struct {
	ID         string   `yaml:"id"`
	Label      string   `yaml:"label"`
	ShortLabel string   `yaml:"short_label"`
	AssetClass string   `yaml:"asset_class"`
	Families   []string `yaml:"families"`
	Active     bool     `yaml:"active"`
}

// InFamily reports whether the playbook carries the family tag.
func (p *Playbook) InFamily(family string) bool {
	for _, f := range p.Families {
		if f == family {
			return true
		}
	}
	return false
}

// Catalog indexes playbooks by id and by asset class.
type Catalog struct {
	byID    map[string]*Playbook
	byClass map[string]*Playbook // active playbook per class
	order   []string
}

type catalogFile struct {
	Playbooks []*Playbook `yaml:"playbooks"`
}

// ParseCatalog decodes a YAML catalog. Every asset class must have exactly
// one active playbook, and the generic class must exist.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode playbook catalog: %w", err)
	}

	c := &Catalog{
		byID:    make(map[string]*Playbook, len(file.Playbooks)),
		byClass: make(map[string]*Playbook),
	}
	for _, p := range file.Playbooks {
		if p.ID == "" {
			return nil, fmt.Errorf("playbook catalog: entry without id")
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("playbook catalog: duplicate id %q", p.ID)
		}
		c.byID[p.ID] = p
		c.order = append(c.order, p.ID)

		if !p.Active {
			continue
		}
		if prev, dup := c.byClass[p.AssetClass]; dup {
			return nil, fmt.Errorf("playbook catalog: class %q has two active playbooks (%s, %s)", p.AssetClass, prev.ID, p.ID)
		}
		c.byClass[p.AssetClass] = p
	}
	if _, ok := c.byClass[ClassGeneric]; !ok {
		return nil, fmt.Errorf("playbook catalog: no active %s playbook", ClassGeneric)
	}
	return c, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(catalogYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// Get returns a playbook by id.
func (c *Catalog) Get(id string) (*Playbook, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// ForClass returns the active playbook of an asset class, falling back to generic.
func (c *Catalog) ForClass(class string) *Playbook {
	if p, ok := c.byClass[class]; ok {
		return p
	}
	return c.byClass[ClassGeneric]
}

// IDs returns all playbook ids in catalog order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Compatible reports whether a setup resolved to playbook resolved satisfies
// a playbook filter. Unknown ids only match exactly.
func (c *Catalog) Compatible(filter, resolved string) bool {
	if resolved == "" {
		return false
	}
	if filter == resolved {
		return true
	}
	fp, ok := c.byID[filter]
	if !ok {
		return false
	}
	rp, ok := c.byID[resolved]
	if !ok {
		return false
	}
	for _, f := range fp.Families {
		if rp.InFamily(f) {
			return true
		}
	}
	return false
}
