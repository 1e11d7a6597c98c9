// Package catalog holds the immutable registry of hosted model profiles the
// router can choose from.
package catalog

import (
	"fmt"
	"strings"

	"github.com/suPer8Hu/mygpt/internal/common"
)

type Category string

const (
	CategoryGeneral      Category = "general"
	CategoryCode         Category = "code"
	CategoryMath         Category = "math"
	CategoryReasoning    Category = "reasoning"
	CategoryCreative     Category = "creative"
	CategoryMultilingual Category = "multilingual"
	CategoryFallback     Category = "fallback"
)

// Categories lists every routing category in display order.
func Categories() []Category {
	return []Category{
		CategoryGeneral,
		CategoryCode,
		CategoryMath,
		CategoryReasoning,
		CategoryCreative,
		CategoryMultilingual,
		CategoryFallback,
	}
}

func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

type ModelProfile struct {
	ID            string   `yaml:"id" json:"id"`
	Category      Category `yaml:"category" json:"category"`
	DisplayName   string   `yaml:"display_name" json:"display_name"`
	Description   string   `yaml:"description" json:"description"`
	CostClass     string   `yaml:"cost_class" json:"cost_class"`
	LatencyClass  string   `yaml:"latency_class" json:"latency_class"`
	Provider      string   `yaml:"provider" json:"provider"`
	UpstreamModel string   `yaml:"upstream_model" json:"upstream_model"`
}

// Catalog is read-only after New returns.
type Catalog struct {
	profiles  []ModelProfile
	byID      map[string]int
	preferred map[Category]int
}

// New validates profiles and indexes them. The first profile of each category
// (in the given order) is that category's preferred model.
func New(profiles []ModelProfile) (*Catalog, error) {
	c := &Catalog{
		profiles:  make([]ModelProfile, 0, len(profiles)),
		byID:      make(map[string]int, len(profiles)),
		preferred: make(map[Category]int),
	}
	for _, p := range profiles {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			return nil, fmt.Errorf("catalog: profile with empty id")
		}
		if !p.Category.Valid() {
			return nil, fmt.Errorf("catalog: profile %q has unknown category %q", p.ID, p.Category)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate profile id %q", p.ID)
		}
		if p.DisplayName == "" {
			p.DisplayName = p.ID
		}
		idx := len(c.profiles)
		c.profiles = append(c.profiles, p)
		c.byID[p.ID] = idx
		if _, ok := c.preferred[p.Category]; !ok {
			c.preferred[p.Category] = idx
		}
	}
	for _, required := range []Category{CategoryGeneral, CategoryFallback} {
		if _, ok := c.preferred[required]; !ok {
			return nil, fmt.Errorf("catalog: no %s profile configured", required)
		}
	}
	return c, nil
}

// List returns a copy of all profiles in load order.
func (c *Catalog) List() []ModelProfile {
	out := make([]ModelProfile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

func (c *Catalog) Resolve(id string) (ModelProfile, error) {
	idx, ok := c.byID[strings.TrimSpace(id)]
	if !ok {
		return ModelProfile{}, fmt.Errorf("model %q: %w", id, common.ErrNotFound)
	}
	return c.profiles[idx], nil
}

func (c *Catalog) Preferred(cat Category) (ModelProfile, bool) {
	idx, ok := c.preferred[cat]
	if !ok {
		return ModelProfile{}, false
	}
	return c.profiles[idx], true
}
