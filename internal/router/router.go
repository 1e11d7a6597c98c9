// Package router maps a chat message (and an optional explicit model choice)
// to an ordered chain of catalog model ids: primary first, then fallbacks.
package router

import (
	"strings"

	"github.com/suPer8Hu/mygpt/internal/catalog"
)

const (
	RuleExplicit = "explicit"
	RuleDefault  = "default"
)

type Router struct {
	catalog *catalog.Catalog
	rules   []Rule
}

// New builds a router over cat. With no rules the DefaultRules table is used.
func New(cat *catalog.Catalog, rules ...Rule) *Router {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Router{catalog: cat, rules: rules}
}

// Rules returns the evaluation order.
func (r *Router) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Classify returns the category of the first matching rule, or general.
func (r *Router) Classify(message string) (catalog.Category, string) {
	for _, rule := range r.rules {
		if rule.Match(message) {
			return rule.Category, rule.Name
		}
	}
	return catalog.CategoryGeneral, RuleDefault
}

type Decision struct {
	Category catalog.Category `json:"category"`
	Rule     string           `json:"rule"`
	Explicit bool             `json:"explicit"`
	Chain    []string         `json:"chain"`
}

// Decide resolves the candidate chain. A preference that names a known
// profile becomes the sole primary; an unknown preference is ignored.
func (r *Router) Decide(message, preference string) Decision {
	var d Decision
	var primary string

	if pref := strings.TrimSpace(preference); pref != "" {
		if p, err := r.catalog.Resolve(pref); err == nil {
			d.Category = p.Category
			d.Rule = RuleExplicit
			d.Explicit = true
			primary = p.ID
		}
	}
	if primary == "" {
		d.Category, d.Rule = r.Classify(message)
		if p, ok := r.catalog.Preferred(d.Category); ok {
			primary = p.ID
		}
	}

	candidates := []string{primary}
	if p, ok := r.catalog.Preferred(catalog.CategoryGeneral); ok {
		candidates = append(candidates, p.ID)
	}
	if p, ok := r.catalog.Preferred(catalog.CategoryFallback); ok {
		candidates = append(candidates, p.ID)
	}
	d.Chain = dedupe(candidates)
	return d
}

// Route returns only the candidate chain.
func (r *Router) Route(message, preference string) []string {
	return r.Decide(message, preference).Chain
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
