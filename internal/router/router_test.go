package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/mygpt/internal/catalog"
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	return New(catalog.Default())
}

func TestClassify_Table(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		msg  string
		want catalog.Category
	}{
		{"Write a haiku about autumn", catalog.CategoryCreative},
		{"def foo(): return 1", catalog.CategoryCode},
		{"```go\nfmt.Println(1)\n```", catalog.CategoryCode},
		{"How do I reverse a list in Python?", catalog.CategoryCode},
		{"is C++ faster than C#?", catalog.CategoryCode},
		{"write a function that sorts numbers", catalog.CategoryCode},
		{"What is 12 * 7?", catalog.CategoryMath},
		{"solve the equation x^2 = 9", catalog.CategoryMath},
		{"what is 15 % of 80", catalog.CategoryMath},
		{"Tell me a story about a dragon", catalog.CategoryCreative},
		{"¿Cómo estás hoy?", catalog.CategoryMultilingual},
		{"今天天气怎么样", catalog.CategoryMultilingual},
		{"Explain why the sky is blue", catalog.CategoryReasoning},
		{"compare the pros and cons of remote work", catalog.CategoryReasoning},
		{"hello", catalog.CategoryGeneral},
		{"good morning 🙂", catalog.CategoryGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			got, _ := r.Classify(tt.msg)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoute_Scenarios(t *testing.T) {
	r := newTestRouter(t)

	assert.Equal(t, "llama-8b", r.Route("Write a haiku about autumn", "")[0])
	assert.Equal(t, "qwen-coder-7b", r.Route("def foo(): return 1", "")[0])
	assert.Equal(t, "qwen-math", r.Route("hello", "qwen-math")[0])
}

func TestRoute_ChainShape(t *testing.T) {
	r := newTestRouter(t)

	messages := []string{
		"hello",
		"def foo(): return 1",
		"What is 12 * 7?",
		"Write a poem",
		"Bonjour, ça va?",
		"why is the sky blue",
		"a long rambling message with nothing in particular to say about anything",
	}
	for _, msg := range messages {
		chain := r.Route(msg, "")
		require.NotEmpty(t, chain, msg)
		assert.Equal(t, "mistral-7b", chain[len(chain)-1], msg)

		seen := map[string]bool{}
		for _, id := range chain {
			assert.False(t, seen[id], "duplicate %s in chain for %q", id, msg)
			seen[id] = true
		}
	}
}

func TestRoute_GeneralIsNotRepeated(t *testing.T) {
	r := newTestRouter(t)

	assert.Equal(t, []string{"llama-3.2-3b", "mistral-7b"}, r.Route("hello", ""))
	assert.Equal(t, []string{"qwen-coder-7b", "llama-3.2-3b", "mistral-7b"}, r.Route("debug this", ""))
}

func TestDecide_ExplicitPreference(t *testing.T) {
	r := newTestRouter(t)

	d := r.Decide("def foo(): return 1", "deepseek-r1")
	assert.True(t, d.Explicit)
	assert.Equal(t, RuleExplicit, d.Rule)
	assert.Equal(t, catalog.CategoryReasoning, d.Category)
	assert.Equal(t, []string{"deepseek-r1", "llama-3.2-3b", "mistral-7b"}, d.Chain)

	// the fallback model itself as preference collapses the chain
	assert.Equal(t, []string{"mistral-7b", "llama-3.2-3b"}, r.Route("hi", "mistral-7b"))
}

func TestDecide_UnknownPreferenceFallsBackToAuto(t *testing.T) {
	r := newTestRouter(t)

	d := r.Decide("Write a haiku about autumn", "gpt-17")
	assert.False(t, d.Explicit)
	assert.Equal(t, "creative", d.Rule)
	assert.Equal(t, "llama-8b", d.Chain[0])
}

func TestRoute_Deterministic(t *testing.T) {
	r := newTestRouter(t)
	first := r.Route("Explain step by step how 3 + 4 works", "")
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, r.Route("Explain step by step how 3 + 4 works", ""))
	}
}

func TestNew_CustomRuleOrder(t *testing.T) {
	rules := DefaultRules()
	// put reasoning ahead of code
	reordered := append([]Rule{rules[4]}, rules[:4]...)
	r := New(catalog.Default(), reordered...)

	cat, rule := r.Classify("explain this python function")
	assert.Equal(t, catalog.CategoryReasoning, cat)
	assert.Equal(t, "reasoning", rule)
	assert.Len(t, r.Rules(), 5)
}

func TestRoute_CatalogWithoutCategoryUsesGeneral(t *testing.T) {
	c, err := catalog.New([]catalog.ModelProfile{
		{ID: "g", Category: catalog.CategoryGeneral},
		{ID: "f", Category: catalog.CategoryFallback},
	})
	require.NoError(t, err)
	r := New(c)

	assert.Equal(t, []string{"g", "f"}, r.Route("def foo(): return 1", ""))
}
