package router

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/suPer8Hu/mygpt/internal/catalog"
)

// Rule pairs a predicate with the category it selects. Rules are evaluated in
// slice order and the first match wins.
type Rule struct {
	Name     string
	Category catalog.Category
	Match    func(message string) bool
}

// DefaultRules is the auto-routing table. Order matters: a request to write
// code is "code" even though it also reads as a creative "write a ..." request.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "code", Category: catalog.CategoryCode, Match: looksLikeCode},
		{Name: "math", Category: catalog.CategoryMath, Match: looksLikeMath},
		{Name: "creative", Category: catalog.CategoryCreative, Match: looksCreative},
		{Name: "multilingual", Category: catalog.CategoryMultilingual, Match: hasNonASCIILetters},
		{Name: "reasoning", Category: catalog.CategoryReasoning, Match: asksForReasoning},
	}
}

var (
	codeKeywords = wordPattern(
		"code", "coding", "function", "method", "debug", "debugging", "compile", "compiler",
		"python", "javascript", "typescript", "java", "golang", "rust", "kotlin", "swift",
		"programming", "algorithm", "sql", "html", "css", "regex", "api", "stack trace",
		"segfault", "refactor", "unit test", "bash", "shell script",
	)
	codeLanguages = regexp.MustCompile(`(?i)(^|[^\w+#])(c\+\+|c#)([^\w+#]|$)`)
	codeSyntax    = []*regexp.Regexp{
		regexp.MustCompile("```"),
		regexp.MustCompile(`\bdef\s+\w+\s*\(`),
		regexp.MustCompile(`\bfunc\s+(\(\w+\s+\*?\w+\)\s*)?\w*\s*\(`),
		regexp.MustCompile(`\bfunction\s*\w*\s*\(`),
		regexp.MustCompile(`\bclass\s+\w+\s*[:({]`),
		regexp.MustCompile(`#include\s*<`),
		regexp.MustCompile(`\)\s*=>`),
		regexp.MustCompile(`(?i)\bselect\s+.+\s+from\s+\w+`),
		regexp.MustCompile(`\bconsole\.log\s*\(`),
		regexp.MustCompile(`\bprintln?!?\s*\(`),
	}

	mathKeywords = wordPattern(
		"calculate", "compute", "solve", "equation", "equations", "integral", "derivative",
		"theorem", "formula", "math", "maths", "algebra", "arithmetic", "geometry",
		"probability", "factorial", "logarithm", "sqrt", "matrix",
	)
	mathExpr = []*regexp.Regexp{
		regexp.MustCompile(`\d+(\.\d+)?\s*[+*/^×÷=<>]\s*\(?-?\d`),
		regexp.MustCompile(`\d+(\.\d+)?\s+-\s+\(?\d`),
		regexp.MustCompile(`\d+(\.\d+)?\s*%\s*of\s+\d`),
		regexp.MustCompile(`[∫√∑π≤≥≠]`),
	}

	creativeKeywords = wordPattern(
		"story", "stories", "poem", "poems", "poetry", "haiku", "sonnet", "limerick",
		"lyrics", "song", "fiction", "fairy tale", "narrative", "imagine", "character",
		"plot", "screenplay", "creative",
	)
	creativeFraming = regexp.MustCompile(`(?i)\bwrite\s+(me\s+)?(a|an|some)\b`)

	reasoningKeywords = wordPattern(
		"explain", "why", "how does", "how do", "step by step", "step-by-step", "reason",
		"reasoning", "analyze", "analyse", "compare", "pros and cons", "trade-off",
		"tradeoff", "logic", "prove", "justify", "implications",
	)
)

// wordPattern builds a case-insensitive alternation anchored on word boundaries.
func wordPattern(words ...string) *regexp.Regexp {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, regexp.QuoteMeta(w))
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

func anyMatch(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func looksLikeCode(m string) bool {
	return anyMatch(codeSyntax, m) || codeKeywords.MatchString(m) || codeLanguages.MatchString(m)
}

func looksLikeMath(m string) bool {
	return anyMatch(mathExpr, m) || mathKeywords.MatchString(m)
}

func looksCreative(m string) bool {
	return creativeKeywords.MatchString(m) || creativeFraming.MatchString(m)
}

func hasNonASCIILetters(m string) bool {
	for _, r := range m {
		if r > unicode.MaxASCII && unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func asksForReasoning(m string) bool {
	return reasoningKeywords.MatchString(m)
}
