package matching

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Matcher holds precompiled keyword patterns. It has no mutable state and is
// safe for concurrent use.
type Matcher struct {
	keywords []string
	patterns []*regexp.Regexp
}

// Compile builds a Matcher for keywords. Blank keywords are ignored and the
// input order is kept, so the first keyword listed wins on overlap.
func Compile(keywords []string) *Matcher {
	m := &Matcher{}
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		m.keywords = append(m.keywords, kw)
		m.patterns = append(m.patterns, regexp.MustCompile(pattern(kw)))
	}
	return m
}

// Match returns the first keyword that occurs in text as a whole word,
// ignoring case.
func (m *Matcher) Match(text string) (string, bool) {
	if m == nil || text == "" {
		return "", false
	}
	for i, p := range m.patterns {
		if p.MatchString(text) {
			return m.keywords[i], true
		}
	}
	return "", false
}

// Keywords returns the compiled keywords in match order
func (m *Matcher) Keywords() []string {
	return append([]string(nil), m.keywords...)
}

// Len is the number of usable keywords
func (m *Matcher) Len() int {
	return len(m.keywords)
}

// Match is the one-shot form of Compile(keywords).Match(text)
func Match(text string, keywords []string) (string, bool) {
	return Compile(keywords).Match(text)
}

// Word characters are Unicode letters, marks, digits and underscore. RE2's \b
// is ASCII-only, so the edges are guarded with explicit classes instead.
const (
	leadingEdge  = `(?:^|[^\p{L}\p{M}\p{N}_])`
	trailingEdge = `(?:$|[^\p{L}\p{M}\p{N}_])`
)

// pattern anchors kw on word boundaries. A boundary only means something next
// to a word character, so an edge like the "+" in "C++" is left unanchored.
func pattern(kw string) string {
	expr := regexp.QuoteMeta(kw)

	if first, _ := utf8.DecodeRuneInString(kw); isWordRune(first) {
		expr = leadingEdge + expr
	}
	if last, _ := utf8.DecodeLastRuneInString(kw); isWordRune(last) {
		expr += trailingEdge
	}

	return `(?i)` + expr
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsDigit(r)
}
