// Package search evaluates free-text site queries with scoped tags.
//
// A query is matched as a case-insensitive regular expression against the
// aggregate text of a site. The tags "time:", "material:" and "condition:"
// additionally test the word that follows each occurrence against one
// specific part of the site text. "site:<id>" selects a site by identifier.
package search

import (
	"regexp"
	"strconv"
	"strings"
)

// Scope names the part of the site text a tag is tested against.
type Scope int

const (
	ScopeTime Scope = iota
	ScopeMaterial
	ScopeCondition
)

var scopeTags = [...]string{
	ScopeTime:      "time:",
	ScopeMaterial:  "material:",
	ScopeCondition: "condition:",
}

func (s Scope) text(t Texts) string {
	switch s {
	case ScopeTime:
		return t.Time
	case ScopeMaterial:
		return t.Material
	default:
		return t.Condition
	}
}

// Options tune query compilation.
type Options struct {
	// Literal escapes regular expression metacharacters in the query.
	Literal bool
}

// Query is a compiled, reusable query.
type Query struct {
	raw     string
	pattern *regexp.Regexp
	literal bool
	// per scope, the lowercased word after each tag occurrence; nil when the
	// tag does not occur
	tokens [len(scopeTags)][]string
}

// Compile prepares q for matching. A pattern that is not a valid regular
// expression is matched literally; Literal reports whether that happened.
func Compile(q string, opts Options) *Query {
	out := &Query{raw: q}

	if !opts.Literal {
		if re, err := regexp.Compile("(?i)" + q); err == nil {
			out.pattern = re
		}
	}
	if out.pattern == nil {
		out.pattern = regexp.MustCompile("(?i)" + regexp.QuoteMeta(q))
		out.literal = true
	}

	lower := strings.ToLower(q)
	for s, tag := range scopeTags {
		if !strings.Contains(lower, tag) {
			continue
		}
		parts := strings.Split(lower, tag)[1:]
		words := make([]string, 0, len(parts))
		for _, p := range parts {
			words = append(words, firstWord(p))
		}
		out.tokens[s] = words
	}
	return out
}

// a tag at the end of the query yields "" which matches everything
func firstWord(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

func (q *Query) String() string { return q.raw }

// Empty reports whether q is the "no filter" query.
func (q *Query) Empty() bool { return q.raw == "" }

func (q *Query) Literal() bool { return q.literal }

// scopeTokens returns the words following each occurrence of the scope's tag.
func (q *Query) scopeTokens(s Scope) []string { return q.tokens[s] }

// Match decides inclusion of a site with the given id and aggregate text.
func (q *Query) Match(id int, t Texts) bool {
	return q.pattern.MatchString(t.All) ||
		"site:"+strconv.Itoa(id) == q.raw ||
		q.scopedMatch(ScopeTime, t) ||
		q.scopedMatch(ScopeMaterial, t) ||
		q.scopedMatch(ScopeCondition, t)
}

// matchLower is Match for texts whose scoped parts are already lowercased.
func (q *Query) matchLower(id int, all string, lower Texts) bool {
	if q.pattern.MatchString(all) || "site:"+strconv.Itoa(id) == q.raw {
		return true
	}
	for s := range scopeTags {
		hay := Scope(s).text(lower)
		for _, w := range q.scopeTokens(Scope(s)) {
			if strings.Contains(hay, w) {
				return true
			}
		}
	}
	return false
}

func (q *Query) scopedMatch(s Scope, t Texts) bool {
	words := q.scopeTokens(s)
	if words == nil {
		return false
	}
	hay := strings.ToLower(s.text(t))
	for _, w := range words {
		if strings.Contains(hay, w) {
			return true
		}
	}
	return false
}
