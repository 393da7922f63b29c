// Package keys builds Redis keys for cached site data.
package keys

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const snapshotPrefix = "sites:snapshot"

// Snapshot returns the key of the cached sites document fetched from source
// (usually its URL). The readable part is informative only; the hash of the
// normalized source makes the key unique.
func Snapshot(source string) string {
	norm := normalizeSource(source)
	readable := sanitizeForKey(norm)

	const maxReadableLen = 120
	if len(readable) > maxReadableLen {
		readable = readable[:maxReadableLen]
	}

	sum := xxhash.Sum64String(norm)
	return fmt.Sprintf("%s:%s:u=%016x", snapshotPrefix, readable, sum)
}

// lowercases scheme and host, drops the fragment and a trailing slash
func normalizeSource(s string) string {
	s = strings.TrimSpace(s)
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return s
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.':
			out = r
		default:
			// separators and non-ASCII collapse to '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
