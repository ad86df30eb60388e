/**
 * @description
 * Text normalization and ticker extraction for ingested social posts.
 * Strips noise (urls, @mentions, cashtag markers) and resolves company
 * aliases so downstream scoring sees clean text with a symbol attached.
 *
 * @dependencies
 * - standard "regexp", "strings", "sort"
 */

package symbols

import (
	"regexp"
	"sort"
	"strings"
)

var (
	urlPattern     = regexp.MustCompile(`https?://\S+`)
	mentionPattern = regexp.MustCompile(`@\w+`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// sortedAliases holds alias keys longest-first so "hdfc bank" wins over "hdfc".
var sortedAliases = func() []string {
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}()

// Clean normalizes raw social text for scoring: urls and @mentions removed,
// hashtag and cashtag markers stripped, whitespace collapsed.
func Clean(text string) string {
	text = urlPattern.ReplaceAllString(text, " ")
	text = mentionPattern.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "#", " ")
	text = strings.ReplaceAll(text, "$", " ")
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// ExtractMentions returns the tracked tickers referenced by the text, in
// order of first appearance. Matching is case-insensitive and prefers the
// longest alias at a given position.
func ExtractMentions(text string) []string {
	lower := strings.ToLower(text)

	type hit struct {
		pos    int
		symbol string
	}
	var hits []hit
	seen := make(map[string]struct{})

	for _, alias := range sortedAliases {
		idx := indexWord(lower, alias)
		if idx < 0 {
			continue
		}
		sym := aliases[alias]
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		hits = append(hits, hit{pos: idx, symbol: sym})
	}

	// Exact ticker mentions (e.g. "TCS", "INFY") also count
	for _, sym := range Nifty50 {
		if _, dup := seen[sym]; dup {
			continue
		}
		if idx := indexWord(lower, strings.ToLower(sym)); idx >= 0 {
			seen[sym] = struct{}{}
			hits = append(hits, hit{pos: idx, symbol: sym})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.symbol
	}
	return out
}

// PrimarySymbol returns the first mentioned ticker, or the index bucket when
// the text names no tracked company.
func PrimarySymbol(text string) string {
	if mentions := ExtractMentions(text); len(mentions) > 0 {
		return mentions[0]
	}
	return IndexSymbol
}

// indexWord finds needle in haystack at a word boundary, returning -1 if absent.
func indexWord(haystack, needle string) int {
	if needle == "" {
		return -1
	}
	from := 0
	for {
		idx := strings.Index(haystack[from:], needle)
		if idx < 0 {
			return -1
		}
		idx += from
		beforeOK := idx == 0 || !isWordChar(haystack[idx-1])
		end := idx + len(needle)
		afterOK := end >= len(haystack) || !isWordChar(haystack[end])
		if beforeOK && afterOK {
			return idx
		}
		from = idx + 1
		if from >= len(haystack) {
			return -1
		}
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
