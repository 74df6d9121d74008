// Package textnorm normalizes free text for matching and keyword work.
package textnorm

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a about above after again against all also am an and any are as at be
		because been before being below between both but by can could did do does doing down during each
		few for from further had has have having he her here hers herself him himself his how i if in into
		is it its itself just me more most my myself no nor not now of off on once only or other our ours
		ourselves out over own same she should so some such than that the their theirs them themselves then
		there these they this those through to too under until up very was we were what when where which
		while who whom why will with would you your yours yourself yourselves may might must shall one two
		many much used use using`) {
		stopwords[w] = struct{}{}
	}
}

func IsStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

// Normalize case-folds, applies NFKC and drops punctuation, collapsing runs of
// whitespace to a single space.
func Normalize(s string) string {
	s = cases.Fold().String(norm.NFKC.String(s))
	out := make([]rune, 0, len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// skip
		default:
			if space && len(out) > 0 {
				out = append(out, ' ')
			}
			space = false
			out = append(out, r)
		}
	}
	return string(out)
}

// Tokens returns the normalized words of s.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// Keywords returns distinct non-stopword tokens of at least minLen runes, in
// order of first appearance.
func Keywords(s string, minLen int) []string {
	seen := map[string]bool{}
	var out []string
	for _, tok := range Tokens(s) {
		if len([]rune(tok)) < minLen || IsStopword(tok) || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// LongestFirst orders words by length, longest first, keeping input order on ties.
func LongestFirst(words []string) []string {
	out := append([]string(nil), words...)
	sort.SliceStable(out, func(i, j int) bool {
		return len([]rune(out[i])) > len([]rune(out[j]))
	})
	return out
}

// Levenshtein computes edit distance (insertion, deletion, substitution cost 1).
func Levenshtein(a, b string) int {
	ar := []rune(a)
	br := []rune(b)
	n, m := len(ar), len(br)
	if n == 0 {
		return m
	}
	if m == 0 {
		return n
	}
	dp := make([]int, m+1)
	for j := 0; j <= m; j++ {
		dp[j] = j
	}
	for i := 1; i <= n; i++ {
		prev := dp[0]
		dp[0] = i
		for j := 1; j <= m; j++ {
			tmp := dp[j]
			cost := 0
			if ar[i-1] != br[j-1] {
				cost = 1
			}
			dp[j] = min(dp[j]+1, dp[j-1]+1, prev+cost)
			prev = tmp
		}
	}
	return dp[m]
}
