package generator

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"patashala-backend/internal/textnorm"
)

const (
	maxContentRunes = 40000
	headRunes       = 10000
	middleRunes     = 8000
	tailRunes       = 8000

	minSentenceWords = 6
	maxSentenceWords = 60
	digitBonus       = 5
)

var sentenceBoundary = regexp.MustCompile(`[.!?]+["')\]]*\s+|\n\s*\n`)

// PrepareContent keeps long documents within prompt limits by sampling the
// start, middle and end, plus any heading lines.
func PrepareContent(text string) string {
	r := []rune(text)
	if len(r) <= maxContentRunes {
		return text
	}

	mid := len(r)/2 - middleRunes/2
	parts := []string{string(r[:headRunes])}
	if h := headingLines(text); len(h) > 0 {
		parts = append(parts, strings.Join(h, "\n"))
	}
	parts = append(parts, string(r[mid:mid+middleRunes]), string(r[len(r)-tailRunes:]))
	return strings.Join(parts, "\n\n")
}

func headingLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || len(line) > 100 {
			continue
		}
		if strings.HasPrefix(line, "#") || (strings.ToUpper(line) == line && strings.IndexFunc(line, unicode.IsLetter) >= 0) {
			out = append(out, strings.TrimSpace(strings.TrimLeft(line, "#")))
		}
	}
	return out
}

// Sentences splits text into sentences with at least minWords words.
func Sentences(text string, minWords int) []string {
	var out []string
	for _, raw := range sentenceBoundary.Split(text, -1) {
		s := strings.Join(strings.Fields(raw), " ")
		n := len(strings.Fields(s))
		if n < minWords || n > maxSentenceWords {
			continue
		}
		if !strings.ContainsAny(s[len(s)-1:], ".!?") {
			s += "."
		}
		out = append(out, s)
	}
	return out
}

func importance(sentence string) int {
	score := 0
	for _, tok := range textnorm.Tokens(sentence) {
		if !textnorm.IsStopword(tok) {
			score++
		}
	}
	if strings.IndexFunc(sentence, unicode.IsDigit) >= 0 {
		score += digitBonus
	}
	return score
}

// KeySentences returns up to limit sentences ranked by importance.
func KeySentences(text string, limit int) []string {
	return rankSentences(Sentences(text, minSentenceWords), limit)
}

func rankSentences(sentences []string, limit int) []string {
	type scored struct {
		s     string
		score int
	}
	seen := map[string]bool{}
	var ranked []scored
	for _, s := range sentences {
		key := textnorm.Normalize(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		ranked = append(ranked, scored{s, importance(s)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.s
	}
	return out
}
