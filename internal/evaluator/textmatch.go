package evaluator

import (
	"strings"

	"patashala-backend/internal/models"
	"patashala-backend/internal/textnorm"
)

const (
	keywordMinLen      = 3
	coverageThreshold  = 0.5
	fuzzyPartialCredit = 0.5
)

// localShortAnswerScore is the deterministic rule used when no scorer is
// configured or the scorer fails.
func localShortAnswerScore(q models.QuestionItem, answer string, maxEdit int) float64 {
	ans := textnorm.Normalize(answer)
	canon := textnorm.Normalize(q.CanonicalAnswer)
	if canon == "" {
		return 0
	}

	switch q.MatchRule {
	case models.MatchExact:
		if ans == canon {
			return 1
		}
		return 0
	case models.MatchKeywords:
		return coverage(expectedKeywords(q), strings.Fields(ans))
	}

	if containsPhrase(ans, canon) {
		return 1
	}
	if c := coverage(expectedKeywords(q), strings.Fields(ans)); c >= coverageThreshold {
		return c
	}
	ansTokens := strings.Fields(ans)
	canonTokens := strings.Fields(canon)
	if len(ansTokens) == 1 && len(canonTokens) == 1 && textnorm.Levenshtein(ansTokens[0], canonTokens[0]) <= maxEdit {
		return fuzzyPartialCredit
	}
	return 0
}

// containsPhrase matches canon inside ans on word boundaries.
func containsPhrase(ans, canon string) bool {
	return strings.Contains(" "+ans+" ", " "+canon+" ")
}

func expectedKeywords(q models.QuestionItem) []string {
	if len(q.Keywords) > 0 {
		var out []string
		for _, k := range q.Keywords {
			if n := textnorm.Normalize(k); n != "" {
				out = append(out, n)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	if kw := textnorm.Keywords(q.CanonicalAnswer, keywordMinLen); len(kw) > 0 {
		return kw
	}
	return textnorm.Tokens(q.CanonicalAnswer)
}

// coverage is the fraction of expected keywords found among the answer tokens.
// A keyword may be a phrase, in which case it must appear verbatim.
func coverage(expected, tokens []string) float64 {
	if len(expected) == 0 {
		return 0
	}
	joined := " " + strings.Join(tokens, " ") + " "
	hits := 0
	for _, kw := range expected {
		if strings.Contains(kw, " ") {
			if strings.Contains(joined, " "+kw+" ") {
				hits++
			}
			continue
		}
		for _, tok := range tokens {
			if tok == kw {
				hits++
				break
			}
		}
	}
	return float64(hits) / float64(len(expected))
}
