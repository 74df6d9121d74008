package generator

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"patashala-backend/internal/difficulty"
	"patashala-backend/internal/models"
	"patashala-backend/internal/textnorm"
)

const (
	blank          = "_____"
	minClozeRunes  = 5
	optionsPerMCQ  = 4
	fallbackOption = "None of the above"
)

var paddingOptions = []string{fallbackOption, "All of the above", "Not covered in the material"}

// localBuilder makes cloze-style questions straight from key sentences. It
// backs up the LLM source and is the only source when none is configured.
type localBuilder struct {
	sentences []string
	terms     [][]string // cloze candidates per sentence, longest first
	pool      []string   // every candidate across sentences
	cursor    int
	made      int
	subject   string
}

func newLocalBuilder(sentences []string, subject string) *localBuilder {
	b := &localBuilder{subject: subject}
	seen := map[string]bool{}
	for _, s := range sentences {
		terms := clozeTerms(s)
		if len(terms) == 0 {
			continue
		}
		b.sentences = append(b.sentences, s)
		b.terms = append(b.terms, terms)
		for _, t := range terms {
			if k := strings.ToLower(t); !seen[k] {
				seen[k] = true
				b.pool = append(b.pool, t)
			}
		}
	}
	return b
}

func (b *localBuilder) usable() bool { return len(b.sentences) > 0 }

// build returns n items of type t. It cycles through sentences when there are
// fewer sentences than requested items.
func (b *localBuilder) build(t models.QuestionType, n int) []models.QuestionItem {
	if !b.usable() {
		return nil
	}
	items := make([]models.QuestionItem, 0, n)
	for i := 0; i < n; i++ {
		idx := b.cursor % len(b.sentences)
		b.cursor++
		sentence, term := b.sentences[idx], b.terms[idx][0]

		var item models.QuestionItem
		switch t {
		case models.QuestionMultipleChoice:
			item = b.multipleChoice(sentence, term)
		case models.QuestionTrueFalse:
			item = b.trueFalse(sentence, term)
		case models.QuestionShortAnswer:
			item = b.shortAnswer(sentence, term)
		}
		item.Explanation = fmt.Sprintf("The material states: %q", sentence)
		item.Difficulty = difficulty.All[b.made%len(difficulty.All)]
		item.Topic = b.subject
		b.made++
		items = append(items, item)
	}
	return items
}

func (b *localBuilder) multipleChoice(sentence, term string) models.QuestionItem {
	distractors := b.distractors(term, optionsPerMCQ-1)
	correct := b.made % optionsPerMCQ
	options := make([]string, 0, optionsPerMCQ)
	for len(options) < optionsPerMCQ {
		if len(options) == correct {
			options = append(options, term)
			continue
		}
		options = append(options, distractors[0])
		distractors = distractors[1:]
	}
	return models.QuestionItem{
		Type:         models.QuestionMultipleChoice,
		Prompt:       "Fill in the blank: " + cloze(sentence, term),
		Options:      options,
		CorrectIndex: correct,
	}
}

func (b *localBuilder) trueFalse(sentence, term string) models.QuestionItem {
	item := models.QuestionItem{
		Type:         models.QuestionTrueFalse,
		Prompt:       "True or False: " + sentence,
		Options:      []string{"True", "False"},
		CorrectIndex: 0,
	}
	if b.made%2 == 1 {
		if swap := b.distractors(term, 1)[0]; swap != fallbackOption {
			item.Prompt = "True or False: " + replaceTerm(sentence, term, swap)
			item.CorrectIndex = 1
		}
	}
	return item
}

func (b *localBuilder) shortAnswer(sentence, term string) models.QuestionItem {
	return models.QuestionItem{
		Type:            models.QuestionShortAnswer,
		Prompt:          "Complete the statement: " + cloze(sentence, term),
		CanonicalAnswer: term,
		MatchRule:       models.MatchContains,
		Keywords:        []string{strings.ToLower(term)},
	}
}

// distractors picks n terms other than term, rotating through the pool so
// consecutive questions do not share the same wrong answers.
func (b *localBuilder) distractors(term string, n int) []string {
	var out []string
	if len(b.pool) > 0 {
		start := b.made % len(b.pool)
		for i := 0; i < len(b.pool) && len(out) < n; i++ {
			cand := b.pool[(start+i)%len(b.pool)]
			if strings.EqualFold(cand, term) {
				continue
			}
			out = append(out, cand)
		}
	}
	for _, p := range paddingOptions {
		if len(out) >= n {
			break
		}
		out = append(out, p)
	}
	return out
}

// clozeTerms are content words long enough to blank out.
func clozeTerms(sentence string) []string {
	seen := map[string]bool{}
	var out []string
	for _, field := range strings.Fields(sentence) {
		w := strings.TrimFunc(field, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		lower := strings.ToLower(w)
		if len([]rune(w)) < minClozeRunes || textnorm.IsStopword(lower) || seen[lower] {
			continue
		}
		if strings.IndexFunc(w, unicode.IsLetter) < 0 {
			continue
		}
		seen[lower] = true
		out = append(out, w)
	}
	return textnorm.LongestFirst(out)
}

func cloze(sentence, term string) string {
	return replaceTerm(sentence, term, blank)
}

// replaceTerm swaps the first whole-word occurrence of term.
func replaceTerm(sentence, term, with string) string {
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(term) + `\b`)
	loc := re.FindStringIndex(sentence)
	if loc == nil {
		return strings.Replace(sentence, term, with, 1)
	}
	return sentence[:loc[0]] + with + sentence[loc[1]:]
}
