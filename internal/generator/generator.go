// Package generator builds a quiz's fixed, typed question set from source text.
package generator

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"patashala-backend/internal/difficulty"
	"patashala-backend/internal/models"
)

const (
	minKeySentences  = 3
	keySentenceLimit = 40
	// Fallback accepts shorter sentences than normal generation.
	fallbackMinWords = 3

	defaultExplanation = "Review the source material for this concept."
)

// Mix is the number of questions per type.
type Mix struct {
	MultipleChoice int `json:"multiple_choice"`
	TrueFalse      int `json:"true_false"`
	ShortAnswer    int `json:"short_answer"`
}

func DefaultMix() Mix {
	return Mix{MultipleChoice: 8, TrueFalse: 4, ShortAnswer: 3}
}

func (m Mix) Total() int {
	return m.MultipleChoice + m.TrueFalse + m.ShortAnswer
}

func (m Mix) Count(t models.QuestionType) int {
	switch t {
	case models.QuestionMultipleChoice:
		return m.MultipleChoice
	case models.QuestionTrueFalse:
		return m.TrueFalse
	case models.QuestionShortAnswer:
		return m.ShortAnswer
	}
	return 0
}

// Of reports the mix of an existing question set.
func Of(items []models.QuestionItem) Mix {
	var m Mix
	for _, it := range items {
		switch it.Type {
		case models.QuestionMultipleChoice:
			m.MultipleChoice++
		case models.QuestionTrueFalse:
			m.TrueFalse++
		case models.QuestionShortAnswer:
			m.ShortAnswer++
		}
	}
	return m
}

type Request struct {
	Subject  string
	Title    string
	Text     string
	Mix      Mix
	Baseline difficulty.Tier
}

// Source is an external question author, typically an LLM. It may return
// more or fewer items than requested; the generator repairs the set.
type Source interface {
	GenerateQuestions(ctx context.Context, req Request) ([]models.QuestionItem, error)
}

type Result struct {
	Questions     []models.QuestionItem
	LowConfidence bool
	// LocalCount is how many items came from the local builder.
	LocalCount int
}

type Generator struct {
	mix    Mix
	source Source
}

// New returns a generator enforcing mix. source may be nil.
func New(mix Mix, source Source) *Generator {
	return &Generator{mix: mix, source: source}
}

func (g *Generator) Mix() Mix { return g.mix }

// CheckMix rejects any requested mix other than the configured one.
func (g *Generator) CheckMix(m Mix) error {
	if m == g.mix {
		return nil
	}
	fields := map[string]string{}
	if m.MultipleChoice != g.mix.MultipleChoice {
		fields["multiple_choice"] = fmt.Sprintf("must be %d", g.mix.MultipleChoice)
	}
	if m.TrueFalse != g.mix.TrueFalse {
		fields["true_false"] = fmt.Sprintf("must be %d", g.mix.TrueFalse)
	}
	if m.ShortAnswer != g.mix.ShortAnswer {
		fields["short_answer"] = fmt.Sprintf("must be %d", g.mix.ShortAnswer)
	}
	return &models.ValidationError{Fields: fields}
}

// Generate produces a full question set. It returns InsufficientContentError
// when the text has too few key sentences; callers then use Fallback.
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := g.CheckMix(req.Mix); err != nil {
		return nil, err
	}

	text := PrepareContent(req.Text)
	sentences := KeySentences(text, keySentenceLimit)
	if len(sentences) < minKeySentences {
		return nil, &models.InsufficientContentError{Found: len(sentences), Required: minKeySentences}
	}

	var fromSource []models.QuestionItem
	if g.source != nil {
		sreq := req
		sreq.Text = text
		items, err := g.source.GenerateQuestions(ctx, sreq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			log.Printf("WARNING: question source failed, building locally: %v", err)
		}
		fromSource = items
	}

	return g.assemble(req, fromSource, sentences, false)
}

// Fallback builds a lower-confidence set from whatever sentences the text has.
func (g *Generator) Fallback(req Request) (*Result, error) {
	if err := g.CheckMix(req.Mix); err != nil {
		return nil, err
	}
	sentences := rankSentences(Sentences(PrepareContent(req.Text), fallbackMinWords), keySentenceLimit)
	return g.assemble(req, nil, sentences, true)
}

func (g *Generator) assemble(req Request, fromSource []models.QuestionItem, sentences []string, low bool) (*Result, error) {
	byType := map[models.QuestionType][]models.QuestionItem{}
	for _, item := range fromSource {
		item, ok := repair(item)
		if !ok || len(byType[item.Type]) >= g.mix.Count(item.Type) {
			continue
		}
		byType[item.Type] = append(byType[item.Type], item)
	}

	local := newLocalBuilder(sentences, req.Subject)
	res := &Result{LowConfidence: low}
	for _, t := range models.QuestionTypes {
		if need := g.mix.Count(t) - len(byType[t]); need > 0 {
			fill := local.build(t, need)
			res.LocalCount += len(fill)
			byType[t] = append(byType[t], fill...)
		}
		if len(byType[t]) < g.mix.Count(t) {
			return nil, &models.InsufficientContentError{Found: len(sentences), Required: 1}
		}
		res.Questions = append(res.Questions, byType[t]...)
	}

	for i := range res.Questions {
		res.Questions[i].ID = uuid.New()
		if strings.TrimSpace(res.Questions[i].Topic) == "" {
			res.Questions[i].Topic = req.Subject
		}
	}
	return res, nil
}

// repair coerces a sourced item into a valid item of its type, or rejects it.
func repair(q models.QuestionItem) (models.QuestionItem, bool) {
	q.Prompt = strings.TrimSpace(q.Prompt)
	if q.Prompt == "" {
		return q, false
	}
	q.Explanation = strings.TrimSpace(q.Explanation)
	if q.Explanation == "" {
		q.Explanation = defaultExplanation
	}
	if !q.Difficulty.Valid() {
		q.Difficulty = difficulty.Medium
	}

	switch q.Type {
	case models.QuestionMultipleChoice:
		inRange := q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options)
		if inRange && strings.TrimSpace(q.Options[q.CorrectIndex]) == "" {
			return q, false
		}
		var opts []string
		correct := 0
		for i, o := range q.Options {
			if o = strings.TrimSpace(o); o == "" {
				continue
			}
			if inRange && i == q.CorrectIndex {
				correct = len(opts)
			}
			opts = append(opts, o)
		}
		if len(opts) == 0 {
			return q, false
		}
		q.CorrectIndex = correct
		if len(opts) > optionsPerMCQ {
			if q.CorrectIndex >= optionsPerMCQ {
				opts[optionsPerMCQ-1], opts[q.CorrectIndex] = opts[q.CorrectIndex], opts[optionsPerMCQ-1]
				q.CorrectIndex = optionsPerMCQ - 1
			}
			opts = opts[:optionsPerMCQ]
		}
		for i := 0; len(opts) < optionsPerMCQ; i++ {
			opts = append(opts, paddingOptions[i])
		}
		q.Options = opts
	case models.QuestionTrueFalse:
		q.Options = []string{"True", "False"}
		if q.CorrectIndex != 1 {
			q.CorrectIndex = 0
		}
	case models.QuestionShortAnswer:
		q.Options = nil
		q.CorrectIndex = 0
		q.CanonicalAnswer = strings.TrimSpace(q.CanonicalAnswer)
		if q.CanonicalAnswer == "" {
			return q, false
		}
		if q.MatchRule == "" {
			q.MatchRule = models.MatchContains
		}
	default:
		return q, false
	}
	return q, true
}
