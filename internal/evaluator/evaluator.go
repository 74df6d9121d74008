// Package evaluator scores a single answer against a question item.
package evaluator

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"patashala-backend/internal/models"
	"patashala-backend/internal/textnorm"
)

// CorrectThreshold is the score at or above which an answer counts as correct.
const CorrectThreshold = 0.5

// Scorer is an external natural-language short-answer scorer. Scores are
// expected in [0,1].
type Scorer interface {
	ScoreShortAnswer(ctx context.Context, q models.QuestionItem, answer string) (float64, error)
}

type Result struct {
	Score       float64
	Correct     bool
	Explanation string
	// Source is "rule" or "scorer".
	Source string
	// StudentAnswer is the answer rendered for transcripts.
	StudentAnswer string
}

type strategy interface {
	evaluate(ctx context.Context, q models.QuestionItem, a models.Answer) (Result, error)
}

type Option func(*Evaluator)

// WithScorer delegates short answers to s, keeping the local rule as fallback.
func WithScorer(s Scorer) Option { return func(e *Evaluator) { e.scorer = s } }

// WithMaxEditDistance sets the single-token fuzzy tolerance.
func WithMaxEditDistance(n int) Option { return func(e *Evaluator) { e.maxEditDistance = n } }

type Evaluator struct {
	scorer          Scorer
	maxEditDistance int
	strategies      map[models.QuestionType]strategy
}

func New(opts ...Option) *Evaluator {
	e := &Evaluator{maxEditDistance: 1}
	for _, o := range opts {
		o(e)
	}
	e.strategies = map[models.QuestionType]strategy{
		models.QuestionMultipleChoice: choiceStrategy{},
		models.QuestionTrueFalse:      choiceStrategy{acceptBoolText: true},
		models.QuestionShortAnswer:    shortAnswerStrategy{scorer: e.scorer, maxEditDistance: e.maxEditDistance},
	}
	return e
}

func (e *Evaluator) Evaluate(ctx context.Context, q models.QuestionItem, a models.Answer) (Result, error) {
	s, ok := e.strategies[q.Type]
	if !ok {
		return Result{}, fmt.Errorf("no strategy for question type %q", q.Type)
	}
	res, err := s.evaluate(ctx, q, a)
	if err != nil {
		return Result{}, err
	}
	res.Score = clampScore(res.Score)
	res.Correct = res.Score >= CorrectThreshold
	res.Explanation = q.Explanation
	return res, nil
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// ─── choice ───

type choiceStrategy struct {
	acceptBoolText bool
}

func (c choiceStrategy) evaluate(_ context.Context, q models.QuestionItem, a models.Answer) (Result, error) {
	idx, err := c.selected(q, a)
	if err != nil {
		return Result{}, err
	}
	score := 0.0
	if idx == q.CorrectIndex {
		score = 1
	}
	return Result{Score: score, Source: "rule", StudentAnswer: q.Options[idx]}, nil
}

func (c choiceStrategy) selected(q models.QuestionItem, a models.Answer) (int, error) {
	var idx int
	switch {
	case a.SelectedIndex != nil:
		idx = *a.SelectedIndex
	case c.acceptBoolText && a.Text != "":
		v, err := strconv.ParseBool(strings.TrimSpace(a.Text))
		if err != nil {
			return 0, &models.ValidationError{Fields: map[string]string{"text": "must be true or false"}}
		}
		// Options are always ["True", "False"].
		if !v {
			idx = 1
		}
	default:
		return 0, &models.ValidationError{Fields: map[string]string{
			"selected_index": fmt.Sprintf("%s questions require a selected option", q.Type),
		}}
	}
	if idx < 0 || idx >= len(q.Options) {
		return 0, &models.ValidationError{Fields: map[string]string{
			"selected_index": fmt.Sprintf("must be between 0 and %d", len(q.Options)-1),
		}}
	}
	return idx, nil
}

// ─── short answer ───

type shortAnswerStrategy struct {
	scorer          Scorer
	maxEditDistance int
}

func (s shortAnswerStrategy) evaluate(ctx context.Context, q models.QuestionItem, a models.Answer) (Result, error) {
	if a.SelectedIndex != nil && a.Text == "" {
		return Result{}, &models.ValidationError{Fields: map[string]string{
			"text": "short-answer questions require a text answer",
		}}
	}
	if textnorm.Normalize(a.Text) == "" {
		return Result{}, &models.ValidationError{Fields: map[string]string{"text": "answer is required"}}
	}

	if s.scorer != nil {
		score, err := s.scorer.ScoreShortAnswer(ctx, q, a.Text)
		if err == nil {
			return Result{Score: score, Source: "scorer", StudentAnswer: a.Text}, nil
		}
		log.Printf("WARNING: short-answer scorer unavailable for question %s, using keyword rule: %v", q.ID, err)
	}

	return Result{
		Score:         localShortAnswerScore(q, a.Text, s.maxEditDistance),
		Source:        "rule",
		StudentAnswer: a.Text,
	}, nil
}
