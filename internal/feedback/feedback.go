// Package feedback turns a completed attempt transcript into an Evaluation.
package feedback

import (
	"fmt"
	"strings"

	"patashala-backend/internal/difficulty"
	"patashala-backend/internal/evaluator"
	"patashala-backend/internal/models"
)

const (
	BracketDoingGreat     = "doing great"
	BracketOnTrack        = "on track"
	BracketKeepPracticing = "keep practicing"
	BracketNeedsReview    = "needs review"

	maxImprovementAreas = 3

	defaultResource = "Review your course materials"
)

type bracket struct {
	min   float64
	label string
	// message is formatted with correct count, total and subject.
	message string
}

var brackets = []bracket{
	{0.8, BracketDoingGreat, "You're doing great! You answered %d of %d questions correctly in %s."},
	{0.6, BracketOnTrack, "You're on track with %d of %d correct in %s. A little more review will lock it in."},
	{0.4, BracketKeepPracticing, "Keep practicing: %d of %d correct in %s. Focus on the areas listed below."},
	{0, BracketNeedsReview, "This topic needs review: %d of %d correct in %s. Revisit the material before trying harder questions."},
}

// Bracket returns the label for an aggregate score.
func Bracket(score float64) string {
	return pick(score).label
}

func pick(score float64) bracket {
	for _, b := range brackets {
		if score >= b.min {
			return b
		}
	}
	return brackets[len(brackets)-1]
}

// Synthesize aggregates the answers of a completed graded attempt.
func Synthesize(subject string, answers []models.AnswerRecord) models.Evaluation {
	ev := models.Evaluation{
		QuestionCount:        len(answers),
		Misconceptions:       []models.Misconception{},
		Strengths:            []string{},
		ImprovementAreas:     []string{},
		RecommendedResources: []string{},
		SuggestedConcepts:    []string{},
	}

	var sum float64
	missedTopics := map[string]bool{}
	strongTopics := map[string]bool{}
	var missedOrder, strongOrder []string

	for i, a := range answers {
		sum += a.Score
		topic := a.Topic
		if topic == "" {
			topic = a.Prompt
		}
		if a.Score >= evaluator.CorrectThreshold {
			ev.CorrectCount++
			if !strongTopics[topic] {
				strongTopics[topic] = true
				strongOrder = append(strongOrder, topic)
			}
			continue
		}
		ev.Misconceptions = append(ev.Misconceptions, models.Misconception{
			QuestionID:    a.QuestionID,
			QuestionIndex: i,
			QuestionType:  a.Type,
			Question:      a.Prompt,
			StudentAnswer: a.StudentAnswer,
			CorrectAnswer: a.CorrectAnswer,
			Explanation:   a.Explanation,
		})
		if !missedTopics[topic] {
			missedTopics[topic] = true
			missedOrder = append(missedOrder, topic)
		}
	}

	if len(answers) > 0 {
		ev.Score = sum / float64(len(answers))
	}

	for _, t := range strongOrder {
		if !missedTopics[t] {
			ev.Strengths = append(ev.Strengths, t)
		}
	}
	for _, t := range missedOrder {
		if len(ev.ImprovementAreas) == maxImprovementAreas {
			break
		}
		ev.ImprovementAreas = append(ev.ImprovementAreas, "Review the concepts related to "+t)
		ev.SuggestedConcepts = append(ev.SuggestedConcepts, "Review concepts related to "+t)
	}
	if len(ev.Misconceptions) > 0 {
		ev.RecommendedResources = append(ev.RecommendedResources, defaultResource)
	}

	b := pick(ev.Score)
	ev.Bracket = b.label
	if strings.TrimSpace(subject) == "" {
		subject = "this quiz"
	}
	ev.Message = fmt.Sprintf(b.message, ev.CorrectCount, ev.QuestionCount, subject)
	ev.RecommendedTier = difficulty.FromAverage(ev.Score)
	return ev
}
