package models

import (
	"time"

	"github.com/google/uuid"

	"patashala-backend/internal/difficulty"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionTrueFalse      QuestionType = "true_false"
	QuestionShortAnswer    QuestionType = "short_answer"
)

// QuestionTypes is the fixed order of a generated question set.
var QuestionTypes = []QuestionType{QuestionMultipleChoice, QuestionTrueFalse, QuestionShortAnswer}

// MatchRule controls how a short answer is compared to its canonical answer.
type MatchRule string

const (
	MatchContains MatchRule = "contains"
	MatchExact    MatchRule = "exact"
	MatchKeywords MatchRule = "keywords"
)

type QuestionItem struct {
	ID              uuid.UUID       `json:"id"`
	Type            QuestionType    `json:"type"`
	Prompt          string          `json:"prompt"`
	Options         []string        `json:"options,omitempty"`
	CorrectIndex    int             `json:"correct_index"`
	CanonicalAnswer string          `json:"canonical_answer,omitempty"`
	MatchRule       MatchRule       `json:"match_rule,omitempty"`
	Keywords        []string        `json:"keywords,omitempty"`
	Explanation     string          `json:"explanation"`
	Difficulty      difficulty.Tier `json:"difficulty"`
	Topic           string          `json:"topic,omitempty"`
}

// CorrectAnswer renders the expected answer for feedback.
func (q QuestionItem) CorrectAnswer() string {
	if q.Type == QuestionShortAnswer {
		return q.CanonicalAnswer
	}
	if q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options) {
		return q.Options[q.CorrectIndex]
	}
	return ""
}

// Quiz generation states.
const (
	QuizPending = "pending"
	QuizReady   = "ready"
	QuizFailed  = "failed"
)

type Quiz struct {
	ID              uuid.UUID       `json:"id"`
	ContentID       uuid.UUID       `json:"content_id"`
	AuthorID        uuid.UUID       `json:"author_id"`
	Subject         string          `json:"subject"`
	Title           string          `json:"title"`
	Baseline        difficulty.Tier `json:"baseline"`
	Questions       []QuestionItem  `json:"questions"`
	Enabled         bool            `json:"enabled"`
	Published       bool            `json:"published"`
	Adaptive        bool            `json:"adaptive"`
	LowConfidence   bool            `json:"low_confidence"`
	Status          string          `json:"status"`
	GenerationError *string         `json:"generation_error"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Available reports whether learners may open a graded attempt.
func (q *Quiz) Available() bool {
	return q.Published && q.Enabled && len(q.Questions) > 0
}

func (q *Quiz) Question(id uuid.UUID) (QuestionItem, bool) {
	for _, item := range q.Questions {
		if item.ID == id {
			return item, true
		}
	}
	return QuestionItem{}, false
}

// QuizStatus is the dashboard view of a content item's quiz.
type QuizStatus string

const (
	QuizStatusNone        QuizStatus = "none"
	QuizStatusUnpublished QuizStatus = "unpublished"
	QuizStatusPublished   QuizStatus = "published"
)

// QuizSummary is what learners see before starting; no answers.
type QuizSummary struct {
	ID            uuid.UUID       `json:"id"`
	ContentID     uuid.UUID       `json:"content_id"`
	Subject       string          `json:"subject"`
	Title         string          `json:"title"`
	Baseline      difficulty.Tier `json:"baseline"`
	QuestionCount int             `json:"question_count"`
	Adaptive      bool            `json:"adaptive"`
	Published     bool            `json:"published"`
	CreatedAt     time.Time       `json:"created_at"`
}

func (q *Quiz) Summary() QuizSummary {
	return QuizSummary{
		ID:            q.ID,
		ContentID:     q.ContentID,
		Subject:       q.Subject,
		Title:         q.Title,
		Baseline:      q.Baseline,
		QuestionCount: len(q.Questions),
		Adaptive:      q.Adaptive,
		Published:     q.Published,
		CreatedAt:     q.CreatedAt,
	}
}

type GenerateQuizRequest struct {
	ContentID      uuid.UUID `json:"content_id" validate:"required"`
	Subject        string    `json:"subject" validate:"required,max=120"`
	Title          string    `json:"title" validate:"max=200"`
	Difficulty     string    `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Adaptive       *bool     `json:"adaptive"`
	MultipleChoice *int      `json:"multiple_choice" validate:"omitempty,min=0"`
	TrueFalse      *int      `json:"true_false" validate:"omitempty,min=0"`
	ShortAnswer    *int      `json:"short_answer" validate:"omitempty,min=0"`
}

type PublishQuizRequest struct {
	Published *bool `json:"published" validate:"required"`
}

type EnableQuizRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}
