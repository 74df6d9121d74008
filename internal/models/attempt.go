package models

import (
	"time"

	"github.com/google/uuid"

	"patashala-backend/internal/difficulty"
)

type Mode string

const (
	ModeGraded Mode = "graded"
	ModeTest   Mode = "test"
)

func (m Mode) Valid() bool {
	return m == ModeGraded || m == ModeTest
}

// Answer is a learner's response. Choice questions use SelectedIndex,
// short-answer questions use Text.
type Answer struct {
	SelectedIndex *int   `json:"selected_index,omitempty"`
	Text          string `json:"text,omitempty"`
}

type AnswerRecord struct {
	QuestionID    uuid.UUID       `json:"question_id"`
	Number        int             `json:"number"`
	Type          QuestionType    `json:"type"`
	Prompt        string          `json:"prompt"`
	Topic         string          `json:"topic,omitempty"`
	Difficulty    difficulty.Tier `json:"difficulty"`
	Response      Answer          `json:"response"`
	StudentAnswer string          `json:"student_answer"`
	CorrectAnswer string          `json:"correct_answer"`
	Score         float64         `json:"score"`
	Explanation   string          `json:"explanation"`
	AnsweredAt    time.Time       `json:"answered_at"`
}

type Misconception struct {
	QuestionID    uuid.UUID    `json:"question_id"`
	QuestionIndex int          `json:"question_index"`
	QuestionType  QuestionType `json:"question_type"`
	Question      string       `json:"question"`
	StudentAnswer string       `json:"student_answer"`
	CorrectAnswer string       `json:"correct_answer"`
	Explanation   string       `json:"explanation"`
}

type Evaluation struct {
	Score                float64         `json:"score"`
	CorrectCount         int             `json:"correct_count"`
	QuestionCount        int             `json:"question_count"`
	Bracket              string          `json:"bracket"`
	Message              string          `json:"message"`
	Misconceptions       []Misconception `json:"misconceptions"`
	Strengths            []string        `json:"strengths"`
	ImprovementAreas     []string        `json:"improvement_areas"`
	// RecommendedResources and SuggestedConcepts are empty when nothing was missed.
	RecommendedResources []string        `json:"recommended_resources"`
	SuggestedConcepts    []string        `json:"suggested_concepts"`
	RecommendedTier      difficulty.Tier `json:"recommended_tier"`
}

// AttemptRecord is written once per (quiz, learner) for graded attempts.
type AttemptRecord struct {
	ID               uuid.UUID         `json:"id"`
	QuizID           uuid.UUID         `json:"quiz_id"`
	LearnerID        uuid.UUID         `json:"learner_id"`
	Subject          string            `json:"subject"`
	Score            float64           `json:"score"`
	Answers          []AnswerRecord    `json:"answers"`
	Trajectory       []difficulty.Tier `json:"trajectory"`
	Evaluation       Evaluation        `json:"evaluation"`
	TimeTakenSeconds int               `json:"time_taken_seconds"`
	StartedAt        time.Time         `json:"started_at"`
	CompletedAt      time.Time         `json:"completed_at"`
}

// QuestionView is a question as served to a learner. It never carries the answer.
type QuestionView struct {
	ID         uuid.UUID       `json:"id"`
	Number     int             `json:"number"`
	Total      int             `json:"total"`
	Type       QuestionType    `json:"type"`
	Prompt     string          `json:"prompt"`
	Options    []string        `json:"options,omitempty"`
	Difficulty difficulty.Tier `json:"difficulty"`
}

type AnswerResult struct {
	QuestionID  uuid.UUID `json:"question_id"`
	Score       float64   `json:"score"`
	Correct     bool      `json:"correct"`
	Explanation string    `json:"explanation"`
}

type CompletionSummary struct {
	SessionID        uuid.UUID         `json:"session_id"`
	QuizID           uuid.UUID         `json:"quiz_id"`
	Mode             Mode              `json:"mode"`
	Score            float64           `json:"score"`
	Answers          []AnswerRecord    `json:"answers"`
	Trajectory       []difficulty.Tier `json:"trajectory"`
	TimeTakenSeconds int               `json:"time_taken_seconds"`
	Evaluation       *Evaluation       `json:"evaluation"`
	RecordID         *uuid.UUID        `json:"record_id"`
}

type StartAttemptRequest struct {
	Mode Mode `json:"mode" validate:"omitempty,oneof=graded test"`
}

type SubmitAnswerRequest struct {
	QuestionID    uuid.UUID `json:"question_id" validate:"required"`
	SelectedIndex *int      `json:"selected_index" validate:"omitempty,min=0"`
	Text          string    `json:"text" validate:"max=4000"`
}
